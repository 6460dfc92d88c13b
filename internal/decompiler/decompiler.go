// Package decompiler runs the full pipeline over one FAS file: container,
// regions, string recovery, disassembly, reconstruction and rendering.
package decompiler

import (
	"errors"
	"fmt"
	"sort"

	"unfas/internal/callgraph"
	"unfas/internal/container"
	"unfas/internal/disasm"
	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/reconstruct"
	"unfas/internal/recovery"
	"unfas/internal/region"
	"unfas/internal/render"
	"unfas/internal/sexpr"
	"unfas/internal/syntax"
)

// Options configures a decompilation.
type Options struct {
	fasfmt.Options
	Recovery recovery.Options
	Registry *opcode.Registry   // opcode tables by name; nil = built-in tables
	Table    opcode.OpcodeTable // overrides the table the container profile names
	Render   render.LispOptions
	Title    string // label for the rendered header
}

// Result is a finished decompilation. It is never modified after Decompile
// returns, so it may be shared between goroutines.
type Result struct {
	Hash      string
	Container *container.Container
	Table     opcode.OpcodeTable

	// Regions partitions everything after the header: the bytecode region
	// plus classified auxiliary, trailer and padding bytes.
	Regions []region.Region
	Tables  *recovery.Tables

	Base         int // absolute offset of the bytecode
	Instructions []disasm.Inst
	Nodes        []syntax.Node
	Index        *syntax.Index
	Program      *callgraph.Program
	Document     *render.Document

	Folded, Total int
	Diags         []fasfmt.Diag

	// Truncation holds the ErrTruncatedBytecode failure when the stream
	// ended mid-instruction in best-effort mode.
	Truncation error
}

// Coverage returns the folded share of the bytecode in [0,1].
func (r *Result) Coverage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Folded) / float64(r.Total)
}

// Text returns the rendered AutoLISP.
func (r *Result) Text() string { return r.Document.Text }

// Decompile runs the pipeline over data. Container errors are fatal. A
// truncated bytecode stream is fatal in strict mode; in best-effort mode
// the decoded prefix is kept and the error is recorded in Truncation.
func Decompile(data []byte, opts Options) (*Result, error) {
	c, err := container.Read(data, opts.Options)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Hash:      c.Header.SHA256,
		Container: c,
		Base:      c.Header.CodeOffset,
	}
	var diags fasfmt.Diags

	res.Regions = Regions(c)
	tables, rd := recovery.Recover(data, res.Regions, opts.Recovery)
	res.Tables = tables
	diags.Merge(rd)

	res.Table = opts.Table
	if res.Table == nil {
		res.Table, err = tableFor(c.Profile, opts.Registry)
		if err != nil {
			return nil, err
		}
	}

	insts, dd, err := disasm.Disassemble(c.Bytecode, res.Table, disasm.Options{
		Base:     res.Base,
		MaxSteps: opts.EffectiveMaxSteps(),
		Resolver: tables,
	})
	diags.Merge(dd)
	if err != nil {
		if opts.Mode == fasfmt.ModeStrict || !errors.Is(err, fasfmt.ErrTruncatedBytecode) {
			return nil, err
		}
		res.Truncation = err
	}
	res.Instructions = insts

	rec := reconstruct.Reconstruct(c.Bytecode, insts, res.Table, reconstruct.Options{Base: res.Base})
	diags.Merge(rec.Diags)
	res.Nodes = rec.Nodes
	res.Folded, res.Total = rec.Folded, rec.Total
	res.Index = syntax.NewIndex(res.Nodes)
	res.Program = callgraph.Collect(res.Nodes, insts, res.Base)

	in := res.renderInput(opts.Title, diags.Len())
	res.Document = render.Lisp(in, opts.Render)
	if _, perr := sexpr.Parse(res.Document.Text); perr != nil {
		diags.Addf(uint64(res.Base), fasfmt.DiagInvalid, "rendered text does not parse: %v", perr)
	}
	res.Diags = diags.Items()
	return res, nil
}

// RenderInput returns the renderer input for r, for rendering with other
// options.
func (r *Result) RenderInput(title string) *render.Input {
	return r.renderInput(title, len(r.Diags))
}

func (r *Result) renderInput(title string, ndiags int) *render.Input {
	in := &render.Input{
		Title:  title,
		Format: r.Container.Header.Variant.String(),
		SHA256: r.Hash,
		Base:   r.Base,
		Folded: r.Folded,
		Total:  r.Total,
		Tables: r.Tables,
		Nodes:  r.Nodes,
		Diags:  ndiags,
	}
	if r.Table.Version() > 0 {
		in.Table = fmt.Sprintf("%s v%d", r.Table.Name(), r.Table.Version())
	}
	if r.Truncation != nil {
		in.Truncated = r.Truncation.Error()
	}
	return in
}

// tableFor resolves the opcode table a profile names. Profiles without a
// table get an empty one, so the stream degrades to a single OpaqueBlock.
func tableFor(p container.Profile, reg *opcode.Registry) (opcode.OpcodeTable, error) {
	if p.Table == "" {
		return opcode.Empty(string(p.ID)), nil
	}
	if reg == nil {
		var err error
		if reg, err = opcode.NewRegistry(); err != nil {
			return nil, fmt.Errorf("decompiler: %w", err)
		}
	}
	t, ok := reg.Resolve(p.Table, p.TableVersion)
	if !ok {
		return opcode.Empty(p.Table), nil
	}
	return t, nil
}

// Regions partitions every byte after the container header. The bytecode
// section is one region; aux and trailer bytes are classified; padding
// becomes Unknown regions.
func Regions(c *container.Container) []region.Region {
	var out []region.Region
	for _, s := range c.Sections {
		if s.Len() == 0 {
			continue
		}
		switch s.Kind {
		case container.SectionBytecode:
			out = append(out, region.Region{
				Kind: region.KindBytecode, Start: s.Start, End: s.End,
				Confidence: 1, Method: region.MethodContainer,
			})
		case container.SectionAux, container.SectionTrailer:
			out = append(out, region.Classify(s.Data, s.Start)...)
		case container.SectionPadding:
			out = append(out, region.Region{
				Kind: region.KindUnknown, Start: s.Start, End: s.End,
				Method: region.MethodPadding,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Listing returns the annotated instruction listing with function labels.
func (r *Result) Listing() string {
	lookup := disasm.PlaceholderLookup(disasm.EntryLabels(r.Instructions, r.Base))
	return disasm.Format(r.Instructions, r.Base, lookup,
		disasm.UnresolvedAnnotator(),
		disasm.ProvenanceAnnotator(false),
		disasm.BranchAnnotator(r.Base),
		disasm.UnknownAnnotator(),
	)
}
