// Package disasm decodes FAS bytecode with a swappable opcode table.
package disasm

import (
	"fmt"
	"strings"

	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/recovery"
)

// RawByte is the operand kind of the single byte carried by an unknown
// opcode.
const RawByte opcode.OperandKind = "raw"

// Operand is one decoded operand. Index operands carry the recovered string
// or symbol they refer to, or Unresolved when recovery has no entry.
type Operand struct {
	Kind       opcode.OperandKind `json:"kind"`
	Value      int64              `json:"value"`
	Ref        *recovery.String   `json:"ref,omitempty"`
	Unresolved bool               `json:"unresolved,omitempty"`
}

// IsIndex reports whether the operand indexes a string or symbol table.
func (o Operand) IsIndex() bool { return o.Kind == opcode.Str || o.Kind == opcode.Sym }

func (o Operand) String() string {
	switch o.Kind {
	case opcode.Str:
		if o.Ref != nil {
			return fmt.Sprintf("str#%d %q", o.Value, o.Ref.Text)
		}
		return fmt.Sprintf("str#%d ?", o.Value)
	case opcode.Sym:
		if o.Ref != nil {
			return fmt.Sprintf("sym#%d <%s>", o.Value, o.Ref.Text)
		}
		return fmt.Sprintf("sym#%d ?", o.Value)
	case opcode.Rel:
		return fmt.Sprintf("%+d", o.Value)
	case RawByte:
		return fmt.Sprintf("0x%02x", o.Value)
	default:
		return fmt.Sprintf("%d", o.Value)
	}
}

// Inst is a decoded instruction. Offset is relative to the start of the
// bytecode slice.
type Inst struct {
	Offset   int         `json:"offset"`
	Size     int         `json:"size"`
	Op       byte        `json:"op"`
	Mnemonic string      `json:"mnemonic"`
	Role     opcode.Role `json:"role,omitempty"`
	Known    bool        `json:"known"`
	Operands []Operand   `json:"operands,omitempty"`
	Raw      []byte      `json:"-"`
}

// End returns the offset just past the instruction.
func (in Inst) End() int { return in.Offset + in.Size }

// Text renders the mnemonic and operands.
func (in Inst) Text() string {
	if len(in.Operands) == 0 {
		return in.Mnemonic
	}
	parts := make([]string, len(in.Operands))
	for i, o := range in.Operands {
		parts[i] = o.String()
	}
	return in.Mnemonic + " " + strings.Join(parts, ", ")
}

// HasUnresolved reports whether any index operand failed to resolve.
func (in Inst) HasUnresolved() bool {
	for _, o := range in.Operands {
		if o.Unresolved {
			return true
		}
	}
	return false
}

// Resolver maps table indices to recovered text. *recovery.Tables
// implements it.
type Resolver interface {
	LookupString(i int) (*recovery.String, bool)
	LookupSymbol(i int) (*recovery.String, bool)
}

// Options controls disassembly behavior.
type Options struct {
	Base     int      // absolute offset of the first bytecode byte
	MaxSteps int      // maximum instructions to decode; 0 = fasfmt.DefaultMaxSteps
	Resolver Resolver // optional; without it every index is unresolved
}

func (o Options) effectiveMax() int {
	return fasfmt.Options{MaxSteps: o.MaxSteps}.EffectiveMaxSteps()
}

// Disassemble walks code with table. Unknown opcodes become one-byte
// instructions so decoding resynchronises on the next byte. If an opcode's
// operands run past the end of code, the instructions decoded so far are
// returned together with an ErrTruncatedBytecode error.
func Disassemble(code []byte, table opcode.OpcodeTable, opts Options) ([]Inst, []fasfmt.Diag, error) {
	var diags fasfmt.Diags
	maxSteps := opts.effectiveMax()
	insts := make([]Inst, 0, min(len(code), maxSteps))
	unknownRun := -1

	flushUnknown := func(end int) {
		if unknownRun >= 0 {
			diags.Addf(uint64(opts.Base+unknownRun), fasfmt.DiagUnknownOpcode,
				"%d byte(s) with no opcode mapping in %s", end-unknownRun, table.Name())
			unknownRun = -1
		}
	}

	off := 0
	for off < len(code) {
		if len(insts) >= maxSteps {
			flushUnknown(off)
			diags.Addf(uint64(opts.Base+off), fasfmt.DiagClamped,
				"stopped after %d instructions, %d bytes not decoded", maxSteps, len(code)-off)
			break
		}
		op := code[off]
		spec, ok := table.Lookup(op)
		if !ok {
			if unknownRun < 0 {
				unknownRun = off
			}
			insts = append(insts, Inst{
				Offset:   off,
				Size:     1,
				Op:       op,
				Mnemonic: fmt.Sprintf("op_%02x", op),
				Operands: []Operand{{Kind: RawByte, Value: int64(op)}},
				Raw:      code[off : off+1 : off+1],
			})
			off++
			continue
		}
		flushUnknown(off)

		size := spec.Size()
		if off+size > len(code) {
			err := fasfmt.Errorf(fasfmt.ErrTruncatedBytecode, opts.Base+off,
				"%s needs %d bytes, %d left", spec.Mnemonic, size, len(code)-off)
			diags.Add(uint64(opts.Base+off), fasfmt.DiagTruncatedBytecode, err.Error())
			return insts, diags.Items(), err
		}

		in := Inst{
			Offset:   off,
			Size:     size,
			Op:       op,
			Mnemonic: spec.Mnemonic,
			Role:     spec.Role,
			Known:    true,
			Raw:      code[off : off+size : off+size],
		}
		s := fasfmt.NewStreamAt(in.Raw, 1)
		for _, k := range spec.Operands {
			operand := readOperand(s, k)
			resolve(&operand, opts.Resolver)
			in.Operands = append(in.Operands, operand)
		}
		if in.HasUnresolved() {
			diags.Addf(uint64(opts.Base+off), fasfmt.DiagUnresolvedOperand, "%s", in.Text())
		}
		insts = append(insts, in)
		off += size
	}
	flushUnknown(off)
	return insts, diags.Items(), nil
}

// readOperand decodes one operand. The caller has checked the length.
func readOperand(s *fasfmt.Stream, k opcode.OperandKind) Operand {
	var v int64
	switch k.Size() {
	case 1:
		b, _ := s.ReadByte()
		v = int64(b)
		if k.Signed() {
			v = int64(int8(b))
		}
	case 2:
		u, _ := s.ReadUint16()
		v = int64(u)
		if k.Signed() {
			v = int64(int16(u))
		}
	case 4:
		u, _ := s.ReadUint32()
		v = int64(u)
		if k.Signed() {
			v = int64(int32(u))
		}
	}
	return Operand{Kind: k, Value: v}
}

func resolve(o *Operand, r Resolver) {
	if !o.IsIndex() {
		return
	}
	var (
		s  *recovery.String
		ok bool
	)
	if r != nil {
		if o.Kind == opcode.Str {
			s, ok = r.LookupString(int(o.Value))
		} else {
			s, ok = r.LookupSymbol(int(o.Value))
		}
	}
	o.Ref = s
	o.Unresolved = !ok
}

// Format renders instructions as stable text output.
// Each line: <offset>  <hex bytes>  <instruction>  ; <comment>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, base int, lookup SymbolLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, in := range insts {
		if lookup != nil {
			if name, ok := lookup(in.Offset); ok {
				fmt.Fprintf(&b, "%s:\n", name)
			}
		}
		fmt.Fprintf(&b, "0x%06x  ", base+in.Offset)
		hex := make([]string, len(in.Raw))
		for i, c := range in.Raw {
			hex[i] = fmt.Sprintf("%02x", c)
		}
		fmt.Fprintf(&b, "%-15s  ", strings.Join(hex, " "))
		b.WriteString(in.Text())
		for _, ann := range annotators {
			if s := ann(in); s != "" {
				fmt.Fprintf(&b, "  ; %s", s)
				break
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// SymbolLookup resolves a bytecode offset to a label. Returns ("", false)
// if the offset has none.
type SymbolLookup func(offset int) (name string, ok bool)

// PlaceholderLookup returns a SymbolLookup over a fixed set of labels, such
// as function entry points.
func PlaceholderLookup(labels map[int]string) SymbolLookup {
	return func(offset int) (string, bool) {
		name, ok := labels[offset]
		return name, ok
	}
}
