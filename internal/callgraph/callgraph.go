// Package callgraph adapts reconstructed programs to lattice call graphs
// and control flow graphs.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"
	"unfas/internal/disasm"
	"unfas/internal/opcode"
	"unfas/internal/syntax"
)

// FuncInfo holds the data needed to build call graph and CFG for one function.
type FuncInfo struct {
	Name      string
	Def       *syntax.FunctionDef
	Insts     []disasm.Inst // the function's own instructions, nested functions excluded
	CallEdges []disasm.CallEdge
}

// Program is the call structure of one decompiled file.
type Program struct {
	Base     int
	Funcs    []FuncInfo
	TopLevel []disasm.CallEdge // calls made outside any function
}

// Collect gathers every function of the tree with its instructions and call
// sites. Calls come from CallExpr nodes and from call instructions left in
// OpaqueBlocks.
func Collect(nodes []syntax.Node, insts []disasm.Inst, base int) *Program {
	p := &Program{Base: base}
	p.TopLevel = callsIn(nodes, "", base)
	for _, fn := range syntax.Functions(nodes) {
		p.Funcs = append(p.Funcs, FuncInfo{
			Name:      fn.Name.Text,
			Def:       fn,
			Insts:     ownInsts(fn, insts),
			CallEdges: callsIn(fn.Body, fn.Name.Text, base),
		})
	}
	return p
}

// ownInsts returns the instructions inside fn but outside any function
// nested in it.
func ownInsts(fn *syntax.FunctionDef, insts []disasm.Inst) []disasm.Inst {
	var nested []syntax.Span
	for _, inner := range syntax.Functions(fn.Body) {
		nested = append(nested, inner.Extent)
	}
	var out []disasm.Inst
	for _, in := range insts {
		if !fn.Extent.Contains(in.Offset) {
			continue
		}
		skip := false
		for _, s := range nested {
			if s.Contains(in.Offset) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, in)
		}
	}
	return out
}

// callsIn collects call sites in nodes without descending into nested
// functions.
func callsIn(nodes []syntax.Node, caller string, base int) []disasm.CallEdge {
	var edges []disasm.CallEdge
	syntax.Walk(nodes, func(n syntax.Node, _ int) bool {
		switch n := n.(type) {
		case *syntax.FunctionDef:
			return false
		case *syntax.CallExpr:
			if !n.Special {
				edges = append(edges, disasm.CallEdge{
					FromOffset: base + n.At,
					Caller:     caller,
					Callee:     n.Callee.Text,
					SymIndex:   n.Callee.Index,
					Argc:       len(n.Args),
					Resolved:   n.Callee.Resolved(),
				})
			}
		case *syntax.OpaqueBlock:
			for _, e := range disasm.ExtractCallEdges(callInsts(n.Insts), base) {
				e.Caller = caller
				edges = append(edges, e)
			}
		}
		return true
	})
	return edges
}

func callInsts(insts []disasm.Inst) []disasm.Inst {
	var out []disasm.Inst
	for _, in := range insts {
		if in.Role == opcode.RoleCall {
			out = append(out, in)
		}
	}
	return out
}

// BuildCallGraph constructs a lattice.Graph from reconstructed functions.
// Each function becomes a node and each call site an edge. Calls made from
// top-level code have no caller node and are left out.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			if e.Callee == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: e.Callee,
			})
		}
	}
	g.Dedup()
	return g
}

// Records converts the program to JSONL records.
func (p *Program) Records() ([]disasm.FuncRecord, []disasm.CallEdgeRecord) {
	var funcs []disasm.FuncRecord
	var edges []disasm.CallEdgeRecord
	for _, f := range p.Funcs {
		r := disasm.FuncRecord{
			Name:  f.Name,
			Calls: len(f.CallEdges),
		}
		if d := f.Def; d != nil {
			r.Offset = fmt.Sprintf("0x%x", p.Base+d.Extent.Start)
			r.Size = d.Extent.Len()
			r.Params = len(d.Params)
			r.Locals = len(d.Locals)
			if !d.Name.Resolved() || d.Name.Low() {
				r.Confidence = "low"
			}
		}
		funcs = append(funcs, r)
		edges = append(edges, edgeRecords(f.CallEdges)...)
	}
	edges = append(edges, edgeRecords(p.TopLevel)...)
	return funcs, edges
}

func edgeRecords(in []disasm.CallEdge) []disasm.CallEdgeRecord {
	out := make([]disasm.CallEdgeRecord, 0, len(in))
	for _, e := range in {
		out = append(out, disasm.CallEdgeRecord{
			FromFunc: e.Caller,
			FromPC:   fmt.Sprintf("0x%x", e.FromOffset),
			Target:   e.Callee,
			Argc:     e.Argc,
			Resolved: e.Resolved,
		})
	}
	return out
}
