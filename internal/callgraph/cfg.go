package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"
	"unfas/internal/disasm"
	"unfas/internal/signal"
)

// BuildCFG constructs a lattice.CFGGraph from reconstructed functions.
// Each FuncInfo is converted to a lattice.FuncCFG via disasm.BuildCFG then
// mapped to lattice types.
func BuildCFG(funcs []FuncInfo, base int) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		dcfg := disasm.BuildCFG(f.Name, f.Insts)
		cg.Funcs = append(cg.Funcs, convertFuncCFG(&dcfg, f.CallEdges, base))
	}
	return cg
}

// BuildFuncCFG builds a single-function lattice.FuncCFG from instructions and call edges.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial functions).
func BuildFuncCFG(name string, insts []disasm.Inst, edges []disasm.CallEdge, base int) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(name, insts)
	return convertFuncCFG(&dcfg, edges, base), len(dcfg.Blocks)
}

// SignalCFG summarizes each signal function of g as a single block listing
// its classified calls and strings, in first-seen order.
func SignalCFG(g *signal.Graph) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range g.Funcs {
		if f.Role != "signal" {
			continue
		}
		seen := make(map[string]bool)
		var calls []lattice.CallSite
		for _, r := range f.Refs {
			label := r.Value
			if r.Kind == "string" {
				if len(label) > 50 {
					label = label[:47] + "..."
				}
				label = fmt.Sprintf("%q", label)
			}
			if seen[label] {
				continue
			}
			seen[label] = true
			calls = append(calls, lattice.CallSite{Offset: len(calls), Callee: label})
		}
		lcfg := &lattice.FuncCFG{Name: f.Name}
		if len(calls) > 0 {
			lcfg.Blocks = append(lcfg.Blocks, &lattice.BasicBlock{
				ID:    0,
				Start: 0,
				End:   1,
				Term:  true,
				Calls: calls,
			})
		}
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Call edges are mapped into blocks by matching instruction offsets.
func convertFuncCFG(dcfg *disasm.FuncCFG, edges []disasm.CallEdge, base int) *lattice.FuncCFG {
	edgeByOff := make(map[int]disasm.CallEdge, len(edges))
	for _, e := range edges {
		edgeByOff[e.FromOffset] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}

		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}

		// Populate calls from edges that fall within this block's instruction range.
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if e, ok := edgeByOff[base+dcfg.Insts[idx].Offset]; ok {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: e.Callee,
				})
			}
		}

		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
