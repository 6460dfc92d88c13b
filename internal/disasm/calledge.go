package disasm

import (
	"fmt"

	"unfas/internal/opcode"
)

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromOffset int    `json:"from_offset"`
	Caller     string `json:"caller,omitempty"`
	Callee     string `json:"callee"`
	SymIndex   int    `json:"sym_index"`
	Argc       int    `json:"argc"`
	Resolved   bool   `json:"resolved"`
}

// ExtractCallEdges scans instructions for call sites. The caller of each
// edge is the most recent function entry, or "" at top level; a function
// exit returns to top level. Unresolved callees are named sym_<index>.
func ExtractCallEdges(insts []Inst, base int) []CallEdge {
	var (
		edges  []CallEdge
		caller string
	)
	for _, in := range insts {
		switch in.Role {
		case opcode.RoleEntry:
			caller = EntryName(in, base)
			continue
		case opcode.RoleExit:
			caller = ""
			continue
		case opcode.RoleCall:
		default:
			continue
		}
		e := CallEdge{FromOffset: base + in.Offset, Caller: caller, SymIndex: -1}
		for _, o := range in.Operands {
			switch o.Kind {
			case opcode.U8:
				e.Argc = int(o.Value)
			case opcode.Sym:
				e.SymIndex = int(o.Value)
				if o.Ref != nil {
					e.Callee, e.Resolved = o.Ref.Text, true
				} else {
					e.Callee = fmt.Sprintf("sym_%d", o.Value)
				}
			}
		}
		edges = append(edges, e)
	}
	return edges
}
