package disasm

import (
	"fmt"
	"strings"

	"unfas/internal/opcode"
)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation.
type Annotator func(in Inst) string

// UnresolvedAnnotator flags index operands that recovery could not resolve.
func UnresolvedAnnotator() Annotator {
	return func(in Inst) string {
		var out []string
		for _, o := range in.Operands {
			if o.Unresolved {
				out = append(out, fmt.Sprintf("%s#%d", o.Kind, o.Value))
			}
		}
		if len(out) == 0 {
			return ""
		}
		return "unresolved " + strings.Join(out, ", ")
	}
}

// ProvenanceAnnotator shows strategy and confidence for operands that
// resolved to low-confidence strings. With all set, every resolved operand
// is annotated.
func ProvenanceAnnotator(all bool) Annotator {
	return func(in Inst) string {
		var out []string
		for _, o := range in.Operands {
			if o.Ref != nil && (all || o.Ref.Low) {
				out = append(out, fmt.Sprintf("%s#%d %s", o.Kind, o.Value, o.Ref.Provenance()))
			}
		}
		return strings.Join(out, "; ")
	}
}

// BranchAnnotator prints absolute jump targets. base is the absolute offset
// of the bytecode slice.
func BranchAnnotator(base int) Annotator {
	return func(in Inst) string {
		bi := DecodeBranch(in)
		if bi == nil || bi.IsRet {
			return ""
		}
		return fmt.Sprintf("-> 0x%06x", base+bi.Target)
	}
}

// UnknownAnnotator marks bytes the opcode table does not map.
func UnknownAnnotator() Annotator {
	return func(in Inst) string {
		if in.Known {
			return ""
		}
		return "unmapped opcode"
	}
}

// EntryLabels maps the offset of every function-entry instruction to the
// function's name, for use with PlaceholderLookup. Unresolved names become
// sub_<offset>.
func EntryLabels(insts []Inst, base int) map[int]string {
	labels := make(map[int]string)
	for _, in := range insts {
		if in.Role != opcode.RoleEntry {
			continue
		}
		labels[in.Offset] = EntryName(in, base)
	}
	return labels
}

// EntryName names the function opened by a function-entry instruction.
func EntryName(in Inst, base int) string {
	for _, o := range in.Operands {
		if o.Kind == opcode.Sym && o.Ref != nil {
			return o.Ref.Text
		}
	}
	return fmt.Sprintf("sub_%x", base+in.Offset)
}
