package disasm

import "unfas/internal/opcode"

// Branch detection from instruction roles. These identify basic-block
// terminators and extract branch targets.

// BranchInfo describes a decoded control-flow instruction.
type BranchInfo struct {
	Target int  // target offset (0 if exit)
	Cond   bool // true if conditional (has fallthrough)
	IsRet  bool // true if function exit
}

// DecodeBranch returns branch information for in, or nil if in does not
// transfer control. Jump displacements are relative to the end of the
// jump instruction.
func DecodeBranch(in Inst) *BranchInfo {
	switch in.Role {
	case opcode.RoleExit:
		return &BranchInfo{IsRet: true}
	case opcode.RoleBranch, opcode.RoleCondBranch:
		rel, ok := relOperand(in)
		if !ok {
			return nil
		}
		return &BranchInfo{Target: in.End() + int(rel), Cond: in.Role == opcode.RoleCondBranch}
	}
	return nil
}

func relOperand(in Inst) (int64, bool) {
	for _, o := range in.Operands {
		if o.Kind == opcode.Rel {
			return o.Value, true
		}
	}
	return 0, false
}

// IsBranchTerminator reports whether in ends a basic block. Calls are not
// terminators; they return to the next instruction.
func IsBranchTerminator(in Inst) bool {
	return DecodeBranch(in) != nil
}
