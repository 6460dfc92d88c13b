package disasm

import (
	"testing"

	"unfas/internal/testfas"
)

func TestBuildCFG_Linear(t *testing.T) {
	var a testfas.Asm
	a.PushNil().PushT().FuncExit()
	insts, _, _ := Disassemble(a.Bytes(), fas4Table(t), Options{})

	cfg := BuildCFG("linear", insts)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(cfg.Blocks))
	}
	blk := cfg.Blocks[0]
	if blk.Start != 0 || blk.End != 3 {
		t.Errorf("block range = [%d,%d), want [0,3)", blk.Start, blk.End)
	}
	if !blk.IsTerm {
		t.Error("block should be terminal (func-exit)")
	}
	if len(blk.Succs) != 0 {
		t.Errorf("succs = %d, want 0", len(blk.Succs))
	}
}

func TestBuildCFG_ConditionalBranch(t *testing.T) {
	//   0: jump-if-nil +5   → 8
	//   3: push-t
	//   4: jump +1          → 8
	//   7: push-nil         (dead)
	//   8: func-exit
	var a testfas.Asm
	a.JumpIfNil(5).PushT().Jump(1).PushNil().FuncExit()
	insts, _, _ := Disassemble(a.Bytes(), fas4Table(t), Options{})
	if len(insts) != 5 {
		t.Fatalf("insts = %d", len(insts))
	}

	cfg := BuildCFG("cond", insts)
	// Leaders: 0, 1 (after jump-if-nil), 3 (after jump), 4 (target 8).
	if len(cfg.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(cfg.Blocks))
	}
	b0 := cfg.Blocks[0]
	if len(b0.Succs) != 2 {
		t.Fatalf("block 0 succs = %v", b0.Succs)
	}
	if b0.Succs[0] != (Succ{BlockID: 3, Cond: "T"}) || b0.Succs[1] != (Succ{BlockID: 1, Cond: "F"}) {
		t.Errorf("block 0 succs = %v", b0.Succs)
	}
	if s := cfg.Blocks[1].Succs; len(s) != 1 || s[0].BlockID != 3 || s[0].Cond != "" {
		t.Errorf("block 1 succs = %v", s)
	}
	if s := cfg.Blocks[2].Succs; len(s) != 1 || s[0].BlockID != 3 {
		t.Errorf("dead block falls through: %v", s)
	}
	if !cfg.Blocks[3].IsTerm {
		t.Error("exit block not terminal")
	}
}

func TestBuildCFG_JumpOutside(t *testing.T) {
	var a testfas.Asm
	a.PushT().Jump(100)
	insts, _, _ := Disassemble(a.Bytes(), fas4Table(t), Options{})
	cfg := BuildCFG("out", insts)
	if len(cfg.Blocks) != 1 || !cfg.Blocks[0].IsTerm {
		t.Errorf("blocks = %+v", cfg.Blocks)
	}
}

func TestBuildCFG_Empty(t *testing.T) {
	cfg := BuildCFG("empty", nil)
	if len(cfg.Blocks) != 0 {
		t.Errorf("blocks = %d", len(cfg.Blocks))
	}
}

func TestDecodeBranch(t *testing.T) {
	var a testfas.Asm
	a.Jump(-3).JumpIfNil(2).FuncExit().Call(0, 1)
	insts, _, _ := Disassemble(a.Bytes(), fas4Table(t), Options{})

	if bi := DecodeBranch(insts[0]); bi == nil || bi.Target != 0 || bi.Cond {
		t.Errorf("jump = %+v", bi)
	}
	if bi := DecodeBranch(insts[1]); bi == nil || bi.Target != 8 || !bi.Cond {
		t.Errorf("jump-if-nil = %+v", bi)
	}
	if bi := DecodeBranch(insts[2]); bi == nil || !bi.IsRet {
		t.Errorf("func-exit = %+v", bi)
	}
	if IsBranchTerminator(insts[3]) {
		t.Error("call is not a terminator")
	}
}
