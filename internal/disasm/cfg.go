package disasm

import "sort"

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Insts (inclusive)
	End     int    // index into FuncCFG.Insts (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with a function exit or a jump out of the function
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken, "F" = fallthrough
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BuildCFG constructs a control flow graph from a function's instruction stream.
// The algorithm:
//  1. Find block leaders: index 0, branch targets, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
func BuildCFG(name string, insts []Inst) FuncCFG {
	if len(insts) == 0 {
		return FuncCFG{Name: name, Insts: insts}
	}

	funcStart := insts[0].Offset
	funcEnd := insts[len(insts)-1].End()

	offToIdx := make(map[int]int, len(insts))
	for i, in := range insts {
		offToIdx[in.Offset] = i
	}

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	for i, in := range insts {
		bi := DecodeBranch(in)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		if !bi.IsRet && bi.Target >= funcStart && bi.Target < funcEnd {
			if idx, ok := offToIdx[bi.Target]; ok {
				leaders[idx] = true
			}
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{ID: i, Start: start, End: end, IsEntry: start == 0}
		leaderToBlock[start] = i
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		last := insts[blk.End-1]
		bi := DecodeBranch(last)

		if bi == nil {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
			continue
		}
		if bi.IsRet {
			blk.IsTerm = true
			continue
		}

		target := -1
		if idx, ok := offToIdx[bi.Target]; ok {
			if bid, ok := leaderToBlock[idx]; ok {
				target = bid
			}
		}

		if bi.Cond {
			if target >= 0 {
				blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
			}
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		} else if target >= 0 {
			blk.Succs = append(blk.Succs, Succ{BlockID: target})
		} else {
			// Jump outside the function.
			blk.IsTerm = true
		}
	}

	return FuncCFG{Name: name, Blocks: blocks, Insts: insts}
}
