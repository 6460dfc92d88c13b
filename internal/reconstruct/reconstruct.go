// Package reconstruct folds a decoded instruction stream into syntax nodes.
//
// Folding is a single left-to-right shift-reduce pass. Each instruction is
// shifted onto the pending list of the innermost open function, then the
// templates below are tried against the top of that list:
//
//	entry params(n,m) bind×(n+m)  -> opens a FunctionDef
//	exit                          -> closes the innermost FunctionDef
//	literal                       -> Literal
//	variable                      -> VariableRef
//	expr assign                   -> (setq var expr)
//	expr×k call(k)                -> CallExpr
//	expr discard                  -> expr marked as discarded
//
// Instructions no template accepts stay as-is and adjacent ones merge into
// a single OpaqueBlock. Top-level node spans tile the bytecode.
package reconstruct

import (
	"fmt"

	"unfas/internal/disasm"
	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/syntax"
)

// Options controls reconstruction.
type Options struct {
	Base int // absolute offset of the bytecode, for diagnostics only
}

// Result is the folded tree plus coverage accounting.
type Result struct {
	Nodes  []syntax.Node
	Folded int // bytecode bytes represented by named constructs
	Total  int // bytecode length
	Diags  []fasfmt.Diag
}

// Coverage returns the folded share of the bytecode in [0,1]. Empty
// bytecode has zero coverage.
func (r *Result) Coverage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Folded) / float64(r.Total)
}

// item is one pending element of a frame. Exactly one of node and inst is
// set.
type item struct {
	node syntax.Node
	inst *disasm.Inst
	expr bool // node still yields a value on the stack
}

func (it item) span() syntax.Span {
	if it.node != nil {
		return it.node.Span()
	}
	return syntax.Span{Start: it.inst.Offset, End: it.inst.End()}
}

type frame struct {
	fn    *syntax.FunctionDef // nil for top level
	items []item

	sawParams              bool
	wantParams, wantLocals int
}

type builder struct {
	opts   Options
	frames []*frame
	diags  fasfmt.Diags
}

// Reconstruct folds insts, decoded from code, into syntax nodes. Bytes past
// the last instruction (a truncated or clamped tail) become a trailing
// OpaqueBlock so the tree always covers all of code.
func Reconstruct(code []byte, insts []disasm.Inst, table opcode.OpcodeTable, opts Options) *Result {
	res := &Result{Total: len(code)}
	end := 0
	if len(insts) > 0 {
		end = insts[len(insts)-1].End()
	}

	if !table.HasRole(opcode.RoleEntry) {
		if len(code) > 0 {
			res.Diags = append(res.Diags, fasfmt.Diag{
				Offset: uint64(opts.Base),
				Kind:   fasfmt.DiagNoFunctionEntry,
				Msg:    fmt.Sprintf("opcode table %s has no function-entry opcode", table.Name()),
			})
			res.Nodes = []syntax.Node{&syntax.OpaqueBlock{
				Insts:  insts,
				Raw:    code[end:len(code):len(code)],
				Reason: "no function-entry opcode",
				Extent: syntax.Span{Start: 0, End: len(code)},
			}}
		}
		return res
	}

	b := &builder{opts: opts, frames: []*frame{{}}}
	for i := range insts {
		b.shift(&insts[i])
	}
	for len(b.frames) > 1 {
		f := b.top()
		b.diags.Addf(uint64(opts.Base+f.fn.Header.Start), fasfmt.DiagInvalid,
			"function %s has no exit", f.fn.Name.Text)
		f.fn.Unterminated = true
		b.close(end)
	}
	nodes := flush(b.frames[0].items, "unmatched instructions")
	if end < len(code) {
		nodes = append(nodes, &syntax.OpaqueBlock{
			Raw:    code[end:len(code):len(code)],
			Reason: "undecoded tail",
			Extent: syntax.Span{Start: end, End: len(code)},
		})
	}
	res.Nodes = nodes
	res.Folded = len(code) - syntax.OpaqueBytes(nodes)
	res.Diags = b.diags.Items()
	return res
}

func (b *builder) top() *frame { return b.frames[len(b.frames)-1] }

func (b *builder) push(it item) { f := b.top(); f.items = append(f.items, it) }

func (b *builder) raw(in *disasm.Inst) { b.push(item{inst: in}) }

func (b *builder) shift(in *disasm.Inst) {
	f := b.top()
	switch in.Role {
	case opcode.RoleEntry:
		b.open(in)
	case opcode.RoleParams, opcode.RoleBind:
		if f.fn != nil && b.extendHeader(in) {
			return
		}
		b.raw(in)
	case opcode.RoleExit:
		if f.fn == nil {
			b.raw(in)
			return
		}
		b.close(in.End())
	case opcode.RoleLiteral:
		b.push(item{node: literal(in), expr: true})
	case opcode.RoleVariable:
		b.push(item{node: &syntax.VariableRef{
			Name:   symbolOperand(in),
			Extent: syntax.Span{Start: in.Offset, End: in.End()},
		}, expr: true})
	case opcode.RoleAssign:
		if !b.topExprs(1) {
			b.raw(in)
			return
		}
		val := b.pop(1)[0]
		target := &syntax.VariableRef{
			Name:   symbolOperand(in),
			Extent: syntax.Span{Start: in.Offset, End: in.End()},
		}
		b.push(item{node: &syntax.CallExpr{
			Callee:  syntax.Name{Text: "setq", Index: -1},
			Special: true,
			Args:    []syntax.Node{target, val.node},
			At:      in.Offset,
			Extent:  syntax.Span{Start: val.span().Start, End: in.End()},
		}, expr: true})
	case opcode.RoleCall:
		argc, ok := callArgc(in)
		if !ok || !b.topExprs(argc) {
			b.raw(in)
			return
		}
		args := b.pop(argc)
		start := in.Offset
		if len(args) > 0 {
			start = args[0].span().Start
		}
		call := &syntax.CallExpr{
			Callee: symbolOperand(in),
			At:     in.Offset,
			Extent: syntax.Span{Start: start, End: in.End()},
		}
		for _, a := range args {
			call.Args = append(call.Args, a.node)
		}
		b.push(item{node: call, expr: true})
	case opcode.RoleDiscard:
		if !b.topExprs(1) {
			b.raw(in)
			return
		}
		it := b.pop(1)[0]
		markDiscard(it.node, in.End())
		b.push(item{node: it.node})
	default:
		b.raw(in)
	}
}

// open starts a function frame. The header grows as params and bind
// instructions follow.
func (b *builder) open(in *disasm.Inst) {
	fn := &syntax.FunctionDef{
		Name:   symbolOperand(in),
		Header: syntax.Span{Start: in.Offset, End: in.End()},
		Extent: syntax.Span{Start: in.Offset, End: in.End()},
	}
	b.frames = append(b.frames, &frame{fn: fn})
}

// extendHeader absorbs a params or bind instruction into the open
// function's header when it directly follows the header and the declared
// counts still have room.
func (b *builder) extendHeader(in *disasm.Inst) bool {
	f := b.top()
	fn := f.fn
	if len(f.items) > 0 || in.Offset != fn.Header.End {
		return false
	}
	switch in.Role {
	case opcode.RoleParams:
		if f.sawParams {
			return false
		}
		n, m, ok := paramCounts(in)
		if !ok {
			return false
		}
		f.sawParams = true
		f.wantParams, f.wantLocals = n, m
	case opcode.RoleBind:
		if !f.sawParams {
			return false
		}
		bd := syntax.Binding{Name: symbolOperand(in), Offset: in.Offset}
		switch {
		case len(fn.Params) < f.wantParams:
			fn.Params = append(fn.Params, bd)
		case len(fn.Locals) < f.wantLocals:
			fn.Locals = append(fn.Locals, bd)
		default:
			return false
		}
	}
	fn.Header.End = in.End()
	fn.Extent.End = in.End()
	return true
}

// close finishes the innermost function at end and hands it to the parent
// frame as a statement.
func (b *builder) close(end int) {
	f := b.top()
	b.frames = b.frames[:len(b.frames)-1]
	fn := f.fn
	fn.Body = flush(f.items, "unmatched instructions")
	if end > fn.Extent.End {
		fn.Extent.End = end
	}
	b.push(item{node: fn})
}

// topExprs reports whether the top k pending items are all value-producing
// expressions.
func (b *builder) topExprs(k int) bool {
	items := b.top().items
	if k > len(items) {
		return false
	}
	for _, it := range items[len(items)-k:] {
		if !it.expr {
			return false
		}
	}
	return true
}

func (b *builder) pop(k int) []item {
	f := b.top()
	n := len(f.items)
	out := append([]item(nil), f.items[n-k:]...)
	f.items = f.items[:n-k]
	return out
}

// flush converts pending items to nodes, merging runs of unmatched
// instructions into OpaqueBlocks.
func flush(items []item, reason string) []syntax.Node {
	var out []syntax.Node
	var run *syntax.OpaqueBlock
	for _, it := range items {
		if it.inst == nil {
			run = nil
			out = append(out, it.node)
			continue
		}
		if run == nil {
			run = &syntax.OpaqueBlock{
				Reason: reason,
				Extent: syntax.Span{Start: it.inst.Offset, End: it.inst.Offset},
			}
			out = append(out, run)
		}
		run.Insts = append(run.Insts, *it.inst)
		run.Extent.End = it.inst.End()
	}
	return out
}

func markDiscard(n syntax.Node, end int) {
	switch n := n.(type) {
	case *syntax.CallExpr:
		n.Discard = true
		n.Extent.End = end
	case *syntax.Literal:
		n.Discard = true
		n.Extent.End = end
	case *syntax.VariableRef:
		n.Discard = true
		n.Extent.End = end
	}
}

func literal(in *disasm.Inst) *syntax.Literal {
	lit := &syntax.Literal{Extent: syntax.Span{Start: in.Offset, End: in.End()}}
	if len(in.Operands) == 0 {
		lit.Type = syntax.LitT
		if in.Mnemonic == "push-nil" {
			lit.Type = syntax.LitNil
		}
		return lit
	}
	o := in.Operands[0]
	if o.Kind == opcode.Str {
		lit.Type = syntax.LitString
		lit.Index = int(o.Value)
		lit.Ref = o.Ref
		return lit
	}
	lit.Type = syntax.LitInt
	lit.Int = o.Value
	return lit
}

// symbolOperand names the first symbol operand of in.
func symbolOperand(in *disasm.Inst) syntax.Name {
	for _, o := range in.Operands {
		if o.Kind == opcode.Sym {
			return syntax.NameOf(int(o.Value), o.Ref)
		}
	}
	return syntax.Name{Text: fmt.Sprintf("sub_%x", in.Offset), Index: -1}
}

// callArgc reads the argument count: the first non-index integer operand.
func callArgc(in *disasm.Inst) (int, bool) {
	for _, o := range in.Operands {
		if o.IsIndex() || o.Kind == opcode.Rel {
			continue
		}
		if o.Value < 0 {
			return 0, false
		}
		return int(o.Value), true
	}
	return 0, false
}

// paramCounts reads the required-parameter and local counts.
func paramCounts(in *disasm.Inst) (int, int, bool) {
	var vals []int
	for _, o := range in.Operands {
		if o.IsIndex() || o.Value < 0 {
			continue
		}
		vals = append(vals, int(o.Value))
	}
	switch len(vals) {
	case 0:
		return 0, 0, false
	case 1:
		return vals[0], 0, true
	default:
		return vals[0], vals[1], true
	}
}
