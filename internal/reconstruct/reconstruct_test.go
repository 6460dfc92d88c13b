package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unfas/internal/disasm"
	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/recovery"
	"unfas/internal/region"
	"unfas/internal/syntax"
	"unfas/internal/testfas"
)

func fas4Table(t *testing.T) opcode.OpcodeTable {
	t.Helper()
	r, err := opcode.NewRegistry()
	require.NoError(t, err)
	tab, ok := r.Resolve("fas4-observed", 0)
	require.True(t, ok)
	return tab
}

func build(t *testing.T, code []byte, res disasm.Resolver) *Result {
	t.Helper()
	tab := fas4Table(t)
	insts, _, _ := disasm.Disassemble(code, tab, disasm.Options{Resolver: res})
	out := Reconstruct(code, insts, tab, Options{})
	checkTiling(t, out.Nodes, len(code))
	return out
}

// checkTiling asserts top-level spans cover [0,n) without gaps or overlap,
// and that children stay inside their parents.
func checkTiling(t *testing.T, nodes []syntax.Node, n int) {
	t.Helper()
	pos := 0
	for _, nd := range nodes {
		sp := nd.Span()
		require.Equal(t, pos, sp.Start, "gap or overlap before %T %v", nd, sp)
		require.Greater(t, sp.End, sp.Start, "empty span %T", nd)
		pos = sp.End
	}
	require.Equal(t, n, pos, "tree does not reach end of bytecode")
	syntax.Walk(nodes, func(nd syntax.Node, _ int) bool {
		for _, c := range nd.Children() {
			assert.True(t, c.Span().Start >= nd.Span().Start && c.Span().End <= nd.Span().End,
				"child %v escapes parent %v", c.Span(), nd.Span())
		}
		return true
	})
}

func sampleTables(t *testing.T) *recovery.Tables {
	t.Helper()
	_, aux := testfas.Sample()
	tab, _ := recovery.Recover(aux, region.Classify(aux, 0), recovery.DefaultOptions())
	return tab
}

func TestReconstructSample(t *testing.T) {
	code, _ := testfas.Sample()
	res := build(t, code, sampleTables(t))

	require.Len(t, res.Nodes, 2)
	fn, ok := res.Nodes[0].(*syntax.FunctionDef)
	require.True(t, ok, "first node is %T", res.Nodes[0])
	assert.Equal(t, "greet", fn.Name.Text)
	assert.Equal(t, syntax.Span{Start: 0, End: 26}, fn.Extent)
	assert.Equal(t, syntax.Span{Start: 0, End: 12}, fn.Header)
	require.Len(t, fn.Params, 1)
	require.Len(t, fn.Locals, 1)
	assert.Equal(t, "name", fn.Params[0].Name.Text)
	assert.Equal(t, "msg", fn.Locals[0].Name.Text)
	assert.False(t, fn.Unterminated)

	require.Len(t, fn.Body, 2)
	setq := fn.Body[0].(*syntax.CallExpr)
	assert.Equal(t, "setq", setq.Callee.Text)
	assert.True(t, setq.Special)
	require.Len(t, setq.Args, 2)
	assert.Equal(t, "msg", setq.Args[0].(*syntax.VariableRef).Name.Text)
	assert.Equal(t, "HELLO", setq.Args[1].(*syntax.Literal).Text())

	princ := fn.Body[1].(*syntax.CallExpr)
	assert.Equal(t, "princ", princ.Callee.Text)
	assert.Equal(t, syntax.Span{Start: 18, End: 25}, princ.Extent)

	call := res.Nodes[1].(*syntax.CallExpr)
	assert.Equal(t, "greet", call.Callee.Text)
	assert.True(t, call.Discard)
	assert.Equal(t, syntax.Span{Start: 26, End: 34}, call.Extent)
	assert.Equal(t, "World", call.Args[0].(*syntax.Literal).Text())

	assert.Equal(t, 34, res.Folded)
	assert.InDelta(t, 1.0, res.Coverage(), 1e-9)
	assert.Empty(t, res.Diags)
}

func TestReconstructUnresolvedNames(t *testing.T) {
	code, _ := testfas.Sample()
	res := build(t, code, nil)
	fn := res.Nodes[0].(*syntax.FunctionDef)
	assert.Equal(t, "sym_0", fn.Name.Text)
	assert.False(t, fn.Name.Resolved())
	lit := fn.Body[0].(*syntax.CallExpr).Args[1].(*syntax.Literal)
	assert.Equal(t, "str_0", lit.Text())
}

func TestReconstructOpaqueMerge(t *testing.T) {
	var a testfas.Asm
	a.Raw(0xee, 0xef).PushT().Pop().Jump(0)
	res := build(t, a.Bytes(), nil)

	require.Len(t, res.Nodes, 3)
	op := res.Nodes[0].(*syntax.OpaqueBlock)
	assert.Len(t, op.Insts, 2)
	assert.Equal(t, syntax.Span{Start: 0, End: 2}, op.Extent)
	lit := res.Nodes[1].(*syntax.Literal)
	assert.True(t, lit.Discard)
	assert.Equal(t, syntax.Span{Start: 2, End: 4}, lit.Extent)
	_, ok := res.Nodes[2].(*syntax.OpaqueBlock)
	assert.True(t, ok)
	assert.Equal(t, 2, res.Folded)
}

func TestReconstructCallNeedsArgs(t *testing.T) {
	var a testfas.Asm
	a.PushT().Call(2, 0)
	res := build(t, a.Bytes(), nil)
	require.Len(t, res.Nodes, 2)
	assert.IsType(t, &syntax.Literal{}, res.Nodes[0])
	assert.IsType(t, &syntax.OpaqueBlock{}, res.Nodes[1])
}

func TestReconstructZeroArgCall(t *testing.T) {
	var a testfas.Asm
	a.Call(0, 5).Pop()
	res := build(t, a.Bytes(), nil)
	require.Len(t, res.Nodes, 1)
	c := res.Nodes[0].(*syntax.CallExpr)
	assert.Empty(t, c.Args)
	assert.Equal(t, "sym_5", c.Callee.Text)
}

func TestReconstructBranchInBody(t *testing.T) {
	var a testfas.Asm
	a.FuncEntry(0).ParamCount(0, 0).
		PushNil().JumpIfNil(1).PushT().
		FuncExit()
	res := build(t, a.Bytes(), nil)
	require.Len(t, res.Nodes, 1)
	fn := res.Nodes[0].(*syntax.FunctionDef)
	require.Len(t, fn.Body, 3)
	assert.IsType(t, &syntax.Literal{}, fn.Body[0])
	assert.IsType(t, &syntax.OpaqueBlock{}, fn.Body[1])
	assert.IsType(t, &syntax.Literal{}, fn.Body[2])
	assert.Empty(t, fn.Params)
	assert.Less(t, res.Coverage(), 1.0)
}

func TestReconstructNested(t *testing.T) {
	var a testfas.Asm
	a.FuncEntry(0).ParamCount(0, 0).
		FuncEntry(1).ParamCount(1, 0).Bind(2).PushVar(2).FuncExit().
		FuncExit()
	res := build(t, a.Bytes(), nil)
	require.Len(t, res.Nodes, 1)
	outer := res.Nodes[0].(*syntax.FunctionDef)
	require.Len(t, outer.Body, 1)
	inner := outer.Body[0].(*syntax.FunctionDef)
	assert.Equal(t, "sym_1", inner.Name.Text)
	assert.Len(t, inner.Params, 1)
	assert.Len(t, syntax.Functions(res.Nodes), 2)
}

func TestReconstructUnterminated(t *testing.T) {
	var a testfas.Asm
	a.FuncEntry(0).ParamCount(0, 0).PushT()
	res := build(t, a.Bytes(), nil)
	fn := res.Nodes[0].(*syntax.FunctionDef)
	assert.True(t, fn.Unterminated)
	require.Len(t, res.Diags, 1)
	assert.Equal(t, fasfmt.DiagInvalid, res.Diags[0].Kind)
}

func TestReconstructTruncatedTail(t *testing.T) {
	code, _ := testfas.Sample()
	code = append(code, 0x35, 0x01)
	res := build(t, code, nil)
	last := res.Nodes[len(res.Nodes)-1].(*syntax.OpaqueBlock)
	assert.Equal(t, "undecoded tail", last.Reason)
	assert.Equal(t, []byte{0x35, 0x01}, last.Raw)
	assert.Equal(t, 34, res.Folded)
}

func TestReconstructNoEntryRole(t *testing.T) {
	tab, err := opcode.NewTable("bare", 1, []opcode.Spec{
		{Op: 0x01, Mnemonic: "push-nil", Role: opcode.RoleLiteral},
	})
	require.NoError(t, err)
	code := []byte{0x01, 0x01, 0x77}
	insts, _, _ := disasm.Disassemble(code, tab, disasm.Options{})
	res := Reconstruct(code, insts, tab, Options{Base: 0x40})

	require.Len(t, res.Nodes, 1)
	op := res.Nodes[0].(*syntax.OpaqueBlock)
	assert.Equal(t, syntax.Span{Start: 0, End: 3}, op.Extent)
	require.Len(t, res.Diags, 1)
	assert.Equal(t, fasfmt.DiagNoFunctionEntry, res.Diags[0].Kind)
	assert.Equal(t, uint64(0x40), res.Diags[0].Offset)
	assert.Zero(t, res.Coverage())
}

func TestReconstructEmpty(t *testing.T) {
	res := build(t, nil, nil)
	assert.Empty(t, res.Nodes)
	assert.Zero(t, res.Coverage())
}
