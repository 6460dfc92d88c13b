package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unfas/internal/disasm"
	"unfas/internal/opcode"
	"unfas/internal/reconstruct"
	"unfas/internal/recovery"
	"unfas/internal/region"
	"unfas/internal/sexpr"
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

func input(t *testing.T, code []byte, tables *recovery.Tables) *Input {
	t.Helper()
	tab := fas4Table(t)
	var res disasm.Resolver
	if tables != nil {
		res = tables
	}
	insts, diags, _ := disasm.Disassemble(code, tab, disasm.Options{Base: 0x30, Resolver: res})
	rec := reconstruct.Reconstruct(code, insts, tab, reconstruct.Options{Base: 0x30})
	return &Input{
		Title:  "sample.fas",
		Format: "fas4",
		Table:  "fas4-observed v1",
		Base:   0x30,
		Folded: rec.Folded,
		Total:  rec.Total,
		Tables: tables,
		Nodes:  rec.Nodes,
		Diags:  len(diags) + len(rec.Diags),
	}
}

func sampleTables(t *testing.T) *recovery.Tables {
	t.Helper()
	_, aux := testfas.Sample()
	tab, _ := recovery.Recover(aux, region.Classify(aux, 0), recovery.DefaultOptions())
	return tab
}

func mustParse(t *testing.T, text string) []*sexpr.Datum {
	t.Helper()
	ds, err := sexpr.Parse(text)
	require.NoError(t, err, "rendered text does not parse:\n%s", text)
	return ds
}

func TestLispSample(t *testing.T) {
	code, _ := testfas.Sample()
	doc := Lisp(input(t, code, sampleTables(t)), LispOptions{})

	assert.Contains(t, doc.Text, ";;; sample.fas\n")
	assert.Contains(t, doc.Text, ";;; format: fas4, opcode table fas4-observed v1\n")
	assert.Contains(t, doc.Text, ";;; reconstructed: 100.0% of 34 bytecode bytes")
	assert.Contains(t, doc.Text, ";;; recovered: 2/2 strings, 4/4 symbols\n")
	assert.Contains(t, doc.Text, "(defun greet (name / msg)\n  (setq msg \"HELLO\")\n  (princ msg))\n(greet \"World\")\n")
	assert.NotContains(t, doc.Text, "low confidence")
	assert.NotContains(t, doc.Text, "unresolved")

	ds := mustParse(t, doc.Text)
	require.Len(t, ds, 2)
	assert.Equal(t, "defun", ds[0].Head())
	assert.Equal(t, "greet", ds[1].Head())

	lines := strings.Split(doc.Text, "\n")
	require.Equal(t, len(doc.Lines)+1, len(lines))
	for i, l := range lines {
		if strings.HasPrefix(l, "(defun") {
			got, ok := doc.NodeAt(i + 1)
			require.True(t, ok)
			assert.IsType(t, &syntax.FunctionDef{}, got.Node)
			assert.Equal(t, 0, got.Offset)
		}
	}
	line := doc.LineOf(27)
	require.NotZero(t, line)
	assert.Equal(t, `(greet "World")`, lines[line-1])
	assert.Equal(t, "  (princ msg))", lines[doc.LineOf(20)-1])
	assert.Zero(t, doc.LineOf(500))
	_, ok := doc.NodeAt(1)
	assert.False(t, ok)
}

func TestLispUnresolved(t *testing.T) {
	code, _ := testfas.Sample()
	doc := Lisp(input(t, code, nil), LispOptions{})
	assert.Contains(t, doc.Text, ";; sym#0 unresolved\n")
	assert.Contains(t, doc.Text, ";; str#0 unresolved\n")
	assert.Contains(t, doc.Text, "(defun sym_0 (sym_1 / sym_2)")
	assert.Contains(t, doc.Text, "(sym_0 str_1)")
	mustParse(t, doc.Text)
}

func TestLispZeroFilled(t *testing.T) {
	code := make([]byte, 8)
	doc := Lisp(input(t, code, nil), LispOptions{})
	assert.Contains(t, doc.Text, ";;; reconstructed: 0.0% of 8 bytecode bytes")
	assert.Contains(t, doc.Text, ";; opaque 0x000030-0x000038: unmatched instructions")
	assert.Equal(t, 8, strings.Count(doc.Text, "op_00"))
	assert.Empty(t, mustParse(t, doc.Text))
}

func TestLispEmpty(t *testing.T) {
	doc := Lisp(&Input{Format: "fas4"}, LispOptions{})
	assert.Contains(t, doc.Text, ";;; reconstructed: 0.0% of 0 bytecode bytes")
	assert.Contains(t, doc.Text, ";; no reconstructed code")
	assert.Empty(t, mustParse(t, doc.Text))
}

func TestLispLowConfidence(t *testing.T) {
	low := &recovery.String{Text: "hi", Strategy: recovery.StrategyXOR, Param: 0x55, Confidence: 0.6, Low: true}
	weird := &recovery.String{Text: "a b(", Strategy: recovery.StrategyDirect, Confidence: 0.9}
	nodes := []syntax.Node{&syntax.CallExpr{
		Callee: syntax.NameOf(4, weird),
		Args: []syntax.Node{
			&syntax.Literal{Type: syntax.LitString, Index: 0, Ref: low, Extent: syntax.Span{Start: 0, End: 3}},
			&syntax.Literal{Type: syntax.LitInt, Int: -5, Extent: syntax.Span{Start: 3, End: 5}},
			&syntax.Literal{Type: syntax.LitNil, Extent: syntax.Span{Start: 5, End: 6}},
		},
		Extent: syntax.Span{Start: 0, End: 10},
	}}
	doc := Lisp(&Input{Format: "fas4", Nodes: nodes, Total: 10, Folded: 10}, LispOptions{})
	assert.Contains(t, doc.Text, ";; str#0 low confidence: xor 0x55, 0.60\n")
	assert.Contains(t, doc.Text, `;; sym#4 recovered as "a b("`)
	assert.Contains(t, doc.Text, `(a_b_ "hi" -5 nil)`)
	mustParse(t, doc.Text)
}

func TestLispOpaqueInBody(t *testing.T) {
	var a testfas.Asm
	a.FuncEntry(0).ParamCount(0, 0).PushT().Pop().Raw(0xee).FuncExit()
	a.Raw(0x35, 0x01)
	doc := Lisp(input(t, a.Bytes(), nil), LispOptions{})
	assert.Contains(t, doc.Text, "  ;; opaque 0x000038-0x000039: unmatched instructions\n")
	assert.Contains(t, doc.Text, "op_ee 0xee  ; unmapped opcode")
	assert.Contains(t, doc.Text, "\n)\n")
	assert.Contains(t, doc.Text, ";;   0x00003a  35 01  (not decoded)")
	ds := mustParse(t, doc.Text)
	require.Len(t, ds, 1)
	assert.Equal(t, "(defun sym_0 () T)", ds[0].String())
}

func TestLispWrapsLongCalls(t *testing.T) {
	var a testfas.Asm
	for i := 0; i < 30; i++ {
		a.PushInt32(1_000_000 + int32(i))
	}
	a.Call(30, 0).Pop()
	doc := Lisp(input(t, a.Bytes(), nil), LispOptions{Width: 40})
	for _, l := range strings.Split(doc.Text, "\n") {
		if !strings.HasPrefix(l, ";") {
			assert.LessOrEqual(t, len(l), 40, "%q", l)
		}
	}
	ds := mustParse(t, doc.Text)
	require.Len(t, ds, 1)
	assert.Len(t, ds[0].Items, 31)
}

func TestLispStringTable(t *testing.T) {
	tables := sampleTables(t)
	tables.Strings = append(tables.Strings, nil)
	code, _ := testfas.Sample()
	doc := Lisp(input(t, code, tables), LispOptions{StringTable: true})
	assert.Contains(t, doc.Text, ";;;   str#0 \"HELLO\" (direct, 0.95)\n")
	assert.Contains(t, doc.Text, ";;;   str#2 unrecovered\n")
	assert.Contains(t, doc.Text, ";;;   sym#3 \"princ\"")
	mustParse(t, doc.Text)
}

func TestLispUnrecoveredRegion(t *testing.T) {
	tables := &recovery.Tables{Regions: []recovery.RegionResult{
		{Kind: region.KindUnknown, Start: 0x40, End: 0x80, Outcome: recovery.Unrecovered, Encoding: recovery.UnknownEncoding},
	}}
	doc := Lisp(&Input{Format: "fas4", Tables: tables}, LispOptions{})
	assert.Contains(t, doc.Text, ";;; region 0x40-0x80 unknown: unrecovered, unknown encoding\n")
	mustParse(t, doc.Text)
}

func TestLispString(t *testing.T) {
	s := "a\"b\\\n\x01\u00e9"
	q := lispString(s)
	assert.Equal(t, `"a\"b\\\n\001\351"`, q)
	ds := mustParse(t, q)
	require.Len(t, ds, 1)
	assert.Equal(t, "a\"b\\\n\x01", ds[0].Text[:6])
}

func TestAtom(t *testing.T) {
	assert.Equal(t, "princ", atom("princ"))
	assert.Equal(t, "c:foo", atom("c:foo"))
	assert.Equal(t, "_", atom(""))
	assert.Equal(t, "_", atom("."))
	assert.Equal(t, "a_b", atom("a;b"))
	assert.Equal(t, "a_b", atom(`a\b`))
	assert.Equal(t, "_x", atom(",x"))
	assert.Equal(t, "_x", atom("#x"))
	assert.Equal(t, "a#b", atom("a#b"))
	for _, name := range []string{`a\`, ",x", "#x", "a,b", `\(`} {
		ds := mustParse(t, atom(name))
		require.Len(t, ds, 1, name)
		assert.Equal(t, sexpr.Atom, ds[0].Kind, name)
	}
}
