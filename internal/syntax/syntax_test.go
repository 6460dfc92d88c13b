package syntax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unfas/internal/recovery"
)

// sampleTree mirrors
//
//	(defun greet (name / msg) (setq msg "HELLO") (princ msg))
//	(greet "World")
func sampleTree() []Node {
	sym := func(i int, s string) Name { return NameOf(i, &recovery.String{Text: s, Index: i}) }
	setq := &CallExpr{
		Callee:  Name{Text: "setq", Index: -1},
		Special: true,
		Args: []Node{
			&VariableRef{Name: sym(2, "msg"), Extent: Span{15, 18}},
			&Literal{Type: LitString, Index: 0, Ref: &recovery.String{Text: "HELLO"}, Extent: Span{12, 15}},
		},
		At:     15,
		Extent: Span{12, 18},
	}
	princ := &CallExpr{
		Callee: sym(3, "princ"),
		Args:   []Node{&VariableRef{Name: sym(2, "msg"), Extent: Span{18, 21}}},
		At:     21,
		Extent: Span{18, 25},
	}
	fn := &FunctionDef{
		Name:   sym(0, "greet"),
		Params: []Binding{{Name: sym(1, "name"), Offset: 6}},
		Locals: []Binding{{Name: sym(2, "msg"), Offset: 9}},
		Body:   []Node{setq, princ},
		Header: Span{0, 12},
		Extent: Span{0, 26},
	}
	call := &CallExpr{
		Callee:  sym(0, "greet"),
		Args:    []Node{&Literal{Type: LitString, Index: 1, Extent: Span{26, 29}}},
		At:      29,
		Extent:  Span{26, 34},
		Discard: true,
	}
	return []Node{fn, call}
}

func TestWalkOrder(t *testing.T) {
	var kinds []string
	Walk(sampleTree(), func(n Node, depth int) bool {
		kinds = append(kinds, strings.Repeat(".", depth)+string(n.Kind()))
		return true
	})
	assert.Equal(t, []string{
		"function", ".call", "..variable", "..literal", ".call", "..variable",
		"call", ".literal",
	}, kinds)
}

func TestWalkSkip(t *testing.T) {
	n := 0
	Walk(sampleTree(), func(Node, int) bool { n++; return false })
	assert.Equal(t, 2, n)
}

func TestIndexAt(t *testing.T) {
	ix := NewIndex(sampleTree())

	at := ix.At(19)
	require.Len(t, at, 3)
	v, ok := at[0].Node.(*VariableRef)
	require.True(t, ok, "innermost is %T", at[0].Node)
	assert.Equal(t, "msg", v.Name.Text)
	assert.Equal(t, "greet", at[0].Function.Name.Text)
	assert.IsType(t, &FunctionDef{}, at[2].Node)

	top := ix.At(30)
	require.Len(t, top, 1)
	assert.Nil(t, top[0].Function)

	assert.Empty(t, ix.At(34))
	assert.Empty(t, ix.At(-1))
}

func TestIndexDefinitions(t *testing.T) {
	ix := NewIndex(sampleTree())
	n, ok := ix.Definition("greet")
	require.True(t, ok)
	assert.IsType(t, &FunctionDef{}, n)

	n, ok = ix.Definition("msg")
	require.True(t, ok)
	assert.Equal(t, Span{12, 18}, n.Span())

	_, ok = ix.Definition("princ")
	assert.False(t, ok)
	assert.Equal(t, []string{"greet", "msg"}, ix.Names())
}

func TestNameOf(t *testing.T) {
	n := NameOf(7, nil)
	assert.Equal(t, "sym_7", n.Text)
	assert.False(t, n.Resolved())
	assert.False(t, n.Low())

	low := NameOf(1, &recovery.String{Text: "x", Low: true})
	assert.True(t, low.Resolved())
	assert.True(t, low.Low())
}

func TestHelpers(t *testing.T) {
	nodes := append(sampleTree(), &OpaqueBlock{Reason: "unmatched instructions", Extent: Span{34, 40}})
	assert.Len(t, Functions(nodes), 1)
	assert.Equal(t, 6, OpaqueBytes(nodes))
	assert.Equal(t, Span{0, 40}, Span{0, 10}.Union(Span{34, 40}))
	assert.True(t, Span{3, 3}.Empty())
	assert.Equal(t, "[0x0,0x1a)", nodes[0].Span().String())
}

func TestTree(t *testing.T) {
	out := Tree("sample.fas", sampleTree())
	for _, want := range []string{
		"sample.fas",
		"[function]",
		"greet",
		"bindings (name / msg)",
		`"HELLO"`,
		"greet (discarded)",
		`"str_1"`,
	} {
		assert.Contains(t, out, want)
	}
}
