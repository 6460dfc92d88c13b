package syntax

import "sort"

// Entry is one indexed node with its parent chain depth and enclosing
// function.
type Entry struct {
	Node     Node
	Depth    int
	Function *FunctionDef // innermost enclosing function, nil at top level
}

// Index answers offset and name queries over a finished tree. It is built
// once and never modified, so concurrent readers need no locking.
type Index struct {
	entries []Entry // sorted by span start, then depth
	defs    map[string]Node
	order   []string
}

// NewIndex indexes roots. Definitions are functions, then variables
// assigned with setq; the first definition of a name wins.
func NewIndex(roots []Node) *Index {
	ix := &Index{defs: make(map[string]Node)}
	var stack []*FunctionDef
	var visit func(nodes []Node, depth int)
	visit = func(nodes []Node, depth int) {
		for _, n := range nodes {
			var fn *FunctionDef
			if len(stack) > 0 {
				fn = stack[len(stack)-1]
			}
			ix.entries = append(ix.entries, Entry{Node: n, Depth: depth, Function: fn})
			if f, ok := n.(*FunctionDef); ok {
				stack = append(stack, f)
				visit(f.Body, depth+1)
				stack = stack[:len(stack)-1]
				continue
			}
			visit(n.Children(), depth+1)
		}
	}
	visit(roots, 0)
	sort.SliceStable(ix.entries, func(i, j int) bool {
		a, b := ix.entries[i], ix.entries[j]
		if a.Node.Span().Start != b.Node.Span().Start {
			return a.Node.Span().Start < b.Node.Span().Start
		}
		return a.Depth < b.Depth
	})

	for _, f := range Functions(roots) {
		ix.define(f.Name.Text, f)
	}
	Walk(roots, func(n Node, _ int) bool {
		if c, ok := n.(*CallExpr); ok && c.Special && c.Callee.Text == "setq" && len(c.Args) > 0 {
			if v, ok := c.Args[0].(*VariableRef); ok {
				ix.define(v.Name.Text, c)
			}
		}
		return true
	})
	return ix
}

func (ix *Index) define(name string, n Node) {
	if _, ok := ix.defs[name]; ok {
		return
	}
	ix.defs[name] = n
	ix.order = append(ix.order, name)
}

// At returns the nodes whose spans contain off, innermost first.
func (ix *Index) At(off int) []Entry {
	var out []Entry
	for _, e := range ix.entries {
		if e.Node.Span().Start > off {
			break
		}
		if e.Node.Span().Contains(off) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth > out[j].Depth })
	return out
}

// Definition returns the defining node for name.
func (ix *Index) Definition(name string) (Node, bool) {
	n, ok := ix.defs[name]
	return n, ok
}

// Names lists defined names in definition order.
func (ix *Index) Names() []string { return ix.order }

// Entries returns every indexed node in offset order.
func (ix *Index) Entries() []Entry { return ix.entries }
