package syntax

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
)

// Tree renders nodes as an indented tree for inspection.
func Tree(title string, nodes []Node) string {
	root := treeprint.NewWithRoot(title)
	for _, n := range nodes {
		addNode(root, n)
	}
	return root.String()
}

func addNode(parent treeprint.Tree, n Node) {
	label := fmt.Sprintf("%s %s", n.Span(), describe(n))
	children := n.Children()
	if fn, ok := n.(*FunctionDef); ok {
		br := parent.AddMetaBranch(string(n.Kind()), label)
		if len(fn.Params) > 0 || len(fn.Locals) > 0 {
			br.AddNode("bindings " + bindings(fn))
		}
		for _, c := range children {
			addNode(br, c)
		}
		return
	}
	if len(children) == 0 {
		parent.AddMetaNode(string(n.Kind()), label)
		return
	}
	br := parent.AddMetaBranch(string(n.Kind()), label)
	for _, c := range children {
		addNode(br, c)
	}
}

func describe(n Node) string {
	switch n := n.(type) {
	case *FunctionDef:
		s := n.Name.Text
		if n.Unterminated {
			s += " (no exit)"
		}
		return s
	case *CallExpr:
		s := n.Callee.Text
		if n.Discard {
			s += " (discarded)"
		}
		return s
	case *Literal:
		switch n.Type {
		case LitString:
			return fmt.Sprintf("%q", n.Text())
		case LitInt:
			return fmt.Sprint(n.Int)
		}
		return string(n.Type)
	case *VariableRef:
		return n.Name.Text
	case *OpaqueBlock:
		return fmt.Sprintf("%s, %d inst(s), %d raw byte(s)", n.Reason, len(n.Insts), len(n.Raw))
	}
	return ""
}

func bindings(fn *FunctionDef) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range fn.Params {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Name.Text)
	}
	if len(fn.Locals) > 0 {
		b.WriteString(" /")
		for _, l := range fn.Locals {
			b.WriteByte(' ')
			b.WriteString(l.Name.Text)
		}
	}
	b.WriteByte(')')
	return b.String()
}
