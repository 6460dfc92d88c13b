// Package syntax defines the reconstructed program tree.
package syntax

import (
	"fmt"

	"unfas/internal/disasm"
	"unfas/internal/recovery"
)

// Span is a half-open range of bytecode offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int              { return s.End - s.Start }
func (s Span) Contains(off int) bool { return off >= s.Start && off < s.End }
func (s Span) String() string        { return fmt.Sprintf("[0x%x,0x%x)", s.Start, s.End) }
func (s Span) Union(o Span) Span     { return Span{Start: min(s.Start, o.Start), End: max(s.End, o.End)} }
func (s Span) Empty() bool           { return s.End <= s.Start }

// Kind tags a node variant.
type Kind string

const (
	KindFunctionDef Kind = "function"
	KindCallExpr    Kind = "call"
	KindLiteral     Kind = "literal"
	KindVariableRef Kind = "variable"
	KindOpaqueBlock Kind = "opaque"
)

// Node is a reconstructed syntax node.
type Node interface {
	Kind() Kind
	Span() Span
	Children() []Node
}

// Name is a symbol reference as it appears in the tree.
type Name struct {
	Text  string           `json:"text"`
	Index int              `json:"index"`
	Ref   *recovery.String `json:"-"`
}

// NameOf builds a Name for a symbol index; unresolved indices render as
// sym_<index>.
func NameOf(index int, ref *recovery.String) Name {
	if ref != nil {
		return Name{Text: ref.Text, Index: index, Ref: ref}
	}
	return Name{Text: fmt.Sprintf("sym_%d", index), Index: index}
}

// Resolved reports whether the name came from recovered symbol data.
func (n Name) Resolved() bool { return n.Ref != nil }

// Low reports whether the name came from a low-confidence recovery.
func (n Name) Low() bool { return n.Ref != nil && n.Ref.Low }

// Binding is a parameter or local declared in a function header.
type Binding struct {
	Name   Name `json:"name"`
	Offset int  `json:"offset"`
}

// FunctionDef is a detected function: header, body and exit.
type FunctionDef struct {
	Name         Name      `json:"name"`
	Params       []Binding `json:"params,omitempty"`
	Locals       []Binding `json:"locals,omitempty"`
	Body         []Node    `json:"body"`
	Header       Span      `json:"header"`
	Extent       Span      `json:"span"`
	Unterminated bool      `json:"unterminated,omitempty"`
}

func (n *FunctionDef) Kind() Kind       { return KindFunctionDef }
func (n *FunctionDef) Span() Span       { return n.Extent }
func (n *FunctionDef) Children() []Node { return n.Body }

// CallExpr is an invocation. Assignments are calls to setq whose first
// argument is the assigned VariableRef.
type CallExpr struct {
	Callee  Name   `json:"callee"`
	Args    []Node `json:"args,omitempty"`
	Special bool   `json:"special,omitempty"` // callee is a special form, not a symbol-table entry
	At      int    `json:"at"`                // offset of the call instruction
	Extent  Span   `json:"span"`
	Discard bool   `json:"discard,omitempty"` // result popped
}

func (n *CallExpr) Kind() Kind       { return KindCallExpr }
func (n *CallExpr) Span() Span       { return n.Extent }
func (n *CallExpr) Children() []Node { return n.Args }

// LiteralKind distinguishes literal values.
type LiteralKind string

const (
	LitNil    LiteralKind = "nil"
	LitT      LiteralKind = "t"
	LitInt    LiteralKind = "int"
	LitString LiteralKind = "string"
)

// Literal is a constant push.
type Literal struct {
	Type    LiteralKind      `json:"type"`
	Int     int64            `json:"int,omitempty"`
	Index   int              `json:"index,omitempty"` // string-table index for LitString
	Ref     *recovery.String `json:"-"`
	Extent  Span             `json:"span"`
	Discard bool             `json:"discard,omitempty"`
}

func (n *Literal) Kind() Kind       { return KindLiteral }
func (n *Literal) Span() Span       { return n.Extent }
func (n *Literal) Children() []Node { return nil }

// Text returns the literal's string value, or str_<index> when the string
// was not recovered.
func (n *Literal) Text() string {
	if n.Ref != nil {
		return n.Ref.Text
	}
	return fmt.Sprintf("str_%d", n.Index)
}

// VariableRef reads or names a variable.
type VariableRef struct {
	Name    Name `json:"name"`
	Extent  Span `json:"span"`
	Discard bool `json:"discard,omitempty"`
}

func (n *VariableRef) Kind() Kind       { return KindVariableRef }
func (n *VariableRef) Span() Span       { return n.Extent }
func (n *VariableRef) Children() []Node { return nil }

// OpaqueBlock preserves instructions, or undecoded bytes, that no template
// matched.
type OpaqueBlock struct {
	Insts  []disasm.Inst `json:"insts,omitempty"`
	Raw    []byte        `json:"-"` // bytes not decoded into instructions
	Reason string        `json:"reason"`
	Extent Span          `json:"span"`
}

func (n *OpaqueBlock) Kind() Kind       { return KindOpaqueBlock }
func (n *OpaqueBlock) Span() Span       { return n.Extent }
func (n *OpaqueBlock) Children() []Node { return nil }

// Walk visits nodes depth-first in offset order. Returning false from fn
// skips the node's children.
func Walk(nodes []Node, fn func(n Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []Node, depth int, fn func(Node, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) {
			walk(n.Children(), depth+1, fn)
		}
	}
}

// Functions returns every FunctionDef in the tree, nested ones included.
func Functions(nodes []Node) []*FunctionDef {
	var out []*FunctionDef
	Walk(nodes, func(n Node, _ int) bool {
		if f, ok := n.(*FunctionDef); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

// OpaqueBytes sums the bytecode covered by OpaqueBlocks at any depth.
func OpaqueBytes(nodes []Node) int {
	total := 0
	Walk(nodes, func(n Node, _ int) bool {
		if o, ok := n.(*OpaqueBlock); ok {
			total += o.Extent.Len()
		}
		return true
	})
	return total
}
