package query

import (
	"fmt"
	"sort"
	"strings"

	"unfas/internal/decompiler"
	"unfas/internal/disasm"
	"unfas/internal/syntax"
)

// SymbolKind classifies what a lookup landed on.
type SymbolKind string

const (
	SymFunction  SymbolKind = "function"
	SymParameter SymbolKind = "parameter"
	SymLocal     SymbolKind = "local"
	SymVariable  SymbolKind = "variable"
	SymCall      SymbolKind = "call"
	SymSpecial   SymbolKind = "special form"
	SymString    SymbolKind = "string"
	SymLiteral   SymbolKind = "literal"
	SymOpaque    SymbolKind = "opaque"
)

// SymbolInfo describes the innermost named thing at an offset.
type SymbolInfo struct {
	Name       string      `json:"name"`
	Kind       SymbolKind  `json:"kind"`
	Offset     int         `json:"offset"` // absolute offset queried
	Span       syntax.Span `json:"span"`   // bytecode-relative span of the node
	Function   string      `json:"function,omitempty"`
	Index      int         `json:"index"` // symbol or string index, -1 if none
	Resolved   bool        `json:"resolved"`
	Low        bool        `json:"low_confidence,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Provenance string      `json:"provenance,omitempty"`
	Node       syntax.Node `json:"-"`
}

// FindSymbolAt returns the innermost node covering the absolute file offset,
// described as a symbol. Header bytes of a function resolve to the function
// name or to the parameter or local whose bind instruction covers them.
func FindSymbolAt(res *decompiler.Result, offset int) (*SymbolInfo, bool) {
	if res == nil || res.Index == nil {
		return nil, false
	}
	rel := offset - res.Base
	if rel < 0 || rel >= res.Total {
		return nil, false
	}
	entries := res.Index.At(rel)
	if len(entries) == 0 {
		return nil, false
	}
	e := entries[0]
	info := &SymbolInfo{Offset: offset, Span: e.Node.Span(), Node: e.Node, Index: -1}
	if e.Function != nil {
		info.Function = e.Function.Name.Text
	}

	switch n := e.Node.(type) {
	case *syntax.FunctionDef:
		if b, kind, ok := bindingAt(res, n, rel); ok {
			info.setName(b.Name)
			info.Kind = kind
			info.Function = n.Name.Text
			break
		}
		info.setName(n.Name)
		info.Kind = SymFunction
	case *syntax.CallExpr:
		info.setName(n.Callee)
		info.Kind = SymCall
		if n.Special {
			info.Kind = SymSpecial
			info.Resolved = true
		}
	case *syntax.VariableRef:
		info.setName(n.Name)
		info.Kind = variableKind(e.Function, n.Name)
	case *syntax.Literal:
		info.Kind = SymLiteral
		switch n.Type {
		case syntax.LitString:
			info.Kind = SymString
			info.Name = n.Text()
			info.Index = n.Index
			if n.Ref != nil {
				info.Resolved = true
				info.Low = n.Ref.Low
				info.Confidence = n.Ref.Confidence
				info.Provenance = n.Ref.Provenance()
			}
		case syntax.LitInt:
			info.Name = fmt.Sprint(n.Int)
			info.Resolved = true
		default:
			info.Name = string(n.Type)
			info.Resolved = true
		}
	case *syntax.OpaqueBlock:
		info.Kind = SymOpaque
		info.Provenance = n.Reason
		info.Name = "raw bytes"
		if in, ok := instAt(res.Instructions, rel); ok {
			info.Name = in.Text()
		}
	}
	return info, true
}

func (s *SymbolInfo) setName(n syntax.Name) {
	s.Name = n.Text
	s.Index = n.Index
	s.Resolved = n.Resolved()
	s.Low = n.Low()
	if n.Ref != nil {
		s.Confidence = n.Ref.Confidence
		s.Provenance = n.Ref.Provenance()
	}
}

// variableKind tells parameters and locals of fn from free variables.
func variableKind(fn *syntax.FunctionDef, n syntax.Name) SymbolKind {
	if fn == nil {
		return SymVariable
	}
	for _, b := range fn.Params {
		if b.Name.Index == n.Index {
			return SymParameter
		}
	}
	for _, b := range fn.Locals {
		if b.Name.Index == n.Index {
			return SymLocal
		}
	}
	return SymVariable
}

func bindingAt(res *decompiler.Result, fn *syntax.FunctionDef, rel int) (syntax.Binding, SymbolKind, bool) {
	if !fn.Header.Contains(rel) {
		return syntax.Binding{}, "", false
	}
	check := func(bs []syntax.Binding, kind SymbolKind) (syntax.Binding, SymbolKind, bool) {
		for _, b := range bs {
			in, ok := instAt(res.Instructions, b.Offset)
			if ok && rel >= in.Offset && rel < in.End() {
				return b, kind, true
			}
		}
		return syntax.Binding{}, "", false
	}
	if b, k, ok := check(fn.Params, SymParameter); ok {
		return b, k, ok
	}
	return check(fn.Locals, SymLocal)
}

// instAt returns the instruction covering rel.
func instAt(insts []disasm.Inst, rel int) (disasm.Inst, bool) {
	i := sort.Search(len(insts), func(i int) bool { return insts[i].End() > rel })
	if i < len(insts) && insts[i].Offset <= rel {
		return insts[i], true
	}
	return disasm.Inst{}, false
}

// FindSymbolAtLine maps a 1-based line and column of the rendered text to a
// symbol. The token under the column is matched against the names the
// line's node renders; a column of 0, or a token that matches nothing,
// falls back to the line's node.
func FindSymbolAtLine(res *decompiler.Result, line, col int) (*SymbolInfo, bool) {
	if res == nil || res.Document == nil || line < 1 || line > len(res.Document.Lines) {
		return nil, false
	}
	l := res.Document.Lines[line-1]
	if l.Node == nil {
		return nil, false
	}
	if tok := tokenAt(textLine(res.Document.Text, line), col); tok != "" {
		if off, ok := namedOffset(l.Node, tok); ok {
			return FindSymbolAt(res, res.Base+off)
		}
	}
	return FindSymbolAt(res, res.Base+l.Node.Span().Start)
}

func textLine(text string, line int) string {
	lines := strings.Split(text, "\n")
	if line > len(lines) {
		return ""
	}
	return lines[line-1]
}

func isDelim(c byte) bool {
	return c == ' ' || c == '(' || c == ')' || c == '"' || c == ';' || c == '\t' || c == '\''
}

// tokenAt returns the atom or string body containing the 1-based column.
func tokenAt(s string, col int) string {
	i := col - 1
	if i < 0 || i >= len(s) || isDelim(s[i]) {
		return ""
	}
	start, end := i, i
	for start > 0 && !isDelim(s[start-1]) {
		start--
	}
	for end < len(s) && !isDelim(s[end]) {
		end++
	}
	return s[start:end]
}

// namedOffset finds the offset of the instruction that introduces tok in
// the part of n rendered on its own line. Bodies of nested functions are
// rendered on their own lines and are not searched.
func namedOffset(n syntax.Node, tok string) (int, bool) {
	if fn, ok := n.(*syntax.FunctionDef); ok {
		if fn.Name.Text == tok {
			return fn.Header.Start, true
		}
		for _, bs := range [][]syntax.Binding{fn.Params, fn.Locals} {
			for _, b := range bs {
				if b.Name.Text == tok {
					return b.Offset, true
				}
			}
		}
		return 0, false
	}
	off, found := 0, false
	syntax.Walk([]syntax.Node{n}, func(c syntax.Node, _ int) bool {
		if found {
			return false
		}
		switch c := c.(type) {
		case *syntax.FunctionDef:
			return false
		case *syntax.CallExpr:
			if c.Callee.Text == tok {
				off, found = c.At, true
			}
		case *syntax.VariableRef:
			if c.Name.Text == tok {
				off, found = c.Extent.Start, true
			}
		case *syntax.Literal:
			if c.Type == syntax.LitString && c.Text() == tok {
				off, found = c.Extent.Start, true
			}
		}
		return !found
	})
	return off, found
}

// Definition locates where a name is defined.
type Definition struct {
	Name     string      `json:"name"`
	Kind     SymbolKind  `json:"kind"`
	Offset   int         `json:"offset"` // absolute
	Span     syntax.Span `json:"span"`
	Line     int         `json:"line,omitempty"` // 1-based rendered line, 0 if not rendered
	Function string      `json:"function,omitempty"`
	Node     syntax.Node `json:"-"`
}

// FindDefinition returns the definition of name: a function, a variable's
// first setq, or failing both the parameter or local declaring it.
func FindDefinition(res *decompiler.Result, name string) (*Definition, bool) {
	if res == nil || res.Index == nil {
		return nil, false
	}
	if n, ok := res.Index.Definition(name); ok {
		d := &Definition{Name: name, Node: n, Span: n.Span(), Offset: res.Base + n.Span().Start}
		switch n := n.(type) {
		case *syntax.FunctionDef:
			d.Kind = SymFunction
		case *syntax.CallExpr:
			d.Kind = SymVariable
			if fn := enclosing(res.Index, n); fn != nil {
				d.Function = fn.Name.Text
			}
		}
		if res.Document != nil {
			d.Line = res.Document.LineOfNode(n)
		}
		return d, true
	}
	for _, fn := range syntax.Functions(res.Nodes) {
		for _, bs := range []struct {
			list []syntax.Binding
			kind SymbolKind
		}{{fn.Params, SymParameter}, {fn.Locals, SymLocal}} {
			for _, b := range bs.list {
				if b.Name.Text != name {
					continue
				}
				d := &Definition{
					Name: name, Kind: bs.kind, Node: fn, Function: fn.Name.Text,
					Offset: res.Base + b.Offset, Span: fn.Header,
				}
				if res.Document != nil {
					d.Line = res.Document.LineOfNode(fn)
				}
				return d, true
			}
		}
	}
	return nil, false
}

func enclosing(ix *syntax.Index, n syntax.Node) *syntax.FunctionDef {
	for _, e := range ix.At(n.Span().Start) {
		if e.Node == n {
			return e.Function
		}
	}
	return nil
}
