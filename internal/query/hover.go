package query

import (
	"fmt"
	"strings"

	"unfas/internal/decompiler"
	"unfas/internal/syntax"
)

// Hover returns markdown describing the symbol at the absolute offset.
func Hover(res *decompiler.Result, offset int) (string, bool) {
	info, ok := FindSymbolAt(res, offset)
	if !ok {
		return "", false
	}
	return Describe(res, info), true
}

// HoverAtLine is Hover for a 1-based line and column of the rendered text.
func HoverAtLine(res *decompiler.Result, line, col int) (string, bool) {
	info, ok := FindSymbolAtLine(res, line, col)
	if !ok {
		return "", false
	}
	return Describe(res, info), true
}

// Describe renders info as a markdown hover: a lisp code block with the
// signature or value, then kind, provenance and definition site.
func Describe(res *decompiler.Result, info *SymbolInfo) string {
	var b strings.Builder
	b.WriteString("```lisp\n")
	b.WriteString(signature(res, info))
	b.WriteString("\n```\n\n")

	kind := string(info.Kind)
	if info.Function != "" && info.Kind != SymFunction {
		kind += " in `" + info.Function + "`"
	}
	fmt.Fprintf(&b, "%s at 0x%x\n", kind, info.Offset)

	switch {
	case info.Kind == SymOpaque:
		fmt.Fprintf(&b, "\nnot reconstructed: %s\n", info.Provenance)
	case info.Index >= 0 && info.Resolved:
		fmt.Fprintf(&b, "\n%s recovered by %s", indexLabel(info), info.Provenance)
		if info.Low {
			b.WriteString(" (low confidence)")
		}
		b.WriteString("\n")
	case info.Index >= 0:
		fmt.Fprintf(&b, "\n%s unresolved\n", indexLabel(info))
	}

	switch info.Kind {
	case SymFunction, SymCall, SymVariable, SymParameter, SymLocal:
		if d, ok := FindDefinition(res, info.Name); ok {
			fmt.Fprintf(&b, "\ndefined at 0x%x", d.Offset)
			if d.Line > 0 {
				fmt.Fprintf(&b, ", line %d", d.Line)
			}
			b.WriteString("\n")
		} else if info.Kind == SymCall {
			b.WriteString("\nnot defined in this file\n")
		}
	}
	return b.String()
}

func indexLabel(info *SymbolInfo) string {
	if info.Kind == SymString {
		return fmt.Sprintf("str#%d", info.Index)
	}
	return fmt.Sprintf("sym#%d", info.Index)
}

func signature(res *decompiler.Result, info *SymbolInfo) string {
	switch info.Kind {
	case SymFunction:
		if fn, ok := info.Node.(*syntax.FunctionDef); ok {
			return defunSignature(fn)
		}
	case SymCall:
		if d, ok := FindDefinition(res, info.Name); ok {
			if fn, ok := d.Node.(*syntax.FunctionDef); ok {
				return defunSignature(fn)
			}
		}
		if c, ok := info.Node.(*syntax.CallExpr); ok {
			return fmt.Sprintf("(%s ...) ; %d args", info.Name, len(c.Args))
		}
	case SymString:
		return fmt.Sprintf("%q", info.Name)
	}
	return info.Name
}

func defunSignature(fn *syntax.FunctionDef) string {
	names := func(bs []syntax.Binding) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.Name.Text
		}
		return out
	}
	list := strings.Join(names(fn.Params), " ")
	if len(fn.Locals) > 0 {
		if list != "" {
			list += " "
		}
		list += "/ " + strings.Join(names(fn.Locals), " ")
	}
	return fmt.Sprintf("(defun %s (%s))", fn.Name.Text, list)
}
