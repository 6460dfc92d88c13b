package render

import (
	"fmt"
	"strconv"
	"strings"

	"unfas/internal/disasm"
	"unfas/internal/recovery"
	"unfas/internal/syntax"
)

// Input is everything the AutoLISP renderer needs from a decompilation.
type Input struct {
	Title  string // file name or other label
	Format string // container variant, e.g. "fas4"
	Table  string // opcode table, e.g. "fas4-observed v1"; empty if none
	SHA256 string
	Base   int // absolute offset of the first bytecode byte

	Folded int // bytecode bytes folded into named constructs
	Total  int // bytecode length

	Tables    *recovery.Tables
	Nodes     []syntax.Node
	Diags     int
	Truncated string // truncation message, empty when the stream decoded fully
}

// LispOptions controls AutoLISP rendering.
type LispOptions struct {
	StringTable bool // list every recovered string in the header
	Width       int  // soft line width; 0 = 100
}

// Line ties one output line back to the tree. Node is nil and Offset -1 for
// header lines.
type Line struct {
	Node    syntax.Node
	Offset  int
	Comment bool
}

// Document is rendered text plus its line map.
type Document struct {
	Text  string
	Lines []Line // index i describes line i+1
}

// NodeAt returns the node rendered on 1-based line n.
func (d *Document) NodeAt(n int) (Line, bool) {
	if n < 1 || n > len(d.Lines) || d.Lines[n-1].Node == nil {
		return Line{}, false
	}
	return d.Lines[n-1], true
}

// LineOf returns the first 1-based line rendering the smallest node that
// encloses off, or 0 when no rendered line covers it. Comment lines count
// only for OpaqueBlocks, which render as nothing else.
func (d *Document) LineOf(off int) int {
	best, bestLen := 0, -1
	for i, l := range d.Lines {
		if l.Node == nil || !l.Node.Span().Contains(off) || !codeLine(l) {
			continue
		}
		if n := l.Node.Span().Len(); bestLen < 0 || n < bestLen {
			best, bestLen = i+1, n
		}
	}
	return best
}

// LineOfNode returns the first 1-based code line rendering n, or 0.
func (d *Document) LineOfNode(n syntax.Node) int {
	for i, l := range d.Lines {
		if l.Node == n && codeLine(l) {
			return i + 1
		}
	}
	return 0
}

func codeLine(l Line) bool {
	if !l.Comment {
		return true
	}
	_, opaque := l.Node.(*syntax.OpaqueBlock)
	return opaque
}

// Percent is the folded share of the bytecode as a percentage.
func (in *Input) Percent() float64 {
	if in.Total == 0 {
		return 0
	}
	return 100 * float64(in.Folded) / float64(in.Total)
}

type lispWriter struct {
	opts  LispOptions
	base  int
	lines []string
	meta  []Line
}

func (w *lispWriter) emit(s string, n syntax.Node) {
	off := -1
	if n != nil {
		off = n.Span().Start
	}
	w.lines = append(w.lines, s)
	w.meta = append(w.meta, Line{Node: n, Offset: off, Comment: strings.HasPrefix(strings.TrimLeft(s, " "), ";")})
}

// appendLast adds s to the last emitted line.
func (w *lispWriter) appendLast(s string) { w.lines[len(w.lines)-1] += s }

func (w *lispWriter) lastIsComment() bool {
	if len(w.lines) == 0 {
		return true
	}
	return strings.HasPrefix(strings.TrimLeft(w.lines[len(w.lines)-1], " "), ";")
}

// Lisp renders in as AutoLISP source. Everything that is not a recovered
// construct is emitted as a comment, so the text always reads back as
// well-formed s-expressions.
func Lisp(in *Input, opts LispOptions) *Document {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	w := &lispWriter{opts: opts, base: in.Base}
	w.header(in)
	if len(in.Nodes) == 0 {
		w.emit(";; no reconstructed code", nil)
	}
	for _, n := range in.Nodes {
		w.stmt(n, 0)
	}
	return &Document{Text: strings.Join(w.lines, "\n") + "\n", Lines: w.meta}
}

func (w *lispWriter) header(in *Input) {
	title := in.Title
	if title == "" {
		title = "input"
	}
	w.emit(fmt.Sprintf(";;; %s", commentText(title)), nil)
	format := in.Format
	if in.Table != "" {
		format += ", opcode table " + in.Table
	} else {
		format += ", no opcode table"
	}
	w.emit(";;; format: "+format, nil)
	if in.SHA256 != "" {
		w.emit(";;; sha256: "+in.SHA256, nil)
	}
	w.emit(fmt.Sprintf(";;; reconstructed: %.1f%% of %d bytecode bytes folded into named constructs",
		in.Percent(), in.Total), nil)
	if t := in.Tables; t != nil {
		w.emit(fmt.Sprintf(";;; recovered: %d/%d strings, %d/%d symbols",
			present(t.Strings), len(t.Strings), present(t.Symbols), len(t.Symbols)), nil)
		for _, r := range t.Regions {
			if r.Outcome == recovery.Recovered {
				continue
			}
			enc := r.Encoding
			if enc == "" {
				enc = "partially decoded"
			}
			w.emit(fmt.Sprintf(";;; region 0x%x-0x%x %s: %s, %s", r.Start, r.End, r.Kind, r.Outcome, enc), nil)
		}
	}
	w.emit(fmt.Sprintf(";;; diagnostics: %d", in.Diags), nil)
	if in.Truncated != "" {
		w.emit(";;; truncated: "+commentText(in.Truncated), nil)
	}
	if w.opts.StringTable && in.Tables != nil {
		w.stringTable(in.Tables)
	}
	w.emit("", nil)
}

func (w *lispWriter) stringTable(t *recovery.Tables) {
	w.emit(";;;", nil)
	w.emit(";;; string table", nil)
	list := func(prefix string, tab []*recovery.String) {
		for i, s := range tab {
			if s == nil {
				w.emit(fmt.Sprintf(";;;   %s#%d unrecovered", prefix, i), nil)
				continue
			}
			w.emit(fmt.Sprintf(";;;   %s#%d %s (%s)", prefix, i, strconv.Quote(s.Text), s.Provenance()), nil)
		}
	}
	list("str", t.Strings)
	list("sym", t.Symbols)
}

func present(tab []*recovery.String) int {
	n := 0
	for _, s := range tab {
		if s != nil {
			n++
		}
	}
	return n
}

func (w *lispWriter) stmt(n syntax.Node, indent int) {
	pad := strings.Repeat(" ", indent)
	for _, note := range notes(n) {
		w.emit(pad+";; "+note, n)
	}
	switch n := n.(type) {
	case *syntax.FunctionDef:
		w.function(n, indent)
	case *syntax.OpaqueBlock:
		w.opaque(n, indent)
	default:
		w.expr(n, indent)
	}
}

func (w *lispWriter) function(fn *syntax.FunctionDef, indent int) {
	pad := strings.Repeat(" ", indent)
	if fn.Unterminated {
		w.emit(pad+";; function has no exit; body runs to the end of the stream", fn)
	}
	var args []string
	for _, p := range fn.Params {
		args = append(args, atom(p.Name.Text))
	}
	if len(fn.Locals) > 0 {
		args = append(args, "/")
		for _, l := range fn.Locals {
			args = append(args, atom(l.Name.Text))
		}
	}
	w.emit(fmt.Sprintf("%s(defun %s (%s)", pad, atom(fn.Name.Text), strings.Join(args, " ")), fn)
	for _, c := range fn.Body {
		w.stmt(c, indent+2)
	}
	if len(fn.Body) == 0 || w.lastIsComment() {
		w.emit(pad+")", fn)
		return
	}
	w.appendLast(")")
}

func (w *lispWriter) opaque(o *syntax.OpaqueBlock, indent int) {
	pad := strings.Repeat(" ", indent)
	w.emit(fmt.Sprintf("%s;; opaque 0x%06x-0x%06x: %s", pad, w.base+o.Extent.Start, w.base+o.Extent.End, o.Reason), o)
	if len(o.Insts) > 0 {
		listing := disasm.Format(o.Insts, w.base, nil, disasm.UnknownAnnotator())
		for _, l := range strings.Split(strings.TrimSuffix(listing, "\n"), "\n") {
			w.emit(pad+";;   "+l, o)
		}
	}
	start := o.Extent.End - len(o.Raw)
	for i := 0; i < len(o.Raw); i += 16 {
		chunk := o.Raw[i:min(i+16, len(o.Raw))]
		hex := make([]string, len(chunk))
		for j, c := range chunk {
			hex[j] = fmt.Sprintf("%02x", c)
		}
		w.emit(fmt.Sprintf("%s;;   0x%06x  %s  (not decoded)", pad, w.base+start+i, strings.Join(hex, " ")), o)
	}
}

// expr renders an expression statement, on one line when it fits.
func (w *lispWriter) expr(n syntax.Node, indent int) {
	pad := strings.Repeat(" ", indent)
	s := exprText(n)
	if indent+len(s) <= w.opts.Width {
		w.emit(pad+s, n)
		return
	}
	c, ok := n.(*syntax.CallExpr)
	if !ok || len(c.Args) == 0 {
		w.emit(pad+s, n)
		return
	}
	w.emit(pad+"("+calleeText(c), n)
	for _, a := range c.Args {
		w.expr(a, indent+2)
	}
	w.appendLast(")")
}

func exprText(n syntax.Node) string {
	switch n := n.(type) {
	case *syntax.CallExpr:
		parts := []string{calleeText(n)}
		for _, a := range n.Args {
			parts = append(parts, exprText(a))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *syntax.Literal:
		switch n.Type {
		case syntax.LitString:
			if n.Ref == nil {
				return atom(n.Text())
			}
			return lispString(n.Ref.Text)
		case syntax.LitInt:
			return strconv.FormatInt(n.Int, 10)
		case syntax.LitT:
			return "T"
		}
		return "nil"
	case *syntax.VariableRef:
		return atom(n.Name.Text)
	}
	return "nil"
}

func calleeText(c *syntax.CallExpr) string { return atom(c.Callee.Text) }

// notes collects provenance comments for a statement: unresolved and
// low-confidence references, and names that had to be rewritten to form
// valid atoms. Nested functions carry their own notes.
func notes(n syntax.Node) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	name := func(nm syntax.Name) {
		if nm.Index < 0 {
			return
		}
		switch {
		case !nm.Resolved():
			add(fmt.Sprintf("sym#%d unresolved", nm.Index))
		case nm.Low():
			add(fmt.Sprintf("sym#%d %s low confidence: %s", nm.Index, strconv.Quote(nm.Text), nm.Ref.Provenance()))
		}
		if nm.Resolved() && atom(nm.Text) != nm.Text {
			add(fmt.Sprintf("sym#%d recovered as %s", nm.Index, strconv.Quote(nm.Text)))
		}
	}
	var visit func(n syntax.Node, top bool)
	visit = func(n syntax.Node, top bool) {
		switch n := n.(type) {
		case *syntax.FunctionDef:
			if !top {
				return
			}
			name(n.Name)
			for _, b := range append(append([]syntax.Binding(nil), n.Params...), n.Locals...) {
				name(b.Name)
			}
			return
		case *syntax.CallExpr:
			if !n.Special {
				name(n.Callee)
			}
			for _, a := range n.Args {
				visit(a, false)
			}
		case *syntax.VariableRef:
			name(n.Name)
		case *syntax.Literal:
			if n.Type != syntax.LitString {
				return
			}
			switch {
			case n.Ref == nil:
				add(fmt.Sprintf("str#%d unresolved", n.Index))
			case n.Ref.Low:
				add(fmt.Sprintf("str#%d low confidence: %s", n.Index, n.Ref.Provenance()))
			}
		}
	}
	visit(n, true)
	return out
}

// atom returns s if it reads back as a single symbol atom, otherwise s with
// the offending characters replaced by '_'.
func atom(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range s {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()'\";`|\\,", r) || (i == 0 && r == '#') {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	if b.String() == "." {
		return "_"
	}
	return b.String()
}

// lispString quotes s with AutoLISP escapes; bytes outside printable ASCII
// use three-digit octal.
func lispString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0x1b:
			b.WriteString(`\e`)
		default:
			if r < ' ' || r >= 0x7f {
				fmt.Fprintf(&b, `\%03o`, r&0xff)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// commentText keeps arbitrary text on a single comment line.
func commentText(s string) string {
	q := strconv.Quote(s)
	if q[1:len(q)-1] == s {
		return s
	}
	return q
}
