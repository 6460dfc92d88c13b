// Package sexpr reads AutoLISP-style s-expressions. It is used to check that
// rendered output is well formed and to walk it in tests.
package sexpr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a datum.
type Kind int

const (
	Atom Kind = iota
	String
	List
	Quote
)

func (k Kind) String() string {
	switch k {
	case Atom:
		return "atom"
	case String:
		return "string"
	case List:
		return "list"
	case Quote:
		return "quote"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Datum is one parsed value. Text holds the atom text or the unescaped
// string; Items holds list elements, or the single quoted datum.
type Datum struct {
	Kind  Kind
	Text  string
	Items []*Datum
	Line  int
	Col   int
}

// Head returns the first atom of a list, or "".
func (d *Datum) Head() string {
	if d.Kind != List || len(d.Items) == 0 || d.Items[0].Kind != Atom {
		return ""
	}
	return d.Items[0].Text
}

func (d *Datum) String() string {
	switch d.Kind {
	case String:
		return fmt.Sprintf("%q", d.Text)
	case Quote:
		return "'" + d.Items[0].String()
	case List:
		parts := make([]string, len(d.Items))
		for i, it := range d.Items {
			parts[i] = it.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	return d.Text
}

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("sexpr: syntax error")

// SyntaxError reports where parsing failed.
type SyntaxError struct {
	Line, Col int
	Msg       string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sexpr: %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

type parser struct {
	src       string
	pos       int
	line, col int
}

// Parse reads every top-level datum in src. Comments run from ';' to end of
// line.
func Parse(src string) ([]*Datum, error) {
	p := &parser{src: src, line: 1, col: 1}
	var out []*Datum
	for {
		p.skip()
		if p.pos >= len(p.src) {
			return out, nil
		}
		if p.src[p.pos] == ')' {
			return nil, p.errf("unbalanced ')'")
		}
		d, err := p.datum()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
}

func (p *parser) errf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Col: p.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) advance() byte {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return c
}

func (p *parser) skip() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.advance()
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			p.advance()
		default:
			return
		}
	}
}

func (p *parser) datum() (*Datum, error) {
	line, col := p.line, p.col
	switch p.src[p.pos] {
	case '(':
		p.advance()
		d := &Datum{Kind: List, Line: line, Col: col}
		for {
			p.skip()
			if p.pos >= len(p.src) {
				return nil, &SyntaxError{Line: line, Col: col, Msg: "unterminated list"}
			}
			if p.src[p.pos] == ')' {
				p.advance()
				return d, nil
			}
			it, err := p.datum()
			if err != nil {
				return nil, err
			}
			d.Items = append(d.Items, it)
		}
	case '\'':
		p.advance()
		p.skip()
		if p.pos >= len(p.src) || p.src[p.pos] == ')' {
			return nil, p.errf("quote without datum")
		}
		it, err := p.datum()
		if err != nil {
			return nil, err
		}
		return &Datum{Kind: Quote, Items: []*Datum{it}, Line: line, Col: col}, nil
	case '"':
		return p.str(line, col)
	}
	start := p.pos
	for p.pos < len(p.src) && !delim(p.src[p.pos]) {
		p.advance()
	}
	return &Datum{Kind: Atom, Text: p.src[start:p.pos], Line: line, Col: col}, nil
}

func delim(c byte) bool {
	return c <= ' ' || c == '(' || c == ')' || c == '"' || c == ';' || c == '\''
}

func (p *parser) str(line, col int) (*Datum, error) {
	p.advance()
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return nil, &SyntaxError{Line: line, Col: col, Msg: "unterminated string"}
		}
		c := p.advance()
		switch c {
		case '"':
			return &Datum{Kind: String, Text: b.String(), Line: line, Col: col}, nil
		case '\\':
			if p.pos >= len(p.src) {
				return nil, &SyntaxError{Line: line, Col: col, Msg: "unterminated string"}
			}
			e := p.advance()
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'e':
				b.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; i++ {
					v = v*8 + int(p.advance()-'0')
				}
				b.WriteByte(byte(v))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}
