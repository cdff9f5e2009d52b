package smt

import (
	"fmt"
	"strings"
)

// Node is one s-expression: an atom when List is nil, a list otherwise.
type Node struct {
	Atom string
	List []*Node
	// Quoted marks an atom written as |symbol|.
	Quoted bool
}

// IsList reports whether n is a list (possibly empty).
func (n *Node) IsList() bool { return n.List != nil }

// Head returns the leading atom of a list, or "".
func (n *Node) Head() string {
	if len(n.List) == 0 || n.List[0].IsList() {
		return ""
	}
	return n.List[0].Atom
}

// String renders n in SMT-LIB syntax.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if !n.IsList() {
		if n.Quoted {
			b.WriteString(Symbol(n.Atom))
			return
		}
		b.WriteString(n.Atom)
		return
	}
	b.WriteByte('(')
	for i, c := range n.List {
		if i > 0 {
			b.WriteByte(' ')
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// Symbol renders name as a quoted SMT-LIB symbol. Quoting every variable
// keeps package names clear of reserved words and numerals.
func Symbol(name string) string { return "|" + name + "|" }

// Parse reads every top-level s-expression in src.
func Parse(src string) ([]*Node, error) {
	p := &parser{src: src}
	var out []*Node
	for {
		p.skip()
		if p.pos >= len(p.src) {
			return out, nil
		}
		n, err := p.node()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
}

// ParseOne reads exactly one s-expression.
func ParseOne(src string) (*Node, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("smt: expected one expression, got %d", len(nodes))
	}
	return nodes[0], nil
}

type parser struct {
	src string
	pos int
}

// skip advances past whitespace and ; comments.
func (p *parser) skip() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) node() (*Node, error) {
	switch p.src[p.pos] {
	case '(':
		start := p.pos
		p.pos++
		list := []*Node{}
		for {
			p.skip()
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("smt: unbalanced '(' at offset %d", start)
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return &Node{List: list}, nil
			}
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
	case ')':
		return nil, fmt.Errorf("smt: unexpected ')' at offset %d", p.pos)
	case '|':
		end := strings.IndexByte(p.src[p.pos+1:], '|')
		if end < 0 {
			return nil, fmt.Errorf("smt: unterminated symbol at offset %d", p.pos)
		}
		atom := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return &Node{Atom: atom, Quoted: true}, nil
	case '"':
		start := p.pos
		p.pos++
		for p.pos < len(p.src) {
			if p.src[p.pos] == '"' {
				if p.pos+1 < len(p.src) && p.src[p.pos+1] == '"' {
					p.pos += 2
					continue
				}
				p.pos++
				return &Node{Atom: p.src[start:p.pos]}, nil
			}
			p.pos++
		}
		return nil, fmt.Errorf("smt: unterminated string at offset %d", start)
	default:
		start := p.pos
		for p.pos < len(p.src) && !strings.ContainsRune(" \t\r\n();|\"", rune(p.src[p.pos])) {
			p.pos++
		}
		return &Node{Atom: p.src[start:p.pos]}, nil
	}
}
