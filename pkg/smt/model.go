package smt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/chainsat/pkg/version"
)

// Sort is the SMT sort of a declared constant.
type Sort string

const (
	SortInt  Sort = "Int"
	SortReal Sort = "Real"
	SortBool Sort = "Bool"
)

// ObjectivePrefix starts the name of a model's objective variable. The
// separator is one of [Reserved], so no package variable can collide.
const ObjectivePrefix = "file_risk#"

// Model is a compiled formula over one subgraph root. The text is
// authoritative; the parsed declarations and assertions are derived from
// it and never persisted.
type Model struct {
	Text      string
	Ecosystem version.Ecosystem
	// Objective names the real variable holding the summed impact.
	Objective string
	// Packages lists the integer package variables, sorted.
	Packages []string

	decls   map[string]Sort
	asserts []*Node
}

// Sort returns the declared sort of name.
func (m *Model) Sort(name string) (Sort, bool) {
	s, ok := m.decls[name]
	return s, ok
}

// HasPackage reports whether name is one of the model's package variables.
func (m *Model) HasPackage(name string) bool {
	_, ok := slices.BinarySearch(m.Packages, name)
	return ok
}

// Declarations returns every declared name with its sort.
func (m *Model) Declarations() map[string]Sort {
	out := make(map[string]Sort, len(m.decls))
	for k, v := range m.decls {
		out[k] = v
	}
	return out
}

// Assertions returns the parsed assert bodies in text order.
func (m *Model) Assertions() []*Node { return m.asserts }

// Convert parses formula text produced by [Transform] back into a Model.
func Convert(text string, eco version.Ecosystem) (*Model, error) {
	nodes, err := Parse(text)
	if err != nil {
		return nil, err
	}
	m := &Model{Text: text, Ecosystem: eco, decls: map[string]Sort{}}
	for _, n := range nodes {
		switch n.Head() {
		case "declare-const":
			if len(n.List) != 3 {
				return nil, fmt.Errorf("smt: malformed %s", n)
			}
			m.decls[n.List[1].Atom] = Sort(n.List[2].Atom)
		case "declare-fun":
			if len(n.List) != 4 || len(n.List[2].List) != 0 {
				return nil, fmt.Errorf("smt: only constants are supported: %s", n)
			}
			m.decls[n.List[1].Atom] = Sort(n.List[3].Atom)
		case "assert":
			if len(n.List) != 2 {
				return nil, fmt.Errorf("smt: malformed %s", n)
			}
			m.asserts = append(m.asserts, n.List[1])
		case "set-option", "set-info", "set-logic":
		default:
			return nil, fmt.Errorf("smt: unsupported command %q", n.Head())
		}
	}

	for name, sort := range m.decls {
		switch {
		case sort == SortInt:
			m.Packages = append(m.Packages, name)
		case sort == SortReal && strings.HasPrefix(name, ObjectivePrefix):
			if m.Objective != "" {
				return nil, fmt.Errorf("smt: two objectives %q and %q", m.Objective, name)
			}
			m.Objective = name
		}
	}
	if m.Objective == "" {
		return nil, fmt.Errorf("smt: no %s* objective declared", ObjectivePrefix)
	}
	slices.Sort(m.Packages)
	return m, nil
}
