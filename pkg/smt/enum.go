package smt

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// maxDomain bounds the candidate values tried for one integer constant.
const maxDomain = 1 << 16

// Enum is an in-process backend that searches integer assignments by
// backtracking. Real constants must be defined by guarded equalities of
// the form (=> guard (= r term)) or (= r term), which every formula
// [Transform] emits satisfies. Its cost grows with the product of the
// package domains, so it suits small subgraphs and tests.
type Enum struct{}

// NewEnum returns the enumeration backend.
func NewEnum() *Enum { return &Enum{} }

type definition struct {
	guard  *Node
	target string
	term   *Node
}

type search struct {
	ints      []string
	domains   [][]int64
	reals     []string
	at        [][]*Node // int-only assertions checked once ints[i] is bound
	leaf      []*Node   // assertions involving reals
	defs      []definition
	objective *Node
	direction Direction

	env      env
	deadline time.Time
	steps    int

	found    bool
	best     Result
	bestCost float64
}

func (s *Enum) Check(ctx context.Context, q Query) (Result, error) {
	sr, err := compile(q)
	if err != nil {
		return Result{}, err
	}
	if q.Timeout > 0 {
		sr.deadline = time.Now().Add(q.Timeout)
	}
	stopped, err := sr.run(ctx, 0)
	if err != nil {
		return Result{}, err
	}
	if stopped && !sr.found {
		return Result{Status: Unknown}, nil
	}
	if stopped && sr.direction != Satisfy {
		// Optimization cut short cannot claim optimality.
		return Result{Status: Unknown}, nil
	}
	if !sr.found {
		return Result{Status: Unsat}, nil
	}
	return sr.best, nil
}

func compile(q Query) (*search, error) {
	m := q.Model
	sr := &search{
		direction: q.Direction,
		env:       env{ints: map[string]int64{}, reals: map[string]float64{}},
	}
	for name, sort := range m.decls {
		switch sort {
		case SortInt:
			sr.ints = append(sr.ints, name)
		case SortReal:
			sr.reals = append(sr.reals, name)
		default:
			return nil, fmt.Errorf("smt: enum backend cannot search %s constant %s", sort, name)
		}
	}
	slices.Sort(sr.ints)
	slices.Sort(sr.reals)

	asserts := slices.Clone(m.asserts)
	for _, a := range q.Assertions {
		n, err := ParseOne(a)
		if err != nil {
			return nil, err
		}
		asserts = append(asserts, n)
	}
	if q.Direction != Satisfy {
		n, err := ParseOne(q.Objective)
		if err != nil {
			return nil, err
		}
		sr.objective = n
	}

	index := make(map[string]int, len(sr.ints))
	for i, name := range sr.ints {
		index[name] = i
	}
	isReal := make(map[string]bool, len(sr.reals))
	for _, name := range sr.reals {
		isReal[name] = true
	}

	consts := make([][]int64, len(sr.ints))
	sr.at = make([][]*Node, len(sr.ints))
	for _, a := range asserts {
		collectConstants(a, index, consts)
		last, usesReal := -1, false
		walkSymbols(a, func(name string) {
			if i, ok := index[name]; ok && i > last {
				last = i
			}
			if isReal[name] {
				usesReal = true
			}
		})
		switch {
		case usesReal:
			sr.leaf = append(sr.leaf, a)
			if d, ok := asDefinition(a, isReal); ok {
				sr.defs = append(sr.defs, d)
			}
		case last < 0:
			// Constant assertion: decide it up front.
			t, err := (&env{}).truth(a)
			if err != nil {
				return nil, err
			}
			if !t {
				sr.ints, sr.domains = nil, nil
				sr.at = nil
				sr.leaf = []*Node{{Atom: "false"}}
				return sr, nil
			}
		default:
			sr.at[last] = append(sr.at[last], a)
		}
	}

	sr.domains = make([][]int64, len(sr.ints))
	for i, cs := range consts {
		lo, hi := int64(-1), int64(-1)
		for _, c := range cs {
			lo, hi = min(lo, c), max(hi, c)
		}
		if hi-lo >= maxDomain {
			return nil, fmt.Errorf("smt: domain of %s too large for enumeration", sr.ints[i])
		}
		for v := lo; v <= hi; v++ {
			sr.domains[i] = append(sr.domains[i], v)
		}
	}
	return sr, nil
}

// collectConstants records every numeral an integer constant is compared
// with.
func collectConstants(n *Node, index map[string]int, out [][]int64) {
	if !n.IsList() {
		return
	}
	switch n.Head() {
	case "=", "distinct", "<", "<=", ">", ">=":
		if len(n.List) == 3 {
			for _, pair := range [][2]*Node{{n.List[1], n.List[2]}, {n.List[2], n.List[1]}} {
				sym, lit := pair[0], pair[1]
				if sym.IsList() || !sym.Quoted {
					continue
				}
				i, ok := index[sym.Atom]
				if !ok {
					continue
				}
				if f, err := numeric(lit); err == nil {
					out[i] = append(out[i], int64(f))
				}
			}
		}
	}
	for _, c := range n.List {
		collectConstants(c, index, out)
	}
}

func walkSymbols(n *Node, fn func(string)) {
	if !n.IsList() {
		if n.Quoted {
			fn(n.Atom)
		}
		return
	}
	for _, c := range n.List[1:] {
		walkSymbols(c, fn)
	}
}

func asDefinition(a *Node, isReal map[string]bool) (definition, bool) {
	var guard *Node
	body := a
	if a.Head() == "=>" && len(a.List) == 3 {
		guard, body = a.List[1], a.List[2]
	}
	if body.Head() != "=" || len(body.List) != 3 {
		return definition{}, false
	}
	lhs := body.List[1]
	if lhs.IsList() || !isReal[lhs.Atom] {
		return definition{}, false
	}
	return definition{guard: guard, target: lhs.Atom, term: body.List[2]}, true
}

// run binds ints[i:] in turn. It reports whether the search stopped early,
// either because a satisfying assignment suffices or the deadline passed.
func (sr *search) run(ctx context.Context, i int) (bool, error) {
	sr.steps++
	if sr.steps%256 == 0 {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if !sr.deadline.IsZero() && time.Now().After(sr.deadline) {
			return true, nil
		}
	}
	if i == len(sr.ints) {
		return sr.visit()
	}
	name := sr.ints[i]
	for _, v := range sr.domains[i] {
		sr.env.ints[name] = v
		if !sr.holds(sr.at[i]) {
			continue
		}
		stop, err := sr.run(ctx, i+1)
		if stop || err != nil {
			delete(sr.env.ints, name)
			return stop, err
		}
	}
	delete(sr.env.ints, name)
	return false, nil
}

func (sr *search) holds(asserts []*Node) bool {
	for _, a := range asserts {
		if t, err := sr.env.truth(a); err != nil || !t {
			return false
		}
	}
	return true
}

// visit checks a complete integer assignment.
func (sr *search) visit() (bool, error) {
	clear(sr.env.reals)
	for pass := 0; pass <= len(sr.defs); pass++ {
		progress := false
		for _, d := range sr.defs {
			if _, ok := sr.env.reals[d.target]; ok {
				continue
			}
			if d.guard != nil {
				if g, err := sr.env.truth(d.guard); err != nil || !g {
					continue
				}
			}
			v, err := sr.env.num(d.term)
			if err != nil {
				continue
			}
			sr.env.reals[d.target] = v
			progress = true
		}
		if !progress {
			break
		}
	}
	for _, r := range sr.reals {
		if _, ok := sr.env.reals[r]; !ok {
			sr.env.reals[r] = 0
		}
	}
	if !sr.holds(sr.leaf) {
		return false, nil
	}

	var cost float64
	if sr.objective != nil {
		c, err := sr.env.num(sr.objective)
		if err != nil {
			return false, err
		}
		cost = c
		better := !sr.found ||
			(sr.direction == Minimize && cost < sr.bestCost-epsilon) ||
			(sr.direction == Maximize && cost > sr.bestCost+epsilon)
		if !better {
			return false, nil
		}
	}
	sr.found, sr.bestCost = true, cost
	sr.best = Result{Status: Sat, Values: make(map[string]Value, len(sr.ints)+len(sr.reals))}
	for name, v := range sr.env.ints {
		sr.best.Values[name] = Value{Sort: SortInt, Int: v, Real: float64(v)}
	}
	for name, v := range sr.env.reals {
		sr.best.Values[name] = Value{Sort: SortReal, Real: v}
	}
	return sr.direction == Satisfy, nil
}
