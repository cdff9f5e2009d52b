package smt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrTimeout is returned when the solver answers unknown.
var ErrTimeout = errors.New("smt: solver returned unknown")

// Status is a check-sat answer.
type Status string

const (
	Sat     Status = "sat"
	Unsat   Status = "unsat"
	Unknown Status = "unknown"
)

// Direction selects plain satisfiability or optimization.
type Direction int

const (
	Satisfy Direction = iota
	Minimize
	Maximize
)

// Query is one solver call over a model plus extra assertions.
type Query struct {
	Model *Model
	// Assertions are boolean terms added to the model's own.
	Assertions []string
	// Objective is the real term optimized unless Direction is Satisfy.
	Objective string
	Direction Direction
	Timeout   time.Duration
}

// Script renders q as a complete SMT-LIB script ending in check-sat and
// get-model.
func (q Query) Script() string {
	var b strings.Builder
	if q.Timeout > 0 {
		fmt.Fprintf(&b, "(set-option :timeout %d)\n", q.Timeout.Milliseconds())
	}
	b.WriteString(q.Model.Text)
	for _, a := range q.Assertions {
		fmt.Fprintf(&b, "(assert %s)\n", a)
	}
	switch q.Direction {
	case Minimize:
		fmt.Fprintf(&b, "(minimize %s)\n", q.Objective)
	case Maximize:
		fmt.Fprintf(&b, "(maximize %s)\n", q.Objective)
	}
	b.WriteString("(check-sat)\n(get-model)\n")
	return b.String()
}

// Value is one constant's value in a model.
type Value struct {
	Sort Sort
	// Int is set for integer constants.
	Int int64
	// Real holds the numeric value of any arithmetic constant.
	Real float64
}

// Result is a solver answer and, when sat, the model.
type Result struct {
	Status Status
	Values map[string]Value
}

// Solver decides queries.
type Solver interface {
	Check(ctx context.Context, q Query) (Result, error)
}

// ParseModel reads the output of get-model: either (model (define-fun ...)
// ...) or a bare list of define-fun entries.
func ParseModel(n *Node) (map[string]Value, error) {
	entries := n.List
	if n.Head() == "model" {
		entries = entries[1:]
	}
	out := make(map[string]Value, len(entries))
	for _, e := range entries {
		if e.Head() != "define-fun" {
			continue
		}
		if len(e.List) != 5 || len(e.List[2].List) != 0 {
			continue
		}
		sort := Sort(e.List[3].Atom)
		f, err := numeric(e.List[4])
		if err != nil {
			if sort == SortBool {
				continue
			}
			return nil, fmt.Errorf("smt: value of %s: %w", e.List[1].Atom, err)
		}
		v := Value{Sort: sort, Real: f}
		if sort == SortInt {
			v.Int = int64(math.Round(f))
		}
		out[e.List[1].Atom] = v
	}
	return out, nil
}

// numeric evaluates a numeral, decimal, (- x) or (/ x y) term.
func numeric(n *Node) (float64, error) {
	if !n.IsList() {
		if n.Quoted {
			return 0, fmt.Errorf("not a number: %s", n)
		}
		return strconv.ParseFloat(n.Atom, 64)
	}
	switch {
	case n.Head() == "-" && len(n.List) == 2:
		f, err := numeric(n.List[1])
		return -f, err
	case n.Head() == "/" && len(n.List) == 3:
		a, err := numeric(n.List[1])
		if err != nil {
			return 0, err
		}
		b, err := numeric(n.List[2])
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return 0, fmt.Errorf("division by zero: %s", n)
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("not a number: %s", n)
}
