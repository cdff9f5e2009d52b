package smt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var errUnbound = errors.New("smt: unbound symbol")

// value is a boolean or a number; integers are carried exactly in float64
// at the magnitudes serials take.
type value struct {
	boolean bool
	b       bool
	n       float64
}

func boolean(b bool) value   { return value{boolean: true, b: b} }
func number(n float64) value { return value{n: n} }

// env binds constants for evaluation.
type env struct {
	ints  map[string]int64
	reals map[string]float64
}

func (e *env) lookup(name string) (value, error) {
	if v, ok := e.ints[name]; ok {
		return number(float64(v)), nil
	}
	if v, ok := e.reals[name]; ok {
		return number(v), nil
	}
	return value{}, fmt.Errorf("%w: %s", errUnbound, name)
}

func (e *env) truth(n *Node) (bool, error) {
	v, err := e.eval(n)
	if err != nil {
		return false, err
	}
	if !v.boolean {
		return false, fmt.Errorf("smt: %s is not boolean", n)
	}
	return v.b, nil
}

func (e *env) num(n *Node) (float64, error) {
	v, err := e.eval(n)
	if err != nil {
		return 0, err
	}
	if v.boolean {
		return 0, fmt.Errorf("smt: %s is not numeric", n)
	}
	return v.n, nil
}

func (e *env) eval(n *Node) (value, error) {
	if !n.IsList() {
		if n.Quoted {
			return e.lookup(n.Atom)
		}
		switch n.Atom {
		case "true":
			return boolean(true), nil
		case "false":
			return boolean(false), nil
		}
		if f, err := strconv.ParseFloat(n.Atom, 64); err == nil {
			return number(f), nil
		}
		return e.lookup(n.Atom)
	}

	args := n.List[1:]
	switch op := n.Head(); op {
	case "and":
		for _, a := range args {
			t, err := e.truth(a)
			if err != nil || !t {
				return boolean(false), err
			}
		}
		return boolean(true), nil
	case "or":
		for _, a := range args {
			t, err := e.truth(a)
			if err != nil || t {
				return boolean(t), err
			}
		}
		return boolean(false), nil
	case "not":
		if len(args) != 1 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		t, err := e.truth(args[0])
		return boolean(!t), err
	case "=>":
		if len(args) != 2 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		g, err := e.truth(args[0])
		if err != nil || !g {
			return boolean(true), err
		}
		t, err := e.truth(args[1])
		return boolean(t), err
	case "ite":
		if len(args) != 3 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		g, err := e.truth(args[0])
		if err != nil {
			return value{}, err
		}
		if g {
			return e.eval(args[1])
		}
		return e.eval(args[2])
	case "=", "distinct", "<", "<=", ">", ">=":
		if len(args) < 2 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		vals := make([]value, len(args))
		for i, a := range args {
			v, err := e.eval(a)
			if err != nil {
				return value{}, err
			}
			vals[i] = v
		}
		return boolean(compare(op, vals)), nil
	case "+", "-", "*", "/":
		if len(args) == 0 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		acc, err := e.num(args[0])
		if err != nil {
			return value{}, err
		}
		if op == "-" && len(args) == 1 {
			return number(-acc), nil
		}
		for _, a := range args[1:] {
			x, err := e.num(a)
			if err != nil {
				return value{}, err
			}
			switch op {
			case "+":
				acc += x
			case "-":
				acc -= x
			case "*":
				acc *= x
			case "/":
				if x == 0 {
					return value{}, fmt.Errorf("smt: division by zero in %s", n)
				}
				acc /= x
			}
		}
		return number(acc), nil
	case "abs":
		if len(args) != 1 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		x, err := e.num(args[0])
		return number(math.Abs(x)), err
	case "to_real":
		if len(args) != 1 {
			return value{}, fmt.Errorf("smt: arity of %s", n)
		}
		x, err := e.num(args[0])
		return number(x), err
	}
	return value{}, fmt.Errorf("smt: unsupported term %s", n)
}

// epsilon absorbs float drift when comparing sums of decimal scores.
const epsilon = 1e-9

func compare(op string, vals []value) bool {
	if op == "distinct" {
		for i := range vals {
			for j := i + 1; j < len(vals); j++ {
				if equal(vals[i], vals[j]) {
					return false
				}
			}
		}
		return true
	}
	for i := 1; i < len(vals); i++ {
		a, b := vals[i-1], vals[i]
		var ok bool
		switch op {
		case "=":
			ok = equal(a, b)
		case "<":
			ok = a.n < b.n-epsilon
		case "<=":
			ok = a.n <= b.n+epsilon
		case ">":
			ok = a.n > b.n+epsilon
		case ">=":
			ok = a.n >= b.n-epsilon
		}
		if !ok {
			return false
		}
	}
	return true
}

func equal(a, b value) bool {
	if a.boolean || b.boolean {
		return a.boolean == b.boolean && a.b == b.b
	}
	return math.Abs(a.n-b.n) <= epsilon
}
