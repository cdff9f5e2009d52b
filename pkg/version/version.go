package version

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Ecosystem names a package registry and its version scheme.
type Ecosystem string

const (
	PyPI     Ecosystem = "PyPI"
	NPM      Ecosystem = "NPM"
	Maven    Ecosystem = "Maven"
	NuGet    Ecosystem = "NuGet"
	Cargo    Ecosystem = "Cargo"
	RubyGems Ecosystem = "RubyGems"
)

// Ecosystems lists every supported ecosystem.
var Ecosystems = []Ecosystem{PyPI, NPM, Maven, NuGet, Cargo, RubyGems}

// ParseEcosystem resolves a case-insensitive ecosystem name.
func ParseEcosystem(s string) (Ecosystem, error) {
	for _, e := range Ecosystems {
		if strings.EqualFold(string(e), s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown ecosystem %q", s)
}

// ErrParse is wrapped by every version or constraint parse failure.
var ErrParse = errors.New("parse failure")

// Version is a parsed version name.
type Version interface {
	String() string
	// Compare returns -1, 0 or 1. Both operands come from the same algebra.
	Compare(other Version) int
}

// Constraint is a parsed constraint expression.
type Constraint interface {
	Check(v Version) bool
}

// Algebra parses versions and constraints for one ecosystem.
type Algebra interface {
	Ecosystem() Ecosystem
	Parse(name string) (Version, error)
	ParseConstraint(c string) (Constraint, error)
}

// For returns the algebra for e.
func For(e Ecosystem) (Algebra, error) {
	switch e {
	case PyPI:
		return pypiAlgebra{}, nil
	case NPM:
		return semverAlgebra{eco: NPM}, nil
	case Cargo:
		return semverAlgebra{eco: Cargo}, nil
	case Maven:
		return mavenAlgebra{}, nil
	case NuGet:
		return nugetAlgebra{}, nil
	case RubyGems:
		return gemAlgebra{}, nil
	}
	return nil, fmt.Errorf("no version algebra for ecosystem %q", e)
}

// MustFor is like [For] but panics on an unknown ecosystem.
func MustFor(e Ecosystem) Algebra {
	alg, err := For(e)
	if err != nil {
		panic(err)
	}
	return alg
}

// Compare parses and compares two names.
func Compare(alg Algebra, a, b string) (int, error) {
	va, err := alg.Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := alg.Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// InRange reports whether name satisfies constraint. Any parse failure
// reports false.
func InRange(alg Algebra, name, constraint string) bool {
	v, err := alg.Parse(name)
	if err != nil {
		return false
	}
	c, err := alg.ParseConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// Serialized is a version name with its serial number.
type Serialized struct {
	Name   string `json:"name"`
	Serial int    `json:"serial_number"`
}

// AssignSerials orders names by the algebra and numbers them 0..n-1.
// Unparseable names come first with serial -1, in input order. Names that
// compare equal are ordered by their text so the result is deterministic.
func AssignSerials(alg Algebra, names []string) []Serialized {
	type parsed struct {
		name string
		v    Version
	}
	var (
		bad  []Serialized
		good []parsed
		seen = make(map[string]bool, len(names))
	)
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		v, err := alg.Parse(n)
		if err != nil {
			bad = append(bad, Serialized{Name: n, Serial: -1})
			continue
		}
		good = append(good, parsed{n, v})
	}

	slices.SortStableFunc(good, func(a, b parsed) int {
		if c := a.v.Compare(b.v); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})

	out := make([]Serialized, 0, len(bad)+len(good))
	out = append(out, bad...)
	for i, p := range good {
		out = append(out, Serialized{Name: p.name, Serial: i})
	}
	return out
}

// Matching returns the ascending serials of versions satisfying constraint.
// Versions with serial -1 never match. An unparseable constraint matches
// nothing.
func Matching(alg Algebra, versions []Serialized, constraint string) []int {
	c, err := alg.ParseConstraint(constraint)
	if err != nil {
		return nil
	}
	var out []int
	for _, sv := range versions {
		if sv.Serial < 0 {
			continue
		}
		v, err := alg.Parse(sv.Name)
		if err != nil {
			continue
		}
		if c.Check(v) {
			out = append(out, sv.Serial)
		}
	}
	slices.Sort(out)
	return out
}

// anyConstraint matches every version.
type anyConstraint struct{}

func (anyConstraint) Check(Version) bool { return true }

// isAny reports whether c places no restriction on the version.
func isAny(c string) bool {
	switch strings.TrimSpace(c) {
	case "", "*", "latest", "any":
		return true
	}
	return false
}

// union matches when any member matches.
type union []Constraint

func (u union) Check(v Version) bool {
	for _, c := range u {
		if c.Check(v) {
			return true
		}
	}
	return false
}

func parseErr(kind, s string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrParse, kind, s, cause)
	}
	return fmt.Errorf("%w: %s %q", ErrParse, kind, s)
}
