package version

import (
	"strings"

	gem "github.com/aquasecurity/go-gem-version"
)

type gemAlgebra struct{}

type gemVersion struct {
	raw string
	v   gem.Version
}

func (g gemVersion) String() string { return g.raw }

func (g gemVersion) Compare(o Version) int {
	return g.v.Compare(o.(gemVersion).v)
}

func (gemAlgebra) Ecosystem() Ecosystem { return RubyGems }

func (gemAlgebra) Parse(name string) (Version, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, parseErr("gem version", name, nil)
	}
	v, err := gem.NewVersion(name)
	if err != nil {
		return nil, parseErr("gem version", name, err)
	}
	return gemVersion{raw: name, v: v}, nil
}

// ParseConstraint accepts comma-separated requirements ("~> 1.2, >= 1.2.3")
// and "||" alternatives.
func (gemAlgebra) ParseConstraint(c string) (Constraint, error) {
	if isAny(c) || strings.TrimSpace(c) == ">= 0" {
		return anyConstraint{}, nil
	}
	cs, err := gem.NewConstraints(c)
	if err != nil {
		return nil, parseErr("gem constraint", c, err)
	}
	return gemConstraint{cs}, nil
}

type gemConstraint struct{ c gem.Constraints }

func (g gemConstraint) Check(v Version) bool {
	gv, ok := v.(gemVersion)
	return ok && g.c.Check(gv.v)
}
