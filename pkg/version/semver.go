package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// semverAlgebra serves NPM and Cargo. Cargo treats a bare requirement as a
// caret requirement; NPM treats it as exact.
type semverAlgebra struct{ eco Ecosystem }

type semverVersion struct {
	raw string
	v   *semver.Version
}

func (s semverVersion) String() string { return s.raw }

func (s semverVersion) Compare(o Version) int {
	return s.v.Compare(o.(semverVersion).v)
}

func (a semverAlgebra) Ecosystem() Ecosystem { return a.eco }

func (a semverAlgebra) Parse(name string) (Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(name))
	if err != nil {
		return nil, parseErr(string(a.eco)+" version", name, err)
	}
	return semverVersion{raw: name, v: v}, nil
}

func (a semverAlgebra) ParseConstraint(c string) (Constraint, error) {
	if isAny(c) {
		return anyConstraint{}, nil
	}
	if a.eco == Cargo {
		c = cargoCaret(c)
	}
	sc, err := semver.NewConstraint(c)
	if err != nil {
		return nil, parseErr(string(a.eco)+" constraint", c, err)
	}
	return semverConstraint{sc}, nil
}

type semverConstraint struct{ c *semver.Constraints }

func (s semverConstraint) Check(v Version) bool {
	sv, ok := v.(semverVersion)
	return ok && s.c.Check(sv.v)
}

// cargoCaret prefixes bare comma-separated requirements with "^".
func cargoCaret(c string) string {
	parts := strings.Split(c, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			p = "^" + p
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}
