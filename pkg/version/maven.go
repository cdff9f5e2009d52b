package version

import (
	"strings"

	mvn "github.com/masahiro331/go-mvn-version"
)

type mavenAlgebra struct{}

type mavenVersion struct {
	raw string
	v   mvn.Version
}

func (m mavenVersion) String() string { return m.raw }

func (m mavenVersion) Compare(o Version) int {
	return m.v.Compare(o.(mavenVersion).v)
}

func (mavenAlgebra) Ecosystem() Ecosystem { return Maven }

func (mavenAlgebra) Parse(name string) (Version, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "[](),${}") {
		return nil, parseErr("maven version", name, nil)
	}
	v, err := mvn.NewVersion(name)
	if err != nil {
		return nil, parseErr("maven version", name, err)
	}
	return mavenVersion{raw: name, v: v}, nil
}

// ParseConstraint accepts bracket ranges. A bare version is rewritten to
// "[v]" and pins that version exactly.
func (a mavenAlgebra) ParseConstraint(c string) (Constraint, error) {
	if isAny(c) {
		return anyConstraint{}, nil
	}
	ivs, ranged, err := parseIntervals(c)
	if err != nil {
		return nil, err
	}
	if !ranged {
		ivs, _, err = parseIntervals("[" + strings.TrimSpace(c) + "]")
		if err != nil {
			return nil, err
		}
	}
	return buildIntervals(a, ivs)
}
