package version

import (
	"strconv"
	"strings"
)

type nugetAlgebra struct{}

// nugetVersion is a NuGet version: 1-4 numeric parts, an optional
// pre-release label and ignored build metadata.
type nugetVersion struct {
	raw     string
	parts   [4]int
	release []string
}

func (n nugetVersion) String() string { return n.raw }

func (n nugetVersion) Compare(o Version) int {
	other := o.(nugetVersion)
	for i := range n.parts {
		if c := cmpInt(n.parts[i], other.parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n.release) == 0 && len(other.release) == 0:
		return 0
	case len(n.release) == 0:
		return 1
	case len(other.release) == 0:
		return -1
	}
	for i := 0; i < len(n.release) && i < len(other.release); i++ {
		if c := cmpLabel(n.release[i], other.release[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(n.release), len(other.release))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpLabel orders numeric labels numerically and below alphanumeric ones;
// alphanumeric labels compare case-insensitively.
func cmpLabel(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmpInt(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func (nugetAlgebra) Ecosystem() Ecosystem { return NuGet }

func (nugetAlgebra) Parse(name string) (Version, error) {
	s := strings.TrimSpace(name)
	s, _, _ = strings.Cut(s, "+")
	core, pre, hasPre := strings.Cut(s, "-")
	fields := strings.Split(core, ".")
	if core == "" || len(fields) > 4 {
		return nil, parseErr("nuget version", name, nil)
	}
	v := nugetVersion{raw: name}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, parseErr("nuget version", name, err)
		}
		v.parts[i] = n
	}
	if hasPre {
		if pre == "" {
			return nil, parseErr("nuget version", name, nil)
		}
		v.release = strings.Split(pre, ".")
	}
	return v, nil
}

// ParseConstraint accepts bracket ranges, floating versions ("1.*") and
// bare versions, which NuGet treats as an inclusive minimum.
func (a nugetAlgebra) ParseConstraint(c string) (Constraint, error) {
	c = strings.TrimSpace(c)
	if isAny(c) {
		return anyConstraint{}, nil
	}
	ivs, ranged, err := parseIntervals(c)
	if err != nil {
		return nil, err
	}
	if !ranged {
		if base, ok := strings.CutSuffix(c, ".*"); ok {
			upper, ok := bumpLast(base)
			if !ok {
				return nil, parseErr("nuget constraint", c, nil)
			}
			ivs = []interval{{lo: base, hi: upper, loIncl: true}}
		} else {
			ivs = []interval{{lo: c, loIncl: true}}
		}
	}
	return buildIntervals(a, ivs)
}
