package vuln

import (
	"strings"

	"github.com/moznion/go-optional"

	"github.com/matzehuels/chainsat/pkg/version"
)

// Advisory is one published vulnerability.
type Advisory struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Severity    string     `json:"severity,omitempty"`
	BaseScore   float64    `json:"base_score,omitempty"`
	ImpactScore []float64  `json:"impact_score"`
	Affected    []Affected `json:"affected"`
}

// Impact returns the first impact score, if any.
func (a Advisory) Impact() optional.Option[float64] {
	if len(a.ImpactScore) == 0 {
		return optional.None[float64]()
	}
	return optional.Some(a.ImpactScore[0])
}

// Affected names a package and the ranges of its versions an advisory hits.
// An empty Ecosystem applies to every ecosystem that has a package with
// this name.
type Affected struct {
	Ecosystem version.Ecosystem `json:"ecosystem,omitempty"`
	Package   string            `json:"package"`
	Ranges    []Range           `json:"ranges"`
}

// Range is one affected-version range of an advisory.
type Range struct {
	Version        string                  `json:"version,omitempty"`
	StartIncluding optional.Option[string] `json:"start_including"`
	StartExcluding optional.Option[string] `json:"start_excluding"`
	EndIncluding   optional.Option[string] `json:"end_including"`
	EndExcluding   optional.Option[string] `json:"end_excluding"`
}

// UsesVersionRanges reports whether any bound is set.
func (r Range) UsesVersionRanges() bool {
	return r.StartIncluding.IsSome() || r.StartExcluding.IsSome() ||
		r.EndIncluding.IsSome() || r.EndExcluding.IsSome()
}

// Matches reports whether target falls in the range. Without bounds the
// listed version must equal target or contain a wildcard. With bounds,
// target and every present bound must parse.
func (r Range) Matches(alg version.Algebra, target string) bool {
	if !r.UsesVersionRanges() {
		return r.Version == target || strings.ContainsAny(r.Version, "*")
	}

	v, err := alg.Parse(target)
	if err != nil {
		return false
	}
	check := func(bound optional.Option[string], ok func(c int) bool) bool {
		if bound.IsNone() {
			return true
		}
		b, err := alg.Parse(bound.Unwrap())
		if err != nil {
			return false
		}
		return ok(v.Compare(b))
	}
	return check(r.StartIncluding, func(c int) bool { return c >= 0 }) &&
		check(r.StartExcluding, func(c int) bool { return c > 0 }) &&
		check(r.EndIncluding, func(c int) bool { return c <= 0 }) &&
		check(r.EndExcluding, func(c int) bool { return c < 0 })
}

// affects reports whether any range of the advisory's entries for
// (eco, pkg) matches target.
func (a Advisory) affects(alg version.Algebra, eco version.Ecosystem, pkg, target string) bool {
	for _, af := range a.Affected {
		if !af.appliesTo(eco, pkg) {
			continue
		}
		for _, r := range af.Ranges {
			if r.Matches(alg, target) {
				return true
			}
		}
	}
	return false
}

func (af Affected) appliesTo(eco version.Ecosystem, pkg string) bool {
	return (af.Ecosystem == "" || af.Ecosystem == eco) && strings.EqualFold(af.Package, pkg)
}
