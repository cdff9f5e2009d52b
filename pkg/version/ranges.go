package version

import (
	"strings"
)

// interval is one bracket range such as "[1.0,2.0)". An empty bound is
// unbounded on that side.
type interval struct {
	lo, hi         string
	loIncl, hiIncl bool
}

// parseIntervals splits a Maven/NuGet range expression into intervals.
// Multiple ranges are comma-joined: "[1.0,2.0),[3.0,)". A bare string
// without brackets returns ok=false.
func parseIntervals(s string) (out []interval, ok bool, err error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" || (s[0] != '[' && s[0] != '(') {
		return nil, false, nil
	}
	for len(s) > 0 {
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		if s[0] != '[' && s[0] != '(' {
			return nil, true, parseErr("range", s, nil)
		}
		end := strings.IndexAny(s, "])")
		if end < 0 {
			return nil, true, parseErr("range", s, nil)
		}
		body := s[1:end]
		iv := interval{loIncl: s[0] == '[', hiIncl: s[end] == ']'}
		if lo, hi, found := strings.Cut(body, ","); found {
			iv.lo, iv.hi = lo, hi
		} else {
			// [1.0] pins exactly one version.
			if !iv.loIncl || !iv.hiIncl || body == "" {
				return nil, true, parseErr("range", s[:end+1], nil)
			}
			iv.lo, iv.hi = body, body
		}
		out = append(out, iv)
		s = s[end+1:]
	}
	return out, true, nil
}

// intervalConstraint evaluates parsed intervals with an algebra's order.
type intervalConstraint struct {
	bounds []parsedInterval
}

type parsedInterval struct {
	lo, hi         Version
	loIncl, hiIncl bool
}

func buildIntervals(alg Algebra, ivs []interval) (Constraint, error) {
	var ic intervalConstraint
	for _, iv := range ivs {
		pi := parsedInterval{loIncl: iv.loIncl, hiIncl: iv.hiIncl}
		var err error
		if iv.lo != "" {
			if pi.lo, err = alg.Parse(iv.lo); err != nil {
				return nil, err
			}
		}
		if iv.hi != "" {
			if pi.hi, err = alg.Parse(iv.hi); err != nil {
				return nil, err
			}
		}
		ic.bounds = append(ic.bounds, pi)
	}
	return ic, nil
}

func (ic intervalConstraint) Check(v Version) bool {
	for _, b := range ic.bounds {
		if b.contains(v) {
			return true
		}
	}
	return false
}

func (b parsedInterval) contains(v Version) bool {
	if b.lo != nil {
		c := v.Compare(b.lo)
		if c < 0 || (c == 0 && !b.loIncl) {
			return false
		}
	}
	if b.hi != nil {
		c := v.Compare(b.hi)
		if c > 0 || (c == 0 && !b.hiIncl) {
			return false
		}
	}
	return true
}
