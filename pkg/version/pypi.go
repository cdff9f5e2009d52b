package version

import (
	"regexp"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

type pypiAlgebra struct{}

type pypiVersion struct {
	raw string
	v   pep440.Version
}

func (p pypiVersion) String() string { return p.raw }

func (p pypiVersion) Compare(o Version) int {
	return p.v.Compare(o.(pypiVersion).v)
}

func (pypiAlgebra) Ecosystem() Ecosystem { return PyPI }

func (pypiAlgebra) Parse(name string) (Version, error) {
	v, err := pep440.Parse(strings.TrimSpace(name))
	if err != nil {
		return nil, parseErr("pypi version", name, err)
	}
	return pypiVersion{raw: name, v: v}, nil
}

// ParseConstraint normalizes c and builds an OR of AND groups. Pre-releases
// are admitted whenever their bounds match.
func (pypiAlgebra) ParseConstraint(c string) (Constraint, error) {
	if isAny(c) {
		return anyConstraint{}, nil
	}
	norm := NormalizeSpecifier(c)
	if norm == "" {
		return anyConstraint{}, nil
	}
	var u union
	for _, group := range strings.Split(norm, "||") {
		var all allOf
		for _, clause := range strings.Split(group, ",") {
			pc, err := parsePyPIClause(clause)
			if err != nil {
				return nil, parseErr("pypi constraint", c, err)
			}
			all = append(all, pc)
		}
		u = append(u, all)
	}
	return u, nil
}

func parsePyPIClause(clause string) (Constraint, error) {
	if rest, ok := strings.CutPrefix(clause, "!="); ok && strings.HasSuffix(rest, ".*") {
		lo, hi, err := wildcardBounds(rest)
		if err != nil {
			return nil, err
		}
		return notPrefix{lo: lo, hi: hi}, nil
	}
	s, err := pep440.NewSpecifiers(clause, pep440.WithPreRelease(true))
	if err != nil {
		return nil, err
	}
	return pypiSpecifier{s}, nil
}

type pypiSpecifier struct{ s pep440.Specifiers }

func (p pypiSpecifier) Check(v Version) bool {
	pv, ok := v.(pypiVersion)
	return ok && p.s.Check(pv.v)
}

// notPrefix implements "!=X.*": anything outside [X, X+1).
type notPrefix struct{ lo, hi pep440.Version }

func (n notPrefix) Check(v Version) bool {
	pv, ok := v.(pypiVersion)
	if !ok {
		return false
	}
	return pv.v.Compare(n.lo) < 0 || pv.v.Compare(n.hi) >= 0
}

func wildcardBounds(s string) (lo, hi pep440.Version, err error) {
	base := strings.TrimSuffix(s, ".*")
	upper, ok := bumpLast(base)
	if !ok {
		return lo, hi, parseErr("wildcard", s, nil)
	}
	if lo, err = pep440.Parse(base); err != nil {
		return lo, hi, err
	}
	hi, err = pep440.Parse(upper)
	return lo, hi, err
}

type allOf []Constraint

func (a allOf) Check(v Version) bool {
	for _, c := range a {
		if !c.Check(v) {
			return false
		}
	}
	return true
}

var (
	pypiOps     = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}
	releaseRE   = regexp.MustCompile(`^(\d+!)?(\d+(?:\.\d+)*)`)
	nameRE      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)
	nameSepRE   = regexp.MustCompile(`[-_.]+`)
	extrasRE    = regexp.MustCompile(`^\[[^\]]*\]`)
	parenSpecRE = regexp.MustCompile(`^\((.*)\)$`)
)

// NormalizeSpecifier rewrites a PEP 440 specifier set into the form the
// algebra evaluates: whitespace removed, bare versions become ==, "===" becomes
// "==", "~=V" becomes ">=V,<bump(V)" and "==V.*" becomes ">=V,<bump(V)".
// Groups separated by "||" are kept. The output is a fixed point.
func NormalizeSpecifier(s string) string {
	s = strings.TrimSpace(s)
	if m := parenSpecRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	var groups []string
	for _, g := range strings.Split(s, "||") {
		var clauses []string
		for _, cl := range strings.Split(g, ",") {
			cl = strings.Join(strings.Fields(cl), "")
			if cl == "" || cl == "*" {
				continue
			}
			clauses = append(clauses, normalizeClause(cl)...)
		}
		if len(clauses) > 0 {
			groups = append(groups, strings.Join(clauses, ","))
		}
	}
	return strings.Join(groups, "||")
}

func normalizeClause(cl string) []string {
	op, v := splitOp(cl)
	switch op {
	case "":
		op = "=="
	case "===":
		op = "=="
	case "~=":
		upper, ok := bumpPrefix(v)
		if !ok {
			return []string{">=" + v}
		}
		return []string{">=" + v, "<" + upper}
	}

	if base, ok := strings.CutSuffix(v, ".*"); ok {
		switch op {
		case "==":
			upper, ok := bumpLast(base)
			if !ok {
				return []string{"==" + base}
			}
			return []string{">=" + base, "<" + upper}
		case "!=":
			return []string{"!=" + v}
		default:
			v = base
		}
	}
	return []string{op + v}
}

func splitOp(cl string) (op, v string) {
	for _, o := range pypiOps {
		if rest, ok := strings.CutPrefix(cl, o); ok {
			return o, rest
		}
	}
	return "", cl
}

// bumpPrefix drops the last release component and increments the one
// before it: 1.4.5 -> 1.5, 2.2 -> 3.
func bumpPrefix(v string) (string, bool) {
	epoch, parts := releaseParts(v)
	if len(parts) < 2 {
		return "", false
	}
	return bump(epoch, parts[:len(parts)-1])
}

// bumpLast increments the last release component: 1.2 -> 1.3.
func bumpLast(v string) (string, bool) {
	epoch, parts := releaseParts(v)
	if len(parts) == 0 {
		return "", false
	}
	return bump(epoch, parts)
}

func bump(epoch string, parts []string) (string, bool) {
	out := append([]string(nil), parts...)
	n, err := strconv.Atoi(out[len(out)-1])
	if err != nil {
		return "", false
	}
	out[len(out)-1] = strconv.Itoa(n + 1)
	return epoch + strings.Join(out, "."), true
}

func releaseParts(v string) (epoch string, parts []string) {
	m := releaseRE.FindStringSubmatch(v)
	if m == nil {
		return "", nil
	}
	return m[1], strings.Split(m[2], ".")
}

// NormalizeName applies PEP 503 name normalization.
func NormalizeName(name string) string {
	return nameSepRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Requirement is one parsed PEP 508 dependency line.
type Requirement struct {
	Name       string
	Constraint string
}

// ParseRequirement parses a requires_dist or requirements.txt line. Extras
// are stripped and the specifier is normalized. ok is false when the line
// is not a dependency or its marker cannot hold for any supported Python
// (including every "extra == ..." marker).
func ParseRequirement(line string, markers *Markers) (Requirement, bool) {
	spec, marker, _ := strings.Cut(line, ";")
	spec = strings.TrimSpace(spec)
	if marker = strings.TrimSpace(marker); marker != "" && markers != nil {
		if ok, err := markers.Satisfiable(marker); err == nil && !ok {
			return Requirement{}, false
		}
	}

	name := nameRE.FindString(spec)
	if name == "" {
		return Requirement{}, false
	}
	rest := strings.TrimSpace(spec[len(name):])
	rest = strings.TrimSpace(extrasRE.ReplaceAllString(rest, ""))
	if strings.HasPrefix(rest, "@") {
		rest = ""
	}
	return Requirement{Name: NormalizeName(name), Constraint: NormalizeSpecifier(rest)}, true
}
