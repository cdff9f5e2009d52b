package smt

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

// ImpactPrefix starts the name of a package's impact variable.
const ImpactPrefix = "impact#"

// Reserved lists the characters a package name may not contain in a
// formula: the quoting characters and the variable prefix separator.
const Reserved = `#|\`

// Transform compiles sub into a Model whose objective is the summed impact
// of the selected versions under agg.
//
// Every reachable package gets an integer variable ranging over the serials
// its constraints admit, or -1 when absent. A direct requirement pins its
// package into the filtered set. An indirect requirement forces the child
// into its filtered set whenever the parent takes a version carrying the
// requirement, and absent when no such parent version is chosen. Versions
// whose parent version is itself filtered out are ignored.
func Transform(sub *graph.Subgraph, agg graph.Aggregator) (*Model, error) {
	alg, err := version.For(sub.Ecosystem)
	if err != nil {
		return nil, err
	}
	for name := range sub.Have {
		if strings.ContainsAny(name, Reserved) {
			return nil, fmt.Errorf("smt: package name %q contains a reserved character", name)
		}
	}
	for _, d := range sub.Direct {
		if strings.ContainsAny(d.Package, Reserved) {
			return nil, fmt.Errorf("smt: package name %q contains a reserved character", d.Package)
		}
	}
	t := &translator{
		sub:     sub,
		agg:     agg,
		alg:     alg,
		allowed: map[string]map[int]bool{},
		direct:  map[string]bool{},
		filters: map[string][]int{},
	}
	text := t.emit()
	return Convert(text, sub.Ecosystem)
}

type translator struct {
	sub     *graph.Subgraph
	agg     graph.Aggregator
	alg     version.Algebra
	allowed map[string]map[int]bool
	direct  map[string]bool
	filters map[string][]int
	b       strings.Builder
}

// filter returns the serials of pkg's parseable versions satisfying
// constraint. An unparseable constraint matches nothing.
func (t *translator) filter(pkg, constraint string) []int {
	key := pkg + "\x00" + constraint
	if s, ok := t.filters[key]; ok {
		return s
	}
	var c version.Constraint
	if constraint != "" {
		var err error
		if c, err = t.alg.ParseConstraint(constraint); err != nil {
			t.filters[key] = nil
			return nil
		}
	}
	var out []int
	for _, v := range t.sub.Have[pkg] {
		if v.Serial < 0 {
			continue
		}
		if c != nil {
			pv, err := t.alg.Parse(v.Name)
			if err != nil || !c.Check(pv) {
				continue
			}
		}
		out = append(out, v.Serial)
	}
	slices.Sort(out)
	t.filters[key] = out
	return out
}

func (t *translator) allow(pkg string, serials []int) bool {
	set, ok := t.allowed[pkg]
	changed := !ok
	if !ok {
		set = map[int]bool{}
		t.allowed[pkg] = set
	}
	for _, s := range serials {
		if !set[s] {
			set[s] = true
			changed = true
		}
	}
	return changed
}

func (t *translator) line(format string, args ...any) {
	fmt.Fprintf(&t.b, format, args...)
	t.b.WriteByte('\n')
}

func (t *translator) emit() string {
	var constraints []string

	for _, d := range t.sub.Direct {
		s := t.filter(d.Package, d.Constraints)
		t.direct[d.Package] = true
		t.allow(d.Package, s)
		constraints = append(constraints, Member(Symbol(d.Package), s))
	}

	// Parent filtered sets grow as children are admitted; iterate until
	// no edge admits anything new.
	for changed := true; changed; {
		changed = false
		for _, e := range t.sub.Indirect {
			if !t.allowed[e.ParentPackage][e.ParentSerial] {
				continue
			}
			if t.allow(e.Package, t.filter(e.Package, e.Constraints)) {
				changed = true
			}
		}
	}

	constraints = append(constraints, t.indirect()...)

	packages := t.packages()
	for _, p := range packages {
		if _, ok := t.allowed[p]; !ok {
			constraints = append(constraints, fmt.Sprintf("(= %s %s)", Symbol(p), intLit(-1)))
		}
	}
	impacts := t.impacts(packages)
	constraints = append(constraints, impacts...)

	objective := ObjectivePrefix + t.sub.Root.ID()
	for _, p := range packages {
		t.line("(declare-const %s Int)", Symbol(p))
	}
	for _, p := range packages {
		t.line("(declare-const %s Real)", Symbol(ImpactPrefix+p))
	}
	t.line("(declare-const %s Real)", Symbol(objective))
	for _, c := range constraints {
		t.line("(assert %s)", c)
	}

	var sum string
	switch len(packages) {
	case 0:
		sum = realLit(0)
	case 1:
		sum = Symbol(ImpactPrefix + packages[0])
	default:
		terms := make([]string, len(packages))
		for i, p := range packages {
			terms[i] = Symbol(ImpactPrefix + p)
		}
		sum = "(+ " + strings.Join(terms, " ") + ")"
	}
	t.line("(assert (= %s %s))", Symbol(objective), sum)
	return t.b.String()
}

// packages returns every package with a variable: the reachable ones and
// any named by a requirement.
func (t *translator) packages() []string {
	seen := map[string]bool{}
	for p := range t.sub.Depth {
		seen[p] = true
	}
	for p := range t.allowed {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

type edgeKey struct {
	parent     string
	constraint string
}

// indirect emits the forward and absent constraints of every child
// reached through a surviving parent version.
func (t *translator) indirect() []string {
	children := map[string]map[edgeKey][]int{}
	for _, e := range t.sub.Indirect {
		if !t.allowed[e.ParentPackage][e.ParentSerial] {
			continue
		}
		groups, ok := children[e.Package]
		if !ok {
			groups = map[edgeKey][]int{}
			children[e.Package] = groups
		}
		k := edgeKey{e.ParentPackage, e.Constraints}
		if !slices.Contains(groups[k], e.ParentSerial) {
			groups[k] = append(groups[k], e.ParentSerial)
		}
	}

	names := make([]string, 0, len(children))
	for c := range children {
		names = append(names, c)
	}
	slices.Sort(names)

	var out []string
	for _, child := range names {
		groups := children[child]
		keys := make([]edgeKey, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b edgeKey) int {
			if c := strings.Compare(a.parent, b.parent); c != 0 {
				return c
			}
			return strings.Compare(a.constraint, b.constraint)
		})

		sym := Symbol(child)
		selectors := map[string][]int{}
		var parents []string
		for _, k := range keys {
			serials := groups[k]
			slices.Sort(serials)
			cond := Member(Symbol(k.parent), serials)
			out = append(out, fmt.Sprintf("(=> %s %s)", cond, Member(sym, t.filter(child, k.constraint))))
			if _, ok := selectors[k.parent]; !ok {
				parents = append(parents, k.parent)
			}
			selectors[k.parent] = append(selectors[k.parent], serials...)
		}
		if t.direct[child] {
			continue
		}

		conds := make([]string, 0, len(parents))
		for _, p := range parents {
			s := selectors[p]
			slices.Sort(s)
			conds = append(conds, Member(Symbol(p), slices.Compact(s)))
		}
		out = append(out, fmt.Sprintf("(=> (not %s) (= %s %s))", disjunction(conds), sym, intLit(-1)))
	}
	return out
}

// impacts emits, per package, one implication per distinct impact score
// of its admitted versions. An absent package contributes zero.
func (t *translator) impacts(packages []string) []string {
	var out []string
	for _, p := range packages {
		scores := map[int]float64{}
		for _, v := range t.sub.Have[p] {
			scores[v.Serial] = t.agg.Impact(v)
		}
		byScore := map[float64][]int{}
		for s := range t.allowed[p] {
			byScore[scores[s]] = append(byScore[scores[s]], s)
		}
		keys := make([]float64, 0, len(byScore))
		for k := range byScore {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		sym, impact := Symbol(p), Symbol(ImpactPrefix+p)
		for _, score := range keys {
			serials := byScore[score]
			slices.Sort(serials)
			out = append(out, fmt.Sprintf("(=> %s (= %s %s))", Member(sym, serials), impact, realLit(score)))
		}
		if !t.direct[p] {
			out = append(out, fmt.Sprintf("(=> (= %s %s) (= %s %s))", sym, intLit(-1), impact, realLit(0)))
		}
	}
	return out
}

// Runs splits sorted, distinct values into maximal runs of consecutive
// integers, each returned as its first and last element.
func Runs(values []int) [][2]int {
	var out [][2]int
	for i, v := range values {
		if i > 0 && v == values[i-1]+1 {
			out[len(out)-1][1] = v
			continue
		}
		out = append(out, [2]int{v, v})
	}
	return out
}

// Member returns a term that holds iff sym takes one of the sorted values.
// Consecutive values collapse into a range; an empty set is false.
func Member(sym string, values []int) string {
	runs := Runs(values)
	terms := make([]string, len(runs))
	for i, r := range runs {
		if r[0] == r[1] {
			terms[i] = fmt.Sprintf("(= %s %s)", sym, intLit(r[0]))
			continue
		}
		terms[i] = fmt.Sprintf("(and (>= %s %s) (<= %s %s))", sym, intLit(r[0]), sym, intLit(r[1]))
	}
	return disjunction(terms)
}

func disjunction(terms []string) string {
	switch len(terms) {
	case 0:
		return "false"
	case 1:
		return terms[0]
	}
	return "(or " + strings.Join(terms, " ") + ")"
}

func intLit(v int) string {
	if v < 0 {
		return "(- " + strconv.Itoa(-v) + ")"
	}
	return strconv.Itoa(v)
}

func realLit(f float64) string {
	if f < 0 {
		return "(- " + realLit(-f) + ")"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		s = "0"
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
