package smt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

// versionTable resolves serials by indexing each package's version list.
type versionTable map[string][]string

func (t versionTable) VersionNames(_ context.Context, _ version.Ecosystem, serials map[string]int) (map[string]string, error) {
	out := make(map[string]string, len(serials))
	for p, s := range serials {
		out[p] = t[p][s]
	}
	return out, nil
}

func fastapiGraph() *graph.Subgraph {
	sg := graph.NewSubgraph(graph.FileRoot("f1"), version.PyPI)
	sg.Direct = []graph.DirectRequire{{Package: "fastapi", Constraints: ">=0.100.0"}}
	sg.Have["fastapi"] = []graph.VersionInfo{
		{Name: "0.100.0", Serial: 0, Mean: 5.0, WeightedMean: 5.0},
		{Name: "0.101.0", Serial: 1, Mean: 3.0, WeightedMean: 3.0},
	}
	sg.Depth["fastapi"] = 1
	return sg
}

var fastapiVersions = versionTable{"fastapi": {"0.100.0", "0.101.0"}}

// chainGraph: a 2.0 requires b>=2; a 1.0 requires nothing.
func chainGraph() *graph.Subgraph {
	sg := graph.NewSubgraph(graph.FileRoot("f1"), version.PyPI)
	sg.Direct = []graph.DirectRequire{{Package: "a"}}
	sg.Indirect = []graph.IndirectRequire{
		{Package: "b", Constraints: ">=2", ParentPackage: "a", ParentVersion: "2.0", ParentSerial: 1},
	}
	sg.Have["a"] = []graph.VersionInfo{{Name: "1.0", Serial: 0, Mean: 4.0}, {Name: "2.0", Serial: 1, Mean: 1.0}}
	sg.Have["b"] = []graph.VersionInfo{{Name: "1.0", Serial: 0, Mean: 9.0}, {Name: "2.0", Serial: 1, Mean: 1.0}}
	sg.Depth["a"] = 1
	sg.Depth["b"] = 2
	return sg
}

var chainVersions = versionTable{"a": {"1.0", "2.0"}, "b": {"1.0", "2.0"}}

func mustTransform(t *testing.T, sg *graph.Subgraph) *Model {
	t.Helper()
	m, err := Transform(sg, graph.Mean)
	require.NoError(t, err)
	return m
}

func TestMember(t *testing.T) {
	tests := []struct {
		values []int
		want   string
	}{
		{nil, "false"},
		{[]int{3}, "(= |p| 3)"},
		{[]int{-1}, "(= |p| (- 1))"},
		{[]int{0, 1, 2}, "(and (>= |p| 0) (<= |p| 2))"},
		{[]int{0, 1, 3}, "(or (and (>= |p| 0) (<= |p| 1)) (= |p| 3))"},
		{[]int{1, 3, 5}, "(or (= |p| 1) (= |p| 3) (= |p| 5))"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Member(Symbol("p"), tt.values), "values %v", tt.values)
	}
}

func TestParse(t *testing.T) {
	nodes, err := Parse("; header\n(assert (=> (= |a b| 1) (>= x (- 2))))\n(check-sat)")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "assert", nodes[0].Head())
	require.Equal(t, "(assert (=> (= |a b| 1) (>= x (- 2))))", nodes[0].String())
	require.Equal(t, "check-sat", nodes[1].Head())

	for _, bad := range []string{"(assert", ")", "(|open)", `(echo "x)`} {
		_, err := Parse(bad)
		require.Error(t, err, bad)
	}
}

func TestParseModel(t *testing.T) {
	out := `sat
(
  (define-fun |b| () Int
    (- 1))
  (define-fun |a| () Int
    1)
  (define-fun |impact#a| () Real
    (/ 7.0 2.0))
  (define-fun |file_risk#f1| () Real
    3.5)
)`
	nodes, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	values, err := ParseModel(nodes[1])
	require.NoError(t, err)
	require.Equal(t, Value{Sort: SortInt, Int: -1, Real: -1}, values["b"])
	require.Equal(t, int64(1), values["a"].Int)
	require.InDelta(t, 3.5, values["impact#a"].Real, 1e-9)

	legacy, err := ParseOne(`(model (define-fun x () Int 4))`)
	require.NoError(t, err)
	values, err = ParseModel(legacy)
	require.NoError(t, err)
	require.Equal(t, int64(4), values["x"].Int)
}

func TestFindModelSkipsObjectives(t *testing.T) {
	nodes, err := Parse(`sat
(objectives
 (|file_risk#f1| 3.0)
)
(
  (define-fun |a| () Int 2)
)`)
	require.NoError(t, err)
	model := findModel(nodes[1:])
	require.NotNil(t, model)
	values, err := ParseModel(model)
	require.NoError(t, err)
	require.Equal(t, int64(2), values["a"].Int)

	require.Nil(t, findModel(nil))
}

func TestTransformSingleRequirement(t *testing.T) {
	m := mustTransform(t, fastapiGraph())
	want := `(declare-const |fastapi| Int)
(declare-const |impact#fastapi| Real)
(declare-const |file_risk#f1| Real)
(assert (and (>= |fastapi| 0) (<= |fastapi| 1)))
(assert (=> (= |fastapi| 1) (= |impact#fastapi| 3.0)))
(assert (=> (= |fastapi| 0) (= |impact#fastapi| 5.0)))
(assert (= |file_risk#f1| |impact#fastapi|))
`
	require.Equal(t, want, m.Text)
	require.Equal(t, "file_risk#f1", m.Objective)
	require.Equal(t, []string{"fastapi"}, m.Packages)

	again := mustTransform(t, fastapiGraph())
	require.Equal(t, m.Text, again.Text)

	back, err := Convert(m.Text, version.PyPI)
	require.NoError(t, err)
	require.Equal(t, m.Packages, back.Packages)
	require.Equal(t, m.Objective, back.Objective)
	require.Len(t, back.Assertions(), 4)
}

func TestTransformIndirect(t *testing.T) {
	m := mustTransform(t, chainGraph())
	require.Contains(t, m.Text, "(assert (=> (= |a| 1) (= |b| 1)))")
	require.Contains(t, m.Text, "(assert (=> (not (= |a| 1)) (= |b| (- 1))))")
	require.Contains(t, m.Text, "(assert (=> (= |b| (- 1)) (= |impact#b| 0.0)))")
	require.Contains(t, m.Text, "(assert (= |file_risk#f1| (+ |impact#a| |impact#b|)))")
	require.NotContains(t, m.Text, "(= |impact#a| 0.0)", "direct packages are never absent")
}

func TestTransformIgnoresFilteredParents(t *testing.T) {
	sg := chainGraph()
	sg.Direct[0].Constraints = ">=2.0"
	sg.Indirect = append(sg.Indirect, graph.IndirectRequire{
		Package: "c", ParentPackage: "a", ParentVersion: "1.0", ParentSerial: 0,
	})
	sg.Have["c"] = []graph.VersionInfo{{Name: "1.0", Serial: 0, Mean: 7.0}}
	sg.Depth["c"] = 2

	m := mustTransform(t, sg)
	require.Contains(t, m.Text, "(assert (= |c| (- 1)))")

	e := NewEngine(NewEnum(), versionTable{"a": {"1.0", "2.0"}, "b": {"1.0", "2.0"}, "c": {"1.0"}})
	configs, err := e.MinimizeImpact(context.Background(), m, 5)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, map[string]string{"a": "2.0", "b": "2.0"}, configs[0].Versions)
}

func TestTransformPackageRoot(t *testing.T) {
	sg := graph.NewSubgraph(graph.PackageRoot(version.NPM, "left-pad"), version.NPM)
	sg.Direct = []graph.DirectRequire{{Package: "left-pad"}}
	sg.Have["left-pad"] = []graph.VersionInfo{{Name: "1.0.0", Serial: 0}, {Name: "broken", Serial: -1}}
	sg.Depth["left-pad"] = 1

	m := mustTransform(t, sg)
	require.Equal(t, "file_risk#NPM:left-pad", m.Objective)
	require.Contains(t, m.Text, "(assert (= |left-pad| 0))")
}

func TestTransformPrefixLikePackageNames(t *testing.T) {
	names := []string{"a", "file_risk_f1", "impact_a"}
	sg := graph.NewSubgraph(graph.FileRoot("f1"), version.PyPI)
	table := versionTable{}
	for _, p := range names {
		sg.Direct = append(sg.Direct, graph.DirectRequire{Package: p})
		sg.Have[p] = []graph.VersionInfo{{Name: "1.0", Serial: 0, Mean: 2.0}}
		sg.Depth[p] = 1
		table[p] = []string{"1.0"}
	}

	m := mustTransform(t, sg)
	require.Equal(t, names, m.Packages)
	require.Equal(t, "file_risk#f1", m.Objective)
	decls := m.Declarations()
	require.Equal(t, SortInt, decls["impact_a"])
	require.Equal(t, SortReal, decls["impact#impact_a"])
	require.Equal(t, SortInt, decls["file_risk_f1"])

	configs, err := NewEngine(NewEnum(), table).MinimizeImpact(context.Background(), m, 1)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, map[string]string{"a": "1.0", "file_risk_f1": "1.0", "impact_a": "1.0"}, configs[0].Versions)
	require.InDelta(t, 2.0, configs[0].Impacts["impact_impact_a"], 1e-9)
	require.InDelta(t, 6.0, configs[0].FileRisk, 1e-9)

	sg.Have["a#b"] = []graph.VersionInfo{{Name: "1.0", Serial: 0}}
	_, err = Transform(sg, graph.Mean)
	require.Error(t, err)
}

func TestEngineScenarios(t *testing.T) {
	ctx := context.Background()
	m := mustTransform(t, fastapiGraph())
	e := NewEngine(NewEnum(), fastapiVersions)

	ok, err := e.ValidGraph(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)

	configs, err := e.MinimizeImpact(ctx, m, 2)
	require.NoError(t, err)
	require.Equal(t, []Config{
		{Versions: map[string]string{"fastapi": "0.101.0"}, Impacts: map[string]float64{"impact_fastapi": 3.0}, FileRisk: 3.0},
		{Versions: map[string]string{"fastapi": "0.100.0"}, Impacts: map[string]float64{"impact_fastapi": 5.0}, FileRisk: 5.0},
	}, configs)

	configs, err = e.MaximizeImpact(ctx, m, 1)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "0.100.0", configs[0].Versions["fastapi"])

	configs, err = e.FilterConfigs(ctx, m, 2.0, 4.0, 5)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "0.101.0", configs[0].Versions["fastapi"])
	require.InDelta(t, 3.0, configs[0].FileRisk, 1e-9)

	configs, err = e.ConfigByImpact(ctx, m, 4.9)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "0.100.0", configs[0].Versions["fastapi"])

	ok, err = e.ValidConfig(ctx, m, map[string]int{"fastapi": 0})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.ValidConfig(ctx, m, map[string]int{"fastapi": 7})
	require.NoError(t, err)
	require.False(t, ok)

	configs, err = e.CompleteConfig(ctx, m, map[string]int{"fastapi": 0})
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.InDelta(t, 5.0, configs[0].FileRisk, 1e-9)
}

func TestEngineIndirectOrdering(t *testing.T) {
	ctx := context.Background()
	m := mustTransform(t, chainGraph())
	e := NewEngine(NewEnum(), chainVersions)

	configs, err := e.MinimizeImpact(ctx, m, 5)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, map[string]string{"a": "2.0", "b": "2.0"}, configs[0].Versions)
	require.InDelta(t, 2.0, configs[0].FileRisk, 1e-9)
	require.Equal(t, map[string]string{"a": "1.0"}, configs[1].Versions)
	require.InDelta(t, 4.0, configs[1].FileRisk, 1e-9)

	configs, err = e.MaximizeImpact(ctx, m, 5)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.GreaterOrEqual(t, configs[0].FileRisk, configs[1].FileRisk)

	configs, err = e.CompleteConfig(ctx, m, map[string]int{"b": -1})
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, map[string]string{"a": "1.0"}, configs[0].Versions)
}

func TestEngineUnsatisfiable(t *testing.T) {
	ctx := context.Background()
	sg := fastapiGraph()
	sg.Direct[0].Constraints = ">=1.0"
	m := mustTransform(t, sg)
	require.Contains(t, m.Text, "(assert false)")

	e := NewEngine(NewEnum(), fastapiVersions)
	ok, err := e.ValidGraph(ctx, m)
	require.NoError(t, err)
	require.False(t, ok)

	configs, err := e.MinimizeImpact(ctx, m, 3)
	require.NoError(t, err)
	require.Empty(t, configs)
}

func TestEngineRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m := mustTransform(t, fastapiGraph())
	e := NewEngine(NewEnum(), fastapiVersions)

	_, err := e.MinimizeImpact(ctx, m, 0)
	require.True(t, chainerrors.Is(err, chainerrors.ErrCodeInvalidInput))
	_, err = e.FilterConfigs(ctx, m, 5, 1, 1)
	require.True(t, chainerrors.Is(err, chainerrors.ErrCodeInvalidInput))
	_, err = e.ValidConfig(ctx, m, map[string]int{"django": 0})
	require.True(t, chainerrors.Is(err, chainerrors.ErrCodeInvalidInput))
}

// scripted answers queries from a fixed list and records them.
type scripted struct {
	answers []Result
	queries []Query
}

func (s *scripted) Check(_ context.Context, q Query) (Result, error) {
	s.queries = append(s.queries, q)
	if len(s.answers) == 0 {
		return Result{Status: Unsat}, nil
	}
	r := s.answers[0]
	s.answers = s.answers[1:]
	return r, nil
}

func TestEngineTimeout(t *testing.T) {
	m := mustTransform(t, fastapiGraph())
	e := NewEngine(&scripted{answers: []Result{{Status: Unknown}}}, fastapiVersions)
	_, err := e.ValidGraph(context.Background(), m)
	require.True(t, errors.Is(err, ErrTimeout))
}

func TestEngineLimitOneDoesNotBlock(t *testing.T) {
	m := mustTransform(t, fastapiGraph())
	s := &scripted{answers: []Result{{Status: Sat, Values: map[string]Value{
		"fastapi":        {Sort: SortInt, Int: 1, Real: 1},
		"impact#fastapi": {Sort: SortReal, Real: 3},
		"file_risk#f1":   {Sort: SortReal, Real: 3},
	}}}}
	e := NewEngine(s, fastapiVersions, WithTimeout(1500*time.Millisecond))
	configs, err := e.MinimizeImpact(context.Background(), m, 1)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Len(t, s.queries, 1)
	require.Empty(t, s.queries[0].Assertions)
	require.Equal(t, Minimize, s.queries[0].Direction)
}

func TestBlockingClauseAllowlist(t *testing.T) {
	m := mustTransform(t, chainGraph())
	clause, ok := blockingClause(m, map[string]Value{
		"a":            {Sort: SortInt, Int: 1},
		"b":            {Sort: SortInt, Int: -1},
		"/0":           {Sort: SortInt, Int: 3},
		"CVSS_helper":  {Sort: SortInt, Int: 2},
		"impact#a":     {Sort: SortReal, Real: 1},
		"file_risk#f1": {Sort: SortReal, Real: 1},
	})
	require.True(t, ok)
	require.Equal(t, "(or (not (= |a| 1)) (not (= |b| (- 1))))", clause)

	_, ok = blockingClause(m, map[string]Value{"impact#a": {Sort: SortReal}})
	require.False(t, ok)
}

func TestSanitize(t *testing.T) {
	m := mustTransform(t, chainGraph())
	values := map[string]Value{
		"a":            {Sort: SortInt, Int: 1, Real: 1},
		"b":            {Sort: SortInt, Int: -1, Real: -1},
		"/0":           {Sort: SortInt, Int: 4},
		"func_obj":     {Sort: SortReal, Real: 9},
		"impact#a":     {Sort: SortReal, Real: 1.23456},
		"impact#b":     {Sort: SortReal, Real: 0},
		"file_risk#f1": {Sort: SortReal, Real: 1.23456},
	}
	a := Sanitize(m, values)
	require.Equal(t, map[string]int{"a": 1}, a.Serials)
	require.Equal(t, map[string]float64{"impact_a": 1.23, "impact_b": 0}, a.Impacts)
	require.Equal(t, 1.23, a.FileRisk)
	require.Equal(t, a, Sanitize(m, values))
}

func TestConfigJSON(t *testing.T) {
	c := Config{
		Versions: map[string]string{"fastapi": "0.101.0"},
		Impacts:  map[string]float64{"impact_fastapi": 3},
		FileRisk: 3,
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"fastapi":"0.101.0","impact_fastapi":3,"file_risk":3}`, string(data))

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, c, back)
}

func TestZ3(t *testing.T) {
	z := NewZ3("")
	if !z.Available() {
		t.Skip("z3 not on PATH")
	}
	ctx := context.Background()
	m := mustTransform(t, chainGraph())
	e := NewEngine(z, chainVersions)

	ok, err := e.ValidGraph(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)

	configs, err := e.MinimizeImpact(ctx, m, 5)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, map[string]string{"a": "2.0", "b": "2.0"}, configs[0].Versions)
	require.InDelta(t, 4.0, configs[1].FileRisk, 1e-9)
}
