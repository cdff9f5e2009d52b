package smt

import (
	"context"
	"fmt"
	"slices"
	"time"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/version"
)

// DefaultTimeout bounds each solver check.
const DefaultTimeout = 3000 * time.Millisecond

// Resolver maps package serials back to version names.
type Resolver interface {
	VersionNames(ctx context.Context, eco version.Ecosystem, serials map[string]int) (map[string]string, error)
}

// Engine runs the reasoning operations over compiled models.
type Engine struct {
	solver   Solver
	resolver Resolver
	timeout  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout sets the per-check solver timeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine returns an engine deciding queries with solver and naming
// versions through resolver.
func NewEngine(solver Solver, resolver Resolver, opts ...EngineOption) *Engine {
	e := &Engine{solver: solver, resolver: resolver, timeout: DefaultTimeout}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) check(ctx context.Context, op string, q Query) (Result, error) {
	q.Timeout = e.timeout
	start := time.Now()
	res, err := e.solver.Check(ctx, q)
	status := string(res.Status)
	if err != nil {
		status = "error"
	}
	observability.Solver().OnCheck(ctx, op, status, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	if res.Status == Unknown {
		return Result{}, fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return res, nil
}

// ValidGraph reports whether the model is satisfiable.
func (e *Engine) ValidGraph(ctx context.Context, m *Model) (bool, error) {
	res, err := e.check(ctx, "valid_graph", Query{Model: m})
	return res.Status == Sat, err
}

// ValidConfig reports whether the model admits the given package serials.
func (e *Engine) ValidConfig(ctx context.Context, m *Model, config map[string]int) (bool, error) {
	pins, err := pin(m, config)
	if err != nil {
		return false, err
	}
	res, err := e.check(ctx, "valid_config", Query{Model: m, Assertions: pins})
	return res.Status == Sat, err
}

// CompleteConfig extends a partial configuration to the one with the
// least file risk.
func (e *Engine) CompleteConfig(ctx context.Context, m *Model, config map[string]int) ([]Config, error) {
	pins, err := pin(m, config)
	if err != nil {
		return nil, err
	}
	return e.collect(ctx, "complete_config", m, Query{
		Model:      m,
		Assertions: pins,
		Objective:  Symbol(m.Objective),
		Direction:  Minimize,
	}, 1)
}

// MinimizeImpact returns up to limit configurations in non-decreasing
// file risk.
func (e *Engine) MinimizeImpact(ctx context.Context, m *Model, limit int) ([]Config, error) {
	if err := chainerrors.ValidateLimit(limit); err != nil {
		return nil, err
	}
	return e.collect(ctx, "minimize_impact", m, Query{Model: m, Objective: Symbol(m.Objective), Direction: Minimize}, limit)
}

// MaximizeImpact returns up to limit configurations in non-increasing
// file risk.
func (e *Engine) MaximizeImpact(ctx context.Context, m *Model, limit int) ([]Config, error) {
	if err := chainerrors.ValidateLimit(limit); err != nil {
		return nil, err
	}
	return e.collect(ctx, "maximize_impact", m, Query{Model: m, Objective: Symbol(m.Objective), Direction: Maximize}, limit)
}

// FilterConfigs returns up to limit configurations whose file risk lies in
// [lo, hi].
func (e *Engine) FilterConfigs(ctx context.Context, m *Model, lo, hi float64, limit int) ([]Config, error) {
	if err := chainerrors.ValidateLimit(limit); err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidInput, "min_threshold %v exceeds max_threshold %v", lo, hi)
	}
	obj := Symbol(m.Objective)
	return e.collect(ctx, "filter_configs", m, Query{
		Model: m,
		Assertions: []string{
			fmt.Sprintf("(<= %s %s)", realLit(lo), obj),
			fmt.Sprintf("(<= %s %s)", obj, realLit(hi)),
		},
	}, limit)
}

// ConfigByImpact returns the configuration whose file risk is closest to
// target.
func (e *Engine) ConfigByImpact(ctx context.Context, m *Model, target float64) ([]Config, error) {
	obj, t := Symbol(m.Objective), realLit(target)
	distance := fmt.Sprintf("(ite (>= %s %s) (- %s %s) (- %s %s))", obj, t, obj, t, t, obj)
	return e.collect(ctx, "config_by_impact", m, Query{Model: m, Objective: distance, Direction: Minimize}, 1)
}

// collect checks q up to limit times, blocking each accepted model before
// the next check.
func (e *Engine) collect(ctx context.Context, op string, m *Model, q Query, limit int) ([]Config, error) {
	out := []Config{}
	q.Assertions = slices.Clone(q.Assertions)
	for len(out) < limit {
		res, err := e.check(ctx, op, q)
		if err != nil {
			return nil, err
		}
		if res.Status != Sat {
			break
		}
		a := Sanitize(m, res.Values)
		cfg, err := e.resolve(ctx, m, a)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)

		if len(out) == limit {
			break
		}
		block, ok := blockingClause(m, res.Values)
		if !ok {
			break
		}
		q.Assertions = append(q.Assertions, block)
	}
	return out, nil
}

func (e *Engine) resolve(ctx context.Context, m *Model, a Assignment) (Config, error) {
	cfg := Config{Versions: map[string]string{}, Impacts: a.Impacts, FileRisk: a.FileRisk}
	if len(a.Serials) == 0 {
		return cfg, nil
	}
	names, err := e.resolver.VersionNames(ctx, m.Ecosystem, a.Serials)
	if err != nil {
		return Config{}, err
	}
	cfg.Versions = names
	return cfg, nil
}

// blockingClause excludes the integer assignment of values over the
// model's package variables. Reals and solver helpers are never part of
// it. It reports false when there is nothing to block.
func blockingClause(m *Model, values map[string]Value) (string, bool) {
	var terms []string
	for _, p := range m.Packages {
		v, ok := values[p]
		if !ok || v.Sort != SortInt {
			continue
		}
		terms = append(terms, fmt.Sprintf("(not (= %s %s))", Symbol(p), intLit(int(v.Int))))
	}
	if len(terms) == 0 {
		return "", false
	}
	return disjunction(terms), true
}

// pin turns a package → serial map into equality assertions.
func pin(m *Model, config map[string]int) ([]string, error) {
	names := make([]string, 0, len(config))
	for p := range config {
		if !m.HasPackage(p) {
			return nil, chainerrors.New(chainerrors.ErrCodeInvalidInput, "package %q is not part of the graph", p)
		}
		names = append(names, p)
	}
	slices.Sort(names)
	out := make([]string, len(names))
	for i, p := range names {
		out[i] = fmt.Sprintf("(= %s %s)", Symbol(p), intLit(config[p]))
	}
	return out, nil
}
