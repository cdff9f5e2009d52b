package operation

import (
	"context"
	"errors"
	"strings"

	"github.com/matzehuels/chainsat/pkg/docstore"
	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/smt"
)

// Request names the model an SMT operation runs on.
type Request struct {
	Root       graph.Root       `json:"root"`
	MaxDepth   int              `json:"max_depth"`
	Aggregator graph.Aggregator `json:"aggregator,omitempty"`
}

// Model returns the compiled model for r, from the formula cache when the
// cached text is newer than the subgraph.
func (s *Service) Model(ctx context.Context, r Request) (*smt.Model, error) {
	if err := ValidateRoot(r.Root); err != nil {
		return nil, err
	}
	if err := chainerrors.ValidateDepth(r.MaxDepth); err != nil {
		return nil, err
	}
	agg, ok := graph.ParseAggregator(string(r.Aggregator))
	if !ok {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidInput, "unknown aggregator %q", r.Aggregator)
	}

	key := cacheKey(append(rootKey(r.Root, r.MaxDepth), string(agg))...)
	return shared(s, "smt:"+key, func() (*smt.Model, error) {
		sub, err := s.subgraph(ctx, r.Root, r.MaxDepth)
		if err != nil {
			return nil, err
		}
		if e := s.lookup(ctx, docstore.SMTText, key, sub.Moment); e != nil {
			m, err := smt.Convert(e.Value, sub.Ecosystem)
			if err == nil {
				s.logger.Debug("formula cache hit", "root", r.Root.ID(), "depth", r.MaxDepth)
				return m, nil
			}
			s.logger.Warn("discarding unreadable cached formula", "key", key, "err", err)
		}

		m, err := smt.Transform(sub, agg)
		if err != nil {
			return nil, classify(err, "translate %s", r.Root.ID())
		}
		s.store(ctx, docstore.SMTText, key, m.Text)
		s.logger.Debug("formula built", "root", r.Root.ID(), "depth", r.MaxDepth, "packages", len(m.Packages))
		return m, nil
	})
}

// ValidGraph reports whether any configuration of the graph exists.
func (s *Service) ValidGraph(ctx context.Context, r Request) (bool, error) {
	m, err := s.Model(ctx, r)
	if err != nil {
		return false, err
	}
	ok, err := s.engine.ValidGraph(ctx, m)
	return ok, solverErr(err, "valid_graph")
}

// ValidConfig reports whether the package → version name config is part
// of a valid configuration.
func (s *Service) ValidConfig(ctx context.Context, r Request, config map[string]string) (bool, error) {
	m, serials, err := s.pinned(ctx, r, config)
	if err != nil {
		return false, err
	}
	ok, err := s.engine.ValidConfig(ctx, m, serials)
	return ok, solverErr(err, "valid_config")
}

// CompleteConfig extends a partial config with the least impactful
// choices for every other package.
func (s *Service) CompleteConfig(ctx context.Context, r Request, config map[string]string) ([]smt.Config, error) {
	m, serials, err := s.pinned(ctx, r, config)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.CompleteConfig(ctx, m, serials)
	return out, solverErr(err, "complete_config")
}

// MinimizeImpact returns up to limit configurations in ascending risk.
func (s *Service) MinimizeImpact(ctx context.Context, r Request, limit int) ([]smt.Config, error) {
	m, err := s.Model(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.MinimizeImpact(ctx, m, limit)
	return out, solverErr(err, "minimize_impact")
}

// MaximizeImpact returns up to limit configurations in descending risk.
func (s *Service) MaximizeImpact(ctx context.Context, r Request, limit int) ([]smt.Config, error) {
	m, err := s.Model(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.MaximizeImpact(ctx, m, limit)
	return out, solverErr(err, "maximize_impact")
}

// FilterConfigs returns up to limit configurations with risk in [lo, hi].
func (s *Service) FilterConfigs(ctx context.Context, r Request, lo, hi float64, limit int) ([]smt.Config, error) {
	m, err := s.Model(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.FilterConfigs(ctx, m, lo, hi, limit)
	return out, solverErr(err, "filter_configs")
}

// ConfigByImpact returns the configuration whose risk is closest to target.
func (s *Service) ConfigByImpact(ctx context.Context, r Request, target float64) ([]smt.Config, error) {
	m, err := s.Model(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.ConfigByImpact(ctx, m, target)
	return out, solverErr(err, "config_by_impact")
}

// pinned compiles the model and resolves config names to serials.
func (s *Service) pinned(ctx context.Context, r Request, config map[string]string) (*smt.Model, map[string]int, error) {
	if len(config) == 0 {
		return nil, nil, chainerrors.New(chainerrors.ErrCodeInvalidInput, "config must name at least one package")
	}
	m, err := s.Model(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	for p := range config {
		if !m.HasPackage(p) {
			return nil, nil, chainerrors.New(chainerrors.ErrCodeInvalidInput, "package %q is not part of the graph", p)
		}
	}
	serials, err := s.graph.VersionSerials(ctx, m.Ecosystem, config)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil, chainerrors.Wrap(chainerrors.ErrCodeInvalidInput, err, "unknown version in config")
		}
		return nil, nil, classify(err, "resolve config")
	}
	return m, serials, nil
}

// solverErr attaches codes to engine failures. The cached formula is left
// in place whatever the solver answered.
func solverErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, smt.ErrTimeout) {
		return chainerrors.Wrap(chainerrors.ErrCodeSMTTimeout, err, "%s timed out", strings.ReplaceAll(op, "_", " "))
	}
	return classify(err, "%s", op)
}
