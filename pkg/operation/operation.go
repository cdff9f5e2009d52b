// Package operation serves the read side of chainsat: graph info summaries
// and the SMT reasoning operations, both cached in the document store.
//
// Every operation first reads the root's subgraph. A cached document is
// used only when it was computed strictly after the subgraph's moment, so
// refreshing any reachable Package invalidates everything built on it.
// Concurrent identical requests share one computation.
package operation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/chainsat/pkg/docstore"
	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/smt"
	"github.com/matzehuels/chainsat/pkg/version"
)

// Service runs operations against one graph store and document store.
type Service struct {
	graph  graph.Store
	docs   docstore.Store
	engine *smt.Engine
	logger *log.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for cache moments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. engine decides SMT queries; it should resolve
// serials through the same graph store.
func New(store graph.Store, docs docstore.Store, engine *smt.Engine, opts ...Option) *Service {
	s := &Service{
		graph:  store,
		docs:   docs,
		engine: engine,
		logger: log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true}),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// ValidateRoot checks that root names a well-formed node.
func ValidateRoot(root graph.Root) error {
	switch root.Kind {
	case graph.RootFile:
		if strings.TrimSpace(root.FileID) == "" {
			return chainerrors.New(chainerrors.ErrCodeInvalidInput, "requirement file id is required")
		}
		return nil
	case graph.RootPackage, graph.RootVersion:
		if _, err := version.ParseEcosystem(string(root.Package.Ecosystem)); err != nil {
			return chainerrors.Wrap(chainerrors.ErrCodeInvalidEcosystem, err, "invalid ecosystem")
		}
		if err := chainerrors.ValidatePackageName(root.Package.Name); err != nil {
			return err
		}
		if root.Kind == graph.RootVersion && strings.TrimSpace(root.Version) == "" {
			return chainerrors.New(chainerrors.ErrCodeInvalidInput, "version name is required")
		}
		return nil
	default:
		return chainerrors.New(chainerrors.ErrCodeInvalidInput, "unknown node type %q", root.Kind)
	}
}

// subgraph reads the root's neighbourhood and attaches codes to store
// failures.
func (s *Service) subgraph(ctx context.Context, root graph.Root, maxDepth int) (*graph.Subgraph, error) {
	sub, err := s.graph.Subgraph(ctx, root, maxDepth)
	if err != nil {
		return nil, classify(err, "read subgraph %s", root.ID())
	}
	return sub, nil
}

// classify maps store and solver sentinels to coded errors.
func classify(err error, format string, args ...any) error {
	var coded *chainerrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, graph.ErrNotFound):
		return chainerrors.Wrap(chainerrors.ErrCodeNotFound, err, format, args...)
	case errors.Is(err, graph.ErrMemoryExhausted), errors.Is(err, context.DeadlineExceeded):
		return chainerrors.Wrap(chainerrors.ErrCodeMemoryExhausted, err, format, args...)
	case errors.Is(err, smt.ErrTimeout):
		return chainerrors.Wrap(chainerrors.ErrCodeSMTTimeout, err, format, args...)
	default:
		return chainerrors.Wrap(chainerrors.ErrCodeInternal, err, format, args...)
	}
}

// cacheKey joins the parts identifying a cached document.
func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// rootKey renders (node_type, subject[, version], max_depth).
func rootKey(root graph.Root, maxDepth int) []string {
	switch root.Kind {
	case graph.RootFile:
		return []string{string(root.Kind), root.FileID, strconv.Itoa(maxDepth)}
	case graph.RootVersion:
		return []string{string(root.Kind), root.Package.String(), root.Version, strconv.Itoa(maxDepth)}
	default:
		return []string{string(root.Kind), root.Package.String(), strconv.Itoa(maxDepth)}
	}
}

// lookup returns the cached entry under key if it is fresh for moment.
// Cache failures are logged and treated as misses.
func (s *Service) lookup(ctx context.Context, coll docstore.Collection, key string, moment time.Time) *docstore.Entry {
	e, err := s.docs.Get(ctx, coll, key)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("cache read failed", "collection", coll, "key", key, "err", err)
		}
		return nil
	}
	if !e.Fresh(moment) {
		return nil
	}
	return e
}

func (s *Service) store(ctx context.Context, coll docstore.Collection, key, value string) {
	err := s.docs.Put(ctx, coll, docstore.Entry{Key: key, Value: value, Moment: s.clock()})
	if err != nil {
		s.logger.Warn("cache write failed", "collection", coll, "key", key, "err", err)
	}
}

// shared runs fn once per key across concurrent callers.
func shared[T any](s *Service, key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.group.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("operation %s: unexpected result %T", key, v)
	}
	return out, nil
}

// ClearCaches drops every cached formula and operation result.
func (s *Service) ClearCaches(ctx context.Context) (int, error) {
	total := 0
	for _, coll := range []docstore.Collection{docstore.SMTText, docstore.Operations} {
		n, err := s.docs.Clear(ctx, coll)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
