// Package builder grows the dependency graph.
//
// A repository build parses the repository's manifests, records one
// RequirementFile per manifest and dispatches every declared package.
// Package work runs on queue workers: a message either relates an already
// fresh Package to its parent, refreshes a stale one with the versions
// published since, or creates a new one with all its versions. Each new
// version's requirements are dispatched in turn, so the graph grows
// breadth-first until the queue drains.
//
// Cross-worker consistency relies only on the store merging on identity;
// the builder holds no locks. A Package refreshed less than
// [graph.RefreshWindow] ago is trusted as is.
package builder

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/integrations/registries"
	"github.com/matzehuels/chainsat/pkg/manifest"
	"github.com/matzehuels/chainsat/pkg/queue"
	"github.com/matzehuels/chainsat/pkg/vuln"
)

const (
	// DefaultPollInterval is how often a waiting build checks the queue.
	DefaultPollInterval = time.Second
	// completionRounds bounds how often a build re-dispatches stale
	// packages before giving up on completeness.
	completionRounds = 3
)

// Builder runs repository builds and package work against one store and
// queue.
type Builder struct {
	store      graph.Store
	queue      queue.Queue
	registries registries.Set
	attributor *vuln.Attributor
	source     manifest.Source
	parsers    []manifest.Parser

	logger *log.Logger
	now    func() time.Time
	poll   time.Duration
	stream string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithPollInterval sets how often a waiting build checks the queue.
func WithPollInterval(d time.Duration) Option {
	return func(b *Builder) { b.poll = d }
}

// WithSource sets the repository manifest source.
func WithSource(s manifest.Source) Option {
	return func(b *Builder) { b.source = s }
}

// WithParsers replaces the manifest parsers.
func WithParsers(p []manifest.Parser) Option {
	return func(b *Builder) { b.parsers = p }
}

// WithStream names the queue in metrics.
func WithStream(name string) Option {
	return func(b *Builder) { b.stream = name }
}

// New returns a builder. attributor may be nil, in which case versions
// carry no vulnerabilities.
func New(store graph.Store, q queue.Queue, regs registries.Set, attributor *vuln.Attributor, opts ...Option) *Builder {
	b := &Builder{
		store:      store,
		queue:      q,
		registries: regs,
		attributor: attributor,
		parsers:    manifest.Parsers(nil),
		logger:     log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true}),
		now:        time.Now,
		poll:       DefaultPollInterval,
		stream:     queue.DefaultStream,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) clock() time.Time { return b.now().UTC() }

func (b *Builder) registry(key graph.PackageKey) (integrations.Registry, error) {
	return b.registries.For(key.Ecosystem)
}

// Wait blocks until the queue has neither waiting nor pending entries.
func (b *Builder) Wait(ctx context.Context) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		drained, err := b.queue.Drained(ctx)
		if err != nil {
			return err
		}
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
