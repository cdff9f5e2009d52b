package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/chainsat/pkg/builder"
	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/config"
	"github.com/matzehuels/chainsat/pkg/docstore"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/graph/memgraph"
	"github.com/matzehuels/chainsat/pkg/graph/neo4jstore"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/integrations/github"
	"github.com/matzehuels/chainsat/pkg/integrations/registries"
	"github.com/matzehuels/chainsat/pkg/manifest"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/operation"
	"github.com/matzehuels/chainsat/pkg/queue"
	"github.com/matzehuels/chainsat/pkg/smt"
	"github.com/matzehuels/chainsat/pkg/version"
	"github.com/matzehuels/chainsat/pkg/vuln"
)

// App is every collaborator a command may need, built from one
// configuration.
type App struct {
	Config     config.Config
	Logger     *log.Logger
	Graph      graph.Store
	Docs       docstore.Store
	Queue      queue.Queue
	Cache      cache.Cache
	Advisories vuln.Store
	GitHub     *github.Client
	Builder    *builder.Builder
	Ops        *operation.Service
	Metrics    *prometheus.Registry

	closers []func(context.Context) error
}

// openApp connects every backend named by cfg. On error, whatever was
// already opened is closed again.
func openApp(ctx context.Context, cfg config.Config, logger *log.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if err := a.openGraph(ctx); err != nil {
		return nil, err
	}
	if err := a.openDocs(ctx); err != nil {
		return nil, err
	}
	if err := a.openQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		return nil, err
	}

	markers, err := version.NewMarkers(cfg.Registry.PythonFloor)
	if err != nil {
		return nil, fmt.Errorf("python floor: %w", err)
	}
	ttl := cfg.Registry.CacheTTL.Duration
	keyer := cache.NewDefaultKeyer()
	if cfg.Queue.Backend == config.BackendRedis {
		keyer = cache.NewScopedKeyer(keyer, cfg.Queue.Stream+":")
	}
	clientOpts := []integrations.Option{integrations.WithLogger(logger), integrations.WithKeyer(keyer)}
	regs := registries.New(a.Cache, ttl, markers, clientOpts...)
	a.GitHub = github.NewClient(a.Cache, cfg.Registry.GitHubToken, ttl, clientOpts...)

	parsers := manifest.Parsers(markers)
	a.Builder = builder.New(a.Graph, a.Queue, regs, vuln.NewAttributor(a.Advisories),
		builder.WithLogger(logger),
		builder.WithSource(manifest.NewGitSource(cfg.Registry.GitHubToken, parsers)),
		builder.WithParsers(parsers),
		builder.WithStream(cfg.Queue.Stream),
	)

	engine := smt.NewEngine(a.solver(), a.Graph, smt.WithTimeout(cfg.SMT.Timeout.Duration))
	a.Ops = operation.New(a.Graph, a.Docs, engine, operation.WithLogger(logger))

	a.Metrics = prometheus.NewRegistry()
	p := observability.NewPrometheus()
	p.MustRegister(a.Metrics)
	observability.SetAll(p)
	a.closers = append(a.closers, func(context.Context) error {
		observability.Reset()
		return nil
	})
	return a, nil
}

func (a *App) openGraph(ctx context.Context) error {
	cfg := a.Config.Graph
	switch cfg.Backend {
	case config.BackendNeo4j:
		s, err := neo4jstore.New(ctx, neo4jstore.Config{
			URI:       cfg.URI,
			User:      cfg.User,
			Password:  cfg.Password,
			Database:  cfg.Database,
			TxTimeout: cfg.TxTimeout.Duration,
		})
		if err != nil {
			return err
		}
		a.Graph = s
	default:
		a.Graph = memgraph.New()
	}
	a.closers = append(a.closers, a.Graph.Close)
	return nil
}

// openDocs opens the document store. Advisories live next to the documents
// when that store is MongoDB and in process otherwise.
func (a *App) openDocs(ctx context.Context) error {
	cfg := a.Config.Docs
	a.Advisories = vuln.NewMemorySource()
	switch cfg.Backend {
	case config.BackendMongo:
		s, err := docstore.ConnectMongo(ctx, cfg.URI, cfg.Database)
		if err != nil {
			return err
		}
		a.Docs = s
		a.closers = append(a.closers, s.Close)
		adv, err := vuln.NewMongoSource(ctx, s.Database())
		if err != nil {
			return err
		}
		a.Advisories = adv
		return nil
	case config.BackendSQLite:
		s, err := docstore.OpenSQLite(cfg.Path)
		if err != nil {
			return err
		}
		a.Docs = s
	default:
		a.Docs = docstore.NewMemoryStore()
	}
	a.closers = append(a.closers, a.Docs.Close)
	return nil
}

func (a *App) openQueue(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		host, _ := os.Hostname()
		q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Queue.Stream,
			Group:    cfg.Queue.Group,
			Consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
		})
		if err != nil {
			return err
		}
		a.Queue = q
	default:
		a.Queue = queue.NewMemoryQueue()
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Queue.Close() })
	return nil
}

// openCache shares registry responses through Redis when the queue does,
// so every worker sees the same cache; otherwise it uses the local disk.
func (a *App) openCache(ctx context.Context) error {
	cfg := a.Config
	if cfg.Queue.Backend == config.BackendRedis {
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Cache = c
	} else {
		c, err := newFileCache(cfg)
		if err != nil {
			return err
		}
		a.Cache = c
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Cache.Close() })
	return nil
}

func newFileCache(cfg config.Config) (cache.Cache, error) {
	dir, err := httpCacheDir(cfg)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// solver picks the configured backend. A missing z3 binary falls back to
// enumeration with a warning.
func (a *App) solver() smt.Solver {
	if a.Config.SMT.Solver == config.SolverEnum {
		return smt.NewEnum()
	}
	z := smt.NewZ3(a.Config.SMT.Z3Path)
	if !z.Available() {
		a.Logger.Warn("z3 not found, using enumeration solver", "path", a.Config.SMT.Z3Path)
		return smt.NewEnum()
	}
	return z
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// runWorkers consumes the queue with n in-process workers until ctx ends.
func (a *App) runWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		go func() {
			_ = a.Builder.Run(ctx, 10, 2*time.Second)
		}()
	}
}

// commitDater reads a repository's latest push time from GitHub.
type commitDater struct {
	gh *github.Client
}

func (d commitDater) LastCommit(ctx context.Context, owner, name string) (time.Time, error) {
	info, err := d.gh.Repository(ctx, owner, name, true)
	if err != nil {
		return time.Time{}, err
	}
	return info.LastCommitDate(), nil
}

// app loads the configuration and opens the backends for one command.
func (c *CLI) app(ctx context.Context) (*App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cfg, c.Logger)
}
