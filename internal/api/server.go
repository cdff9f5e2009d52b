// Package api serves chainsat over HTTP.
//
// Graph endpoints dispatch repository and package builds; operation
// endpoints run the info summaries and SMT reasoning operations. Every
// route except /health and /metrics requires an X-API-Key header.
package api

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/chainsat/pkg/builder"
	"github.com/matzehuels/chainsat/pkg/docstore"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/operation"
)

// CommitDater looks up the head commit date of a repository.
type CommitDater interface {
	LastCommit(ctx context.Context, owner, name string) (time.Time, error)
}

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	builder  *builder.Builder
	ops      *operation.Service
	graph    graph.Store
	docs     docstore.Store
	commits  CommitDater
	gatherer prometheus.Gatherer
	logger   *log.Logger
	now      func() time.Time

	// background is the parent of repository completions, which outlive
	// the request that started them. Shutdown cancels it and waits for
	// jobs.
	background context.Context
	cancel     context.CancelFunc
	jobs       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCommitDater sets the source of repository commit dates. Without one
// the date of the cloned head commit is used.
func WithCommitDater(c CommitDater) Option {
	return func(s *Server) { s.commits = c }
}

// WithGatherer exposes the given metrics at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithClock replaces time.Now for API key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBackground sets the context repository completions run under.
func WithBackground(ctx context.Context) Option {
	return func(s *Server) { s.background = ctx }
}

// New returns a Server.
func New(b *builder.Builder, ops *operation.Service, store graph.Store, docs docstore.Store, opts ...Option) *Server {
	s := &Server{
		builder:    b,
		ops:        ops,
		graph:      store,
		docs:       docs,
		gatherer:   prometheus.DefaultGatherer,
		logger:     log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true}),
		now:        time.Now,
		background: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	s.background, s.cancel = context.WithCancel(s.background)
	return s
}

// goBackground runs fn under the background context, tracked by Shutdown.
func (s *Server) goBackground(fn func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		fn(s.background)
	}()
}

// Shutdown cancels background repository completions and waits for them
// to return, or for ctx to expire. Interrupted repositories stay
// incomplete and are rebuilt on their next dispatch.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", observability.Handler(s.gatherer))

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/graph", func(r chi.Router) {
			r.Post("/repository", s.initRepository)
			r.Get("/repository/{owner}/{name}", s.getRepository)
			r.Post("/package", s.initPackage)
		})
		r.Route("/operation", func(r chi.Router) {
			r.Post("/ssc/{op}", s.infoOperation)
			r.Post("/smt/{op}", s.smtOperation)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err == nil {
		err = srv.Shutdown(shutdown)
	}
	if berr := s.Shutdown(shutdown); berr != nil {
		s.logger.Warn("background builds still running", "err", berr)
	}
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type ctxKey struct{}

// authenticate checks X-API-Key and stores the key's user id in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-API-Key")
		if secret == "" {
			writeError(w, s.logger, authError(nil))
			return
		}
		key, err := docstore.Authenticate(r.Context(), s.docs, secret, s.now())
		if err != nil {
			writeError(w, s.logger, authError(err))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, key.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user of the request.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
