package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements every hook interface on client_golang collectors.
type Prometheus struct {
	registryRequests   *prometheus.CounterVec
	registryDuration   *prometheus.HistogramVec
	registryRetries    *prometheus.CounterVec
	registryDecodeFail *prometheus.CounterVec
	registryCacheHits  *prometheus.CounterVec

	queueProcessed   *prometheus.CounterVec
	queueDuration    *prometheus.HistogramVec
	queueDeadLetters *prometheus.CounterVec

	packagesCreated      *prometheus.CounterVec
	packagesRefreshed    *prometheus.CounterVec
	versionsCreated      *prometheus.CounterVec
	repositoriesComplete prometheus.Counter

	solverChecks   *prometheus.CounterVec
	solverDuration *prometheus.HistogramVec
}

// NewPrometheus builds the collectors. Call [Prometheus.MustRegister]
// before serving them.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		registryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_registry_requests_total",
			Help: "Registry HTTP requests by registry and status code.",
		}, []string{"registry", "code"}),
		registryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainsat_registry_request_duration_seconds",
			Help:    "Registry HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"registry"}),
		registryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_registry_retries_total",
			Help: "Registry requests retried after a transport failure.",
		}, []string{"registry"}),
		registryDecodeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_registry_decode_failures_total",
			Help: "Registry payloads that could not be decoded.",
		}, []string{"registry"}),
		registryCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_registry_cache_hits_total",
			Help: "Registry lookups served from cache.",
		}, []string{"registry"}),

		queueProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_queue_processed_total",
			Help: "Queue messages processed by outcome.",
		}, []string{"stream", "outcome"}),
		queueDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainsat_queue_message_duration_seconds",
			Help:    "Time spent processing one queue message.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stream"}),
		queueDeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_queue_dead_letters_total",
			Help: "Messages moved to the dead-letter stream.",
		}, []string{"stream"}),

		packagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_builder_packages_created_total",
			Help: "Packages created in the graph store.",
		}, []string{"ecosystem"}),
		packagesRefreshed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_builder_packages_refreshed_total",
			Help: "Stale packages refreshed from the registry.",
		}, []string{"ecosystem"}),
		versionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_builder_versions_created_total",
			Help: "Versions written to the graph store.",
		}, []string{"ecosystem"}),
		repositoriesComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainsat_builder_repositories_complete_total",
			Help: "Repository builds that reached is_complete.",
		}),

		solverChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsat_solver_checks_total",
			Help: "Solver checks by operation and result (sat, unsat, unknown).",
		}, []string{"operation", "result"}),
		solverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainsat_solver_check_duration_seconds",
			Help:    "Solver check latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// MustRegister registers all collectors with reg.
func (p *Prometheus) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		p.registryRequests, p.registryDuration, p.registryRetries,
		p.registryDecodeFail, p.registryCacheHits,
		p.queueProcessed, p.queueDuration, p.queueDeadLetters,
		p.packagesCreated, p.packagesRefreshed, p.versionsCreated,
		p.repositoriesComplete,
		p.solverChecks, p.solverDuration,
	)
}

// Handler serves the metrics of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) OnRequest(_ context.Context, registry string, code int, d time.Duration) {
	p.registryRequests.WithLabelValues(registry, strconv.Itoa(code)).Inc()
	p.registryDuration.WithLabelValues(registry).Observe(d.Seconds())
}

func (p *Prometheus) OnRetry(_ context.Context, registry string, _ int, _ error) {
	p.registryRetries.WithLabelValues(registry).Inc()
}

func (p *Prometheus) OnDecodeFailure(_ context.Context, registry, _ string) {
	p.registryDecodeFail.WithLabelValues(registry).Inc()
}

func (p *Prometheus) OnCacheHit(_ context.Context, registry string) {
	p.registryCacheHits.WithLabelValues(registry).Inc()
}

func (p *Prometheus) OnProcessed(_ context.Context, stream string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.queueProcessed.WithLabelValues(stream, outcome).Inc()
	p.queueDuration.WithLabelValues(stream).Observe(d.Seconds())
}

func (p *Prometheus) OnDeadLetter(_ context.Context, stream string) {
	p.queueDeadLetters.WithLabelValues(stream).Inc()
}

func (p *Prometheus) OnPackageCreated(_ context.Context, ecosystem string, versions int) {
	p.packagesCreated.WithLabelValues(ecosystem).Inc()
	p.versionsCreated.WithLabelValues(ecosystem).Add(float64(versions))
}

func (p *Prometheus) OnPackageRefreshed(_ context.Context, ecosystem string, newVersions int) {
	p.packagesRefreshed.WithLabelValues(ecosystem).Inc()
	p.versionsCreated.WithLabelValues(ecosystem).Add(float64(newVersions))
}

func (p *Prometheus) OnRepositoryComplete(context.Context, string, string) {
	p.repositoriesComplete.Inc()
}

func (p *Prometheus) OnCheck(_ context.Context, operation, result string, d time.Duration) {
	p.solverChecks.WithLabelValues(operation, result).Inc()
	p.solverDuration.WithLabelValues(operation).Observe(d.Seconds())
}

var (
	_ RegistryHooks = (*Prometheus)(nil)
	_ QueueHooks    = (*Prometheus)(nil)
	_ BuilderHooks  = (*Prometheus)(nil)
	_ SolverHooks   = (*Prometheus)(nil)
)
