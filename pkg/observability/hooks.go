// Package observability provides hooks for metrics around registry fetches,
// queue processing, graph building and SMT solving.
//
// Libraries call the registered hooks; main decides what receives them.
// The defaults are no-ops, and [Prometheus] forwards every event to
// client_golang collectors.
//
// # Usage
//
//	prom := observability.NewPrometheus()
//	prom.MustRegister(prometheus.DefaultRegisterer)
//	observability.SetRegistryHooks(prom)
//	observability.SetQueueHooks(prom)
//
// Libraries emit events:
//
//	observability.Registry().OnRequest(ctx, "pypi", status, elapsed)
package observability

import (
	"context"
	"sync"
	"time"
)

// RegistryHooks receives events from registry clients.
type RegistryHooks interface {
	OnRequest(ctx context.Context, registry string, statusCode int, duration time.Duration)
	OnRetry(ctx context.Context, registry string, attempt int, err error)
	OnDecodeFailure(ctx context.Context, registry, key string)
	OnCacheHit(ctx context.Context, registry string)
}

// QueueHooks receives events from the work queue consumer.
type QueueHooks interface {
	OnProcessed(ctx context.Context, stream string, duration time.Duration, err error)
	OnDeadLetter(ctx context.Context, stream string)
}

// BuilderHooks receives events from the dependency-graph builder.
type BuilderHooks interface {
	OnPackageCreated(ctx context.Context, ecosystem string, versions int)
	OnPackageRefreshed(ctx context.Context, ecosystem string, newVersions int)
	OnRepositoryComplete(ctx context.Context, owner, name string)
}

// SolverHooks receives events from SMT operations.
type SolverHooks interface {
	OnCheck(ctx context.Context, operation, result string, duration time.Duration)
}

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnRequest(context.Context, string, int, time.Duration) {}
func (NoopRegistryHooks) OnRetry(context.Context, string, int, error)           {}
func (NoopRegistryHooks) OnDecodeFailure(context.Context, string, string)       {}
func (NoopRegistryHooks) OnCacheHit(context.Context, string)                    {}

// NoopQueueHooks is a no-op implementation of QueueHooks.
type NoopQueueHooks struct{}

func (NoopQueueHooks) OnProcessed(context.Context, string, time.Duration, error) {}
func (NoopQueueHooks) OnDeadLetter(context.Context, string)                      {}

// NoopBuilderHooks is a no-op implementation of BuilderHooks.
type NoopBuilderHooks struct{}

func (NoopBuilderHooks) OnPackageCreated(context.Context, string, int)        {}
func (NoopBuilderHooks) OnPackageRefreshed(context.Context, string, int)      {}
func (NoopBuilderHooks) OnRepositoryComplete(context.Context, string, string) {}

// NoopSolverHooks is a no-op implementation of SolverHooks.
type NoopSolverHooks struct{}

func (NoopSolverHooks) OnCheck(context.Context, string, string, time.Duration) {}

var (
	registryHooks RegistryHooks = NoopRegistryHooks{}
	queueHooks    QueueHooks    = NoopQueueHooks{}
	builderHooks  BuilderHooks  = NoopBuilderHooks{}
	solverHooks   SolverHooks   = NoopSolverHooks{}
	hooksMu       sync.RWMutex
)

// SetRegistryHooks registers registry hooks. Nil is ignored.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// SetQueueHooks registers queue hooks. Nil is ignored.
func SetQueueHooks(h QueueHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		queueHooks = h
	}
}

// SetBuilderHooks registers builder hooks. Nil is ignored.
func SetBuilderHooks(h BuilderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		builderHooks = h
	}
}

// SetSolverHooks registers solver hooks. Nil is ignored.
func SetSolverHooks(h SolverHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		solverHooks = h
	}
}

// Registry returns the registered registry hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Queue returns the registered queue hooks.
func Queue() QueueHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return queueHooks
}

// Builder returns the registered builder hooks.
func Builder() BuilderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return builderHooks
}

// Solver returns the registered solver hooks.
func Solver() SolverHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return solverHooks
}

// SetAll registers p for every hook category.
func SetAll(p *Prometheus) {
	SetRegistryHooks(p)
	SetQueueHooks(p)
	SetBuilderHooks(p)
	SetSolverHooks(p)
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	registryHooks = NoopRegistryHooks{}
	queueHooks = NoopQueueHooks{}
	builderHooks = NoopBuilderHooks{}
	solverHooks = NoopSolverHooks{}
}
