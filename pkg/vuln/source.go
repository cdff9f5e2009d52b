package vuln

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/chainsat/pkg/version"
)

// Source looks up advisories that mention a package.
type Source interface {
	ForPackage(ctx context.Context, eco version.Ecosystem, pkg string) ([]Advisory, error)
}

// Store is a Source that also accepts imported advisories.
type Store interface {
	Source
	Upsert(ctx context.Context, advisories []Advisory) (int, error)
}

// MemorySource keeps advisories in process.
type MemorySource struct {
	mu   sync.RWMutex
	byID map[string]Advisory
}

// NewMemorySource returns a source holding advisories.
func NewMemorySource(advisories ...Advisory) *MemorySource {
	m := &MemorySource{byID: make(map[string]Advisory)}
	for _, a := range advisories {
		m.byID[a.ID] = a
	}
	return m
}

func (m *MemorySource) ForPackage(_ context.Context, eco version.Ecosystem, pkg string) ([]Advisory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Advisory
	for _, a := range m.byID {
		if slices.ContainsFunc(a.Affected, func(af Affected) bool { return af.appliesTo(eco, pkg) }) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Advisory) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemorySource) Upsert(_ context.Context, advisories []Advisory) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range advisories {
		m.byID[a.ID] = a
	}
	return len(advisories), nil
}

var _ Store = (*MemorySource)(nil)
