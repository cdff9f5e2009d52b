// Package registries builds the registry client for every supported
// ecosystem from one cache backend.
package registries

import (
	"fmt"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/integrations/crates"
	"github.com/matzehuels/chainsat/pkg/integrations/maven"
	"github.com/matzehuels/chainsat/pkg/integrations/npm"
	"github.com/matzehuels/chainsat/pkg/integrations/nuget"
	"github.com/matzehuels/chainsat/pkg/integrations/pypi"
	"github.com/matzehuels/chainsat/pkg/integrations/rubygems"
	"github.com/matzehuels/chainsat/pkg/version"
)

// Set maps each ecosystem to its registry client.
type Set map[version.Ecosystem]integrations.Registry

// New creates one client per ecosystem sharing backend. markers filters
// PyPI requirements by environment marker and may be nil.
func New(backend cache.Cache, ttl time.Duration, markers *version.Markers, opts ...integrations.Option) Set {
	return Set{
		version.PyPI:     pypi.NewClient(backend, ttl, markers, opts...),
		version.NPM:      npm.NewClient(backend, ttl, opts...),
		version.Maven:    maven.NewClient(backend, ttl, opts...),
		version.NuGet:    nuget.NewClient(backend, ttl, opts...),
		version.Cargo:    crates.NewClient(backend, ttl, opts...),
		version.RubyGems: rubygems.NewClient(backend, ttl, opts...),
	}
}

// For returns the client for eco.
func (s Set) For(eco version.Ecosystem) (integrations.Registry, error) {
	r, ok := s[eco]
	if !ok {
		return nil, fmt.Errorf("no registry for ecosystem %q", eco)
	}
	return r, nil
}
