// Package integrations provides HTTP clients for package registry APIs.
//
// # Overview
//
// This package contains low-level API clients for fetching version lists
// and per-version requirements from the supported registries. Each registry
// has its own subpackage:
//
//   - [pypi]: Python Package Index
//   - [npm]: Node Package Manager
//   - [maven]: Maven Central
//   - [nuget]: NuGet Gallery
//   - [crates]: Rust crates.io
//   - [rubygems]: Ruby gems
//   - [github]: GitHub API for repository metadata
//
// The [registries] subpackage builds one client per ecosystem from a shared
// cache backend.
//
// # Client Pattern
//
// All registry clients implement [Registry]:
//
//	client := pypi.NewClient(backend, 24*time.Hour)
//	pkg, err := client.GetVersions(ctx, "requests", false)
//	reqs, err := client.GetRequirement(ctx, "requests", "2.31.0")
//
// # Fault Policy
//
// The shared [Client] applies one fault policy to every registry:
//
//   - Transport errors, 429 and 5xx responses are retried forever with a
//     fixed delay. Only context cancellation ends the loop.
//   - 404 responses yield [ErrNotFound]; registry clients turn this into an
//     empty result.
//   - Undecodable payloads yield [ErrDecode] and the cache stores
//     [DecodeSentinel] for the key so the payload is not refetched until the
//     entry expires.
//
// # Shared Infrastructure
//
// [Serialize] assigns serial numbers with the ecosystem's version algebra,
// [NormalizeRepoURL] and [FirstRepoURL] canonicalize repository links, and
// [Requirements.Merge] combines duplicate dependency constraints.
//
// [pypi]: github.com/matzehuels/chainsat/pkg/integrations/pypi
// [npm]: github.com/matzehuels/chainsat/pkg/integrations/npm
// [maven]: github.com/matzehuels/chainsat/pkg/integrations/maven
// [nuget]: github.com/matzehuels/chainsat/pkg/integrations/nuget
// [crates]: github.com/matzehuels/chainsat/pkg/integrations/crates
// [rubygems]: github.com/matzehuels/chainsat/pkg/integrations/rubygems
// [github]: github.com/matzehuels/chainsat/pkg/integrations/github
// [registries]: github.com/matzehuels/chainsat/pkg/integrations/registries
package integrations
