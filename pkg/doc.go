// Package pkg provides the core libraries of chainsat, a supply-chain
// dependency graph builder with an SMT reasoning engine on top.
//
// # Overview
//
// chainsat resolves the dependencies of GitHub repositories and registry
// packages into a labeled property graph, attributes known vulnerabilities
// to every version, and compiles any subgraph into an SMT formula whose
// models are consistent version configurations. The pkg directory is
// organized into these areas:
//
//  1. [graph] - Graph model, store contract and backends (memory, Neo4j)
//  2. [builder] - Repository and package builds, queue workers
//  3. [smt] - Formula translation, solver backends and operations
//  4. [operation] - Cached info summaries and SMT operations over roots
//  5. [integrations] - Registry clients (PyPI, npm, Maven, NuGet, crates.io, RubyGems, GitHub)
//  6. Infrastructure: [cache], [queue], [docstore], [config], [observability]
//
// # Architecture
//
// The typical data flow through chainsat:
//
//	GitHub repository / registry package
//	         ↓
//	    [manifest] package (requirement files → requirements)
//	         ↓
//	    [queue] + [builder] (fetch versions, serialize, attribute advisories)
//	         ↓
//	    [graph] store (Package, Version, RequirementFile, Repository)
//	         ↓
//	    [smt] package (subgraph → formula → solver)
//	         ↓
//	    configurations, impact scores, summaries
//
// # Quick Start
//
//	store := memgraph.New()
//	engine := smt.NewEngine(smt.NewEnum(), store)
//	ops := operation.New(store, docstore.NewMemoryStore(), engine)
//
//	configs, err := ops.MinimizeImpact(ctx, operation.Request{
//	    Root:     graph.FileRoot(fileID),
//	    MaxDepth: 3,
//	}, 1)
//
// # Versions
//
// Each ecosystem's version scheme lives behind [version.Algebra]: PEP 440
// for PyPI, SemVer for npm and Cargo, NuGet's four-part versions, Maven's
// ComparableVersion and RubyGems' Gem::Version. Versions are stored with a serial number in
// ascending order, which is what the formulas constrain.
//
// [graph]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/graph
// [builder]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/builder
// [smt]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/smt
// [operation]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/operation
// [integrations]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/integrations
// [cache]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/cache
// [queue]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/queue
// [docstore]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/docstore
// [config]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/config
// [observability]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/observability
// [manifest]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/manifest
// [version.Algebra]: https://pkg.go.dev/github.com/matzehuels/chainsat/pkg/version#Algebra
package pkg
