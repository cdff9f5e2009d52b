// Package graph defines the dependency graph domain model and the store
// interface shared by the builder, the SMT translator and the info
// operations.
//
// # Model
//
// The graph has four node kinds and two edge kinds:
//
//   - [Package]: identity (ecosystem, name); owns Versions through Have edges
//   - [Version]: identity (package, name); carries the serial number and
//     vulnerability attribution
//   - [RequirementFile]: a parsed manifest; owned by a [Repository]
//   - [Repository]: identity (owner, name); is_complete flag and moment
//   - Requires: RequirementFile or Version → Package, labeled with the
//     constraint string and, from a Version, the parent version name
//   - Have: Package → Version
//
// # Stores
//
// [Store] is implemented by [memgraph.Store] (an in-process arena used by
// tests and standalone runs) and [neo4jstore.Store]. Both merge on identity
// so concurrent workers creating the same Package converge on one node.
//
// # Subgraphs
//
// [Store.Subgraph] reads everything reachable from a [Root] within a
// package-hop bound and returns it as a [Subgraph]: direct requirements of
// the root, indirect requirements out of reachable Versions, and the
// version table of every reachable Package. The SMT translator and the info
// operations both consume this shape.
//
// [memgraph.Store]: github.com/matzehuels/chainsat/pkg/graph/memgraph
// [neo4jstore.Store]: github.com/matzehuels/chainsat/pkg/graph/neo4jstore
package graph
