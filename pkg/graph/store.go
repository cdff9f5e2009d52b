package graph

import (
	"context"
	"errors"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

var (
	// ErrNotFound is returned when a node looked up by identity does not exist.
	ErrNotFound = errors.New("graph: not found")

	// ErrMemoryExhausted is returned when the store ran out of memory or a
	// read transaction exceeded its timeout.
	ErrMemoryExhausted = errors.New("graph: memory exhausted")
)

// RootKind names the node kind a subgraph read starts from.
type RootKind string

const (
	RootFile    RootKind = "RequirementFile"
	RootPackage RootKind = "Package"
	RootVersion RootKind = "Version"
)

// Root identifies the start node of a subgraph read.
type Root struct {
	Kind    RootKind   `json:"node_type"`
	FileID  string     `json:"file_id,omitempty"`
	Package PackageKey `json:"package,omitzero"`
	Version string     `json:"version,omitempty"`
}

// FileRoot roots a read at a RequirementFile.
func FileRoot(id string) Root { return Root{Kind: RootFile, FileID: id} }

// PackageRoot roots a read at a Package.
func PackageRoot(eco version.Ecosystem, name string) Root {
	return Root{Kind: RootPackage, Package: PackageKey{Ecosystem: eco, Name: name}}
}

// VersionRoot roots a read at one Version of a Package.
func VersionRoot(eco version.Ecosystem, name, ver string) Root {
	return Root{Kind: RootVersion, Package: PackageKey{Ecosystem: eco, Name: name}, Version: ver}
}

// ID returns a stable textual id, used as the SMT objective suffix and in
// cache keys.
func (r Root) ID() string {
	switch r.Kind {
	case RootFile:
		return r.FileID
	case RootVersion:
		return r.Package.String() + "@" + r.Version
	default:
		return r.Package.String()
	}
}

// Store is the typed interface over the labeled property graph.
//
// Writes merge on identity: creating an existing Package, Repository or
// Requires edge is not an error. Reads return collections sorted so that
// formulas built from them are deterministic.
type Store interface {
	// GetPackage returns the Package or ErrNotFound.
	GetPackage(ctx context.Context, key PackageKey) (*Package, error)
	// CreatePackage merges pkg and, if it was newly created, its versions.
	// created is false when another writer created the Package first.
	CreatePackage(ctx context.Context, pkg Package, versions []Version) (created bool, err error)
	// UpdatePackage sets moment, vendor and repository URL.
	UpdatePackage(ctx context.Context, pkg Package) error
	// AddVersions appends versions to an existing Package.
	AddVersions(ctx context.Context, key PackageKey, versions []Version) error
	// UpdateSerials rewrites serial numbers by version name.
	UpdateSerials(ctx context.Context, key PackageKey, serials map[string]int) error
	// Versions returns the Package's versions in serial order.
	Versions(ctx context.Context, key PackageKey) ([]VersionNode, error)

	// Relate merges a Requires edge from parentID (a RequirementFile or
	// VersionNode id) to the Package, updating its constraints.
	Relate(ctx context.Context, parentID string, req Requirement) error
	// Unrelate deletes the Requires edge from parentID to key.
	Unrelate(ctx context.Context, parentID string, key PackageKey) error
	// Requirements returns the Requires edges out of parentID, sorted by
	// package name.
	Requirements(ctx context.Context, parentID string) ([]Requirement, error)

	// GetRepository returns the Repository or ErrNotFound.
	GetRepository(ctx context.Context, owner, name string) (*Repository, error)
	// CreateRepository merges repo.
	CreateRepository(ctx context.Context, repo Repository) error
	// UpdateRepository sets is_complete and moment.
	UpdateRepository(ctx context.Context, owner, name string, complete bool, moment time.Time) error
	// AddRepositoryUser links userID to the Repository.
	AddRepositoryUser(ctx context.Context, owner, name, userID string) error

	// CreateRequirementFile adds f under the Repository and returns its id.
	CreateRequirementFile(ctx context.Context, owner, name string, f RequirementFile) (string, error)
	// RequirementFiles returns the Repository's files sorted by name.
	RequirementFiles(ctx context.Context, owner, name string) ([]RequirementFile, error)
	// GetRequirementFile returns the file or ErrNotFound.
	GetRequirementFile(ctx context.Context, id string) (*RequirementFile, error)
	// DeleteRequirementFile removes the file and its Requires edges.
	DeleteRequirementFile(ctx context.Context, id string) error
	// ReachablePackages returns every Package reachable from the
	// Repository's files, sorted by key.
	ReachablePackages(ctx context.Context, owner, name string) ([]Package, error)

	// Subgraph reads everything reachable from root within maxDepth
	// package hops.
	Subgraph(ctx context.Context, root Root, maxDepth int) (*Subgraph, error)
	// VersionNames resolves package → serial to package → version name.
	VersionNames(ctx context.Context, eco version.Ecosystem, serials map[string]int) (map[string]string, error)
	// VersionSerials resolves package → version name to package → serial.
	// Unknown names are reported with ErrNotFound.
	VersionSerials(ctx context.Context, eco version.Ecosystem, names map[string]string) (map[string]int, error)

	Close(ctx context.Context) error
}
