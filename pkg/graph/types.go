package graph

import (
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

// RefreshWindow is how long a Package's version list and requirements are
// trusted after its last refresh.
const RefreshWindow = 10 * 24 * time.Hour

// Fresh reports whether moment lies strictly within the refresh window
// before now.
func Fresh(moment, now time.Time) bool {
	if moment.IsZero() {
		return false
	}
	return now.Sub(moment) < RefreshWindow
}

// PackageKey identifies a Package.
type PackageKey struct {
	Ecosystem version.Ecosystem `json:"ecosystem"`
	Name      string            `json:"name"`
}

func (k PackageKey) String() string { return string(k.Ecosystem) + ":" + k.Name }

// Package is a registry package.
//
// Maven packages are named "groupId:artifactId"; GroupID and ArtifactID
// carry the two halves.
type Package struct {
	Ecosystem     version.Ecosystem `json:"ecosystem"`
	Name          string            `json:"name"`
	GroupID       string            `json:"group_id,omitempty"`
	ArtifactID    string            `json:"artifact_id,omitempty"`
	Vendor        string            `json:"vendor,omitempty"`
	RepositoryURL string            `json:"repository_url,omitempty"`
	Moment        time.Time         `json:"moment"`
}

// Key returns the package identity.
func (p *Package) Key() PackageKey { return PackageKey{Ecosystem: p.Ecosystem, Name: p.Name} }

// NewPackage builds a Package, splitting Maven coordinates.
func NewPackage(eco version.Ecosystem, name string) Package {
	p := Package{Ecosystem: eco, Name: name}
	if eco == version.Maven {
		if g, a, ok := strings.Cut(name, ":"); ok {
			p.GroupID, p.ArtifactID = g, a
		}
	}
	return p
}

// Version is one release of a Package.
type Version struct {
	Name            string     `json:"name"`
	Serial          int        `json:"serial_number"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	Vulnerabilities []string   `json:"vulnerabilities"`
	Mean            float64    `json:"mean"`
	WeightedMean    float64    `json:"weighted_mean"`
}

// VersionNode is a stored Version with its store-assigned id, usable as the
// parent of a Requires edge.
type VersionNode struct {
	ID string `json:"id"`
	Version
}

// RequirementFile is a manifest parsed from a repository.
type RequirementFile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Ecosystem version.Ecosystem `json:"ecosystem"`
	Moment    time.Time         `json:"moment"`
}

// Repository is a source repository whose manifests root a graph.
type Repository struct {
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	Moment     time.Time `json:"moment"`
	IsComplete bool      `json:"is_complete"`
	Users      []string  `json:"users,omitempty"`
}

// Requirement is a Requires edge as seen from its source.
type Requirement struct {
	Package       PackageKey `json:"package"`
	Constraints   string     `json:"constraints"`
	ParentVersion string     `json:"parent_version,omitempty"`
}

// Aggregator selects which impact score feeds the SMT objective.
type Aggregator string

const (
	Mean         Aggregator = "mean"
	WeightedMean Aggregator = "weighted_mean"
)

// ParseAggregator accepts "mean" and "weighted_mean"; empty means mean.
func ParseAggregator(s string) (Aggregator, bool) {
	switch Aggregator(s) {
	case "", Mean:
		return Mean, true
	case WeightedMean:
		return WeightedMean, true
	}
	return "", false
}

// Impact returns the score of v under agg.
func (agg Aggregator) Impact(v VersionInfo) float64 {
	if agg == WeightedMean {
		return v.WeightedMean
	}
	return v.Mean
}
