package graph

import (
	"cmp"
	"slices"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

// DirectRequire is a Requires edge out of the root.
type DirectRequire struct {
	Package     string `json:"package"`
	Constraints string `json:"constraints"`
}

// IndirectRequire is a Requires edge out of a reachable Version.
type IndirectRequire struct {
	Package       string `json:"package"`
	Constraints   string `json:"constraints"`
	ParentPackage string `json:"parent_package"`
	ParentVersion string `json:"parent_version_name"`
	ParentSerial  int    `json:"parent_serial_number"`
}

// VersionInfo is one row of a Package's version table.
type VersionInfo struct {
	Name            string   `json:"name"`
	Serial          int      `json:"serial_number"`
	Mean            float64  `json:"mean"`
	WeightedMean    float64  `json:"weighted_mean"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty"`
}

// Subgraph is the bounded neighbourhood of a root, grouped by edge kind.
type Subgraph struct {
	Root      Root                     `json:"root"`
	Ecosystem version.Ecosystem        `json:"ecosystem"`
	Direct    []DirectRequire          `json:"require_direct"`
	Indirect  []IndirectRequire        `json:"require_indirect"`
	Have      map[string][]VersionInfo `json:"have"`
	// Depth is the package-hop distance at which each Package was first
	// reached; direct dependencies have depth 1.
	Depth map[string]int `json:"depth"`
	// Moment is the newest refresh moment among the root and every
	// reachable Package.
	Moment time.Time `json:"moment"`
}

// NewSubgraph returns an empty subgraph for root.
func NewSubgraph(root Root, eco version.Ecosystem) *Subgraph {
	return &Subgraph{
		Root:      root,
		Ecosystem: eco,
		Direct:    []DirectRequire{},
		Indirect:  []IndirectRequire{},
		Have:      map[string][]VersionInfo{},
		Depth:     map[string]int{},
	}
}

// Packages returns the reachable package names sorted.
func (s *Subgraph) Packages() []string {
	names := make([]string, 0, len(s.Depth))
	for n := range s.Depth {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Touch raises Moment to t if t is newer.
func (s *Subgraph) Touch(t time.Time) {
	if t.After(s.Moment) {
		s.Moment = t.UTC()
	}
}

// Sort orders every collection so that consumers are deterministic.
func (s *Subgraph) Sort() {
	slices.SortFunc(s.Direct, func(a, b DirectRequire) int {
		return cmp.Or(cmp.Compare(a.Package, b.Package), cmp.Compare(a.Constraints, b.Constraints))
	})
	slices.SortFunc(s.Indirect, func(a, b IndirectRequire) int {
		return cmp.Or(
			cmp.Compare(a.ParentPackage, b.ParentPackage),
			cmp.Compare(a.ParentSerial, b.ParentSerial),
			cmp.Compare(a.Package, b.Package),
			cmp.Compare(a.Constraints, b.Constraints),
		)
	})
	for name, vs := range s.Have {
		slices.SortFunc(vs, func(a, b VersionInfo) int {
			return cmp.Or(cmp.Compare(a.Serial, b.Serial), cmp.Compare(a.Name, b.Name))
		})
		s.Have[name] = vs
	}
}
