package operation

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"

	"github.com/matzehuels/chainsat/pkg/docstore"
	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
)

// Info summarises the dependencies reachable from a root.
type Info struct {
	TotalDirect     int                   `json:"total_direct_dependencies"`
	TotalIndirect   int                   `json:"total_indirect_dependencies"`
	TotalVersions   int                   `json:"total_versions"`
	Direct          []graph.DirectRequire `json:"direct_dependencies"`
	IndirectByDepth map[int][]string      `json:"indirect_dependencies_by_depth"`
	Vulnerabilities []string              `json:"vulnerabilities"`
}

// FileInfo summarises a RequirementFile.
func (s *Service) FileInfo(ctx context.Context, fileID string, maxDepth int) (*Info, error) {
	return s.info(ctx, graph.FileRoot(fileID), maxDepth)
}

// PackageInfo summarises what the versions of a Package require.
func (s *Service) PackageInfo(ctx context.Context, key graph.PackageKey, maxDepth int) (*Info, error) {
	return s.info(ctx, graph.PackageRoot(key.Ecosystem, key.Name), maxDepth)
}

// VersionInfo summarises what one Version requires.
func (s *Service) VersionInfo(ctx context.Context, key graph.PackageKey, name string, maxDepth int) (*Info, error) {
	return s.info(ctx, graph.VersionRoot(key.Ecosystem, key.Name, name), maxDepth)
}

func (s *Service) info(ctx context.Context, root graph.Root, maxDepth int) (*Info, error) {
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}
	if err := chainerrors.ValidateDepth(maxDepth); err != nil {
		return nil, err
	}
	key := cacheKey(append([]string{"info"}, rootKey(root, maxDepth)...)...)
	return shared(s, key, func() (*Info, error) {
		// A Package root is its own first hop, so its dependencies start
		// one level further out.
		depth := maxDepth
		if root.Kind == graph.RootPackage && depth > 0 {
			depth++
		}
		sub, err := s.subgraph(ctx, root, depth)
		if err != nil {
			return nil, err
		}
		if e := s.lookup(ctx, docstore.Operations, key, sub.Moment); e != nil {
			var cached Info
			if err := json.Unmarshal([]byte(e.Value), &cached); err == nil {
				return &cached, nil
			}
			s.logger.Warn("discarding unreadable cached info", "key", key)
		}

		info := Summarize(sub)
		if b, err := json.Marshal(info); err == nil {
			s.store(ctx, docstore.Operations, key, string(b))
		}
		return info, nil
	})
}

// Summarize computes the Info of a subgraph. For a Package root the
// Package itself is not counted as a dependency.
func Summarize(sub *graph.Subgraph) *Info {
	info := &Info{
		Direct:          []graph.DirectRequire{},
		IndirectByDepth: map[int][]string{},
		Vulnerabilities: []string{},
	}

	self := ""
	offset := 0
	if sub.Root.Kind == graph.RootPackage {
		self = sub.Root.Package.Name
		offset = 1
		seen := map[graph.DirectRequire]bool{}
		for _, r := range sub.Indirect {
			if r.ParentPackage != self || r.Package == self {
				continue
			}
			d := graph.DirectRequire{Package: r.Package, Constraints: r.Constraints}
			if !seen[d] {
				seen[d] = true
				info.Direct = append(info.Direct, d)
			}
		}
		slices.SortFunc(info.Direct, func(a, b graph.DirectRequire) int {
			return cmp.Or(cmp.Compare(a.Package, b.Package), cmp.Compare(a.Constraints, b.Constraints))
		})
	} else {
		info.Direct = append(info.Direct, sub.Direct...)
	}

	vulns := map[string]bool{}
	for _, name := range sub.Packages() {
		if name == self {
			continue
		}
		depth := sub.Depth[name] - offset
		if depth <= 1 {
			info.TotalDirect++
		} else {
			info.TotalIndirect++
			info.IndirectByDepth[depth] = append(info.IndirectByDepth[depth], name)
		}
		info.TotalVersions += len(sub.Have[name])
		for _, v := range sub.Have[name] {
			for _, id := range v.Vulnerabilities {
				vulns[id] = true
			}
		}
	}
	for id := range vulns {
		info.Vulnerabilities = append(info.Vulnerabilities, id)
	}
	slices.Sort(info.Vulnerabilities)
	return info
}
