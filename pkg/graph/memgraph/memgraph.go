// Package memgraph is an in-process [graph.Store].
//
// Nodes live in arenas addressed by integer ids with side tables for
// identity lookups; edges are adjacency maps keyed by parent id. The store
// is safe for concurrent use and is what tests and single-process runs use
// in place of Neo4j.
package memgraph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

const versionIDPrefix = "version/"

type packageNode struct {
	graph.Package
	versions []int
}

type versionNode struct {
	pkg int
	graph.Version
	// edited is when the version's Requires edges last changed.
	edited time.Time
}

type repoKey struct{ owner, name string }

type fileNode struct {
	repo repoKey
	graph.RequirementFile
}

// Store is an arena-backed graph store.
type Store struct {
	mu sync.RWMutex

	packages []*packageNode
	byKey    map[graph.PackageKey]int
	versions []*versionNode

	repos map[repoKey]*graph.Repository
	files map[string]*fileNode

	// requires maps a parent id (file id or version id) to its edges.
	requires map[string]map[graph.PackageKey]graph.Requirement

	now func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the clock that stamps Requires edge edits.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

var _ graph.Store = (*Store)(nil)

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byKey:    make(map[graph.PackageKey]int),
		repos:    make(map[repoKey]*graph.Repository),
		files:    make(map[string]*fileNode),
		requires: make(map[string]map[graph.PackageKey]graph.Requirement),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func versionID(i int) string { return versionIDPrefix + strconv.Itoa(i) }

func (s *Store) GetPackage(_ context.Context, key graph.PackageKey) (*graph.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	p := s.packages[i].Package
	return &p, nil
}

func (s *Store) CreatePackage(_ context.Context, pkg graph.Package, versions []graph.Version) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[pkg.Key()]; ok {
		return false, nil
	}
	idx := len(s.packages)
	s.packages = append(s.packages, &packageNode{Package: pkg})
	s.byKey[pkg.Key()] = idx
	s.appendVersions(idx, versions)
	return true, nil
}

func (s *Store) appendVersions(pkg int, versions []graph.Version) {
	node := s.packages[pkg]
	for _, v := range versions {
		v.Vulnerabilities = slices.Clone(v.Vulnerabilities)
		node.versions = append(node.versions, len(s.versions))
		s.versions = append(s.versions, &versionNode{pkg: pkg, Version: v})
	}
}

func (s *Store) UpdatePackage(_ context.Context, pkg graph.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[pkg.Key()]
	if !ok {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, pkg.Key())
	}
	node := s.packages[i]
	node.Moment = pkg.Moment.UTC()
	node.Vendor = pkg.Vendor
	node.RepositoryURL = pkg.RepositoryURL
	return nil
}

func (s *Store) AddVersions(_ context.Context, key graph.PackageKey, versions []graph.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	existing := make(map[string]bool, len(s.packages[i].versions))
	for _, vi := range s.packages[i].versions {
		existing[s.versions[vi].Name] = true
	}
	fresh := make([]graph.Version, 0, len(versions))
	for _, v := range versions {
		if !existing[v.Name] {
			fresh = append(fresh, v)
		}
	}
	s.appendVersions(i, fresh)
	return nil
}

func (s *Store) UpdateSerials(_ context.Context, key graph.PackageKey, serials map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	for _, vi := range s.packages[i].versions {
		if serial, ok := serials[s.versions[vi].Name]; ok {
			s.versions[vi].Serial = serial
		}
	}
	return nil
}

func (s *Store) Versions(_ context.Context, key graph.PackageKey) ([]graph.VersionNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	return s.versionNodes(i), nil
}

func (s *Store) versionNodes(pkg int) []graph.VersionNode {
	ids := s.packages[pkg].versions
	out := make([]graph.VersionNode, 0, len(ids))
	for _, vi := range ids {
		v := s.versions[vi].Version
		v.Vulnerabilities = slices.Clone(v.Vulnerabilities)
		out = append(out, graph.VersionNode{ID: versionID(vi), Version: v})
	}
	slices.SortStableFunc(out, func(a, b graph.VersionNode) int {
		return cmp.Or(cmp.Compare(a.Serial, b.Serial), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// parentExists must be called with the lock held.
func (s *Store) parentExists(parentID string) bool {
	if _, ok := s.files[parentID]; ok {
		return true
	}
	if rest, ok := strings.CutPrefix(parentID, versionIDPrefix); ok {
		i, err := strconv.Atoi(rest)
		return err == nil && i >= 0 && i < len(s.versions)
	}
	return false
}

func (s *Store) Relate(_ context.Context, parentID string, req graph.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.parentExists(parentID) {
		return fmt.Errorf("%w: parent %s", graph.ErrNotFound, parentID)
	}
	if _, ok := s.byKey[req.Package]; !ok {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, req.Package)
	}
	edges := s.requires[parentID]
	if edges == nil {
		edges = make(map[graph.PackageKey]graph.Requirement)
		s.requires[parentID] = edges
	}
	if old, ok := edges[req.Package]; ok && old == req {
		return nil
	}
	edges[req.Package] = req
	s.edited(parentID)
	return nil
}

func (s *Store) Unrelate(_ context.Context, parentID string, key graph.PackageKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requires[parentID][key]; !ok {
		return nil
	}
	delete(s.requires[parentID], key)
	s.edited(parentID)
	return nil
}

// edited advances the moment of a parent whose edges changed, so cached
// results over it go stale. It must be called with the lock held.
func (s *Store) edited(parentID string) {
	t := s.now().UTC()
	if f, ok := s.files[parentID]; ok {
		if t.After(f.Moment) {
			f.Moment = t
		}
		return
	}
	if rest, ok := strings.CutPrefix(parentID, versionIDPrefix); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < len(s.versions) {
			s.versions[i].edited = t
		}
	}
}

func (s *Store) Requirements(_ context.Context, parentID string) ([]graph.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRequirements(parentID), nil
}

func (s *Store) sortedRequirements(parentID string) []graph.Requirement {
	edges := s.requires[parentID]
	out := make([]graph.Requirement, 0, len(edges))
	for _, r := range edges {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b graph.Requirement) int {
		return cmp.Or(cmp.Compare(a.Package.Name, b.Package.Name), cmp.Compare(a.Package.Ecosystem, b.Package.Ecosystem))
	})
	return out
}

func (s *Store) GetRepository(_ context.Context, owner, name string) (*graph.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[repoKey{owner, name}]
	if !ok {
		return nil, fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	out := *r
	out.Users = slices.Clone(r.Users)
	return &out, nil
}

func (s *Store) CreateRepository(_ context.Context, repo graph.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := repoKey{repo.Owner, repo.Name}
	if _, ok := s.repos[k]; ok {
		return nil
	}
	repo.Moment = repo.Moment.UTC()
	repo.Users = slices.Clone(repo.Users)
	s.repos[k] = &repo
	return nil
}

func (s *Store) UpdateRepository(_ context.Context, owner, name string, complete bool, moment time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey{owner, name}]
	if !ok {
		return fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	r.IsComplete = complete
	r.Moment = moment.UTC()
	return nil
}

func (s *Store) AddRepositoryUser(_ context.Context, owner, name, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey{owner, name}]
	if !ok {
		return fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	if !slices.Contains(r.Users, userID) {
		r.Users = append(r.Users, userID)
	}
	return nil
}

func (s *Store) CreateRequirementFile(_ context.Context, owner, name string, f graph.RequirementFile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := repoKey{owner, name}
	if _, ok := s.repos[k]; !ok {
		return "", fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Moment = f.Moment.UTC()
	s.files[f.ID] = &fileNode{repo: k, RequirementFile: f}
	return f.ID, nil
}

func (s *Store) RequirementFiles(_ context.Context, owner, name string) ([]graph.RequirementFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := repoKey{owner, name}
	var out []graph.RequirementFile
	for _, f := range s.files {
		if f.repo == k {
			out = append(out, f.RequirementFile)
		}
	}
	slices.SortFunc(out, func(a, b graph.RequirementFile) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetRequirementFile(_ context.Context, id string) (*graph.RequirementFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: requirement file %s", graph.ErrNotFound, id)
	}
	out := f.RequirementFile
	return &out, nil
}

func (s *Store) DeleteRequirementFile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
	delete(s.requires, id)
	return nil
}

func (s *Store) ReachablePackages(_ context.Context, owner, name string) ([]graph.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := repoKey{owner, name}

	seen := make(map[int]bool)
	var queue []int
	visit := func(parentID string) {
		for key := range s.requires[parentID] {
			if i, ok := s.byKey[key]; ok && !seen[i] {
				seen[i] = true
				queue = append(queue, i)
			}
		}
	}
	for id, f := range s.files {
		if f.repo == k {
			visit(id)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, vi := range s.packages[i].versions {
			visit(versionID(vi))
		}
	}

	out := make([]graph.Package, 0, len(seen))
	for i := range seen {
		out = append(out, s.packages[i].Package)
	}
	slices.SortFunc(out, func(a, b graph.Package) int {
		return cmp.Or(cmp.Compare(a.Ecosystem, b.Ecosystem), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (s *Store) Subgraph(_ context.Context, root graph.Root, maxDepth int) (*graph.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sg *graph.Subgraph
	var direct []graph.Requirement
	switch root.Kind {
	case graph.RootFile:
		f, ok := s.files[root.FileID]
		if !ok {
			return nil, fmt.Errorf("%w: requirement file %s", graph.ErrNotFound, root.FileID)
		}
		sg = graph.NewSubgraph(root, f.Ecosystem)
		sg.Touch(f.Moment)
		direct = s.sortedRequirements(f.ID)
	case graph.RootPackage:
		i, ok := s.byKey[root.Package]
		if !ok {
			return nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, root.Package)
		}
		sg = graph.NewSubgraph(root, root.Package.Ecosystem)
		sg.Touch(s.packages[i].Moment)
		direct = []graph.Requirement{{Package: root.Package}}
	case graph.RootVersion:
		vi, ok := s.findVersion(root.Package, root.Version)
		if !ok {
			return nil, fmt.Errorf("%w: version %s@%s", graph.ErrNotFound, root.Package, root.Version)
		}
		sg = graph.NewSubgraph(root, root.Package.Ecosystem)
		sg.Touch(s.packages[s.versions[vi].pkg].Moment)
		sg.Touch(s.versions[vi].edited)
		direct = s.sortedRequirements(versionID(vi))
	default:
		return nil, fmt.Errorf("unknown root kind %q", root.Kind)
	}
	if maxDepth <= 0 {
		return sg, nil
	}

	type item struct {
		pkg   int
		depth int
	}
	var queue []item
	reach := func(key graph.PackageKey, depth int) {
		i, ok := s.byKey[key]
		if !ok {
			return
		}
		name := s.packages[i].Name
		if _, seen := sg.Depth[name]; seen {
			return
		}
		sg.Depth[name] = depth
		queue = append(queue, item{i, depth})
	}

	for _, r := range direct {
		if _, ok := s.byKey[r.Package]; !ok {
			continue
		}
		sg.Direct = append(sg.Direct, graph.DirectRequire{Package: r.Package.Name, Constraints: r.Constraints})
		reach(r.Package, 1)
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		node := s.packages[it.pkg]
		sg.Touch(node.Moment)

		rows := make([]graph.VersionInfo, 0, len(node.versions))
		for _, vi := range node.versions {
			v := s.versions[vi]
			rows = append(rows, graph.VersionInfo{
				Name:            v.Name,
				Serial:          v.Serial,
				Mean:            v.Mean,
				WeightedMean:    v.WeightedMean,
				Vulnerabilities: slices.Clone(v.Vulnerabilities),
			})
			if it.depth >= maxDepth {
				continue
			}
			sg.Touch(v.edited)
			for _, r := range s.sortedRequirements(versionID(vi)) {
				if _, ok := s.byKey[r.Package]; !ok {
					continue
				}
				sg.Indirect = append(sg.Indirect, graph.IndirectRequire{
					Package:       r.Package.Name,
					Constraints:   r.Constraints,
					ParentPackage: node.Name,
					ParentVersion: v.Name,
					ParentSerial:  v.Serial,
				})
				reach(r.Package, it.depth+1)
			}
		}
		sg.Have[node.Name] = rows
	}

	sg.Sort()
	return sg, nil
}

// findVersion must be called with the lock held.
func (s *Store) findVersion(key graph.PackageKey, name string) (int, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return 0, false
	}
	for _, vi := range s.packages[i].versions {
		if s.versions[vi].Name == name {
			return vi, true
		}
	}
	return 0, false
}

func (s *Store) VersionNames(_ context.Context, eco version.Ecosystem, serials map[string]int) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(serials))
	for name, serial := range serials {
		i, ok := s.byKey[graph.PackageKey{Ecosystem: eco, Name: name}]
		if !ok {
			continue
		}
		for _, vi := range s.packages[i].versions {
			if s.versions[vi].Serial == serial {
				out[name] = s.versions[vi].Name
				break
			}
		}
	}
	return out, nil
}

func (s *Store) VersionSerials(_ context.Context, eco version.Ecosystem, names map[string]string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(names))
	for pkg, ver := range names {
		vi, ok := s.findVersion(graph.PackageKey{Ecosystem: eco, Name: pkg}, ver)
		if !ok {
			return nil, fmt.Errorf("%w: version %s@%s", graph.ErrNotFound, pkg, ver)
		}
		out[pkg] = s.versions[vi].Serial
	}
	return out, nil
}

func (s *Store) Close(context.Context) error { return nil }
