package builder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/queue"
	"github.com/matzehuels/chainsat/pkg/version"
)

// ProcessPackage handles one package message. It relates a fresh Package,
// refreshes a stale one or creates a missing one.
func (b *Builder) ProcessPackage(ctx context.Context, msg queue.Message) error {
	key := graph.PackageKey{Ecosystem: msg.Ecosystem, Name: msg.Package}
	pkg, err := b.store.GetPackage(ctx, key)
	switch {
	case err == nil && !msg.Refresh && graph.Fresh(pkg.Moment, b.clock()):
		return b.relate(ctx, key, msg)
	case err == nil:
		return b.refresh(ctx, pkg, msg)
	case errors.Is(err, graph.ErrNotFound):
		return b.create(ctx, key, msg)
	default:
		return err
	}
}

// dispatch relates msg directly when its Package is already fresh and
// enqueues it otherwise. It reports whether a message was enqueued.
func (b *Builder) dispatch(ctx context.Context, msg queue.Message) (bool, error) {
	key := graph.PackageKey{Ecosystem: msg.Ecosystem, Name: msg.Package}
	pkg, err := b.store.GetPackage(ctx, key)
	if err == nil && !msg.Refresh && graph.Fresh(pkg.Moment, b.clock()) {
		return false, b.relate(ctx, key, msg)
	}
	if err != nil && !errors.Is(err, graph.ErrNotFound) {
		return false, err
	}
	if _, err := b.queue.Enqueue(ctx, msg); err != nil {
		return false, fmt.Errorf("enqueue %s: %w", key, err)
	}
	return true, nil
}

func (b *Builder) relate(ctx context.Context, key graph.PackageKey, msg queue.Message) error {
	if msg.ParentID == "" {
		return nil
	}
	return b.store.Relate(ctx, msg.ParentID, graph.Requirement{
		Package:       key,
		Constraints:   msg.Constraints,
		ParentVersion: msg.ParentVersion,
	})
}

func (b *Builder) create(ctx context.Context, key graph.PackageKey, msg queue.Message) error {
	reg, err := b.registry(key)
	if err != nil {
		return err
	}
	pv, err := reg.GetVersions(ctx, key.Name, msg.Refresh)
	if err != nil {
		return fmt.Errorf("versions of %s: %w", key, err)
	}
	versions, err := b.attribute(ctx, key, pv.Versions)
	if err != nil {
		return err
	}

	// The moment stays zero until expansion succeeds, so a redelivery
	// takes the refresh path and expands every version again.
	pkg := graph.NewPackage(key.Ecosystem, key.Name)
	pkg.Vendor = firstNonEmpty(pv.Vendor, msg.Vendor)
	pkg.RepositoryURL = firstNonEmpty(pv.RepositoryURL, msg.RepositoryURL)

	created, err := b.store.CreatePackage(ctx, pkg, versions)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if !created {
		b.logger.Debug("package created concurrently", "package", key)
		return b.relate(ctx, key, msg)
	}
	b.logger.Info("package created", "ecosystem", key.Ecosystem, "name", key.Name, "versions", len(versions))
	observability.Builder().OnPackageCreated(ctx, string(key.Ecosystem), len(versions))

	if err := b.relate(ctx, key, msg); err != nil {
		return err
	}
	if err := b.expand(ctx, reg, key, nil); err != nil {
		return err
	}
	return b.stamp(ctx, pkg)
}

// stamp records a completed expansion.
func (b *Builder) stamp(ctx context.Context, pkg graph.Package) error {
	pkg.Moment = b.clock()
	return b.store.UpdatePackage(ctx, pkg)
}

// refresh appends the versions published since the last expansion and
// expands them. A zero moment marks an expansion that never finished;
// every version is expanded then.
func (b *Builder) refresh(ctx context.Context, pkg *graph.Package, msg queue.Message) error {
	key := pkg.Key()
	pending := pkg.Moment.IsZero()
	reg, err := b.registry(key)
	if err != nil {
		return err
	}
	pv, err := reg.GetVersions(ctx, key.Name, true)
	if err != nil {
		return fmt.Errorf("versions of %s: %w", key, err)
	}
	existing, err := b.store.Versions(ctx, key)
	if err != nil {
		return err
	}

	if !pending {
		pkg.Moment = time.Time{}
		if err := b.store.UpdatePackage(ctx, *pkg); err != nil {
			return err
		}
	}

	known := make(map[string]int, len(existing))
	names := make([]string, 0, len(existing)+len(pv.Versions))
	for _, v := range existing {
		known[v.Name] = v.Serial
		names = append(names, v.Name)
	}
	var fresh []integrations.Version
	for _, v := range pv.Versions {
		if _, ok := known[v.Name]; !ok {
			fresh = append(fresh, v)
			names = append(names, v.Name)
		}
	}

	serials := make(map[string]int, len(names))
	for _, s := range version.AssignSerials(version.MustFor(key.Ecosystem), names) {
		serials[s.Name] = s.Serial
	}
	added, err := b.attribute(ctx, key, fresh)
	if err != nil {
		return err
	}
	for i := range added {
		added[i].Serial = serials[added[i].Name]
	}
	if len(added) > 0 {
		if err := b.store.AddVersions(ctx, key, added); err != nil {
			return fmt.Errorf("add versions to %s: %w", key, err)
		}
	}
	changed := map[string]int{}
	for name, old := range known {
		if s := serials[name]; s != old {
			changed[name] = s
		}
	}
	if len(changed) > 0 {
		if err := b.store.UpdateSerials(ctx, key, changed); err != nil {
			return fmt.Errorf("update serials of %s: %w", key, err)
		}
	}

	pkg.Vendor = firstNonEmpty(pv.Vendor, pkg.Vendor)
	pkg.RepositoryURL = firstNonEmpty(pv.RepositoryURL, pkg.RepositoryURL)
	b.logger.Info("package refreshed", "ecosystem", key.Ecosystem, "name", key.Name, "new_versions", len(added))
	observability.Builder().OnPackageRefreshed(ctx, string(key.Ecosystem), len(added))

	if err := b.relate(ctx, key, msg); err != nil {
		return err
	}
	var only map[string]bool
	if !pending {
		only = make(map[string]bool, len(added))
		for _, v := range added {
			only[v.Name] = true
		}
	}
	if err := b.expand(ctx, reg, key, only); err != nil {
		return err
	}
	return b.stamp(ctx, *pkg)
}

// expand fetches the requirements of the Package's versions, in serial
// order, and dispatches each one. A nil only expands every version.
func (b *Builder) expand(ctx context.Context, reg integrations.Registry, key graph.PackageKey, only map[string]bool) error {
	if only != nil && len(only) == 0 {
		return nil
	}
	nodes, err := b.store.Versions(ctx, key)
	if err != nil {
		return err
	}
	now := b.clock()
	for _, v := range nodes {
		if only != nil && !only[v.Name] {
			continue
		}
		reqs, err := reg.GetRequirement(ctx, key.Name, v.Name)
		if err != nil {
			return fmt.Errorf("requirements of %s@%s: %w", key, v.Name, err)
		}
		for _, dep := range reqs.Sorted() {
			if dep == key.Name {
				continue
			}
			_, err := b.dispatch(ctx, queue.Message{
				Ecosystem:     key.Ecosystem,
				Package:       dep,
				Constraints:   reqs[dep],
				ParentID:      v.ID,
				ParentVersion: v.Name,
				Moment:        now,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// attribute converts registry versions to graph versions with their
// vulnerability data.
func (b *Builder) attribute(ctx context.Context, key graph.PackageKey, in []integrations.Version) ([]graph.Version, error) {
	out := make([]graph.Version, len(in))
	for i, v := range in {
		out[i] = graph.Version{Name: v.Name, Serial: v.Serial, ReleaseDate: v.ReleaseDate, Vulnerabilities: []string{}}
	}
	if b.attributor == nil || len(in) == 0 {
		return out, nil
	}
	names := make([]string, len(in))
	for i, v := range in {
		names[i] = v.Name
	}
	attrs, err := b.attributor.Attribute(ctx, key.Ecosystem, key.Name, names)
	if err != nil {
		return nil, err
	}
	for i := range out {
		a := attrs[out[i].Name]
		out[i].Vulnerabilities = slices.Clone(a.Vulnerabilities)
		out[i].Mean = a.Mean
		out[i].WeightedMean = a.WeightedMean
	}
	return out, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
