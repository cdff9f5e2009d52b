package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/manifest"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/queue"
	"github.com/matzehuels/chainsat/pkg/version"
)

// ErrIncomplete is wrapped by Complete when the build cannot be marked
// complete.
var ErrIncomplete = errors.New("repository incomplete")

// Build is the state of one repository build between dispatch and
// completion.
type Build struct {
	Owner  string
	Name   string
	Moment time.Time
	Files  []manifest.File
	// Enqueued counts the messages put on the queue by the build itself.
	Enqueued int
	// DeadLetters is the dead-letter stream length when the build started.
	// Any growth by completion time leaves the repository incomplete.
	DeadLetters int64
	// UpToDate is set when the stored graph is complete and no newer
	// commit exists; nothing was dispatched.
	UpToDate bool
}

// BuildRepository runs InitRepository and, unless the repository is up to
// date, waits for the queue and completes the build.
func (b *Builder) BuildRepository(ctx context.Context, owner, name, userID string, lastCommit time.Time) (*Build, error) {
	build, err := b.InitRepository(ctx, owner, name, userID, lastCommit)
	if err != nil || build.UpToDate {
		return build, err
	}
	return build, b.Complete(ctx, build)
}

// InitRepository parses the repository's manifests and dispatches their
// packages. A repository seen for the first time gets every file; a known
// one is reconciled when lastCommit is newer than its moment or its last
// build did not complete. A zero lastCommit uses the snapshot's commit
// time.
func (b *Builder) InitRepository(ctx context.Context, owner, name, userID string, lastCommit time.Time) (*Build, error) {
	if err := chainerrors.ValidateRepository(owner, name); err != nil {
		return nil, err
	}
	if b.source == nil {
		return nil, chainerrors.New(chainerrors.ErrCodeInternal, "no manifest source configured")
	}
	snap, err := b.source.Snapshot(ctx, owner, name)
	if errors.Is(err, manifest.ErrNotFound) {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeNotFound, err, "repository %s/%s", owner, name)
	}
	if err != nil {
		return nil, err
	}
	if lastCommit.IsZero() {
		lastCommit = snap.CommitTime
	}
	build := &Build{
		Owner:  owner,
		Name:   name,
		Moment: lastCommit.UTC(),
		Files:  manifest.Parse(snap.Files, b.parsers, func(f string, args ...any) { b.logger.Warnf(f, args...) }),
	}

	if build.DeadLetters, err = b.queue.DeadLetterCount(ctx); err != nil {
		return nil, err
	}

	repo, err := b.store.GetRepository(ctx, owner, name)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		err = b.store.CreateRepository(ctx, graph.Repository{
			Owner:      owner,
			Name:       name,
			Moment:     build.Moment,
			IsComplete: false,
		})
		if err != nil {
			return nil, err
		}
		b.logger.Info("repository created", "repository", owner+"/"+name, "files", len(build.Files))
		for _, f := range build.Files {
			if err := b.addFile(ctx, build, f); err != nil {
				return nil, err
			}
		}
	case err != nil:
		return nil, err
	case build.Moment.After(repo.Moment) || !repo.IsComplete:
		if err := b.store.UpdateRepository(ctx, owner, name, false, repo.Moment); err != nil {
			return nil, err
		}
		b.logger.Info("repository rebuilding", "repository", owner+"/"+name, "stored", repo.Moment, "commit", build.Moment)
		if err := b.reconcile(ctx, build); err != nil {
			return nil, err
		}
	default:
		build.UpToDate = true
	}

	if userID != "" {
		if err := b.store.AddRepositoryUser(ctx, owner, name, userID); err != nil {
			return nil, err
		}
	}
	return build, nil
}

func (b *Builder) addFile(ctx context.Context, build *Build, f manifest.File) error {
	id, err := b.store.CreateRequirementFile(ctx, build.Owner, build.Name, graph.RequirementFile{
		Name:      f.Name,
		Ecosystem: f.Ecosystem,
		Moment:    b.clock(),
	})
	if err != nil {
		return err
	}
	for _, pkg := range f.Packages.Sorted() {
		if err := b.dispatchRoot(ctx, build, id, f.Ecosystem, pkg, f.Packages[pkg]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) dispatchRoot(ctx context.Context, build *Build, fileID string, eco version.Ecosystem, pkg, constraints string) error {
	enqueued, err := b.dispatch(ctx, queue.Message{
		Ecosystem:   eco,
		Package:     pkg,
		Constraints: constraints,
		ParentID:    fileID,
		Moment:      b.clock(),
	})
	if enqueued {
		build.Enqueued++
	}
	return err
}

// reconcile brings the stored RequirementFiles in line with the parsed
// manifests: vanished files are dropped, removed packages unrelated,
// changed constraints rewritten and added packages dispatched.
func (b *Builder) reconcile(ctx context.Context, build *Build) error {
	stored, err := b.store.RequirementFiles(ctx, build.Owner, build.Name)
	if err != nil {
		return err
	}
	parsed := make(map[string]manifest.File, len(build.Files))
	for _, f := range build.Files {
		parsed[f.Name] = f
	}

	kept := map[string]bool{}
	for _, rf := range stored {
		f, ok := parsed[rf.Name]
		if !ok || f.Ecosystem != rf.Ecosystem || kept[rf.Name] {
			b.logger.Info("requirement file removed", "file", rf.Name)
			if err := b.store.DeleteRequirementFile(ctx, rf.ID); err != nil {
				return err
			}
			continue
		}
		kept[rf.Name] = true

		reqs, err := b.store.Requirements(ctx, rf.ID)
		if err != nil {
			return err
		}
		current := make(map[string]string, len(reqs))
		for _, r := range reqs {
			current[r.Package.Name] = r.Constraints
			if _, ok := f.Packages[r.Package.Name]; !ok {
				if err := b.store.Unrelate(ctx, rf.ID, r.Package); err != nil {
					return err
				}
			}
		}
		for _, pkg := range f.Packages.Sorted() {
			c := f.Packages[pkg]
			old, ok := current[pkg]
			switch {
			case ok && old == c:
			case ok:
				err = b.store.Relate(ctx, rf.ID, graph.Requirement{
					Package:     graph.PackageKey{Ecosystem: f.Ecosystem, Name: pkg},
					Constraints: c,
				})
			default:
				err = b.dispatchRoot(ctx, build, rf.ID, f.Ecosystem, pkg, c)
			}
			if err != nil {
				return err
			}
		}
	}

	for _, f := range build.Files {
		if kept[f.Name] {
			continue
		}
		if err := b.addFile(ctx, build, f); err != nil {
			return err
		}
	}
	return nil
}

// Complete waits for the queue to drain and marks the repository complete
// once every manifest package is related to its file and every reachable
// Package is fresh. Stale packages found on the way are re-dispatched for
// a bounded number of rounds. A message dead-lettered since the build
// started leaves the repository incomplete.
func (b *Builder) Complete(ctx context.Context, build *Build) error {
	for round := 0; round < completionRounds; round++ {
		if err := b.Wait(ctx); err != nil {
			return err
		}
		dead, err := b.queue.DeadLetterCount(ctx)
		if err != nil {
			return err
		}
		if dead > build.DeadLetters {
			return chainerrors.Wrap(chainerrors.ErrCodeInternal, ErrIncomplete,
				"repository %s/%s: %d messages dead-lettered", build.Owner, build.Name, dead-build.DeadLetters)
		}
		missing, stale, err := b.check(ctx, build)
		if err != nil {
			return err
		}
		if len(missing) == 0 && len(stale) == 0 {
			if err := b.store.UpdateRepository(ctx, build.Owner, build.Name, true, build.Moment); err != nil {
				return err
			}
			b.logger.Info("repository complete", "repository", build.Owner+"/"+build.Name)
			observability.Builder().OnRepositoryComplete(ctx, build.Owner, build.Name)
			return nil
		}
		if len(stale) == 0 {
			return chainerrors.Wrap(chainerrors.ErrCodeInternal, ErrIncomplete,
				"repository %s/%s: %d manifest packages missing, first %s",
				build.Owner, build.Name, len(missing), missing[0])
		}
		b.logger.Info("refreshing stale packages", "repository", build.Owner+"/"+build.Name, "count", len(stale))
		for _, p := range stale {
			_, err := b.queue.Enqueue(ctx, queue.Message{
				Ecosystem: p.Ecosystem,
				Package:   p.Name,
				Refresh:   true,
				Moment:    b.clock(),
			})
			if err != nil {
				return err
			}
		}
	}
	return chainerrors.Wrap(chainerrors.ErrCodeInternal, ErrIncomplete,
		"repository %s/%s after %d rounds", build.Owner, build.Name, completionRounds)
}

// check returns the manifest packages without a Requires edge from their
// file, and the reachable Packages outside the refresh window.
func (b *Builder) check(ctx context.Context, build *Build) (missing []string, stale []graph.Package, err error) {
	stored, err := b.store.RequirementFiles(ctx, build.Owner, build.Name)
	if err != nil {
		return nil, nil, err
	}
	ids := make(map[string]string, len(stored))
	for _, rf := range stored {
		ids[rf.Name] = rf.ID
	}
	for _, f := range build.Files {
		id, ok := ids[f.Name]
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		reqs, err := b.store.Requirements(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		related := make(map[string]bool, len(reqs))
		for _, r := range reqs {
			related[r.Package.Name] = true
		}
		for _, pkg := range f.Packages.Sorted() {
			if !related[pkg] {
				missing = append(missing, fmt.Sprintf("%s:%s", f.Name, pkg))
			}
		}
	}

	reachable, err := b.store.ReachablePackages(ctx, build.Owner, build.Name)
	if err != nil {
		return nil, nil, err
	}
	now := b.clock()
	for _, p := range reachable {
		if !graph.Fresh(p.Moment, now) {
			stale = append(stale, p)
		}
	}
	return missing, stale, nil
}

// InitPackage dispatches a root package without a parent edge. It reports
// whether work was enqueued; a fresh Package needs none.
func (b *Builder) InitPackage(ctx context.Context, eco version.Ecosystem, name string, refresh bool) (bool, error) {
	if _, err := version.For(eco); err != nil {
		return false, chainerrors.Wrap(chainerrors.ErrCodeInvalidEcosystem, err, "ecosystem %q", eco)
	}
	if err := chainerrors.ValidatePackageName(name); err != nil {
		return false, err
	}
	return b.dispatch(ctx, queue.Message{
		Ecosystem: eco,
		Package:   name,
		Refresh:   refresh,
		Moment:    b.clock(),
	})
}
