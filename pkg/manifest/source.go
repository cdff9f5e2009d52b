package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// ErrNotFound is returned when the repository does not exist upstream.
var ErrNotFound = errors.New("repository not found")

const maxManifestSize = 4 << 20

// skipDirs are never searched for manifests.
var skipDirs = []string{"node_modules", "vendor", ".git", "target", "dist", "build"}

// Snapshot is the set of manifests found at one commit.
type Snapshot struct {
	Commit     string
	CommitTime time.Time
	// Files holds raw manifest contents keyed by repository-relative path.
	Files map[string][]byte
}

// Source downloads the manifests of a repository.
type Source interface {
	Snapshot(ctx context.Context, owner, name string) (*Snapshot, error)
}

// GitSource shallow-clones repositories into memory.
type GitSource struct {
	baseURL string
	token   string
	parsers []Parser
}

// GitOption configures a GitSource.
type GitOption func(*GitSource)

// WithBaseURL sets the clone host, "https://github.com" by default.
func WithBaseURL(u string) GitOption {
	return func(g *GitSource) { g.baseURL = strings.TrimSuffix(u, "/") }
}

// NewGitSource returns a source that keeps files some parser supports.
// token authenticates the clone when non-empty.
func NewGitSource(token string, parsers []Parser, opts ...GitOption) *GitSource {
	g := &GitSource{baseURL: "https://github.com", token: token, parsers: parsers}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GitSource) Snapshot(ctx context.Context, owner, name string) (*Snapshot, error) {
	opts := &git.CloneOptions{
		URL:          fmt.Sprintf("%s/%s/%s.git", g.baseURL, owner, name),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if g.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.token}
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	if errors.Is(err, transport.ErrRepositoryNotFound) || errors.Is(err, transport.ErrAuthenticationRequired) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, name)
	}
	if err != nil {
		return nil, fmt.Errorf("clone %s/%s: %w", owner, name, err)
	}
	return collect(repo, g.parsers)
}

// collect walks the HEAD tree and reads every supported manifest.
func collect(repo *git.Repository, parsers []Parser) (*Snapshot, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("could not read HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("could not read commit object: %w", err)
	}
	tree, err := repo.TreeObject(commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("could not read tree object: %w", err)
	}

	snap := &Snapshot{
		Commit:     head.Hash().String(),
		CommitTime: commit.Committer.When.UTC(),
		Files:      make(map[string][]byte),
	}
	walker := object.NewTreeWalker(tree, true, map[plumbing.Hash]bool{})
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree: %w", err)
		}
		if !entry.Mode.IsFile() || skipped(name) {
			continue
		}
		if _, err := Detect(name, parsers...); err != nil {
			continue
		}
		blob, err := repo.BlobObject(entry.Hash)
		if err != nil {
			return nil, fmt.Errorf("could not read blob: %w", err)
		}
		if blob.Size > maxManifestSize {
			continue
		}
		r, err := blob.Reader()
		if err != nil {
			return nil, fmt.Errorf("could not create reader for blob: %w", err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, err
		}
		snap.Files[name] = data
	}
	return snap, nil
}

func skipped(name string) bool {
	for _, dir := range strings.Split(path.Dir(name), "/") {
		for _, s := range skipDirs {
			if dir == s {
				return true
			}
		}
	}
	return false
}

// StaticSource serves fixed snapshots, keyed by "owner/name".
type StaticSource map[string]*Snapshot

func (s StaticSource) Snapshot(_ context.Context, owner, name string) (*Snapshot, error) {
	snap, ok := s[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, name)
	}
	return snap, nil
}
