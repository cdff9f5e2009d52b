package github

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
)

const defaultBaseURL = "https://api.github.com"

var repoURLPattern = regexp.MustCompile(`https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:[/?#]|$)`)

// RepoInfo is the repository metadata needed to decide whether a stored
// dependency graph is stale.
type RepoInfo struct {
	Owner         string     `json:"owner"`
	Name          string     `json:"name"`
	DefaultBranch string     `json:"default_branch"`
	CloneURL      string     `json:"clone_url"`
	Archived      bool       `json:"archived"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
	LastCommitAt  *time.Time `json:"last_commit_at,omitempty"`
}

// Client provides access to the GitHub REST API for repository metadata.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a GitHub API client. Pass an empty token for
// unauthenticated requests (60 requests/hour).
func NewClient(backend cache.Cache, token string, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		Client:  integrations.NewClient(backend, "github", cacheTTL, headers, opts...),
		baseURL: defaultBaseURL,
	}
}

// Repository returns metadata for owner/repo including the date of the
// head commit on the default branch.
//
// Returns [integrations.ErrNotFound] if the repository does not exist or is
// not visible with the configured token.
func (c *Client) Repository(ctx context.Context, owner, repo string, refresh bool) (*RepoInfo, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, err
	}

	var info RepoInfo
	err := c.Cached(ctx, "repo:"+owner+"/"+repo, refresh, &info, func() error {
		var data repoResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo), &data); err != nil {
			return err
		}
		info = RepoInfo{
			Owner:         owner,
			Name:          repo,
			DefaultBranch: data.DefaultBranch,
			CloneURL:      data.CloneURL,
			Archived:      data.Archived,
			PushedAt:      data.PushedAt,
		}
		if info.CloneURL == "" {
			info.CloneURL = fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
		}
		if data.DefaultBranch != "" {
			var commit commitResponse
			url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, owner, repo, integrations.PathEscape(data.DefaultBranch))
			if err := c.Get(ctx, url, &commit); err == nil {
				info.LastCommitAt = commit.Commit.Committer.Date
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("github repo %s/%s: %w", owner, repo, err)
	}
	return &info, nil
}

// LastCommitDate returns the head commit date, falling back to pushed_at.
func (r *RepoInfo) LastCommitDate() time.Time {
	switch {
	case r.LastCommitAt != nil:
		return r.LastCommitAt.UTC()
	case r.PushedAt != nil:
		return r.PushedAt.UTC()
	}
	return time.Time{}
}

// ExtractURL finds a GitHub owner/repo among urls, then homepage.
func ExtractURL(urls map[string]string, homepage string) (owner, repo string, ok bool) {
	candidates := make([]string, 0, len(urls)+1)
	for _, u := range urls {
		candidates = append(candidates, u)
	}
	candidates = append(candidates, homepage)
	for _, u := range candidates {
		if m := repoURLPattern.FindStringSubmatch(u); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

type repoResponse struct {
	DefaultBranch string     `json:"default_branch"`
	CloneURL      string     `json:"clone_url"`
	Archived      bool       `json:"archived"`
	PushedAt      *time.Time `json:"pushed_at"`
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date *time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}
