package pypi

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const defaultBaseURL = "https://pypi.python.org/pypi"

// Client provides access to the PyPI JSON API.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	markers *version.Markers
}

// NewClient creates a PyPI client with the given cache backend.
//
// markers filters requires_dist entries whose environment marker cannot hold
// for any supported Python release; nil keeps every entry that is not an
// extra.
func NewClient(backend cache.Cache, cacheTTL time.Duration, markers *version.Markers, opts ...integrations.Option) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "pypi", cacheTTL, nil, opts...),
		baseURL: defaultBaseURL,
		markers: markers,
	}
}

// Ecosystem returns [version.PyPI].
func (c *Client) Ecosystem() version.Ecosystem { return version.PyPI }

// GetVersions returns every release of name in serial order, the author as
// vendor, and the first repository link found in project_urls.
//
// Missing packages and undecodable payloads yield an empty result.
func (c *Client) GetVersions(ctx context.Context, name string, refresh bool) (*integrations.PackageVersions, error) {
	name = version.NormalizeName(name)

	var pv integrations.PackageVersions
	err := c.Cached(ctx, "versions:"+name, refresh, &pv, func() error {
		return c.fetchVersions(ctx, name, &pv)
	})
	if integrations.Empty(err) {
		return &integrations.PackageVersions{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

func (c *Client) fetchVersions(ctx context.Context, name string, pv *integrations.PackageVersions) error {
	var data projectResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, integrations.PathEscape(name)), &data); err != nil {
		return err
	}

	raw := make([]integrations.Version, 0, len(data.Releases))
	for v, files := range data.Releases {
		raw = append(raw, integrations.Version{Name: v, ReleaseDate: earliestUpload(files)})
	}

	*pv = integrations.PackageVersions{
		Versions:      integrations.Serialize(version.PyPI, raw),
		Vendor:        data.Info.Author,
		RepositoryURL: integrations.FirstRepoURL(data.Info.ProjectURLs, data.Info.HomePage),
	}
	return nil
}

// GetRequirement returns the runtime requirements of name at ver, keyed by
// normalized package name. Duplicate names are OR-ed together.
func (c *Client) GetRequirement(ctx context.Context, name, ver string) (integrations.Requirements, error) {
	name = version.NormalizeName(name)

	var reqs integrations.Requirements
	err := c.Cached(ctx, "requires:"+name+"@"+ver, false, &reqs, func() error {
		var data projectResponse
		url := fmt.Sprintf("%s/%s/%s/json", c.baseURL, integrations.PathEscape(name), integrations.PathEscape(ver))
		if err := c.Get(ctx, url, &data); err != nil {
			return err
		}
		reqs = c.parseRequiresDist(data.Info.RequiresDist)
		return nil
	})
	if integrations.Empty(err) {
		return integrations.Requirements{}, nil
	}
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = integrations.Requirements{}
	}
	return reqs, nil
}

func (c *Client) parseRequiresDist(lines []string) integrations.Requirements {
	reqs := integrations.Requirements{}
	for _, line := range lines {
		req, ok := version.ParseRequirement(line, c.markers)
		if !ok {
			continue
		}
		reqs.Merge(req.Name, req.Constraint)
	}
	return reqs
}

func earliestUpload(files []releaseFile) *time.Time {
	var out *time.Time
	for _, f := range files {
		ts := f.UploadTimeISO
		if ts == "" {
			ts = f.UploadTime
		}
		if t := integrations.ParseTime(ts); t != nil && (out == nil || t.Before(*out)) {
			out = t
		}
	}
	return out
}

type projectResponse struct {
	Info     projectInfo              `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type projectInfo struct {
	Name         string            `json:"name"`
	Author       string            `json:"author"`
	HomePage     string            `json:"home_page"`
	RequiresDist []string          `json:"requires_dist"`
	ProjectURLs  map[string]string `json:"project_urls"`
}

type releaseFile struct {
	UploadTime    string `json:"upload_time"`
	UploadTimeISO string `json:"upload_time_iso_8601"`
}
