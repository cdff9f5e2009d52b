package rubygems

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const defaultBaseURL = "https://rubygems.org/api"

// Client provides access to the RubyGems package registry API.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a RubyGems client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "rubygems", cacheTTL, nil, opts...),
		baseURL: defaultBaseURL,
	}
}

// Ecosystem returns [version.RubyGems].
func (c *Client) Ecosystem() version.Ecosystem { return version.RubyGems }

// GetVersions returns the pure-Ruby releases of gem in serial order.
// Platform builds (java, x86_64-linux, ...) share a version number with the
// ruby platform release and are dropped.
func (c *Client) GetVersions(ctx context.Context, gem string, refresh bool) (*integrations.PackageVersions, error) {
	gem = strings.ToLower(strings.TrimSpace(gem))

	var pv integrations.PackageVersions
	err := c.Cached(ctx, "versions:"+gem, refresh, &pv, func() error {
		var data []versionResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/v1/versions/%s.json", c.baseURL, integrations.PathEscape(gem)), &data); err != nil {
			return err
		}
		raw := make([]integrations.Version, 0, len(data))
		authors := ""
		for _, v := range data {
			if v.Platform != "" && v.Platform != "ruby" {
				continue
			}
			raw = append(raw, integrations.Version{Name: v.Number, ReleaseDate: integrations.ParseTime(v.CreatedAt)})
			if authors == "" {
				authors = v.Authors
			}
		}
		pv = integrations.PackageVersions{
			Versions:      integrations.Serialize(version.RubyGems, raw),
			Vendor:        authors,
			RepositoryURL: c.repositoryURL(ctx, gem),
		}
		return nil
	})
	if integrations.Empty(err) {
		return &integrations.PackageVersions{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

// repositoryURL reads the gem summary. A missing summary is not an error.
func (c *Client) repositoryURL(ctx context.Context, gem string) string {
	var data gemResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/v1/gems/%s.json", c.baseURL, integrations.PathEscape(gem)), &data); err != nil {
		return ""
	}
	return integrations.FirstRepoURL(map[string]string{
		"Source": data.SourceCodeURI,
		"Code":   data.HomepageURI,
	})
}

// GetRequirement returns the runtime dependencies of gem at ver.
func (c *Client) GetRequirement(ctx context.Context, gem, ver string) (integrations.Requirements, error) {
	gem = strings.ToLower(strings.TrimSpace(gem))

	var reqs integrations.Requirements
	err := c.Cached(ctx, "requires:"+gem+"@"+ver, false, &reqs, func() error {
		url := fmt.Sprintf("%s/v2/rubygems/%s/versions/%s.json", c.baseURL, integrations.PathEscape(gem), integrations.PathEscape(ver))
		var data versionDetails
		if err := c.Get(ctx, url, &data); err != nil {
			return err
		}
		reqs = integrations.Requirements{}
		for _, d := range data.Dependencies.Runtime {
			reqs.Merge(d.Name, strings.TrimSpace(d.Requirements))
		}
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

type versionResponse struct {
	Number    string `json:"number"`
	Platform  string `json:"platform"`
	CreatedAt string `json:"created_at"`
	Authors   string `json:"authors"`
}

type gemResponse struct {
	SourceCodeURI string `json:"source_code_uri"`
	HomepageURI   string `json:"homepage_uri"`
}

type versionDetails struct {
	Dependencies struct {
		Runtime []dependency `json:"runtime"`
	} `json:"dependencies"`
}

type dependency struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements"`
}
