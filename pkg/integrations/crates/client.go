package crates

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/chainsat/pkg/buildinfo"
	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const defaultBaseURL = "https://crates.io/api/v1"

// Client provides access to the crates.io package registry API.
//
// crates.io rejects requests without a User-Agent; this client always
// sends one.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a crates.io client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	headers := map[string]string{"User-Agent": buildinfo.UserAgent()}
	return &Client{
		Client:  integrations.NewClient(backend, "cargo", cacheTTL, headers, opts...),
		baseURL: defaultBaseURL,
	}
}

// Ecosystem returns [version.Cargo].
func (c *Client) Ecosystem() version.Ecosystem { return version.Cargo }

// GetVersions returns every published version of crate in serial order.
// Yanked versions are kept: they still appear in existing lockfiles.
func (c *Client) GetVersions(ctx context.Context, crate string, refresh bool) (*integrations.PackageVersions, error) {
	var pv integrations.PackageVersions
	err := c.Cached(ctx, "versions:"+crate, refresh, &pv, func() error {
		var data crateResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/crates/%s", c.baseURL, integrations.PathEscape(crate)), &data); err != nil {
			return err
		}
		raw := make([]integrations.Version, 0, len(data.Versions))
		vendor := ""
		for _, v := range data.Versions {
			raw = append(raw, integrations.Version{Name: v.Num, ReleaseDate: integrations.ParseTime(v.CreatedAt)})
			if vendor == "" && v.PublishedBy != nil {
				vendor = v.PublishedBy.Login
			}
		}
		pv = integrations.PackageVersions{
			Versions:      integrations.Serialize(version.Cargo, raw),
			Vendor:        vendor,
			RepositoryURL: integrations.NormalizeRepoURL(data.Crate.Repository),
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

// GetRequirement returns the normal, non-optional dependencies of crate at
// ver. Dev and build dependencies are skipped.
func (c *Client) GetRequirement(ctx context.Context, crate, ver string) (integrations.Requirements, error) {
	var reqs integrations.Requirements
	err := c.Cached(ctx, "requires:"+crate+"@"+ver, false, &reqs, func() error {
		url := fmt.Sprintf("%s/crates/%s/%s/dependencies", c.baseURL, integrations.PathEscape(crate), integrations.PathEscape(ver))
		var data depsResponse
		if err := c.Get(ctx, url, &data); err != nil {
			return err
		}
		reqs = integrations.Requirements{}
		for _, d := range data.Dependencies {
			if d.Kind == "normal" && !d.Optional {
				reqs.Merge(d.CrateID, d.Req)
			}
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

type crateResponse struct {
	Crate struct {
		Name       string `json:"name"`
		Repository string `json:"repository"`
	} `json:"crate"`
	Versions []struct {
		Num         string `json:"num"`
		CreatedAt   string `json:"created_at"`
		Yanked      bool   `json:"yanked"`
		PublishedBy *struct {
			Login string `json:"login"`
		} `json:"published_by"`
	} `json:"versions"`
}

type depsResponse struct {
	Dependencies []struct {
		CrateID  string `json:"crate_id"`
		Req      string `json:"req"`
		Kind     string `json:"kind"`
		Optional bool   `json:"optional"`
	} `json:"dependencies"`
}
