package nuget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const defaultBaseURL = "https://api.nuget.org/v3/registration5-gz-semver2"

// Client provides access to the NuGet v3 registration API.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a NuGet client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "nuget", cacheTTL, nil, opts...),
		baseURL: defaultBaseURL,
	}
}

// Ecosystem returns [version.NuGet].
func (c *Client) Ecosystem() version.Ecosystem { return version.NuGet }

// GetVersions returns every registered version of id in serial order.
func (c *Client) GetVersions(ctx context.Context, id string, refresh bool) (*integrations.PackageVersions, error) {
	entries, err := c.catalog(ctx, id, refresh)
	if integrations.Empty(err) {
		return &integrations.PackageVersions{}, nil
	}
	if err != nil {
		return nil, err
	}

	pv := &integrations.PackageVersions{}
	raw := make([]integrations.Version, 0, len(entries))
	for _, e := range entries {
		raw = append(raw, integrations.Version{Name: e.Version, ReleaseDate: integrations.ParseTime(e.Published)})
		if pv.Vendor == "" {
			pv.Vendor = joinAuthors(e.Authors)
		}
		if pv.RepositoryURL == "" {
			pv.RepositoryURL = integrations.FirstRepoURL(nil, e.ProjectURL)
		}
	}
	pv.Versions = integrations.Serialize(version.NuGet, raw)
	return pv, nil
}

// GetRequirement returns the dependencies of id at ver across all target
// framework groups. The first range seen for a dependency id wins.
func (c *Client) GetRequirement(ctx context.Context, id, ver string) (integrations.Requirements, error) {
	entries, err := c.catalog(ctx, id, false)
	if integrations.Empty(err) {
		return integrations.Requirements{}, nil
	}
	if err != nil {
		return nil, err
	}

	reqs := integrations.Requirements{}
	for _, e := range entries {
		if !strings.EqualFold(e.Version, ver) {
			continue
		}
		for _, g := range e.DependencyGroups {
			for _, d := range g.Dependencies {
				name := strings.ToLower(d.ID)
				if _, seen := reqs[name]; !seen {
					reqs[name] = strings.TrimSpace(d.Range)
				}
			}
		}
		break
	}
	return reqs, nil
}

// catalog returns every catalog entry of id. Registration pages are either
// inlined in the index or fetched by their @id.
func (c *Client) catalog(ctx context.Context, id string, refresh bool) ([]catalogEntry, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	var entries []catalogEntry
	err := c.Cached(ctx, "catalog:"+id, refresh, &entries, func() error {
		var index registrationIndex
		if err := c.Get(ctx, fmt.Sprintf("%s/%s/index.json", c.baseURL, integrations.PathEscape(id)), &index); err != nil {
			return err
		}
		entries = nil
		for _, page := range index.Items {
			leaves := page.Items
			if leaves == nil && page.ID != "" {
				var full registrationPage
				if err := c.Get(ctx, page.ID, &full); err != nil {
					return err
				}
				leaves = full.Items
			}
			for _, leaf := range leaves {
				entries = append(entries, leaf.CatalogEntry)
			}
		}
		return nil
	})
	return entries, err
}

func joinAuthors(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case []any:
		parts := make([]string, 0, len(a))
		for _, s := range a {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

type registrationIndex struct {
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Lower string             `json:"lower"`
	Upper string             `json:"upper"`
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	CatalogEntry catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	Version          string            `json:"version"`
	Published        string            `json:"published"`
	Authors          any               `json:"authors"`
	ProjectURL       string            `json:"projectUrl"`
	DependencyGroups []dependencyGroup `json:"dependencyGroups"`
}

type dependencyGroup struct {
	TargetFramework string       `json:"targetFramework"`
	Dependencies    []dependency `json:"dependencies"`
}

type dependency struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}
