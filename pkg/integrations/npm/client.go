package npm

import (
	"context"
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const defaultBaseURL = "https://registry.npmjs.org"

// Client provides access to the npm registry.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an npm client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "npm", cacheTTL, nil, opts...),
		baseURL: defaultBaseURL,
	}
}

// Ecosystem returns [version.NPM].
func (c *Client) Ecosystem() version.Ecosystem { return version.NPM }

// GetVersions returns every published version of name in serial order.
// Release dates come from the document's time map.
func (c *Client) GetVersions(ctx context.Context, name string, refresh bool) (*integrations.PackageVersions, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	var pv integrations.PackageVersions
	err := c.Cached(ctx, "versions:"+name, refresh, &pv, func() error {
		var data packument
		if err := c.Get(ctx, c.packageURL(name), &data); err != nil {
			return err
		}
		raw := make([]integrations.Version, 0, len(data.Versions))
		for v := range data.Versions {
			raw = append(raw, integrations.Version{Name: v, ReleaseDate: integrations.ParseTime(data.Time[v])})
		}
		latest := data.Versions[data.DistTags.Latest]
		pv = integrations.PackageVersions{
			Versions:      integrations.Serialize(version.NPM, raw),
			Vendor:        extractField(data.Author, "name"),
			RepositoryURL: integrations.NormalizeRepoURL(extractField(data.Repository, "url")),
		}
		if pv.Vendor == "" {
			pv.Vendor = extractField(latest.Author, "name")
		}
		if pv.RepositoryURL == "" {
			pv.RepositoryURL = integrations.NormalizeRepoURL(extractField(latest.Repository, "url"))
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

// GetRequirement returns the runtime dependencies of name at ver.
func (c *Client) GetRequirement(ctx context.Context, name, ver string) (integrations.Requirements, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	var reqs integrations.Requirements
	err := c.Cached(ctx, "requires:"+name+"@"+ver, false, &reqs, func() error {
		var data versionDetails
		if err := c.Get(ctx, c.packageURL(name)+"/"+integrations.PathEscape(ver), &data); err != nil {
			return err
		}
		reqs = integrations.Requirements{}
		for dep, constraint := range data.Dependencies {
			reqs.Merge(dep, strings.TrimSpace(constraint))
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

// packageURL encodes the scope separator of "@scope/name" as %2F.
func (c *Client) packageURL(name string) string {
	return c.baseURL + "/" + strings.ReplaceAll(name, "/", "%2F")
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type packument struct {
	Name       string                    `json:"name"`
	DistTags   distTags                  `json:"dist-tags"`
	Versions   map[string]versionDetails `json:"versions"`
	Time       map[string]string         `json:"time"`
	Author     any                       `json:"author"`
	Repository any                       `json:"repository"`
}

type distTags struct {
	Latest string `json:"latest"`
}

type versionDetails struct {
	Author       any               `json:"author"`
	Repository   any               `json:"repository"`
	Dependencies map[string]string `json:"dependencies"`
}
