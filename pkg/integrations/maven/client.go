package maven

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

const (
	defaultSearchURL = "https://search.maven.org/solrsearch/select"
	defaultRepoURL   = "https://repo1.maven.org/maven2"

	pageSize = 200
)

var propertyRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// Client provides access to Maven Central.
//
// Package names are "groupId:artifactId" coordinates.
type Client struct {
	*integrations.Client
	searchURL string
	repoURL   string
}

// NewClient creates a Maven Central client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...integrations.Option) *Client {
	return &Client{
		Client:    integrations.NewClient(backend, "maven", cacheTTL, nil, opts...),
		searchURL: defaultSearchURL,
		repoURL:   defaultRepoURL,
	}
}

// Ecosystem returns [version.Maven].
func (c *Client) Ecosystem() version.Ecosystem { return version.Maven }

// GetVersions pages through the search API's GAV core, 200 rows at a time.
// The vendor is the group id.
func (c *Client) GetVersions(ctx context.Context, coordinate string, refresh bool) (*integrations.PackageVersions, error) {
	groupID, artifactID, err := ParseCoordinate(coordinate)
	if err != nil {
		return &integrations.PackageVersions{}, nil
	}

	var pv integrations.PackageVersions
	err = c.Cached(ctx, "versions:"+coordinate, refresh, &pv, func() error {
		var raw []integrations.Version
		for start := 0; ; start += pageSize {
			var resp searchResponse
			if err := c.Get(ctx, c.searchPage(groupID, artifactID, start), &resp); err != nil {
				return err
			}
			for _, d := range resp.Response.Docs {
				v := integrations.Version{Name: d.Version}
				if d.Timestamp > 0 {
					t := time.UnixMilli(d.Timestamp).UTC()
					v.ReleaseDate = &t
				}
				raw = append(raw, v)
			}
			if len(resp.Response.Docs) < pageSize || start+pageSize >= resp.Response.NumFound {
				break
			}
		}
		pv = integrations.PackageVersions{
			Versions: integrations.Serialize(version.Maven, raw),
			Vendor:   groupID,
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

func (c *Client) searchPage(groupID, artifactID string, start int) string {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("g:%q AND a:%q", groupID, artifactID))
	q.Set("core", "gav")
	q.Set("rows", fmt.Sprint(pageSize))
	q.Set("start", fmt.Sprint(start))
	q.Set("wt", "json")
	return c.searchURL + "?" + q.Encode()
}

// GetRequirement reads the POM of coordinate at ver and returns its
// compile and runtime dependencies keyed by "groupId:artifactId".
//
// Test, provided and optional dependencies are skipped. ${property}
// references are resolved from the POM's properties; a version that still
// references an unknown property becomes the empty (any) constraint.
func (c *Client) GetRequirement(ctx context.Context, coordinate, ver string) (integrations.Requirements, error) {
	groupID, artifactID, err := ParseCoordinate(coordinate)
	if err != nil {
		return integrations.Requirements{}, nil
	}

	var reqs integrations.Requirements
	err = c.Cached(ctx, "requires:"+coordinate+"@"+ver, false, &reqs, func() error {
		var pom pomProject
		if err := c.GetXML(ctx, c.pomURL(groupID, artifactID, ver), &pom); err != nil {
			return err
		}
		reqs = extractDeps(&pom, ver)
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

func (c *Client) pomURL(groupID, artifactID, ver string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s.pom",
		c.repoURL, strings.ReplaceAll(groupID, ".", "/"), artifactID, ver, artifactID, ver)
}

func extractDeps(pom *pomProject, ver string) integrations.Requirements {
	props := pom.properties(ver)
	reqs := integrations.Requirements{}
	for _, dep := range pom.Dependencies {
		if dep.Scope == "test" || dep.Scope == "provided" || dep.Scope == "system" {
			continue
		}
		if strings.TrimSpace(dep.Optional) == "true" {
			continue
		}
		group := resolve(dep.GroupID, props)
		artifact := resolve(dep.ArtifactID, props)
		if group == "" || artifact == "" || strings.Contains(group+artifact, "${") {
			continue
		}
		constraint := resolve(dep.Version, props)
		if strings.Contains(constraint, "${") {
			constraint = ""
		}
		reqs.Merge(group+":"+artifact, constraint)
	}
	return reqs
}

// ParsePOM returns the dependencies declared by a project POM, resolving
// properties against the POM's own version.
func ParsePOM(data []byte) (integrations.Requirements, error) {
	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, fmt.Errorf("parse pom: %w", err)
	}
	ver := pom.Version
	if ver == "" {
		ver = pom.Parent.Version
	}
	return extractDeps(&pom, ver), nil
}

func resolve(s string, props map[string]string) string {
	s = strings.TrimSpace(s)
	return propertyRE.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := props[m[2:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// ParseCoordinate splits "groupId:artifactId".
func ParseCoordinate(coord string) (groupID, artifactID string, err error) {
	parts := strings.Split(coord, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid maven coordinate %q (expected groupId:artifactId)", coord)
	}
	return parts[0], parts[1], nil
}

type searchResponse struct {
	Response struct {
		NumFound int         `json:"numFound"`
		Docs     []searchDoc `json:"docs"`
	} `json:"response"`
}

type searchDoc struct {
	GroupID    string `json:"g"`
	ArtifactID string `json:"a"`
	Version    string `json:"v"`
	Timestamp  int64  `json:"timestamp"`
}

type pomProject struct {
	GroupID      string          `xml:"groupId"`
	ArtifactID   string          `xml:"artifactId"`
	Version      string          `xml:"version"`
	Parent       pomParent       `xml:"parent"`
	Properties   pomProperties   `xml:"properties"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

// properties returns the POM's declared properties plus the project.*
// builtins.
func (p *pomProject) properties(ver string) map[string]string {
	props := make(map[string]string, len(p.Properties.Entries)+4)
	for _, e := range p.Properties.Entries {
		props[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	group := p.GroupID
	if group == "" {
		group = p.Parent.GroupID
	}
	props["project.version"] = ver
	props["pom.version"] = ver
	props["version"] = ver
	props["project.groupId"] = group
	if p.Parent.Version != "" {
		props["project.parent.version"] = p.Parent.Version
	}
	return props
}

type pomParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomProperties struct {
	Entries []pomProperty `xml:",any"`
}

type pomProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}
