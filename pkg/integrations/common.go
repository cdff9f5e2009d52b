package integrations

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

const httpTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrDecode is returned when a registry payload cannot be decoded.
	ErrDecode = errors.New("decode failure")
)

// Empty reports whether err means "return the empty result": the resource
// is absent upstream or its payload could not be decoded.
func Empty(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDecode)
}

// Version is one release of a package as reported by a registry.
type Version struct {
	Name        string     `json:"name"`
	Serial      int        `json:"serial_number"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// PackageVersions is the registry's view of a package.
type PackageVersions struct {
	Versions      []Version `json:"versions"`
	Vendor        string    `json:"vendor,omitempty"`
	RepositoryURL string    `json:"repository_url,omitempty"`
}

// Names returns the version names in serial order.
func (p *PackageVersions) Names() []string {
	out := make([]string, len(p.Versions))
	for i, v := range p.Versions {
		out[i] = v.Name
	}
	return out
}

// Requirements maps a dependency's package name to its constraint string.
type Requirements map[string]string

// Registry is the read-only interface every ecosystem client implements.
//
// GetVersions returns the versions sorted by serial number. Absent packages
// and undecodable payloads yield an empty result, not an error; only
// context cancellation ends the transport retry loop.
type Registry interface {
	Ecosystem() version.Ecosystem
	GetVersions(ctx context.Context, name string, refresh bool) (*PackageVersions, error)
	GetRequirement(ctx context.Context, name, ver string) (Requirements, error)
}

// Serialize assigns serial numbers to raw with the ecosystem's algebra and
// returns the versions in serial order, unparseable ones first.
func Serialize(eco version.Ecosystem, raw []Version) []Version {
	alg := version.MustFor(eco)
	dates := make(map[string]*time.Time, len(raw))
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if _, dup := dates[v.Name]; !dup {
			names = append(names, v.Name)
		}
		dates[v.Name] = v.ReleaseDate
	}
	assigned := version.AssignSerials(alg, names)
	out := make([]Version, len(assigned))
	for i, a := range assigned {
		out[i] = Version{Name: a.Name, Serial: a.Serial, ReleaseDate: dates[a.Name]}
	}
	return out
}

// Merge adds constraint for name, OR-ing it with an existing one. An empty
// constraint on either side means any version.
func (r Requirements) Merge(name, constraint string) {
	prev, ok := r[name]
	switch {
	case !ok:
		r[name] = constraint
	case prev == "" || constraint == "" || prev == constraint:
		if constraint == "" {
			r[name] = ""
		}
	default:
		r[name] = prev + "||" + constraint
	}
}

// Sorted returns the requirement names in lexical order.
func (r Requirements) Sorted() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// ParseTime parses an RFC 3339 timestamp, returning nil on failure.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"git+ssh://git@github.com/", "https://github.com/",
	"ssh://git@github.com/", "https://github.com/",
)

// NormalizeRepoURL converts various repository URL formats to canonical HTTPS form.
// Handles git@, git://, and git+ prefixes, and removes .git suffixes.
// Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = repoURLReplacer.Replace(s)
	s = strings.TrimPrefix(s, "git+")
	return strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
}

var repoURLKeys = []string{"Source", "Source Code", "Repository", "Code", "Homepage"}

// FirstRepoURL returns the first GitHub or GitLab URL among urls, checking
// the conventional keys first.
func FirstRepoURL(urls map[string]string, fallbacks ...string) string {
	isRepo := func(u string) bool {
		return (strings.Contains(u, "github.com/") || strings.Contains(u, "gitlab.com/")) &&
			!strings.Contains(u, "/sponsors/")
	}
	for _, key := range repoURLKeys {
		if u, ok := urls[key]; ok && isRepo(u) {
			return NormalizeRepoURL(u)
		}
	}
	keys := make([]string, 0, len(urls))
	for k := range urls {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if isRepo(urls[k]) {
			return NormalizeRepoURL(urls[k])
		}
	}
	for _, u := range fallbacks {
		if isRepo(u) {
			return NormalizeRepoURL(u)
		}
	}
	return ""
}

// PathEscape percent-encodes a path segment.
func PathEscape(s string) string { return url.PathEscape(s) }
