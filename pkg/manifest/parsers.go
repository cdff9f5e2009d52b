package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/integrations/maven"
	"github.com/matzehuels/chainsat/pkg/version"
)

// PackageJSON parses the runtime dependencies of an npm package.json.
type PackageJSON struct{}

func (PackageJSON) Ecosystem() version.Ecosystem { return version.NPM }
func (PackageJSON) Supports(name string) bool     { return strings.EqualFold(name, "package.json") }

func (PackageJSON) Parse(data []byte) (integrations.Requirements, error) {
	var pkg struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	reqs := integrations.Requirements{}
	for name, c := range pkg.Dependencies {
		if !registryRange(c) {
			continue
		}
		if c == "*" || c == "latest" {
			c = ""
		}
		reqs.Merge(name, strings.TrimSpace(c))
	}
	return reqs, nil
}

// registryRange reports whether an npm dependency value is a version range
// rather than a URL, path, alias or workspace reference.
func registryRange(c string) bool {
	for _, p := range []string{"file:", "link:", "workspace:", "npm:", "git", "http:", "https:", "github:"} {
		if strings.HasPrefix(c, p) {
			return false
		}
	}
	return !strings.Contains(c, "/")
}

// CargoToml parses [dependencies] of a Cargo manifest. Path, git and
// optional dependencies are skipped; renamed dependencies use their
// package name.
type CargoToml struct{}

func (CargoToml) Ecosystem() version.Ecosystem { return version.Cargo }
func (CargoToml) Supports(name string) bool     { return strings.EqualFold(name, "cargo.toml") }

func (CargoToml) Parse(data []byte) (integrations.Requirements, error) {
	var cargo struct {
		Dependencies map[string]any `toml:"dependencies"`
	}
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, fmt.Errorf("parse Cargo.toml: %w", err)
	}
	reqs := integrations.Requirements{}
	for name, spec := range cargo.Dependencies {
		switch s := spec.(type) {
		case string:
			reqs.Merge(name, s)
		case map[string]any:
			if opt, _ := s["optional"].(bool); opt {
				continue
			}
			c, ok := s["version"].(string)
			if !ok {
				continue
			}
			if pkg, ok := s["package"].(string); ok && pkg != "" {
				name = pkg
			}
			reqs.Merge(name, c)
		}
	}
	return reqs, nil
}

// POM parses a Maven pom.xml. Names are "groupId:artifactId".
type POM struct{}

func (POM) Ecosystem() version.Ecosystem { return version.Maven }
func (POM) Supports(name string) bool     { return name == "pom.xml" }

func (POM) Parse(data []byte) (integrations.Requirements, error) {
	return maven.ParsePOM(data)
}

// CSProj parses PackageReference items of an MSBuild project.
type CSProj struct{}

func (CSProj) Ecosystem() version.Ecosystem { return version.NuGet }

func (CSProj) Supports(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".csproj") || strings.HasSuffix(lower, ".fsproj") ||
		strings.HasSuffix(lower, ".vbproj")
}

func (CSProj) Parse(data []byte) (integrations.Requirements, error) {
	var proj struct {
		ItemGroups []struct {
			References []struct {
				Include      string `xml:"Include,attr"`
				Version      string `xml:"Version,attr"`
				VersionValue string `xml:"Version"`
			} `xml:"PackageReference"`
		} `xml:"ItemGroup"`
	}
	if err := xml.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	reqs := integrations.Requirements{}
	for _, g := range proj.ItemGroups {
		for _, ref := range g.References {
			if ref.Include == "" {
				continue
			}
			c := ref.Version
			if c == "" {
				c = ref.VersionValue
			}
			reqs.Merge(strings.ToLower(ref.Include), strings.TrimSpace(c))
		}
	}
	return reqs, nil
}

// PackagesConfig parses the legacy NuGet packages.config.
type PackagesConfig struct{}

func (PackagesConfig) Ecosystem() version.Ecosystem { return version.NuGet }
func (PackagesConfig) Supports(name string) bool     { return strings.EqualFold(name, "packages.config") }

func (PackagesConfig) Parse(data []byte) (integrations.Requirements, error) {
	var cfg struct {
		Packages []struct {
			ID      string `xml:"id,attr"`
			Version string `xml:"version,attr"`
			Allowed string `xml:"allowedVersions,attr"`
		} `xml:"package"`
	}
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse packages.config: %w", err)
	}
	reqs := integrations.Requirements{}
	for _, p := range cfg.Packages {
		if p.ID == "" {
			continue
		}
		c := p.Allowed
		if c == "" {
			c = "[" + p.Version + "]"
		}
		reqs.Merge(strings.ToLower(p.ID), c)
	}
	return reqs, nil
}

// Gemfile parses gem declarations of a Bundler Gemfile.
type Gemfile struct{}

func (Gemfile) Ecosystem() version.Ecosystem { return version.RubyGems }
func (Gemfile) Supports(name string) bool     { return name == "Gemfile" }

var (
	gemRE    = regexp.MustCompile(`^\s*gem\s+['"]([^'"]+)['"]((?:\s*,\s*['"][^'"]*['"])*)`)
	gemReqRE = regexp.MustCompile(`['"]([^'"]*)['"]`)
)

func (Gemfile) Parse(data []byte) (integrations.Requirements, error) {
	reqs := integrations.Requirements{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		m := gemRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var clauses []string
		for _, r := range gemReqRE.FindAllStringSubmatch(m[2], -1) {
			if c := strings.TrimSpace(r[1]); c != "" {
				clauses = append(clauses, c)
			}
		}
		reqs.Merge(m[1], strings.Join(clauses, ", "))
	}
	return reqs, scanner.Err()
}
