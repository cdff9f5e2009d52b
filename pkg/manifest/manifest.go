// Package manifest finds and parses dependency manifests in a repository.
//
// A [Parser] turns one manifest (requirements.txt, pyproject.toml,
// package.json, pom.xml, *.csproj, packages.config, Cargo.toml, Gemfile)
// into the direct requirements it declares, keyed by package name with the
// ecosystem's constraint string. [GitSource] downloads a repository and
// collects every file some parser supports.
package manifest

import (
	"cmp"
	"fmt"
	"path"
	"slices"

	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

// Parser reads direct requirements from one manifest format.
type Parser interface {
	// Ecosystem returns the ecosystem of the declared packages.
	Ecosystem() version.Ecosystem
	// Supports reports whether this parser handles the given base filename.
	Supports(filename string) bool
	// Parse returns package name → constraint for the manifest contents.
	Parse(data []byte) (integrations.Requirements, error)
}

// File is one parsed manifest.
type File struct {
	Name      string                    `json:"name"`
	Ecosystem version.Ecosystem         `json:"ecosystem"`
	Packages  integrations.Requirements `json:"packages"`
}

// Parsers returns every built-in parser. markers filters PyPI requirements
// whose environment markers cannot hold; nil keeps all of them.
func Parsers(markers *version.Markers) []Parser {
	return []Parser{
		&Requirements{markers: markers},
		&Pyproject{markers: markers},
		&PackageJSON{},
		&POM{},
		&CSProj{},
		&PackagesConfig{},
		&CargoToml{},
		&Gemfile{},
	}
}

// Detect returns the first parser that supports the base name of p.
func Detect(p string, parsers ...Parser) (Parser, error) {
	name := path.Base(p)
	for _, parser := range parsers {
		if parser.Supports(name) {
			return parser, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}

// Parse parses every supported file in files, keyed by repository-relative
// path. Unsupported files are ignored; a file that fails to parse is
// reported through logf and skipped. The result is sorted by name.
func Parse(files map[string][]byte, parsers []Parser, logf func(string, ...any)) []File {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	var out []File
	for name, data := range files {
		p, err := Detect(name, parsers...)
		if err != nil {
			continue
		}
		reqs, err := p.Parse(data)
		if err != nil {
			logf("manifest %s: %v", name, err)
			continue
		}
		out = append(out, File{Name: name, Ecosystem: p.Ecosystem(), Packages: reqs})
	}
	slices.SortFunc(out, func(a, b File) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
