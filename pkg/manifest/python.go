package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

// Requirements parses pip requirements files.
type Requirements struct {
	markers *version.Markers
}

func (r *Requirements) Ecosystem() version.Ecosystem { return version.PyPI }

func (r *Requirements) Supports(name string) bool {
	return strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt")
}

func (r *Requirements) Parse(data []byte) (integrations.Requirements, error) {
	reqs := integrations.Requirements{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		if req, ok := version.ParseRequirement(line, r.markers); ok {
			reqs.Merge(req.Name, req.Constraint)
		}
	}
	return reqs, scanner.Err()
}

// Pyproject parses PEP 621 [project] dependencies and Poetry's
// [tool.poetry.dependencies] table.
type Pyproject struct {
	markers *version.Markers
}

func (p *Pyproject) Ecosystem() version.Ecosystem { return version.PyPI }
func (p *Pyproject) Supports(name string) bool     { return name == "pyproject.toml" }

type pyprojectFile struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *Pyproject) Parse(data []byte) (integrations.Requirements, error) {
	var f pyprojectFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pyproject.toml: %w", err)
	}
	reqs := integrations.Requirements{}
	for _, line := range f.Project.Dependencies {
		if req, ok := version.ParseRequirement(line, p.markers); ok {
			reqs.Merge(req.Name, req.Constraint)
		}
	}
	for name, spec := range f.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		c, ok := poetrySpec(spec)
		if !ok {
			continue
		}
		reqs.Merge(version.NormalizeName(name), PoetryConstraint(c))
	}
	return reqs, nil
}

// poetrySpec extracts the version string from a Poetry dependency value,
// which is either a string or a table. Path, git and optional table
// entries are skipped.
func poetrySpec(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case map[string]any:
		if opt, _ := s["optional"].(bool); opt {
			return "", false
		}
		c, ok := s["version"].(string)
		return c, ok
	}
	return "", false
}

// PoetryConstraint rewrites Poetry's caret and tilde requirements into
// PEP 440 comparisons. Other clauses pass through the PEP 440 normalizer.
func PoetryConstraint(c string) string {
	var out []string
	for _, clause := range strings.Split(c, ",") {
		clause = strings.TrimSpace(clause)
		switch {
		case clause == "" || clause == "*":
		case strings.HasPrefix(clause, "^"):
			out = append(out, caretBounds(strings.TrimSpace(clause[1:]))...)
		case strings.HasPrefix(clause, "~") && !strings.HasPrefix(clause, "~="):
			out = append(out, tildeBounds(strings.TrimSpace(clause[1:]))...)
		default:
			out = append(out, clause)
		}
	}
	return version.NormalizeSpecifier(strings.Join(out, ","))
}

func releaseInts(v string) ([]int, bool) {
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, len(out) > 0
}

func joinInts(ns []int) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ".")
}

// caretBounds: ^1.2.3 → >=1.2.3,<2.0.0; ^0.2.3 → >=0.2.3,<0.3.0.
func caretBounds(v string) []string {
	parts, ok := releaseInts(v)
	if !ok {
		return []string{">=" + v}
	}
	upper := make([]int, len(parts))
	i := 0
	for i < len(parts)-1 && parts[i] == 0 {
		i++
	}
	copy(upper, parts[:i])
	upper[i] = parts[i] + 1
	return []string{">=" + v, "<" + joinInts(upper)}
}

// tildeBounds: ~1.2.3 → >=1.2.3,<1.3.0; ~1 → >=1,<2.
func tildeBounds(v string) []string {
	parts, ok := releaseInts(v)
	if !ok {
		return []string{">=" + v}
	}
	i := 1
	if len(parts) == 1 {
		i = 0
	}
	upper := make([]int, len(parts))
	copy(upper, parts[:i])
	upper[i] = parts[i] + 1
	return []string{">=" + v, "<" + joinInts(upper)}
}
