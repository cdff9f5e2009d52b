package manifest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/version"
)

func assertReqs(t *testing.T, got integrations.Requirements, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("got %d requirements %v, want %d %v", len(got), got, len(want), want)
	}
	for name, c := range want {
		if g, ok := got[name]; !ok || g != c {
			t.Errorf("requirement %q = %q (present %v), want %q", name, g, ok, c)
		}
	}
}

func TestDetect(t *testing.T) {
	parsers := Parsers(nil)
	tests := []struct {
		path string
		eco  version.Ecosystem
		ok   bool
	}{
		{"requirements.txt", version.PyPI, true},
		{"deploy/requirements-dev.txt", version.PyPI, true},
		{"pyproject.toml", version.PyPI, true},
		{"web/package.json", version.NPM, true},
		{"pom.xml", version.Maven, true},
		{"src/App/App.csproj", version.NuGet, true},
		{"packages.config", version.NuGet, true},
		{"Cargo.toml", version.Cargo, true},
		{"Gemfile", version.RubyGems, true},
		{"go.mod", "", false},
		{"README.md", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := Detect(tt.path, parsers...)
			if (err == nil) != tt.ok {
				t.Fatalf("Detect(%q) error = %v, want ok=%v", tt.path, err, tt.ok)
			}
			if tt.ok && p.Ecosystem() != tt.eco {
				t.Errorf("Detect(%q) ecosystem = %s, want %s", tt.path, p.Ecosystem(), tt.eco)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	data := `# pinned
fastapi>=0.100.0
Requests[socks] == 2.31.*  # inline
-r base.txt
git+https://github.com/x/y.git
uvicorn ; python_version < "2.7"
`
	markers, err := version.NewMarkers("3.9")
	if err != nil {
		t.Fatal(err)
	}
	got, err := (&Requirements{markers: markers}).Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"fastapi":  ">=0.100.0",
		"requests": ">=2.31,<2.32",
	})
}

func TestPyproject(t *testing.T) {
	data := `
[project]
dependencies = ["httpx>=0.27", "pydantic~=2.5"]

[tool.poetry.dependencies]
python = "^3.10"
rich = "^13.7.1"
click = { version = "~8.1", optional = false }
tqdm = { version = "*", optional = true }
local = { path = "../local" }
`
	got, err := (&Pyproject{}).Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"httpx":    ">=0.27",
		"pydantic": ">=2.5,<3",
		"rich":     ">=13.7.1,<14.0.0",
		"click":    ">=8.1,<8.2",
	})
}

func TestPoetryConstraint(t *testing.T) {
	tests := []struct{ in, want string }{
		{"^1.2.3", ">=1.2.3,<2.0.0"},
		{"^0.2.3", ">=0.2.3,<0.3.0"},
		{"^0.0.3", ">=0.0.3,<0.0.4"},
		{"~1.2.3", ">=1.2.3,<1.3.0"},
		{"~1", ">=1,<2"},
		{"*", ""},
		{">=1.0,<2.0", ">=1.0,<2.0"},
		{"~=1.4", ">=1.4,<2"},
	}
	for _, tt := range tests {
		if got := PoetryConstraint(tt.in); got != tt.want {
			t.Errorf("PoetryConstraint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPackageJSON(t *testing.T) {
	data := `{
  "name": "app",
  "dependencies": {
    "react": "^18.2.0",
    "@scope/pkg": "~1.0.0",
    "local": "file:../local",
    "forked": "github:me/forked",
    "anything": "*"
  },
  "devDependencies": {"jest": "^29.0.0"}
}`
	got, err := PackageJSON{}.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"react":      "^18.2.0",
		"@scope/pkg": "~1.0.0",
		"anything":   "",
	})
}

func TestCargoToml(t *testing.T) {
	data := `
[package]
name = "app"

[dependencies]
serde = "1.0"
tokio = { version = "1.35", features = ["full"] }
rand = { version = "0.8", optional = true }
local = { path = "../local" }
json = { package = "serde_json", version = "1" }
`
	got, err := CargoToml{}.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"serde":      "1.0",
		"tokio":      "1.35",
		"serde_json": "1",
	})
}

func TestCSProjAndPackagesConfig(t *testing.T) {
	csproj := `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Newtonsoft.Json" Version="13.0.3" />
    <PackageReference Include="Serilog">
      <Version>[3.0,4.0)</Version>
    </PackageReference>
  </ItemGroup>
</Project>`
	got, err := CSProj{}.Parse([]byte(csproj))
	if err != nil {
		t.Fatalf("Parse csproj: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"newtonsoft.json": "13.0.3",
		"serilog":         "[3.0,4.0)",
	})

	config := `<?xml version="1.0" encoding="utf-8"?>
<packages>
  <package id="NUnit" version="3.13.3" targetFramework="net48" />
  <package id="Moq" version="4.18.0" allowedVersions="[4,5)" />
</packages>`
	got, err = PackagesConfig{}.Parse([]byte(config))
	if err != nil {
		t.Fatalf("Parse packages.config: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"nunit": "[3.13.3]",
		"moq":   "[4,5)",
	})
}

func TestGemfile(t *testing.T) {
	data := `source "https://rubygems.org"
# gem "commented"
gem "rails", "~> 7.1", ">= 7.1.2"
gem 'puma'
gem "pg", "1.5.4", require: false
gem "local", path: "../local"
`
	got, err := Gemfile{}.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assertReqs(t, got, map[string]string{
		"rails": "~> 7.1, >= 7.1.2",
		"puma":  "",
		"pg":    "1.5.4",
		"local": "",
	})
}

func TestParseSortsAndSkips(t *testing.T) {
	var logged []string
	files := map[string][]byte{
		"requirements.txt": []byte("fastapi>=0.100.0\n"),
		"b/package.json":   []byte(`{"dependencies":{"react":"^18"}}`),
		"a/Cargo.toml":     []byte("not = [toml"),
		"README.md":        []byte("# hi"),
	}
	got := Parse(files, Parsers(nil), func(f string, args ...any) { logged = append(logged, f) })
	if len(got) != 2 {
		t.Fatalf("Parse returned %d files, want 2", len(got))
	}
	if got[0].Name != "b/package.json" || got[1].Name != "requirements.txt" {
		t.Errorf("order = %s, %s", got[0].Name, got[1].Name)
	}
	if got[1].Ecosystem != version.PyPI || got[1].Packages["fastapi"] != ">=0.100.0" {
		t.Errorf("requirements.txt = %+v", got[1])
	}
	if len(logged) != 1 {
		t.Errorf("logged %d failures, want 1", len(logged))
	}
}

func TestCollect(t *testing.T) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{
		"requirements.txt":                "fastapi>=0.100.0\n",
		"web/package.json":                `{"dependencies":{"react":"^18"}}`,
		"web/node_modules/x/package.json": `{}`,
		"main.py":                         "print('hi')\n",
	} {
		if err := util.WriteFile(fs, name, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
	}
	when := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	hash, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: when},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := collect(repo, Parsers(nil))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if snap.Commit != hash.String() {
		t.Errorf("Commit = %s, want %s", snap.Commit, hash)
	}
	if !snap.CommitTime.Equal(when) {
		t.Errorf("CommitTime = %v, want %v", snap.CommitTime, when)
	}
	if len(snap.Files) != 2 {
		t.Errorf("Files = %v, want requirements.txt and web/package.json", keys(snap.Files))
	}
	if string(snap.Files["requirements.txt"]) != "fastapi>=0.100.0\n" {
		t.Errorf("requirements.txt = %q", snap.Files["requirements.txt"])
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{"o/r": {Commit: "abc"}}
	if snap, err := src.Snapshot(context.Background(), "o", "r"); err != nil || snap.Commit != "abc" {
		t.Errorf("Snapshot = (%v, %v)", snap, err)
	}
	if _, err := src.Snapshot(context.Background(), "o", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Snapshot(missing) error = %v, want ErrNotFound", err)
	}
}
