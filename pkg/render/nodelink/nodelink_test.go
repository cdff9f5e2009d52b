package nodelink

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

func sample() *graph.Subgraph {
	sg := graph.NewSubgraph(graph.FileRoot("f1"), version.PyPI)
	sg.Direct = []graph.DirectRequire{{Package: "a", Constraints: ">=1"}}
	sg.Indirect = []graph.IndirectRequire{
		{Package: "b", Constraints: "<2", ParentPackage: "a", ParentVersion: "1.0", ParentSerial: 0},
		{Package: "b", Constraints: ">=2", ParentPackage: "a", ParentVersion: "2.0", ParentSerial: 1},
		{Package: "b", Constraints: ">=2", ParentPackage: "a", ParentVersion: "3.0", ParentSerial: 2},
	}
	sg.Have["a"] = []graph.VersionInfo{{Name: "1.0"}, {Name: "2.0"}, {Name: "3.0"}}
	sg.Have["b"] = []graph.VersionInfo{{Name: "1.0", Vulnerabilities: []string{"CVE-1"}}}
	sg.Depth["a"] = 1
	sg.Depth["b"] = 2
	return sg
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sample(), Options{})

	for _, want := range []string{
		`"f1" [label="f1", shape=folder`,
		`"a" [label="a"];`,
		`"b" [label="b", fillcolor=mistyrose, color=firebrick];`,
		`"f1" -> "a" [label=">=1"];`,
		`"a" -> "b" [label="<2 | >=2"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if n := strings.Count(dot, `"a" -> "b"`); n != 1 {
		t.Errorf("a -> b drawn %d times, want 1", n)
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot := ToDOT(sample(), Options{Detailed: true})
	if !strings.Contains(dot, `label="a\nversions: 3\nvulnerable: 0"`) {
		t.Errorf("detailed label missing:\n%s", dot)
	}
}

func TestToDOTPackageRoot(t *testing.T) {
	sg := graph.NewSubgraph(graph.PackageRoot(version.PyPI, "a"), version.PyPI)
	sg.Direct = []graph.DirectRequire{{Package: "a"}}
	sg.Indirect = []graph.IndirectRequire{{Package: "b", ParentPackage: "a", ParentVersion: "1.0"}}
	sg.Depth["a"] = 1
	sg.Depth["b"] = 2

	dot := ToDOT(sg, Options{})
	if strings.Count(dot, `"a" [`) != 1 {
		t.Errorf("root package drawn more than once:\n%s", dot)
	}
	if !strings.Contains(dot, `"a" -> "b";`) {
		t.Errorf("unlabelled edge missing:\n%s", dot)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"svg", SVG, false},
		{".PNG", PNG, false},
		{"gv", DOT, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRenderDOTPassthrough(t *testing.T) {
	dot := ToDOT(sample(), Options{})
	out, err := Render(context.Background(), dot, DOT)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != dot {
		t.Error("DOT output differs from source")
	}
}

func TestRenderSVG(t *testing.T) {
	out, err := Render(context.Background(), ToDOT(sample(), Options{}), SVG)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Contains(out, []byte("<svg")) {
		t.Errorf("output is not SVG: %.100s", out)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 100.50 200.00"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.50 200.00" width="100" height="200"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox() = %s, want %s", got, want)
	}
}
