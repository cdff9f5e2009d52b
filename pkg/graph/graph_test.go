package graph

import (
	"testing"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

func TestFresh(t *testing.T) {
	now := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		moment time.Time
		want   bool
	}{
		{"zero", time.Time{}, false},
		{"just refreshed", now, true},
		{"nine days", now.Add(-9 * 24 * time.Hour), true},
		{"exactly ten days", now.Add(-RefreshWindow), false},
		{"eleven days", now.Add(-11 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fresh(tt.moment, now); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPackageMaven(t *testing.T) {
	p := NewPackage(version.Maven, "org.slf4j:slf4j-api")
	if p.GroupID != "org.slf4j" || p.ArtifactID != "slf4j-api" {
		t.Errorf("NewPackage() = %+v", p)
	}
	if p := NewPackage(version.PyPI, "a:b"); p.GroupID != "" {
		t.Errorf("non-Maven package should not split: %+v", p)
	}
}

func TestRootID(t *testing.T) {
	if got := FileRoot("f1").ID(); got != "f1" {
		t.Errorf("FileRoot ID = %q", got)
	}
	if got := PackageRoot(version.NPM, "react").ID(); got != "NPM:react" {
		t.Errorf("PackageRoot ID = %q", got)
	}
	if got := VersionRoot(version.NPM, "react", "18.0.0").ID(); got != "NPM:react@18.0.0" {
		t.Errorf("VersionRoot ID = %q", got)
	}
}

func TestAggregator(t *testing.T) {
	v := VersionInfo{Mean: 2, WeightedMean: 3}
	if agg, ok := ParseAggregator(""); !ok || agg.Impact(v) != 2 {
		t.Error("default aggregator should be mean")
	}
	if agg, ok := ParseAggregator("weighted_mean"); !ok || agg.Impact(v) != 3 {
		t.Error("weighted_mean aggregator")
	}
	if _, ok := ParseAggregator("max"); ok {
		t.Error("unknown aggregator accepted")
	}
}

func TestSubgraphSort(t *testing.T) {
	sg := NewSubgraph(FileRoot("f"), version.PyPI)
	sg.Direct = []DirectRequire{{Package: "b"}, {Package: "a"}}
	sg.Have["a"] = []VersionInfo{{Name: "2", Serial: 1}, {Name: "x", Serial: -1}, {Name: "1", Serial: 0}}
	sg.Sort()
	if sg.Direct[0].Package != "a" {
		t.Errorf("direct not sorted: %+v", sg.Direct)
	}
	if sg.Have["a"][0].Serial != -1 || sg.Have["a"][2].Serial != 1 {
		t.Errorf("have not sorted: %+v", sg.Have["a"])
	}
}
