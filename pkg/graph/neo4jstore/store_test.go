package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"memory pool", &neo4j.Neo4jError{Code: "Neo.TransientError.General.MemoryPoolOutOfMemoryError", Msg: "oom"}, true},
		{"tx timeout", &neo4j.Neo4jError{Code: "Neo.ClientError.Transaction.TransactionTimedOut", Msg: "slow"}, true},
		{"wrapped", fmt.Errorf("read: %w", &neo4j.Neo4jError{Code: "Neo.TransientError.General.MemoryPoolOutOfMemoryError"}), true},
		{"syntax", &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(translate(tt.err), graph.ErrMemoryExhausted)
			if got != tt.want {
				t.Errorf("translate(%v) memory exhausted = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestValueHelpers(t *testing.T) {
	if got := asInt(int64(7)); got != 7 {
		t.Errorf("asInt = %d, want 7", got)
	}
	if got := asFloat(int64(2)); got != 2 {
		t.Errorf("asFloat = %v, want 2", got)
	}
	if got := asString(nil); got != "" {
		t.Errorf("asString(nil) = %q", got)
	}
	if got := asStrings([]any{"a", 1, "b"}); len(got) != 2 || got[1] != "b" {
		t.Errorf("asStrings = %v", got)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	if got := asTime(now); !got.Equal(now) || got.Location() != time.UTC {
		t.Errorf("asTime = %v", got)
	}
	if got := asTime("nope"); !got.IsZero() {
		t.Errorf("asTime(string) = %v, want zero", got)
	}
}

func TestVersionParams(t *testing.T) {
	rd := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	got := versionParams([]graph.Version{
		{Name: "1.0", Serial: 0, ReleaseDate: &rd},
		{Name: "2.0", Serial: 1, Vulnerabilities: []string{"CVE-1"}},
	})
	if got[0]["release_date"] != rd {
		t.Errorf("release_date = %v", got[0]["release_date"])
	}
	if got[1]["release_date"] != nil {
		t.Errorf("release_date = %v, want nil", got[1]["release_date"])
	}
	if got[1]["serial_number"] != int64(1) {
		t.Errorf("serial_number = %#v", got[1]["serial_number"])
	}
	if v, ok := got[0]["vulnerabilities"].([]string); !ok || v == nil {
		t.Errorf("vulnerabilities = %#v, want empty list", got[0]["vulnerabilities"])
	}
}

// TestStoreLive exercises a real server; set CHAINSAT_TEST_NEO4J_URI to run.
func TestStoreLive(t *testing.T) {
	uri := os.Getenv("CHAINSAT_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("CHAINSAT_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{
		URI:      uri,
		User:     os.Getenv("CHAINSAT_TEST_NEO4J_USER"),
		Password: os.Getenv("CHAINSAT_TEST_NEO4J_PASSWORD"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)

	suffix := fmt.Sprint(time.Now().UnixNano())
	owner, repo := "chainsat-test", "repo-"+suffix
	a := graph.NewPackage(version.PyPI, "a-"+suffix)
	b := graph.NewPackage(version.PyPI, "b-"+suffix)
	for _, p := range []graph.Package{a, b} {
		p.Moment = time.Now()
		if _, err := s.CreatePackage(ctx, p, []graph.Version{{Name: "1.0", Serial: 0}}); err != nil {
			t.Fatalf("CreatePackage: %v", err)
		}
	}
	created, err := s.CreatePackage(ctx, a, nil)
	if err != nil || created {
		t.Fatalf("second CreatePackage = %v, %v; want false", created, err)
	}

	if err := s.CreateRepository(ctx, graph.Repository{Owner: owner, Name: repo, Moment: time.Now()}); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	fileID, err := s.CreateRequirementFile(ctx, owner, repo, graph.RequirementFile{
		Name: "requirements.txt", Ecosystem: version.PyPI, Moment: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateRequirementFile: %v", err)
	}
	defer s.DeleteRequirementFile(ctx, fileID)

	if err := s.Relate(ctx, fileID, graph.Requirement{Package: a.Key(), Constraints: ">= 1"}); err != nil {
		t.Fatalf("Relate file: %v", err)
	}
	versions, err := s.Versions(ctx, a.Key())
	if err != nil || len(versions) != 1 {
		t.Fatalf("Versions = %v, %v", versions, err)
	}
	if err := s.Relate(ctx, versions[0].ID, graph.Requirement{Package: b.Key(), Constraints: "< 2", ParentVersion: "1.0"}); err != nil {
		t.Fatalf("Relate version: %v", err)
	}

	sg, err := s.Subgraph(ctx, graph.FileRoot(fileID), 2)
	if err != nil {
		t.Fatalf("Subgraph: %v", err)
	}
	if len(sg.Direct) != 1 || len(sg.Indirect) != 1 || len(sg.Have) != 2 {
		t.Errorf("Subgraph = %+v", sg)
	}
	if sg.Depth[b.Name] != 2 {
		t.Errorf("depth of b = %d, want 2", sg.Depth[b.Name])
	}

	reach, err := s.ReachablePackages(ctx, owner, repo)
	if err != nil || len(reach) != 2 {
		t.Errorf("ReachablePackages = %v, %v", reach, err)
	}
}
