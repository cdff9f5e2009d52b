package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/chainsat/pkg/builder"
	"github.com/matzehuels/chainsat/pkg/docstore"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/graph/memgraph"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/integrations/registries"
	"github.com/matzehuels/chainsat/pkg/manifest"
	"github.com/matzehuels/chainsat/pkg/operation"
	"github.com/matzehuels/chainsat/pkg/queue"
	"github.com/matzehuels/chainsat/pkg/smt"
	"github.com/matzehuels/chainsat/pkg/version"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	key    string
	fileID string
	docs   *docstore.MemoryStore
	store  *memgraph.Store
	source manifest.StaticSource
	api    *Server
	logs   *syncBuffer
}

// syncBuffer collects log output written from background goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func key(name string) graph.PackageKey {
	return graph.PackageKey{Ecosystem: version.PyPI, Name: name}
}

// seed builds: file → a (>=1); a@2.0 → b (>=2).
func seed(t *testing.T, store *memgraph.Store) string {
	t.Helper()
	ctx := context.Background()
	for name, versions := range map[string][]graph.Version{
		"a": {{Name: "1.0", Serial: 0, Mean: 4}, {Name: "2.0", Serial: 1, Mean: 1}},
		"b": {{Name: "1.0", Serial: 0, Mean: 9}, {Name: "2.0", Serial: 1, Mean: 1}},
	} {
		p := graph.NewPackage(version.PyPI, name)
		p.Moment = now
		if _, err := store.CreatePackage(ctx, p, versions); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CreateRepository(ctx, graph.Repository{Owner: "o", Name: "r", Moment: now}); err != nil {
		t.Fatal(err)
	}
	fileID, err := store.CreateRequirementFile(ctx, "o", "r", graph.RequirementFile{Name: "requirements.txt", Ecosystem: version.PyPI, Moment: now})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Relate(ctx, fileID, graph.Requirement{Package: key("a"), Constraints: ">=1"}); err != nil {
		t.Fatal(err)
	}
	vs, err := store.Versions(ctx, key("a"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Relate(ctx, vs[1].ID, graph.Requirement{Package: key("b"), Constraints: ">=2", ParentVersion: "2.0"}); err != nil {
		t.Fatal(err)
	}
	return fileID
}

func newTestServer(t *testing.T, solver smt.Solver) *testServer {
	t.Helper()
	logs := &syncBuffer{}
	logger := log.New(logs)
	source := manifest.StaticSource{}
	store := memgraph.New(memgraph.WithClock(func() time.Time { return now }))
	fileID := seed(t, store)
	docs := docstore.NewMemoryStore()

	secret, k, err := docstore.NewAPIKey("user-1", "test", time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := docs.CreateAPIKey(context.Background(), k); err != nil {
		t.Fatal(err)
	}

	b := builder.New(store, queue.NewMemoryQueue(), registries.Set{}, nil,
		builder.WithSource(source),
		builder.WithLogger(logger),
		builder.WithClock(func() time.Time { return now }),
	)
	ops := operation.New(store, docs, smt.NewEngine(solver, store),
		operation.WithLogger(logger),
		operation.WithClock(func() time.Time { return now.Add(time.Hour) }),
	)
	srv := New(b, ops, store, docs,
		WithLogger(logger),
		WithGatherer(prometheus.NewRegistry()),
		WithClock(func() time.Time { return now }),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, key: secret, fileID: fileID, docs: docs,
		store: store, source: source, api: srv, logs: logs}
}

func (ts *testServer) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-API-Key", ts.key)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestHealthAndMetricsNeedNoKey(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())

	expired, k, err := docstore.NewAPIKey("user-1", "old", time.Minute, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.docs.CreateAPIKey(context.Background(), k); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  string
		code string
	}{
		{"missing", "", "NOT_AUTHENTICATED"},
		{"unknown", "csk_nope", "INVALID_TOKEN"},
		{"expired", expired, "EXPIRED_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/operation/ssc/file_info", strings.NewReader(`{}`))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			status, body := do(t, req)
			if status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", status)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestFileInfo(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	status, body := ts.post(t, "/operation/ssc/file_info", `{"requirement_file_id": "`+ts.fileID+`", "max_depth": 2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	result := body["result"].(map[string]any)
	if result["total_direct_dependencies"] != 1.0 || result["total_indirect_dependencies"] != 1.0 {
		t.Errorf("result = %v", result)
	}
}

func TestPackageInfo(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	status, body := ts.post(t, "/operation/ssc/package_info", `{"ecosystem": "PyPI", "package_name": "a", "max_depth": 1}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	result := body["result"].(map[string]any)
	if result["total_versions"] != 2.0 {
		t.Errorf("total_versions = %v, want 2", result["total_versions"])
	}
}

func TestMinimizeImpact(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	status, body := ts.post(t, "/operation/smt/minimize_impact",
		`{"node_type": "RequirementFile", "requirement_file_id": "`+ts.fileID+`", "max_depth": 2, "limit": 2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	configs := body["result"].([]any)
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
	first := configs[0].(map[string]any)
	if first["a"] != "2.0" || first["b"] != "2.0" || first["file_risk"] != 2.0 {
		t.Errorf("first config = %v", first)
	}
}

func TestValidGraph(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	status, body := ts.post(t, "/operation/smt/valid_graph", `{"requirement_file_id": "`+ts.fileID+`", "max_depth": 1}`)
	if status != http.StatusOK || body["result"] != true {
		t.Errorf("status = %d, body %v", status, body)
	}
}

func TestOperationErrors(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	file := `"requirement_file_id": "` + ts.fileID + `"`

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown version", "/operation/smt/valid_config", `{` + file + `, "max_depth": 2, "config": {"a": "9.9"}}`, 400, "INVALID_INPUT"},
		{"missing depth", "/operation/smt/valid_graph", `{` + file + `}`, 400, "INVALID_INPUT"},
		{"missing threshold", "/operation/smt/filter_configs", `{` + file + `, "max_depth": 1, "min_threshold": 1}`, 400, "INVALID_INPUT"},
		{"unknown field", "/operation/smt/valid_graph", `{` + file + `, "max_depth": 1, "depth": 3}`, 400, "INVALID_INPUT"},
		{"bad ecosystem", "/operation/ssc/package_info", `{"ecosystem": "Hackage", "package_name": "a", "max_depth": 1}`, 400, "INVALID_ECOSYSTEM"},
		{"missing file", "/operation/smt/valid_graph", `{"requirement_file_id": "nope", "max_depth": 1}`, 404, "NOT_FOUND"},
		{"unknown smt op", "/operation/smt/solve_everything", `{` + file + `, "max_depth": 1}`, 404, "NOT_FOUND"},
		{"unknown info op", "/operation/ssc/repo_info", `{}`, 404, "NOT_FOUND"},
		{"unknown repository", "/graph/repository", `{"owner": "o", "name": "missing"}`, 404, "NOT_FOUND"},
		{"bad repository", "/graph/repository", `{"owner": "o/x", "name": "r"}`, 400, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.post(t, tt.path, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (body %v)", status, tt.status, body)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestWriteErrorSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"graph not found", fmt.Errorf("file x: %w", graph.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"store exhausted", fmt.Errorf("write: %w", graph.ErrMemoryExhausted), http.StatusServiceUnavailable, "MEMORY_EXHAUSTED"},
		{"undecodable upstream", fmt.Errorf("commits: %w", integrations.ErrDecode), http.StatusBadGateway, "DECODE_FAILURE"},
		{"solver timeout", fmt.Errorf("check: %w", smt.ErrTimeout), http.StatusGatewayTimeout, "SMT_TIMEOUT"},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, log.New(io.Discard), tt.err)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

type unknownSolver struct{}

func (unknownSolver) Check(context.Context, smt.Query) (smt.Result, error) {
	return smt.Result{Status: smt.Unknown}, nil
}

func TestSolverTimeout(t *testing.T) {
	ts := newTestServer(t, unknownSolver{})
	status, body := ts.post(t, "/operation/smt/valid_graph", `{"requirement_file_id": "`+ts.fileID+`", "max_depth": 1}`)
	if status != http.StatusGatewayTimeout || body["code"] != "SMT_TIMEOUT" {
		t.Errorf("status = %d, body %v", status, body)
	}
}

func TestInitPackage(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())

	// a is fresh, so nothing is dispatched.
	status, body := ts.post(t, "/graph/package", `{"ecosystem": "pypi", "name": "a"}`)
	if status != http.StatusAccepted || body["enqueued"] != false {
		t.Errorf("fresh package: status = %d, body %v", status, body)
	}
	status, body = ts.post(t, "/graph/package", `{"ecosystem": "pypi", "name": "requests"}`)
	if status != http.StatusAccepted || body["enqueued"] != true {
		t.Errorf("new package: status = %d, body %v", status, body)
	}
	status, body = ts.post(t, "/graph/package", `{"ecosystem": "pypi", "name": "bad|name"}`)
	if status != http.StatusBadRequest || body["code"] != "INVALID_PACKAGE" {
		t.Errorf("bad name: status = %d, body %v", status, body)
	}
}

func TestGetRepository(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/graph/repository/o/r", nil)
	req.Header.Set("X-API-Key", ts.key)
	status, body := do(t, req)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	files := body["requirement_files"].([]any)
	if len(files) != 1 {
		t.Errorf("files = %v", files)
	}
}

func TestShutdownStopsBackgroundBuilds(t *testing.T) {
	ts := newTestServer(t, smt.NewEnum())
	ts.source["acme/api"] = &manifest.Snapshot{
		CommitTime: now,
		Files:      map[string][]byte{"requirements.txt": []byte("fastapi==0.100.0\n")},
	}

	// No worker consumes the queue, so the completion blocks until shutdown.
	status, body := ts.post(t, "/graph/repository", `{"owner": "acme", "name": "api"}`)
	if status != http.StatusAccepted || body["status"] != "building" {
		t.Fatalf("status = %d, body %v", status, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.api.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if !strings.Contains(ts.logs.String(), "repository build interrupted") {
		t.Errorf("background build did not return before Shutdown: %q", ts.logs.String())
	}
	repo, err := ts.store.GetRepository(ctx, "acme", "api")
	if err != nil {
		t.Fatal(err)
	}
	if repo.IsComplete {
		t.Error("interrupted repository marked complete")
	}
}
