package crates

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c := NewClient(cache.NewNullCache(), time.Hour,
		integrations.WithRetryDelay(time.Millisecond),
		integrations.WithLogger(log.New(io.Discard)))
	c.baseURL = serverURL
	return c
}

func TestClient_GetVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "chainsat/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path != "/crates/serde" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{
			"crate": {"name": "serde", "repository": "https://github.com/serde-rs/serde"},
			"versions": [
				{"num": "1.0.193", "created_at": "2023-11-20T00:00:00Z", "published_by": {"login": "dtolnay"}},
				{"num": "1.0.9", "created_at": "2017-07-01T00:00:00Z", "yanked": true},
				{"num": "1.0.100", "created_at": "2019-09-01T00:00:00Z"}
			]}`)
	}))
	defer server.Close()

	pv, err := testClient(t, server.URL).GetVersions(context.Background(), "serde", true)
	if err != nil {
		t.Fatalf("GetVersions failed: %v", err)
	}
	want := []string{"1.0.9", "1.0.100", "1.0.193"}
	got := pv.Names()
	if len(got) != len(want) {
		t.Fatalf("versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("versions[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if pv.Vendor != "dtolnay" || pv.RepositoryURL != "https://github.com/serde-rs/serde" {
		t.Errorf("vendor/repository = %q %q", pv.Vendor, pv.RepositoryURL)
	}
}

func TestClient_GetRequirement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"dependencies": [
			{"crate_id": "serde_derive", "req": "=1.0.193", "kind": "normal", "optional": true},
			{"crate_id": "itoa", "req": "^1.0", "kind": "normal"},
			{"crate_id": "ryu", "req": "1.0", "kind": "normal"},
			{"crate_id": "serde_test", "req": "^1", "kind": "dev"},
			{"crate_id": "cc", "req": "^1", "kind": "build"}
		]}`)
	}))
	defer server.Close()

	reqs, err := testClient(t, server.URL).GetRequirement(context.Background(), "serde_json", "1.0.108")
	if err != nil {
		t.Fatalf("GetRequirement failed: %v", err)
	}
	if len(reqs) != 2 || reqs["itoa"] != "^1.0" || reqs["ryu"] != "1.0" {
		t.Errorf("requirements = %v", reqs)
	}
}

func TestClient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	pv, err := testClient(t, server.URL).GetVersions(context.Background(), "nope", true)
	if err != nil || len(pv.Versions) != 0 {
		t.Errorf("GetVersions() = %v, %v; want empty", pv, err)
	}
}
