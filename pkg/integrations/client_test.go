package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/version"
)

func testClient(t *testing.T, backend cache.Cache) *Client {
	t.Helper()
	return NewClient(backend, "test", time.Hour, nil,
		WithRetryDelay(time.Millisecond),
		WithLogger(log.New(io.Discard)))
}

func TestNewClient(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	headers := map[string]string{"Authorization": "Bearer token"}
	client := NewClient(c, "test", time.Hour, headers)

	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if client.cache != c {
		t.Error("NewClient() cache not set correctly")
	}
	if client.headers["Authorization"] != "Bearer token" {
		t.Error("NewClient() headers not set correctly")
	}
	if client.retryDelay != 5*time.Second {
		t.Errorf("retryDelay = %v, want 5s", client.retryDelay)
	}
}

func TestNewClientNilCache(t *testing.T) {
	client := NewClient(nil, "test", time.Hour, nil)
	if client.cache == nil {
		t.Fatal("NewClient() should fall back to a null cache")
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("missing default header")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, map[string]string{"X-Test": "yes"})

	var resp response
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("Message = %q, want hello", resp.Message)
	}
}

func TestClientStatusHandling(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"gone", http.StatusGone, ErrNotFound},
		{"bad request", http.StatusBadRequest, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			var v map[string]any
			err := testClient(t, nil).Get(context.Background(), server.URL, &v)
			if !errors.Is(err, tt.want) {
				t.Errorf("Get() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientRejectsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	var v map[string]any
	err := testClient(t, nil).Get(context.Background(), server.URL, &v)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Get() error = %v, want ErrDecode", err)
	}
}

func TestCachedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, nil)
	var v struct {
		OK bool `json:"ok"`
	}
	err := client.Cached(context.Background(), "k", false, &v, func() error {
		return client.Get(context.Background(), server.URL, &v)
	})
	if err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if !v.OK || calls.Load() != 4 {
		t.Errorf("ok=%v calls=%d, want true and 4", v.OK, calls.Load())
	}
}

func TestCachedRetryStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := testClient(t, nil)
	var v map[string]any
	err := client.Cached(ctx, "k", false, &v, func() error {
		return client.Get(ctx, server.URL, &v)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Cached() error = %v, want deadline exceeded", err)
	}
}

func TestCachedStoresDecodeSentinel(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := testClient(t, backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		var v map[string]any
		err := client.Cached(ctx, "pkg", false, &v, func() error {
			return client.Get(ctx, server.URL, &v)
		})
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("call %d: error = %v, want ErrDecode", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (second call served by sentinel)", calls.Load())
	}

	data, ok, _ := backend.Get(ctx, cache.NewDefaultKeyer().HTTPKey("test", "pkg"))
	if !ok || string(data) != DecodeSentinel {
		t.Errorf("cached = %q, want %q", data, DecodeSentinel)
	}
}

func TestCachedHitAndRefresh(t *testing.T) {
	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := testClient(t, backend)
	ctx := context.Background()

	fetches := 0
	fetch := func(v *int) func() error {
		return func() error {
			fetches++
			*v = fetches
			return nil
		}
	}

	var a, b, c int
	if err := client.Cached(ctx, "n", false, &a, fetch(&a)); err != nil {
		t.Fatal(err)
	}
	if err := client.Cached(ctx, "n", false, &b, fetch(&b)); err != nil {
		t.Fatal(err)
	}
	if err := client.Cached(ctx, "n", true, &c, fetch(&c)); err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != 1 || c != 2 {
		t.Errorf("got a=%d b=%d c=%d, want 1 1 2", a, b, c)
	}
}

func TestEmpty(t *testing.T) {
	if !Empty(ErrNotFound) || !Empty(ErrDecode) {
		t.Error("Empty() should accept not-found and decode errors")
	}
	if Empty(ErrNetwork) || Empty(context.Canceled) {
		t.Error("Empty() should reject other errors")
	}
}

func TestSerialize(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	got := Serialize(version.PyPI, []Version{
		{Name: "2.0.0"}, {Name: "1.0.0", ReleaseDate: &d}, {Name: "1.0.0"}, {Name: "1.5.0"},
	})
	want := []string{"1.0.0", "1.5.0", "2.0.0"}
	if len(got) != len(want) {
		t.Fatalf("Serialize() returned %d versions, want %d", len(got), len(want))
	}
	for i, v := range got {
		if v.Name != want[i] || v.Serial != i {
			t.Errorf("got[%d] = %s/%d, want %s/%d", i, v.Name, v.Serial, want[i], i)
		}
	}
}

func TestRequirementsMerge(t *testing.T) {
	r := Requirements{}
	r.Merge("a", ">=1")
	r.Merge("a", "<3")
	r.Merge("b", ">=1")
	r.Merge("b", "")
	r.Merge("b", ">=2")
	r.Merge("c", "==1")
	r.Merge("c", "==1")

	if r["a"] != ">=1||<3" {
		t.Errorf("a = %q", r["a"])
	}
	if r["b"] != "" {
		t.Errorf("b = %q, want empty", r["b"])
	}
	if r["c"] != "==1" {
		t.Errorf("c = %q", r["c"])
	}
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"git+https://github.com/psf/requests.git", "https://github.com/psf/requests"},
		{"git@github.com:psf/requests.git", "https://github.com/psf/requests"},
		{"git://github.com/psf/requests", "https://github.com/psf/requests"},
		{"https://github.com/psf/requests/", "https://github.com/psf/requests"},
	}
	for _, tt := range tests {
		if got := NormalizeRepoURL(tt.in); got != tt.want {
			t.Errorf("NormalizeRepoURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstRepoURL(t *testing.T) {
	urls := map[string]string{
		"Funding":  "https://github.com/sponsors/x",
		"Homepage": "https://example.org",
		"Tracker":  "https://github.com/x/y/issues",
		"Source":   "https://github.com/x/y.git",
	}
	if got := FirstRepoURL(urls); got != "https://github.com/x/y" {
		t.Errorf("FirstRepoURL() = %q", got)
	}
	if got := FirstRepoURL(nil, "https://gitlab.com/a/b"); got != "https://gitlab.com/a/b" {
		t.Errorf("FirstRepoURL() fallback = %q", got)
	}
}

func TestParseTime(t *testing.T) {
	if ParseTime("") != nil || ParseTime("garbage") != nil {
		t.Error("ParseTime should return nil for bad input")
	}
	got := ParseTime("2023-05-22T15:12:42.123Z")
	if got == nil || got.Year() != 2023 {
		t.Errorf("ParseTime() = %v", got)
	}
}
