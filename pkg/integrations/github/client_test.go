package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/integrations"
)

func testClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	c := NewClient(cache.NewNullCache(), token, time.Hour,
		integrations.WithRetryDelay(time.Millisecond),
		integrations.WithLogger(log.New(io.Discard)))
	c.baseURL = serverURL
	return c
}

func TestClient_Repository(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		switch r.URL.Path {
		case "/repos/owner/repo":
			io.WriteString(w, `{"default_branch": "main", "pushed_at": "2024-01-03T00:00:00Z",
				"clone_url": "https://github.com/owner/repo.git"}`)
		case "/repos/owner/repo/commits/main":
			io.WriteString(w, `{"sha": "abc", "commit": {"committer": {"date": "2024-01-02T00:00:00Z"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	info, err := testClient(t, server.URL, "secret").Repository(context.Background(), "owner", "repo", true)
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	if info.DefaultBranch != "main" {
		t.Errorf("default branch = %q", info.DefaultBranch)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !info.LastCommitDate().Equal(want) {
		t.Errorf("LastCommitDate() = %v, want %v", info.LastCommitDate(), want)
	}
}

func TestClient_Repository_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := testClient(t, server.URL, "").Repository(context.Background(), "owner", "missing", true)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Repository_InvalidName(t *testing.T) {
	_, err := testClient(t, "http://127.0.0.1:0", "").Repository(context.Background(), "-bad", "repo", true)
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestLastCommitDateFallback(t *testing.T) {
	pushed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	info := RepoInfo{PushedAt: &pushed}
	if !info.LastCommitDate().Equal(pushed) {
		t.Errorf("LastCommitDate() = %v", info.LastCommitDate())
	}
	if !(&RepoInfo{}).LastCommitDate().IsZero() {
		t.Error("expected zero time without dates")
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		urls      map[string]string
		home      string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{
			urls:      map[string]string{"Source": "https://github.com/foo/bar"},
			wantOwner: "foo",
			wantRepo:  "bar",
			wantOK:    true,
		},
		{
			home:      "http://github.com/baz/qux.git",
			wantOwner: "baz",
			wantRepo:  "qux",
			wantOK:    true,
		},
		{
			urls:   map[string]string{"Homepage": "https://google.com"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		owner, repo, ok := ExtractURL(tt.urls, tt.home)
		if ok != tt.wantOK {
			t.Errorf("got ok=%v, want %v", ok, tt.wantOK)
		}
		if ok && (owner != tt.wantOwner || repo != tt.wantRepo) {
			t.Errorf("got %s/%s, want %s/%s", owner, repo, tt.wantOwner, tt.wantRepo)
		}
	}
}

func TestParseRepoArg(t *testing.T) {
	tests := []struct {
		arg         string
		owner, repo string
		wantErr     bool
	}{
		{"securechaindev/depex", "securechaindev", "depex", false},
		{"https://github.com/securechaindev/depex.git", "securechaindev", "depex", false},
		{"https://github.com/securechaindev/depex/tree/main", "securechaindev", "depex", false},
		{"depex", "", "", true},
		{"-x/depex", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			owner, repo, err := ParseRepoArg(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoArg() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (owner != tt.owner || repo != tt.repo) {
				t.Errorf("ParseRepoArg() = %s/%s", owner, repo)
			}
		})
	}
}
