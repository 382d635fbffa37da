package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(name string) *resilience.ConnectionPool {
	cfg := resilience.DefaultPoolConfig()
	cfg.Retry.InitialDelay = time.Millisecond
	return resilience.NewConnectionPool(name, cfg, nil, nil)
}

func fakeGitHub(t *testing.T, commitCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, githubUserAgent, r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"name": "shiploop", "full_name": "ada/shiploop", "language": "Go", "stargazers_count": 12, "pushed_at": "2026-03-02T10:00:00Z", "html_url": "https://github.com/ada/shiploop"},
			{"name": "notes", "full_name": "ada/notes", "private": true, "pushed_at": "2026-03-01T10:00:00Z"},
			{"name": "old", "full_name": "ada/old", "pushed_at": "2020-01-01T00:00:00Z"},
		})
	})
	mux.HandleFunc("/repos/", func(w http.ResponseWriter, r *http.Request) {
		if commitCalls != nil {
			atomic.AddInt32(commitCalls, 1)
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/repos/"), "/")
		require.Len(t, parts, 3)
		if parts[1] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		date := "2026-03-02T09:00:00Z"
		if parts[1] == "notes" {
			date = "2026-03-02T11:00:00Z"
		}
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"sha":      parts[1] + "-sha",
				"html_url": "https://github.com/" + parts[0] + "/" + parts[1] + "/commit/x",
				"commit": map[string]interface{}{
					"message": "ship " + parts[1] + "\n\nlong body",
					"author":  map[string]interface{}{"name": "Ada", "date": date},
				},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestGitHubAdapter_ListRepos(t *testing.T) {
	srv := fakeGitHub(t, nil)
	defer srv.Close()

	adapter := NewGitHubAdapter(srv.URL, newTestPool("github"))
	defer adapter.Close()

	repos, err := adapter.ListRepos(context.Background(), "good-token")
	require.NoError(t, err)
	require.Len(t, repos, 3)
	assert.Equal(t, "ada/shiploop", repos[0].FullName)
	assert.Equal(t, 12, repos[0].Stars)
	assert.True(t, repos[1].Private)
}

func TestGitHubAdapter_BadToken(t *testing.T) {
	srv := fakeGitHub(t, nil)
	defer srv.Close()

	adapter := NewGitHubAdapter(srv.URL, newTestPool("github"))
	_, err := adapter.ListRepos(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryUnauthorized, errors.ToAppError(err).Category)
}

func TestGitHubAdapter_ListCommits(t *testing.T) {
	srv := fakeGitHub(t, nil)
	defer srv.Close()

	adapter := NewGitHubAdapter(srv.URL+"/", newTestPool("github"))
	commits, err := adapter.ListCommits(context.Background(), "good-token", "ada", "shiploop", time.Time{})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "ship shiploop", commits[0].Message)
	assert.Equal(t, "ada/shiploop", commits[0].Repo)
	assert.Equal(t, "Ada", commits[0].Author)

	_, err = adapter.ListCommits(context.Background(), "good-token", "ada", "missing", time.Time{})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNotFound, errors.ToAppError(err).Category)
}

func TestGitHubAdapter_RecentCommitsFansOut(t *testing.T) {
	var calls int32
	srv := fakeGitHub(t, &calls)
	defer srv.Close()

	adapter := NewGitHubAdapter(srv.URL, newTestPool("github"))
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	commits, err := adapter.RecentCommits(context.Background(), "good-token", since, 5)
	require.NoError(t, err)

	// ada/old was not pushed since the cutoff
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.Len(t, commits, 2)
	assert.Equal(t, "notes-sha", commits[0].SHA, "newest first")
	assert.Equal(t, "shiploop-sha", commits[1].SHA)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a", firstLine("a\nb"))
	assert.Equal(t, "single", firstLine("single"))
}
