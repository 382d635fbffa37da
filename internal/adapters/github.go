package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"golang.org/x/sync/errgroup"
)

const githubUserAgent = "ShipLoop/1.0"

// GitHubRepo is the subset of a repository the dashboard shows
type GitHubRepo struct {
	Name     string    `json:"name"`
	FullName string    `json:"fullName"`
	Private  bool      `json:"private"`
	Language string    `json:"language,omitempty"`
	Stars    int       `json:"stars"`
	PushedAt time.Time `json:"pushedAt"`
	URL      string    `json:"url"`
}

// GitHubCommit is a single commit on a repository's default branch
type GitHubCommit struct {
	SHA     string    `json:"sha"`
	Repo    string    `json:"repo"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
}

type githubRepoPayload struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Private         bool      `json:"private"`
	Language        string    `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	PushedAt        time.Time `json:"pushed_at"`
	HTMLURL         string    `json:"html_url"`
}

type githubCommitPayload struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// GitHubAdapter calls the GitHub REST API on behalf of a user token
type GitHubAdapter struct {
	baseURL string
	pool    *resilience.ConnectionPool
}

// NewGitHubAdapter creates a new GitHub adapter over a pooled, breaker-guarded client
func NewGitHubAdapter(baseURL string, pool *resilience.ConnectionPool) *GitHubAdapter {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    pool,
	}
}

// ListRepos returns the token owner's repositories, most recently pushed first
func (g *GitHubAdapter) ListRepos(ctx context.Context, token string) ([]GitHubRepo, error) {
	var payload []githubRepoPayload
	endpoint := g.baseURL + "/user/repos?sort=pushed&direction=desc&per_page=50"
	if err := g.getJSON(ctx, token, endpoint, &payload); err != nil {
		return nil, err
	}

	repos := make([]GitHubRepo, 0, len(payload))
	for _, p := range payload {
		repos = append(repos, GitHubRepo{
			Name:     p.Name,
			FullName: p.FullName,
			Private:  p.Private,
			Language: p.Language,
			Stars:    p.StargazersCount,
			PushedAt: p.PushedAt,
			URL:      p.HTMLURL,
		})
	}
	return repos, nil
}

// ListCommits returns commits on owner/repo, optionally only those after since
func (g *GitHubAdapter) ListCommits(ctx context.Context, token, owner, repo string, since time.Time) ([]GitHubCommit, error) {
	q := url.Values{"per_page": {"100"}}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits?%s", g.baseURL, url.PathEscape(owner), url.PathEscape(repo), q.Encode())

	var payload []githubCommitPayload
	if err := g.getJSON(ctx, token, endpoint, &payload); err != nil {
		return nil, err
	}

	fullName := owner + "/" + repo
	commits := make([]GitHubCommit, 0, len(payload))
	for _, p := range payload {
		commits = append(commits, GitHubCommit{
			SHA:     p.SHA,
			Repo:    fullName,
			Message: firstLine(p.Commit.Message),
			Author:  p.Commit.Author.Name,
			Date:    p.Commit.Author.Date,
			URL:     p.HTMLURL,
		})
	}
	return commits, nil
}

// RecentCommits fans out over the most recently pushed repositories and merges
// their commits newest first.
func (g *GitHubAdapter) RecentCommits(ctx context.Context, token string, since time.Time, maxRepos int) ([]GitHubCommit, error) {
	repos, err := g.ListRepos(ctx, token)
	if err != nil {
		return nil, err
	}
	if maxRepos > 0 && len(repos) > maxRepos {
		repos = repos[:maxRepos]
	}

	var (
		mu  sync.Mutex
		all []GitHubCommit
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, repo := range repos {
		if !since.IsZero() && repo.PushedAt.Before(since) {
			continue
		}
		owner, name, ok := strings.Cut(repo.FullName, "/")
		if !ok {
			continue
		}
		group.Go(func() error {
			commits, err := g.ListCommits(gctx, token, owner, name, since)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, commits...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	return all, nil
}

func (g *GitHubAdapter) getJSON(ctx context.Context, token, endpoint string, out interface{}) error {
	resp, err := g.pool.DoRequest(ctx, http.MethodGet, endpoint, g.headers(token), nil)
	if err != nil {
		return errors.NewExternalAPIError("GitHub", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.NewUnauthorizedError("GitHub rejected the token")
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFoundError("github repository")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.NewExternalAPIError("GitHub", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewExternalAPIError("GitHub", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (g *GitHubAdapter) headers(token string) map[string]string {
	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
		"User-Agent":           githubUserAgent,
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return headers
}

// GetPoolStats returns connection pool statistics
func (g *GitHubAdapter) GetPoolStats() map[string]interface{} {
	return g.pool.GetStats()
}

// Close closes the connection pool
func (g *GitHubAdapter) Close() error {
	return g.pool.Close()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
