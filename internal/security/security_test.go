package security

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDefaultSecurityConfig(t *testing.T) {
	cfg := DefaultSecurityConfig("https://shiploop.dev/")
	assert.Equal(t, []string{"http://localhost:3000", "https://shiploop.dev"}, cfg.AllowedOrigins)
	assert.True(t, cfg.EnableHSTS)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	local := DefaultSecurityConfig("http://localhost:3000")
	assert.Equal(t, []string{"http://localhost:3000"}, local.AllowedOrigins)
	assert.False(t, local.EnableHSTS)
}

func TestValidateGitHubName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "torvalds", false},
		{"with dots and dashes", "my-repo.js", false},
		{"empty", "", true},
		{"traversal", "..", true},
		{"slash", "owner/repo", true},
		{"query injection", "repo?per_page=100", true},
		{"leading dash", "-repo", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGitHubName("repo", tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func serve(h ...gin.HandlerFunc) func(req *http.Request) *httptest.ResponseRecorder {
	r := gin.New()
	handlers := append(h, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c)})
	})
	r.Any("/*path", handlers...)
	return func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
}

func TestSecurityHeaders(t *testing.T) {
	do := serve(SecurityHeadersMiddleware(true))

	w := do(httptest.NewRequest(http.MethodGet, "/api/score", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	w = do(httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}

func TestCORS(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig("https://shiploop.dev"))
	do := serve(sm.CORS())

	req := httptest.NewRequest(http.MethodOptions, "/api/github/repos", nil)
	req.Header.Set("Origin", "https://shiploop.dev")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "x-github-token")
	w := do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shiploop.dev", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/score", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestValidateContentType(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig(""))
	do := serve(sm.ValidateContentType)

	req := httptest.NewRequest(http.MethodPost, "/api/waitlist", bytes.NewBufferString("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnsupportedMediaType, do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/waitlist", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusOK, do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/waitlist", nil)
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusOK, do(req).Code)
}

func TestRequireBearerSecret(t *testing.T) {
	logger := monitoring.NewLoggerTo(io.Discard, slog.LevelError)

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"valid", "cron-secret", "Bearer cron-secret", http.StatusOK},
		{"case insensitive scheme", "cron-secret", "bearer cron-secret", http.StatusOK},
		{"wrong", "cron-secret", "Bearer nope", http.StatusUnauthorized},
		{"missing", "cron-secret", "", http.StatusUnauthorized},
		{"unset secret", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do := serve(RequireBearerSecret(tt.secret, "cron", logger))
			req := httptest.NewRequest(http.MethodGet, "/api/cron/streak-reminder", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, do(req).Code)
		})
	}
}

type fakeValidator map[string]string

func (f fakeValidator) ValidateSessionToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestRequireSession(t *testing.T) {
	validator := fakeValidator{"good": "profile-1"}

	do := serve(RequireSession(validator, false))
	req := httptest.NewRequest(http.MethodGet, "/api/score", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"profile-1"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/score", nil)
	req.Header.Set("Authorization", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/score", nil)
	req.Header.Set(DevUserHeader, "dev-1")
	assert.Equal(t, http.StatusUnauthorized, do(req).Code, "dev header ignored without bypass")

	bypass := serve(RequireSession(validator, true))
	w = bypass(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"dev-1"}`, w.Body.String())
}

func TestStateSigner(t *testing.T) {
	s := NewStateSigner("secret")
	state, err := s.Sign("profile-1", "stripe_connect")
	require.NoError(t, err)

	id, err := s.Verify(state, "stripe_connect")
	require.NoError(t, err)
	assert.Equal(t, "profile-1", id)

	_, err = s.Verify(state, "github")
	assert.Error(t, err)

	_, err = NewStateSigner("other").Verify(state, "stripe_connect")
	assert.Error(t, err)

	s.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }
	_, err = s.Verify(state, "stripe_connect")
	assert.Error(t, err, "expired")
}
