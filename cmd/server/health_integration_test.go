package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiploop/shiploop-api/internal/api"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/monitoring"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	cfg.Auth.SessionSecret = "integration-secret"

	srv, err := api.Build(cfg, monitoring.NewLoggerTo(io.Discard, slog.LevelError), api.Endpoints{})
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv.Router()
}

func TestHealthEndpoint_Integration(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Contains(t, response, "circuit_breakers")
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	r := newTestRouter(t)

	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		t.Run("method_"+method+"_not_allowed", func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(method, "/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestHealthEndpoint_ConcurrentRequests(t *testing.T) {
	r := newTestRouter(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

func TestSecurityHeaders(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/waitlist", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{name: "dashboard origin", origin: "http://localhost:3000", allowed: true},
		{name: "foreign origin", origin: "https://evil.example", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("OPTIONS", "/api/score", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "GET")
			req.Header.Set("Access-Control-Request-Headers", "Authorization")
			r.ServeHTTP(w, req)

			if tt.allowed {
				assert.Less(t, w.Code, 300)
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Equal(t, http.StatusForbidden, w.Code)
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestSwaggerDocIsRegistered(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/swagger/doc.json", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "ShipLoop API", doc["info"].(map[string]interface{})["title"])
}
