package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		category ErrorCategory
		prefix   string
	}{
		{"validation", NewValidationError("bad email"), http.StatusBadRequest, CategoryValidation, "[VALIDATION_ERROR]"},
		{"unauthorized", NewUnauthorizedError("invalid signature"), http.StatusUnauthorized, CategoryUnauthorized, "[UNAUTHORIZED]"},
		{"not found", NewNotFoundError("profile"), http.StatusNotFound, CategoryNotFound, "[NOT_FOUND]"},
		{"conflict", NewConflictError("exists"), http.StatusConflict, CategoryConflict, "[CONFLICT]"},
		{"network", NewNetworkError("down", fmt.Errorf("connection refused")), http.StatusBadGateway, CategoryNetwork, "[NETWORK_ERROR]"},
		{"timeout", NewTimeoutError("slow", nil), http.StatusGatewayTimeout, CategoryTimeout, "[TIMEOUT_ERROR]"},
		{"rate limit", NewRateLimitError("60s"), http.StatusTooManyRequests, CategoryRateLimit, "[RATE_LIMIT_EXCEEDED]"},
		{"external", NewExternalAPIError("GitHub", nil), http.StatusBadGateway, CategoryExternalAPI, "[NETWORK_ERROR]"},
		{"internal", NewInternalError("boom", nil), http.StatusInternalServerError, CategoryInternal, "[INTERNAL_ERROR]"},
		{"config", NewConfigurationError("missing key", nil), http.StatusInternalServerError, CategoryConfiguration, "[CONFIGURATION_ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Contains(t, tt.err.Error(), tt.prefix)
		})
	}
}

func TestToAppError(t *testing.T) {
	assert.Nil(t, ToAppError(nil))

	original := NewValidationError("bad")
	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, ToAppError(wrapped))

	assert.Equal(t, CategoryTimeout, ToAppError(context.DeadlineExceeded).Category)
	assert.Equal(t, CategoryTimeout, ToAppError(context.Canceled).Category)
	assert.Equal(t, CategoryNetwork, ToAppError(errors.New("dial tcp: connection refused")).Category)
	assert.Equal(t, CategoryInternal, ToAppError(errors.New("something odd")).Category)
}

func TestBodyOfHidesInternalDetails(t *testing.T) {
	body := BodyOf(NewInternalError("db password wrong", errors.New("secret")))
	assert.Equal(t, "Internal server error", body.Error)
	assert.Empty(t, body.Details)

	body = BodyOf(NewNotFoundError("goal"))
	assert.Equal(t, "goal not found", body.Error)
	assert.Equal(t, "goal", body.Details["resource"])
}

func TestRespondAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryHandler(), ErrorHandler())
	r.GET("/respond", func(c *gin.Context) {
		Respond(c, NewValidationError("Invalid email"))
	})
	r.GET("/attached", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("project"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"/respond", http.StatusBadRequest, "Invalid email"},
		{"/attached", http.StatusNotFound, "project not found"},
		{"/panic", http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
		})
	}
}

func TestRetryClassification(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("x", nil)))
	assert.True(t, IsRetryableError(NewRateLimitError("1s")))
	assert.False(t, IsRetryableError(NewValidationError("x")))
	assert.Greater(t, GetRetryDelay(NewRateLimitError("1s"), 2), GetRetryDelay(NewInternalError("x", nil), 2))
}
