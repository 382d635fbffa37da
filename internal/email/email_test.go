package email

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *resilience.ConnectionPool {
	cfg := resilience.DefaultPoolConfig()
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffFactor:   1,
		RetryableErrors: resilience.IsRetryable,
	}
	return resilience.NewConnectionPool("resend", cfg, nil, nil)
}

type sentEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html"`
}

// fakeResend fails the first failures requests with status and accepts the rest.
func fakeResend(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32, chan sentEmail) {
	t.Helper()
	var calls atomic.Int32
	sent := make(chan sentEmail, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"try later"}`))
			return
		}

		var msg sentEmail
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		sent <- msg
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, sent
}

func TestMockModeWithoutKey(t *testing.T) {
	metrics := monitoring.NewMetrics()
	svc, err := NewService(config.EmailConfig{From: "ShipLoop <hi@x.io>"}, "http://localhost:3000", testPool(), metrics, "")
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	res, err := svc.SendWelcome(context.Background(), "maker@x.io", "")
	require.NoError(t, err)
	assert.True(t, res.Mock)
	assert.EqualValues(t, 1, metrics.GetDomainStats()["emails_mocked"])
}

func TestSendReminderThroughResend(t *testing.T) {
	srv, calls, sent := fakeResend(t, 0, 0)
	metrics := monitoring.NewMetrics()
	svc, err := NewService(config.EmailConfig{ResendAPIKey: "re_test", From: "ShipLoop <hi@x.io>"},
		"https://shiploop.dev/", testPool(), metrics, srv.URL)
	require.NoError(t, err)

	res, err := svc.SendStreakReminder(context.Background(), "ada@x.io", "Ada", 12)
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "email_123"}, res)
	assert.EqualValues(t, 1, calls.Load())

	msg := <-sent
	assert.Equal(t, []string{"ada@x.io"}, msg.To)
	assert.Equal(t, "Your 12-day streak ends at midnight", msg.Subject)
	assert.Contains(t, msg.Html, "12 days in a row")
	assert.Contains(t, msg.Html, "your 13th")
	assert.Contains(t, msg.Html, "https://shiploop.dev/dashboard")
	assert.EqualValues(t, 1, metrics.GetDomainStats()["emails_sent"])
}

func TestTransientFailuresAreRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"rate limited", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls, _ := fakeResend(t, 1, tt.status)
			svc, err := NewService(config.EmailConfig{ResendAPIKey: "re_test"}, "", testPool(), nil, srv.URL)
			require.NoError(t, err)

			res, err := svc.SendWelcome(context.Background(), "x@y.io", "X")
			require.NoError(t, err)
			assert.Equal(t, "email_123", res.ID)
			assert.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestWelcomeEscapesName(t *testing.T) {
	html, err := render(welcomeTemplate, welcomeData{Name: "<b>Eve</b>", SiteURL: "https://x.io"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>Eve</b>")
	assert.Contains(t, html, "&lt;b&gt;Eve&lt;/b&gt;")
}

func TestReminderSubject(t *testing.T) {
	assert.Equal(t, "Start a new ShipLoop streak today", reminderSubject(0))
	assert.Equal(t, "Your 1-day streak ends at midnight", reminderSubject(1))
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, err := NewService(config.EmailConfig{}, "", testPool(), nil, "")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/api/email/welcome", svc.HandleWelcome())
	r.POST("/api/email/reminder", svc.HandleReminder())

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post("/api/email/welcome", `{"email":"maker@x.io","name":"Maker"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"mock":true}`, w.Body.String())

	w = post("/api/email/reminder", `{"email":"maker@x.io","streak":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post("/api/email/welcome", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post("/api/email/reminder", `{"email":"maker@x.io","streak":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
