package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func TestAlertFiresAfterForAndResolves(t *testing.T) {
	var buf bytes.Buffer
	am := NewAlertManager(NewLoggerTo(&buf, slog.LevelInfo))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return now }

	value := 5.0
	am.AddRule(AlertRule{
		Name:      "Queue",
		Severity:  SeverityWarning,
		Threshold: 10,
		For:       time.Minute,
		Value:     func() float64 { return value },
	})
	rec := &recordingNotifier{}
	am.AddNotifier(rec)

	ctx := context.Background()
	am.Evaluate(ctx)
	assert.Empty(t, rec.alerts)

	value = 20
	am.Evaluate(ctx)
	assert.Empty(t, rec.alerts, "must hold for the full duration first")

	now = now.Add(time.Minute)
	am.Evaluate(ctx)
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, StatusActive, rec.alerts[0].Status)
	assert.Len(t, am.ActiveAlerts(), 1)

	am.Evaluate(ctx)
	assert.Len(t, rec.alerts, 1, "an active alert is not re-sent")

	value = 1
	now = now.Add(time.Minute)
	am.Evaluate(ctx)
	require.Len(t, rec.alerts, 2)
	assert.Equal(t, StatusResolved, rec.alerts[1].Status)
	require.NotNil(t, rec.alerts[1].ResolvedAt)
	assert.Empty(t, am.ActiveAlerts())
}

func TestPendingResetsWhenConditionClears(t *testing.T) {
	am := NewAlertManager(NewLoggerTo(io.Discard, slog.LevelInfo))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return now }

	values := []float64{20, 0, 20}
	i := 0
	am.AddRule(AlertRule{Name: "Flap", Threshold: 10, For: time.Minute, Value: func() float64 {
		v := values[i]
		i++
		return v
	}})

	for range values {
		am.Evaluate(context.Background())
		now = now.Add(40 * time.Second)
	}
	assert.Empty(t, am.ActiveAlerts())
}

func TestWindowedRateUsesOnlyNewRequests(t *testing.T) {
	m := NewMetrics()
	rate := windowedRate(&m.ErrorCount, &m.RequestCount)

	for i := 0; i < 40; i++ {
		m.IncrementRequest()
	}
	for i := 0; i < 10; i++ {
		m.IncrementError()
	}
	assert.Equal(t, 25.0, rate())

	for i := 0; i < 5; i++ {
		m.IncrementRequest()
	}
	assert.Equal(t, 0.0, rate(), "too few requests in the window")
}

func TestDefaultRulesFireOnBreakerOpen(t *testing.T) {
	m := NewMetrics()
	am := NewAlertManager(NewLoggerTo(io.Discard, slog.LevelInfo))
	for _, rule := range DefaultAlertRules(m) {
		am.AddRule(rule)
	}

	m.IncrementCircuitBreakerOpen()
	am.Evaluate(context.Background())

	active := am.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "CircuitBreakerOpened", active[0].Name)
	assert.Equal(t, SeverityCritical, active[0].Severity)

	am.Evaluate(context.Background())
	assert.Empty(t, am.ActiveAlerts())
}

func TestWebhookNotifierPostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), Alert{
		Name: "HighErrorRate", Severity: SeverityWarning, Status: StatusActive, Value: 12, Threshold: 10,
	})
	require.NoError(t, err)
	assert.Contains(t, got["text"], "HighErrorRate active")
}
