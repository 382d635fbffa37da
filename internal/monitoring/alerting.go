package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive   AlertStatus = "active"
	StatusResolved AlertStatus = "resolved"
)

// minRequestsForRate keeps a handful of failures in a quiet window from paging anyone.
const minRequestsForRate = 20

// Alert represents a monitoring alert
type Alert struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	FiredAt     time.Time     `json:"firedAt"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
}

// AlertRule fires when Value exceeds Threshold for at least For.
type AlertRule struct {
	Name        string
	Description string
	Severity    AlertSeverity
	Threshold   float64
	For         time.Duration
	Value       func() float64
}

// AlertNotifier delivers fired and resolved alerts
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger *Logger
}

func NewLogNotifier(logger *Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Warn("Alert "+string(alert.Status),
		"alert", alert.Name,
		"severity", alert.Severity,
		"value", alert.Value,
		"threshold", alert.Threshold,
	)
	return nil
}

// WebhookNotifier posts alerts to a Slack-compatible incoming webhook
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("[%s] %s %s: %s (value %.1f, threshold %.1f)",
		alert.Severity, alert.Name, alert.Status, alert.Description, alert.Value, alert.Threshold)
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}

// AlertManager evaluates rules against live metrics and notifies on state changes
type AlertManager struct {
	mu        sync.Mutex
	rules     []AlertRule
	alerts    map[string]*Alert
	pending   map[string]time.Time
	notifiers []AlertNotifier
	logger    *Logger
	now       func() time.Time
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *Logger) *AlertManager {
	return &AlertManager{
		alerts:  make(map[string]*Alert),
		pending: make(map[string]time.Time),
		logger:  logger,
		now:     time.Now,
	}
}

func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start evaluates the rules every interval until ctx is done
func (am *AlertManager) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				am.Evaluate(ctx)
			}
		}
	}()
}

// Evaluate runs every rule once and notifies about alerts that fired or resolved.
func (am *AlertManager) Evaluate(ctx context.Context) {
	am.mu.Lock()
	now := am.now()
	var changed []Alert
	for _, rule := range am.rules {
		if a, ok := am.evaluateRule(rule, now); ok {
			changed = append(changed, a)
		}
	}
	notifiers := append([]AlertNotifier(nil), am.notifiers...)
	am.mu.Unlock()

	for _, alert := range changed {
		for _, n := range notifiers {
			if err := n.Notify(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("%s: %v", alert.Name, err))
			}
		}
	}
}

func (am *AlertManager) evaluateRule(rule AlertRule, now time.Time) (Alert, bool) {
	value := rule.Value()
	alert, exists := am.alerts[rule.Name]
	active := exists && alert.Status == StatusActive

	if value > rule.Threshold {
		if active {
			alert.Value = value
			return Alert{}, false
		}
		since, seen := am.pending[rule.Name]
		if !seen {
			am.pending[rule.Name] = now
			since = now
		}
		if now.Sub(since) < rule.For {
			return Alert{}, false
		}
		delete(am.pending, rule.Name)
		alert = &Alert{
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Status:      StatusActive,
			Value:       value,
			Threshold:   rule.Threshold,
			FiredAt:     now,
		}
		am.alerts[rule.Name] = alert
		return *alert, true
	}

	delete(am.pending, rule.Name)
	if !active {
		return Alert{}, false
	}
	alert.Status = StatusResolved
	alert.Value = value
	resolved := now
	alert.ResolvedAt = &resolved
	return *alert, true
}

// ActiveAlerts returns the currently firing alerts, sorted by name
func (am *AlertManager) ActiveAlerts() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make([]Alert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if a.Status == StatusActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// windowedRate returns the percentage num/den over the interval since its last call.
func windowedRate(num, den *int64) func() float64 {
	var lastNum, lastDen int64
	return func() float64 {
		n, d := atomic.LoadInt64(num), atomic.LoadInt64(den)
		dn, dd := n-lastNum, d-lastDen
		lastNum, lastDen = n, d
		if dd < minRequestsForRate {
			return 0
		}
		return float64(dn) / float64(dd) * 100
	}
}

// windowedDelta returns how much a counter grew since its last call.
func windowedDelta(counter *int64) func() float64 {
	var last int64
	return func() float64 {
		n := atomic.LoadInt64(counter)
		d := n - last
		last = n
		return float64(d)
	}
}

func heapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1 << 20)
}

// DefaultAlertRules watches the request error rate, latency, upstream
// breakers and heap size.
func DefaultAlertRules(m *Metrics) []AlertRule {
	return []AlertRule{
		{
			Name:        "HighErrorRate",
			Description: "More than 10% of requests failed",
			Severity:    SeverityWarning,
			Threshold:   10,
			For:         2 * time.Minute,
			Value:       windowedRate(&m.ErrorCount, &m.RequestCount),
		},
		{
			Name:        "SlowResponseTime",
			Description: "p95 response time is above one second",
			Severity:    SeverityWarning,
			Threshold:   1000,
			For:         2 * time.Minute,
			Value: func() float64 {
				return float64(m.GetPercentileResponseTime(95).Milliseconds())
			},
		},
		{
			Name:        "CircuitBreakerOpened",
			Description: "An upstream circuit breaker tripped",
			Severity:    SeverityCritical,
			Threshold:   0,
			Value:       windowedDelta(&m.CircuitBreakerOpens),
		},
		{
			Name:        "HighMemoryUsage",
			Description: "Heap allocation is above 512 MiB",
			Severity:    SeverityCritical,
			Threshold:   512,
			For:         time.Minute,
			Value:       heapMB,
		},
	}
}
