package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "healthy"
	case LevelDegraded:
		return "degraded"
	default:
		return "critical"
	}
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	DegradedThreshold  float64       // error rate (0.0-1.0)
	CriticalThreshold  float64       // error rate (0.0-1.0)
	Window             time.Duration // counters reset after this long
	MinRequests        int64         // below this many requests the rate is not judged
	HealthCheckTimeout time.Duration
}

// DefaultDegradationConfig returns the thresholds used by /health
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		DegradedThreshold:  0.1,
		CriticalThreshold:  0.5,
		Window:             5 * time.Minute,
		MinRequests:        5,
		HealthCheckTimeout: 2 * time.Second,
	}
}

// ServiceHealth represents the health status of a dependency
type ServiceHealth struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	ErrorRate     float64    `json:"errorRate"`
	TotalRequests int64      `json:"totalRequests"`
	ErrorCount    int64      `json:"errorCount"`
	LastError     string     `json:"lastError,omitempty"`
	LastErrorAt   *time.Time `json:"lastErrorAt,omitempty"`

	level       DegradationLevel
	windowStart time.Time
}

// HealthCheckFunc represents a function that checks service health
type HealthCheckFunc func(ctx context.Context) error

// DegradationManager tracks upstream error rates and runs dependency health checks.
type DegradationManager struct {
	config       DegradationConfig
	services     map[string]*ServiceHealth
	healthChecks map[string]HealthCheckFunc
	now          func() time.Time
	mutex        sync.Mutex
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:       config,
		services:     make(map[string]*ServiceHealth),
		healthChecks: make(map[string]HealthCheckFunc),
		now:          time.Now,
	}
}

// RegisterService registers a dependency. healthCheck may be nil for
// services that are only judged by their request error rate.
func (dm *DegradationManager) RegisterService(name string, healthCheck HealthCheckFunc) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if _, exists := dm.services[name]; !exists {
		dm.services[name] = &ServiceHealth{Name: name, Status: LevelNormal.String(), windowStart: dm.now()}
	}
	if healthCheck != nil {
		dm.healthChecks[name] = healthCheck
	}
}

// RecordRequest records a request and its success/failure
func (dm *DegradationManager) RecordRequest(name string, success bool) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	svc, exists := dm.services[name]
	if !exists {
		return
	}

	now := dm.now()
	if now.Sub(svc.windowStart) > dm.config.Window {
		svc.TotalRequests, svc.ErrorCount, svc.windowStart = 0, 0, now
	}

	svc.TotalRequests++
	if !success {
		svc.ErrorCount++
		svc.LastErrorAt = &now
		svc.LastError = "request failed"
	}
	svc.ErrorRate = float64(svc.ErrorCount) / float64(svc.TotalRequests)
	dm.updateLevel(svc)
}

func (dm *DegradationManager) updateLevel(svc *ServiceHealth) {
	old := svc.level

	switch {
	case svc.TotalRequests < dm.config.MinRequests:
		svc.level = LevelNormal
	case svc.ErrorRate >= dm.config.CriticalThreshold:
		svc.level = LevelCritical
	case svc.ErrorRate >= dm.config.DegradedThreshold:
		svc.level = LevelDegraded
	default:
		svc.level = LevelNormal
	}
	svc.Status = svc.level.String()

	if old != svc.level {
		slog.Warn("Service degradation level changed",
			"service", svc.Name,
			"old_level", old.String(),
			"new_level", svc.level.String(),
			"error_rate", svc.ErrorRate)
	}
}

// IsServiceAvailable reports false only for services in the critical state
func (dm *DegradationManager) IsServiceAvailable(name string) bool {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	svc, ok := dm.services[name]
	return !ok || svc.level != LevelCritical
}

// Check runs every registered health check and returns a snapshot of all services.
// A failing health check marks its service critical for this snapshot.
func (dm *DegradationManager) Check(ctx context.Context) []ServiceHealth {
	dm.mutex.Lock()
	checks := make(map[string]HealthCheckFunc, len(dm.healthChecks))
	for name, fn := range dm.healthChecks {
		checks[name] = fn
	}
	dm.mutex.Unlock()

	failures := make(map[string]error)
	for name, fn := range checks {
		cctx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
		if err := fn(cctx); err != nil {
			failures[name] = err
		}
		cancel()
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	out := make([]ServiceHealth, 0, len(dm.services))
	for name, svc := range dm.services {
		snap := *svc
		if err, failed := failures[name]; failed {
			snap.level = LevelCritical
			snap.Status = LevelCritical.String()
			snap.LastError = err.Error()
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall folds a snapshot into a single status string.
func Overall(services []ServiceHealth) string {
	worst := LevelNormal
	for _, svc := range services {
		if svc.level > worst {
			worst = svc.level
		}
	}
	return worst.String()
}

// ResetService resets a service's counters
func (dm *DegradationManager) ResetService(name string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if svc, exists := dm.services[name]; exists {
		*svc = ServiceHealth{Name: name, Status: LevelNormal.String(), windowStart: dm.now()}
		slog.Info("Service health reset", "service", name)
	}
}
