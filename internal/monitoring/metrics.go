package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const responseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	WaitlistSignups     int64
	EmailsSent          int64
	EmailsMocked        int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	CircuitBreakerOpens int64

	ExternalAPIRequests   map[string]int64
	ExternalAPIErrorCount map[string]int64
	ExternalAPIMutex      sync.RWMutex

	// Keyed "source:event_type".
	WebhookEvents map[string]int64
	CoachAnswers  map[string]int64
	domainMutex   sync.RWMutex

	RateLimitIPBlocks      int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64
	RateLimitRouteBlocks   map[string]int64
	RateLimitMutex         sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:             time.Now(),
		ResponseTimes:         make([]time.Duration, 0, responseSamples),
		RequestCountByStatus:  make(map[int]int64),
		ExternalAPIRequests:   make(map[string]int64),
		ExternalAPIErrorCount: make(map[string]int64),
		WebhookEvents:         make(map[string]int64),
		CoachAnswers:          make(map[string]int64),
		RateLimitRouteBlocks:  make(map[string]int64),
	}
}

func (m *Metrics) IncrementRequest()   { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()     { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementCacheHit()  { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMiss() { atomic.AddInt64(&m.CacheMisses, 1) }

func (m *Metrics) IncrementWaitlistSignup() { atomic.AddInt64(&m.WaitlistSignups, 1) }

// RecordEmail counts a delivered or mocked email.
func (m *Metrics) RecordEmail(mock bool) {
	if mock {
		atomic.AddInt64(&m.EmailsMocked, 1)
		return
	}
	atomic.AddInt64(&m.EmailsSent, 1)
}

func (m *Metrics) IncrementCircuitBreakerOpen() { atomic.AddInt64(&m.CircuitBreakerOpens, 1) }

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	atomic.StoreInt64(&m.AverageResponseTime, (current+duration.Nanoseconds())/2)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > responseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.ExternalAPIMutex.Lock()
	defer m.ExternalAPIMutex.Unlock()

	m.ExternalAPIRequests[apiName]++
	if !success {
		m.ExternalAPIErrorCount[apiName]++
	}
}

// RecordWebhook counts a received webhook event by source and type.
func (m *Metrics) RecordWebhook(source, eventType string) {
	m.domainMutex.Lock()
	defer m.domainMutex.Unlock()
	m.WebhookEvents[source+":"+eventType]++
}

// RecordCoachAnswer counts coach answers by where they came from ("openai" or "canned").
func (m *Metrics) RecordCoachAnswer(source string) {
	m.domainMutex.Lock()
	defer m.domainMutex.Unlock()
	m.CoachAnswers[source]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	m.ResponseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	return times[min(index, len(times)-1)]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetExternalAPIStats returns external API statistics
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.ExternalAPIMutex.RLock()
	defer m.ExternalAPIMutex.RUnlock()

	stats := make(map[string]interface{})
	for api, requests := range m.ExternalAPIRequests {
		errors := m.ExternalAPIErrorCount[api]
		errorRate := float64(0)
		if requests > 0 {
			errorRate = float64(errors) / float64(requests) * 100
		}

		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     errors,
			"error_rate": errorRate,
		}
	}
	return stats
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetDomainStats returns ShipLoop-specific counters
func (m *Metrics) GetDomainStats() map[string]interface{} {
	m.domainMutex.RLock()
	webhooks := copyCounts(m.WebhookEvents)
	coach := copyCounts(m.CoachAnswers)
	m.domainMutex.RUnlock()

	return map[string]interface{}{
		"waitlist_signups": atomic.LoadInt64(&m.WaitlistSignups),
		"emails_sent":      atomic.LoadInt64(&m.EmailsSent),
		"emails_mocked":    atomic.LoadInt64(&m.EmailsMocked),
		"webhook_events":   webhooks,
		"coach_answers":    coach,
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(atomic.LoadInt64(&m.AverageResponseTime)) / 1e6,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),
		"circuit_breaker_opens":    atomic.LoadInt64(&m.CircuitBreakerOpens),
		"domain":                   m.GetDomainStats(),
		"rate_limit":               m.GetRateLimitStats(),

		"go_goroutines":       runtime.NumGoroutine(),
		"go_gc_count":         mem.NumGC,
		"go_heap_alloc_bytes": mem.HeapAlloc,
	}
}

func (m *Metrics) IncrementRateLimitIPBlock()    { atomic.AddInt64(&m.RateLimitIPBlocks, 1) }
func (m *Metrics) IncrementRateLimitRedisError() { atomic.AddInt64(&m.RateLimitRedisErrors, 1) }
func (m *Metrics) IncrementRateLimitFallback()   { atomic.AddInt64(&m.RateLimitFallbackCount, 1) }

// IncrementRateLimitRoute increments rate limit blocks for a specific route
func (m *Metrics) IncrementRateLimitRoute(route string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitRouteBlocks[route]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	routes := copyCounts(m.RateLimitRouteBlocks)
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":      atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":   atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count": atomic.LoadInt64(&m.RateLimitFallbackCount),
		"route_blocks":   routes,
	}
}
