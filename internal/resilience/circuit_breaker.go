package resilience

import (
	"sort"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Number of failures before opening
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`  // Time to wait before attempting recovery
	SuccessThreshold int           `json:"success_threshold"` // Number of successes needed to close circuit

	// OnOpen is called (outside the lock) each time the breaker trips.
	OnOpen func(name string) `json:"-"`
}

// CircuitBreaker guards one upstream integration (GitHub, Stripe, Resend, OpenAI).
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	successes   int
	nextAttempt time.Time
}

// NewCircuitBreaker creates a new circuit breaker, filling zero config values with defaults
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
	}
}

// Call executes fn unless the breaker is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Before(cb.nextAttempt) {
		return NewCircuitBreakerError(cb.name, cb.state)
	}
	cb.state = StateHalfOpen
	cb.successes = 0
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
			}
		}
		cb.mu.Unlock()
		return
	}

	cb.failures++
	cb.successes = 0
	tripped := false
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		tripped = cb.state != StateOpen
		cb.state = StateOpen
		cb.nextAttempt = cb.now().Add(cb.config.RecoveryTimeout)
	}
	cb.mu.Unlock()

	if tripped && cb.config.OnOpen != nil {
		cb.config.OnOpen(cb.name)
	}
}

// Name returns the integration this breaker guards
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

// CircuitBreakerError is returned while a breaker rejects calls
type CircuitBreakerError struct {
	Name  string
	State CircuitBreakerState
}

func (e *CircuitBreakerError) Error() string {
	return "circuit breaker for " + e.Name + " is " + e.State.String()
}

// NewCircuitBreakerError creates a new circuit breaker error
func NewCircuitBreakerError(name string, state CircuitBreakerState) *CircuitBreakerError {
	return &CircuitBreakerError{Name: name, State: state}
}

// CircuitBreakerRegistry manages the breakers of all integrations
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	onOpen   func(name string)
}

// NewCircuitBreakerRegistry creates a new registry. onOpen may be nil.
func NewCircuitBreakerRegistry(onOpen func(name string)) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		onOpen:   onOpen,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (r *CircuitBreakerRegistry) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, exists := r.breakers[name]; exists {
		return breaker
	}

	if config.OnOpen == nil {
		config.OnOpen = r.onOpen
	}
	breaker := NewCircuitBreaker(name, config)
	r.breakers[name] = breaker
	return breaker
}

// ResetAll resets all circuit breakers
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, breaker := range r.breakers {
		breaker.Reset()
	}
}

// GetStats returns statistics for all circuit breakers
func (r *CircuitBreakerRegistry) GetStats() map[string]interface{} {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	breakers := make([]*CircuitBreaker, len(names))
	for i, name := range names {
		breakers[i] = r.breakers[name]
	}
	r.mu.Unlock()

	stats := make(map[string]interface{}, len(names))
	for i, name := range names {
		stats[name] = map[string]interface{}{
			"state":    breakers[i].State().String(),
			"failures": breakers[i].Failures(),
		}
	}
	return stats
}
