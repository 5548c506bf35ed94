package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/breaker"
)

// Breaker defaults: open after 5 failures, probe again after a minute, close
// after 2 consecutive half-open successes.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = time.Minute
	DefaultHalfOpenMaxCalls = 2
)

// BreakerSettings configures the closed -> open -> half-open state machine
// shared by all steps targeting the same dependency.
type BreakerSettings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}

	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = DefaultRecoveryTimeout
	}

	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}

	return s
}

// BreakerGroup holds one breaker per dependency name (action type), created
// lazily. A misbehaving dependency trips only its own breaker.
type BreakerGroup struct {
	mu       sync.Mutex
	settings BreakerSettings
	breakers map[string]*breaker.Breaker
}

// NewBreakerGroup builds a group with the given settings.
func NewBreakerGroup(settings BreakerSettings) *BreakerGroup {
	return &BreakerGroup{
		settings: settings.withDefaults(),
		breakers: make(map[string]*breaker.Breaker),
	}
}

// Run executes work through the named breaker. When the breaker is open the
// call is rejected immediately with ErrCircuitOpen.
func (g *BreakerGroup) Run(name string, work func() error) error {
	err := g.breakerFor(name).Run(work)
	if errors.Is(err, breaker.ErrBreakerOpen) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, name)
	}

	return err
}

func (g *BreakerGroup) breakerFor(name string) *breaker.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[name]
	if !ok {
		b = breaker.New(g.settings.FailureThreshold, g.settings.HalfOpenMaxCalls, g.settings.RecoveryTimeout)
		g.breakers[name] = b
	}

	return b
}
