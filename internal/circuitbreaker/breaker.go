// Package circuitbreaker sheds calls to a failing payment provider.
// After enough consecutive charge failures the circuit opens and
// attempts fail fast instead of piling onto a provider outage; after a
// cooldown one probe call is let through to test recovery.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State of one circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "paytrust",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by provider.",
}, []string{"provider", "from", "to"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks one circuit per provider key.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	trip     int
	cooldown time.Duration
}

// New creates a breaker that opens after trip consecutive failures and
// allows a probe after cooldown.
func New(trip int, cooldown time.Duration) *Breaker {
	if trip <= 0 {
		trip = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		trip:     trip,
		cooldown: cooldown,
	}
}

// Allow reports whether a call to the provider should proceed. An open
// circuit past its cooldown moves to half-open and admits one probe.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return true
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.lastFailure) >= b.cooldown {
			b.transition(c, provider, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure streak and closes a half-open circuit.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.transition(c, provider, StateClosed)
	}
	c.failures = 0
}

// RecordFailure extends the failure streak and trips the circuit once
// the streak reaches the threshold. A failed probe reopens immediately.
func (b *Breaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{}
		b.circuits[provider] = c
	}

	c.failures++
	c.lastFailure = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.transition(c, provider, StateOpen)
	case c.state == StateClosed && c.failures >= b.trip:
		b.transition(c, provider, StateOpen)
	}
}

// State returns the circuit state for a provider. Unknown providers are
// closed.
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return StateClosed
	}
	return c.state
}

// Caller must hold b.mu.
func (b *Breaker) transition(c *circuit, provider string, to State) {
	if c.state == to {
		return
	}
	stateTransitions.WithLabelValues(provider, c.state.String(), to.String()).Inc()
	c.state = to
}
