// Package breaker implements the per-provider circuit breaker registry.
// Each provider owns an independent closed/open/half-open state machine;
// one provider tripping never blocks calls to another.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumehart/cadenza/internal/provider"
)

// State is the position of a provider's circuit.
type State string

// Circuit states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen indicates a call was rejected without a network attempt
// because the provider's circuit is open.
type ErrCircuitOpen struct {
	Provider   Name
	RetryAfter time.Duration
}

// Name aliases provider.Name so error values read naturally.
type Name = provider.Name

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("provider %s: circuit open, retry in %s", e.Provider, e.RetryAfter.Round(time.Second))
}

// Health is a snapshot of one provider's circuit.
type Health struct {
	Provider            Name      `json:"provider"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// circuit is the mutable per-provider state. Guarded by the registry mutex.
type circuit struct {
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// Registry tracks circuit state for every provider. Circuits are created
// lazily on first use and live for the process lifetime. All transitions
// are serialized; the registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	circuits  map[Name]*circuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onOpen    func(Name)
}

// NewRegistry creates a breaker registry. threshold is the number of
// consecutive failures that opens a circuit; cooldown is how long an open
// circuit rejects calls before permitting a trial.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		circuits:  make(map[Name]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetClock overrides the registry's time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// OnOpen registers a hook invoked (outside the registry lock is not
// guaranteed; keep it cheap) whenever a circuit transitions to open.
func (r *Registry) OnOpen(fn func(Name)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOpen = fn
}

// Allow reports whether a call to the provider may proceed. An open
// circuit whose cooldown has elapsed moves to half-open and grants exactly
// one trial call; further calls are rejected until the trial's outcome is
// recorded.
func (r *Registry) Allow(name Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(name)
	switch c.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := r.now().Sub(c.openedAt)
		if elapsed < r.cooldown {
			return &ErrCircuitOpen{Provider: name, RetryAfter: r.cooldown - elapsed}
		}
		c.state = StateHalfOpen
		c.trialInFlight = true
		return nil

	case StateHalfOpen:
		if c.trialInFlight {
			return &ErrCircuitOpen{Provider: name, RetryAfter: 0}
		}
		c.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess notes a successful provider call, closing the circuit and
// resetting the consecutive-failure count.
func (r *Registry) RecordSuccess(name Name) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(name)
	c.state = StateClosed
	c.failures = 0
	c.trialInFlight = false
	c.openedAt = time.Time{}
}

// RecordFailure notes a failed provider call. In the closed state the
// failure count increments and the circuit opens at the threshold; a
// failed half-open trial reopens the circuit and restarts the cooldown.
func (r *Registry) RecordFailure(name Name) {
	r.mu.Lock()
	c := r.circuit(name)

	opened := false
	switch c.state {
	case StateClosed:
		c.failures++
		if c.failures >= r.threshold {
			c.state = StateOpen
			c.openedAt = r.now()
			opened = true
		}
	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = r.now()
		c.trialInFlight = false
		opened = true
	case StateOpen:
		// Late failure from a call admitted before the circuit opened.
		c.openedAt = r.now()
	}
	hook := r.onOpen
	r.mu.Unlock()

	if opened && hook != nil {
		hook(name)
	}
}

// Release returns a call slot admitted by Allow without recording an
// outcome. Callers use it when an admitted call is never attempted, such
// as a batch canceled between admission and the network call; a half-open
// trial slot freed this way is granted again on the next Allow.
func (r *Registry) Release(name Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuit(name).trialInFlight = false
}

// Snapshot returns the current health of every provider with a circuit.
func (r *Registry) Snapshot() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Health, 0, len(r.circuits))
	for _, name := range provider.AllNames() {
		c, ok := r.circuits[name]
		if !ok {
			continue
		}
		result = append(result, Health{
			Provider:            name,
			State:               c.state,
			ConsecutiveFailures: c.failures,
			OpenedAt:            c.openedAt,
		})
	}
	return result
}

// circuit returns the state for a provider, creating it lazily.
// Caller must hold r.mu.
func (r *Registry) circuit(name Name) *circuit {
	c, ok := r.circuits[name]
	if !ok {
		c = &circuit{state: StateClosed}
		r.circuits[name] = c
	}
	return c
}
