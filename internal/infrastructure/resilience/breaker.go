package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many probe requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker. Zero values select defaults.
type Settings struct {
	// Probes is how many calls are let through while half-open, and how many
	// must succeed to close again.
	Probes uint32
	// Window clears the closed-state counts periodically.
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Trip decides whether the closed breaker opens after a failure.
	Trip func(c Counts) bool
	// IsFailure classifies a call error. Cancellation by the caller is not
	// held against the remote side by default.
	IsFailure func(err error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
	// Now is the clock.
	Now func() time.Time
}

// Counts holds the statistics for the current window
type Counts struct {
	Calls                uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker stops calls to a collector or sampling service that keeps failing,
// so tracing never adds latency to the traced application.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	deadline   time.Time
}

// New creates a breaker named for the service it guards.
func New(name string, settings Settings) *Breaker {
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.Window == 0 {
		settings.Window = time.Minute
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Trip == nil {
		settings.Trip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		deadline: settings.Now().Add(settings.Window),
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the state after applying any elapsed deadline.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	return b.state
}

// Counts returns a copy of the current window's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Execute runs fn unless the breaker rejects it. A panic in fn counts as a
// failure and is re-raised.
func (b *Breaker) Execute(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			b.record(gen, true)
		}
	}()

	err = fn()
	ok = true
	b.record(gen, b.settings.IsFailure(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	switch {
	case b.state == StateOpen:
		return 0, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Calls >= b.settings.Probes:
		return 0, ErrTooManyRequests
	}
	b.counts.Calls++
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.advance(now)
	// The outcome belongs to a window that has already been reset.
	if gen != b.generation {
		return
	}

	if failed {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.state == StateHalfOpen || b.settings.Trip(b.counts) {
			b.transition(StateOpen, now)
		}
		return
	}

	b.counts.Successes++
	b.counts.ConsecutiveSuccesses++
	b.counts.ConsecutiveFailures = 0
	if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Probes {
		b.transition(StateClosed, now)
	}
}

// advance applies window rollover and cooldown expiry.
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.reset(now.Add(b.settings.Window))
		}
	case StateOpen:
		if now.After(b.deadline) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.reset(now.Add(b.settings.Window))
	case StateOpen:
		b.reset(now.Add(b.settings.Cooldown))
	case StateHalfOpen:
		b.reset(time.Time{})
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) reset(deadline time.Time) {
	b.counts = Counts{}
	b.generation++
	b.deadline = deadline
}
