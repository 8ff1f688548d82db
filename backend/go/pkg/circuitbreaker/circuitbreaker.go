package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets trial calls through to probe recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to one external dependency.
type CircuitBreaker interface {
	// Do runs fn unless the circuit is open.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	// State returns the current state.
	State() State
}

// Classifier decides whether an error returned by fn counts as a failure.
// Caller mistakes such as a malformed document should not trip the breaker.
type Classifier func(err error) bool

type breaker struct {
	name             string
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration
	isFailure        Classifier
	now              func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
}

// Option customizes a breaker.
type Option func(*breaker)

// WithClassifier sets the failure classifier. By default every non-nil error
// other than context cancellation is a failure.
func WithClassifier(c Classifier) Option {
	return func(b *breaker) { b.isFailure = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

// New creates a breaker that opens after failureThreshold consecutive failures,
// stays open for timeout and closes again after successThreshold consecutive
// half-open successes.
func New(name string, failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		isFailure:        defaultClassifier,
		now:              time.Now,
		state:            Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Disabled returns a breaker that never opens.
func Disabled() CircuitBreaker {
	return passthrough{}
}

func defaultClassifier(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// advance moves Open to HalfOpen once the cool-down has passed. Callers hold mu.
func (b *breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.advance()
	if b.state == Open {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && b.isFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

func (b *breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}

type passthrough struct{}

func (passthrough) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthrough) State() State { return Closed }
