package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

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

var (
	ErrOpen            = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold uint32        // consecutive failures that open the breaker
	SuccessThreshold uint32        // consecutive half-open successes that close it
	MaxHalfOpen      uint32        // max in-flight probes while half-open
	OpenTimeout      time.Duration // how long to stay open before probing
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		MaxHalfOpen:      1,
		OpenTimeout:      10 * time.Second,
	}
}

// Breaker guards calls to one external collaborator. Repeated failures trip
// it open so callers fail fast instead of stacking timeouts.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	state        State
	failures     uint32
	successes    uint32
	halfOpenBusy uint32
	openedAt     time.Time
}

// New creates a breaker in the closed state.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.MaxHalfOpen == 0 {
		cfg.MaxHalfOpen = DefaultConfig().MaxHalfOpen
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{name: name, cfg: cfg, logger: logger}
}

// Execute runs fn when the breaker admits the call and accounts its outcome.
// A panic inside fn counts as a failure and is re-raised.
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(false)
			panic(r)
		}
	}()

	err := fn()
	b.settle(err == nil)
	return err
}

// State returns the current state, accounting for open-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool { return b.State() == StateOpen }

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenBusy >= b.cfg.MaxHalfOpen {
			return ErrTooManyRequests
		}
		b.halfOpenBusy++
	}
	return nil
}

func (b *Breaker) settle(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenBusy > 0 {
		b.halfOpenBusy--
	}

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// refresh moves an expired open breaker to half-open. Caller holds the lock.
func (b *Breaker) refresh() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}
}

// transition switches state. Caller holds the lock.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.halfOpenBusy = 0
	if to == StateOpen {
		b.openedAt = time.Now()
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
