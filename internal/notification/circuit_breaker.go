package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means sends flow normally.
	StateClosed CircuitState = iota
	// StateHalfOpen means a single trial send is allowed through.
	StateHalfOpen
	// StateOpen means sends are rejected without reaching the service.
	StateOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
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

// ErrCircuitBreakerOpen is returned when a send is rejected by an open breaker.
var ErrCircuitBreakerOpen = errors.Newf("circuit breaker is open").
	Component("notification").
	Category(errors.CategoryNotification).
	Build()

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before a trial send.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     5 * time.Minute,
	}
}

// BreakerSender stops calling a push service that keeps failing. Capture
// outages can last hours and every alert would otherwise hit the same dead
// endpoint with a full send timeout.
type BreakerSender struct {
	next   Sender
	config CircuitBreakerConfig
	log    logger.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastStateChange time.Time
	probing         bool
}

// NewBreakerSender wraps next with a circuit breaker.
func NewBreakerSender(next Sender, config CircuitBreakerConfig, log logger.Logger) *BreakerSender {
	if config.MaxFailures < 1 {
		config.MaxFailures = 1
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	return &BreakerSender{
		next:   next,
		config: config,
		log:    log,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Send implements Sender.
func (b *BreakerSender) Send(ctx context.Context, title, message string) error {
	if err := b.beforeCall(); err != nil {
		state, failures := b.stats()
		return fmt.Errorf("circuit breaker rejected send (%v, %d consecutive failures): %w", state, failures, err)
	}

	err := b.next.Send(ctx, title, message)
	b.afterCall(err)
	return err
}

func (b *BreakerSender) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastStateChange) < b.config.Timeout {
			return ErrCircuitBreakerOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	default:
		if b.probing {
			return ErrCircuitBreakerOpen
		}
		b.probing = true
		return nil
	}
}

func (b *BreakerSender) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		b.failures = 0
		b.setState(StateClosed)
		return
	}

	// Shutdown cancellation says nothing about the service
	if errors.Is(err, context.Canceled) {
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
		b.setState(StateOpen)
	}
}

func (b *BreakerSender) setState(s CircuitState) {
	if b.state == s {
		return
	}
	b.log.Info("notification circuit breaker state transition",
		logger.String("old_state", b.state.String()),
		logger.String("new_state", s.String()),
		logger.Int("consecutive_failures", b.failures))
	b.state = s
	b.lastStateChange = b.now()
}

func (b *BreakerSender) stats() (CircuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures
}

// State returns the current state of the circuit breaker.
func (b *BreakerSender) State() CircuitState {
	state, _ := b.stats()
	return state
}
