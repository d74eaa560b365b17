package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"memoire/internal/domain"
)

// =============================================================================
// RetryConfig
// =============================================================================

// Config controls retry behaviour for external calls.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`     // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration `json:"initialBackoff"` // Delay before first retry
	MaxBackoff     time.Duration `json:"maxBackoff"`     // Upper bound on backoff duration
	Multiplier     float64       `json:"multiplier"`     // Backoff multiplier (e.g. 2.0 for exponential)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// FromDomain converts the millisecond-based config section into a Config.
// Zero durations and multipliers fall back to DefaultConfig values.
func FromDomain(rc domain.RetryConfig) Config {
	def := DefaultConfig()
	cfg := Config{
		MaxRetries:     rc.MaxRetries,
		InitialBackoff: time.Duration(rc.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoff) * time.Millisecond,
		Multiplier:     float64(rc.Multiplier),
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = def.Multiplier
	}
	return cfg
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// Next returns the backoff that follows current, capped at MaxBackoff.
func (c Config) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.Multiplier)
	if next > c.MaxBackoff {
		next = c.MaxBackoff
	}
	return next
}

// =============================================================================
// Error Classification
// =============================================================================

// retryableStatusCodes are HTTP status codes that indicate a transient failure.
var retryableStatusCodes = []string{"429", "500", "502", "503", "504", "529"}

// transientMessages are substrings of driver errors that indicate a transient failure.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"EOF",
	"database is locked",
	"SQLITE_BUSY",
}

// IsRetryable returns true when err represents a transient failure that may
// succeed on retry (5xx, 429, timeout, connection refused, EOF, busy database).
// Context errors (Canceled, DeadlineExceeded) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, code := range retryableStatusCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// =============================================================================
// RetryableOracle (Decorator)
// =============================================================================

// RetryableOracle wraps an Oracle with retry-on-transient-error logic.
type RetryableOracle struct {
	inner     domain.Oracle
	config    Config
	sleepFunc func(time.Duration) // injectable for testing
}

// NewRetryableOracle returns a decorator that retries Complete calls on transient errors.
// inner must not be nil.
func NewRetryableOracle(inner domain.Oracle, cfg Config) *RetryableOracle {
	if inner == nil {
		panic("retry: inner oracle must not be nil")
	}
	return &RetryableOracle{
		inner:     inner,
		config:    cfg,
		sleepFunc: time.Sleep,
	}
}

// Complete calls the inner oracle and retries on transient errors with exponential backoff.
// Returns the first successful completion, or the last error after retries are exhausted.
func (o *RetryableOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	var lastErr error
	backoff := o.config.InitialBackoff

	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		out, err := o.inner.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == o.config.MaxRetries {
			break
		}

		o.sleepFunc(backoff)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		backoff = o.config.Next(backoff)
	}

	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", o.config.MaxRetries+1, lastErr)
}

// Compile-time check that RetryableOracle implements Oracle.
var _ domain.Oracle = (*RetryableOracle)(nil)

// =============================================================================
// Policy
// =============================================================================

// Policy re-runs an operation while it reports a retryable failure. The zero
// Policy never retries.
type Policy struct {
	Config Config
	Sleep  func(time.Duration) // nil means time.Sleep
}

// Run calls fn until it returns retryable=false or MaxRetries extra attempts
// have been made. It returns the number of attempts performed.
func (p Policy) Run(ctx context.Context, fn func(attempt int) (retryable bool)) int {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	backoff := p.Config.InitialBackoff
	attempt := 0
	for {
		attempt++
		if !fn(attempt) || attempt > p.Config.MaxRetries {
			return attempt
		}
		sleep(backoff)
		if ctx.Err() != nil {
			return attempt
		}
		backoff = p.Config.Next(backoff)
	}
}
