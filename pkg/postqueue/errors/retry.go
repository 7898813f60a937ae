package errors

import (
	"math/rand/v2"
	"time"
)

// Action is the outcome of a retry decision for a failed queue entry.
type Action int

const (
	// ActionKeep leaves the entry in the queue for a later drain.
	ActionKeep Action = iota
	// ActionDrop removes the entry without delivering it.
	ActionDrop
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Decision tells the processor what to do with a failed entry.
type Decision struct {
	Action Action

	// Delay is how long the entry waits before it becomes eligible again.
	// Only meaningful for ActionKeep. Zero means the next drain.
	Delay time.Duration
}

// Keep returns a decision to retain the entry after delay.
func Keep(delay time.Duration) Decision {
	return Decision{Action: ActionKeep, Delay: delay}
}

// Drop returns a decision to discard the entry.
func Drop() Decision {
	return Decision{Action: ActionDrop}
}

// RetryPolicy decides the fate of a queue entry whose delivery failed.
// attempt is the number of failed attempts including the current one.
type RetryPolicy interface {
	Decide(attempt int, err error) Decision
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(attempt int, err error) Decision

// Decide implements RetryPolicy.
func (f RetryPolicyFunc) Decide(attempt int, err error) Decision {
	return f(attempt, err)
}

// RetryForever keeps every failed entry and makes it eligible on the very next
// drain. It is the default policy.
var RetryForever RetryPolicy = RetryPolicyFunc(func(int, error) Decision {
	return Keep(0)
})

// RetryConfig configures a backoff policy.
type RetryConfig struct {
	// MaxAttempts is the number of failed attempts after which an entry is
	// dropped. Zero means unlimited.
	MaxAttempts int

	// InitialBackoff is the delay after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied after each failure.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// DropPermanent drops entries whose error categorizes as permanent
	// without waiting for MaxAttempts.
	DropPermanent bool
}

// DefaultRetry is a moderate backoff configuration.
var DefaultRetry = RetryConfig{
	MaxAttempts:    0,
	InitialBackoff: 5 * time.Second,
	MaxBackoff:     10 * time.Minute,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NewBackoffPolicy returns a RetryPolicy that delays retries exponentially.
func NewBackoffPolicy(cfg RetryConfig) RetryPolicy {
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &backoffPolicy{cfg: cfg}
}

type backoffPolicy struct {
	cfg RetryConfig
}

func (p *backoffPolicy) Decide(attempt int, err error) Decision {
	if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
		return Drop()
	}
	if p.cfg.DropPermanent && err != nil && Categorize(err) == CategoryPermanent {
		return Drop()
	}

	backoff := p.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.cfg.BackoffFactor)
		if p.cfg.MaxBackoff > 0 && backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
			break
		}
	}
	return Keep(calculateBackoff(backoff, p.cfg.Jitter))
}

// calculateBackoff adds jitter to the backoff duration.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if base <= 0 || jitter <= 0 {
		return base
	}
	// Add random jitter: base * (1 +/- jitter)
	jitterRange := float64(base) * jitter
	offset := (rand.Float64()*2 - 1) * jitterRange
	return time.Duration(float64(base) + offset)
}

// RetryOption configures retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the number of failures before an entry is dropped.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxBackoff = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.BackoffFactor = f
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.Jitter = j
	}
}

// WithDropPermanent drops entries with permanent errors immediately.
func WithDropPermanent(drop bool) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.DropPermanent = drop
	}
}

// NewRetryConfig creates a retry configuration with the given options.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
