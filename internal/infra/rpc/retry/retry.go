// Package retry wraps calls to remote collaborators with a deadline,
// error classification and exponential backoff with jitter.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultTimeout    = 15 * time.Second
	DefaultMaxJitter  = 1 * time.Second

	maxShift = 30
)

// Config controls a single retried call. It is read-only during the call.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// BaseDelay is multiplied by 2^attempt between attempts.
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`

	// Timeout bounds each individual attempt.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// MaxJitter bounds the random delay added to each backoff.
	MaxJitter time.Duration `yaml:"max_jitter" env:"MAX_JITTER"`

	// OnRetry is called before sleeping, with the 1-based number of the retry.
	OnRetry func(attempt int, err error) `yaml:"-"`

	// OnAttempt observes every attempt outcome.
	OnAttempt func(AttemptOutcome) `yaml:"-"`
}

// DefaultConfig returns 3 retries, 1s base delay, 15s timeout and up to 1s jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Timeout:    DefaultTimeout,
		MaxJitter:  DefaultMaxJitter,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	return c
}

// AttemptOutcome describes one finished attempt.
type AttemptOutcome struct {
	Label     string
	Attempt   int // 0-based
	Succeeded bool
	Err       error
	Kind      Kind
	Delay     time.Duration // wait applied before the next attempt, 0 if none
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultSleep is a context-aware sleep.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor runs retried calls. The zero value uses the real clock and a
// process-wide random source.
type Executor struct {
	Sleep  SleepFunc
	Jitter func(max time.Duration) time.Duration
	Logger *slog.Logger
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Do runs op with the package default executor.
func Do[T any](ctx context.Context, label string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	return Run(ctx, Executor{}, label, cfg, op)
}

// Run executes op up to cfg.MaxRetries+1 times, each attempt bounded by
// cfg.Timeout. Attempts are strictly sequential. Non-retryable errors return
// immediately; on exhaustion the last error is returned unchanged.
func Run[T any](ctx context.Context, ex Executor, label string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.normalized()

	sleep := ex.Sleep
	if sleep == nil {
		sleep = DefaultSleep
	}
	jitter := ex.Jitter
	if jitter == nil {
		jitter = uniformJitter
	}
	log := ex.Logger
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		v, err := WithDeadline(ctx, cfg.Timeout, op)
		if err == nil {
			if attempt > 0 {
				log.Info("Request succeeded after retry", "label", label, "attempt", attempt+1)
			}
			observe(cfg, AttemptOutcome{Label: label, Attempt: attempt, Succeeded: true})
			return v, nil
		}

		var te *Error
		if asTimeout(err, &te) && te.Op == "" {
			te.Op = label
		}
		lastErr = err

		kind := Classify(err)
		if ctx.Err() != nil {
			observe(cfg, AttemptOutcome{Label: label, Attempt: attempt, Err: err, Kind: kind})
			return zero, err
		}
		if !kind.Retryable() || attempt == cfg.MaxRetries {
			observe(cfg, AttemptOutcome{Label: label, Attempt: attempt, Err: err, Kind: kind})
			log.Error("Request failed (no retry)",
				"label", label,
				"attempt", attempt+1,
				"max_retries", cfg.MaxRetries,
				"kind", kind.String(),
				"error", err,
			)
			return zero, err
		}

		delay := cfg.BaseDelay*time.Duration(1<<min(attempt, maxShift)) + jitter(cfg.MaxJitter)
		observe(cfg, AttemptOutcome{Label: label, Attempt: attempt, Err: err, Kind: kind, Delay: delay})
		log.Warn("Request failed, retrying",
			"label", label,
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"retry_in", delay.Round(time.Millisecond),
			"error", err,
		)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func observe(cfg Config, o AttemptOutcome) {
	if cfg.OnAttempt != nil {
		cfg.OnAttempt(o)
	}
}

func asTimeout(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok || e.Kind != KindTimeout {
		return false
	}
	*target = e
	return true
}
