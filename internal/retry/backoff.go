package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config configures exponential backoff.
type Config struct {
	MaxAttempts int           // attempts after the first failure; 0 retries forever
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on any single delay
	Multiplier  float64
	Jitter      bool // spread delays by up to 10% either way
}

// Default returns the backoff used for stream reconnection.
func Default() Config {
	return Config{
		MaxAttempts: 8,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay returns the wait before retry number attempt (zero based):
// BaseDelay * Multiplier^attempt, capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 2.0
	}
	delay := float64(c.BaseDelay) * math.Pow(mult, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		spread := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * spread
		if delay < 0 {
			delay = float64(c.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// Exhausted reports whether attempt is past the configured limit.
func (c Config) Exhausted(attempt int) bool {
	return c.MaxAttempts > 0 && attempt >= c.MaxAttempts
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (c Config) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(c.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// permanentError stops Do from retrying.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, ctx ends, the attempts are used up or op
// returns a Permanent error. It returns the last error from op, unwrapped
// from Permanent.
func Do(ctx context.Context, cfg Config, logger *zap.Logger, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if cfg.Exhausted(attempt) || ctx.Err() != nil {
			return err
		}
		if logger != nil {
			logger.Warn("operation failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("base_delay", cfg.BaseDelay),
				zap.Error(err))
		}
		if werr := cfg.Wait(ctx, attempt); werr != nil {
			return err
		}
	}
}
