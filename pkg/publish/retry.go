package publish

import (
	"context"
	"math/rand/v2"
	"time"
)

// Retry configures repeated upload attempts. Attempts below two mean a
// single try.
type Retry struct {
	Attempts   int           `yaml:"attempts" mapstructure:"attempts"`
	Backoff    time.Duration `yaml:"backoff" mapstructure:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// delay is the wait before retry n (0-based): Backoff doubled n times with
// ±12.5% jitter, capped at MaxBackoff
func (r Retry) delay(n int) time.Duration {
	if n > 30 {
		n = 30
	}
	d := r.Backoff << uint(n) //nolint:gosec // G115: n is bounded above
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int64N(quarter)) - d/8
	}
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

// do calls fn until it succeeds, the attempts run out or ctx ends. It
// returns the last error.
func (r Retry) do(ctx context.Context, fn func(attempt int) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(r.delay(i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(i); err == nil {
			return nil
		}
	}
	return err
}
