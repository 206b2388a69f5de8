package leginfo

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds repeated attempts at a transient operation. The same
// policy value is shared by page fetches and item detail fetches.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Do runs fn until it succeeds or MaxAttempts is reached, backing off
// between attempts.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var err error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		backoff := p.backoff(attempt)
		logger.Warn("operation failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", op, p.MaxAttempts, err)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}
