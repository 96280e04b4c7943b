package retry

import (
	"context"
	"log/slog"
	"time"
)

// Do runs op up to attempts times, sleeping delay between failures.
// The delay is fixed, there is no backoff. The last error is returned
// unchanged so callers can still branch on its kind (e.g. a timeout).
func Do[T any](ctx context.Context, attempts int, delay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var out T
	var err error

	for attempt := 1; ; attempt++ {
		out, err = op(ctx)
		if err == nil {
			return out, nil
		}
		if attempt >= attempts {
			return out, err
		}

		slog.WarnContext(
			ctx, "retrying failed operation",
			"attempt", attempt,
			"max_attempts", attempts,
			"err", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return out, err
		}
	}
}
