package sender

import (
	"context"
	"time"
)

// backoffCap bounds a single wait so large attempt counts cannot overflow.
const backoffCap = 5 * time.Minute

// ComputeBackoff returns the wait before the retry that follows attempt.
// Formula: min(base * 2^(attempt-1), cap).
func ComputeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt && delay < backoffCap; i++ {
		delay *= 2
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}
	return min(delay, backoffCap)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
