package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smsgate/smsgate/internal/sms"
)

// Retry re-sends on ServiceUnavailable errors with exponential backoff.
// Every other error is returned after the first attempt.
type Retry struct {
	next        Sender
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	sleep       func(context.Context, time.Duration) error
}

var _ Sender = (*Retry)(nil)

// ValidateRetryPolicy checks maxAttempts >= 1 and baseDelay >= 0.
func ValidateRetryPolicy(maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", sms.ErrInvalidArgument)
	}
	if baseDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", sms.ErrInvalidArgument)
	}
	return nil
}

// NewRetry wraps next. A nil logger falls back to slog.Default().
func NewRetry(next Sender, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) (*Retry, error) {
	if err := ValidateRetryPolicy(maxAttempts, baseDelay); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retry{
		next:        next,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}, nil
}

func (r *Retry) Send(ctx context.Context, phone, message string) (sms.MessageCost, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.next.Send(ctx, phone, message)
		if err == nil {
			return result, nil
		}
		if !sms.IsRetryable(err) {
			return sms.MessageCost{}, err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}

		delay := ComputeBackoff(r.baseDelay, attempt)
		r.logger.Warn("sms send attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"phone", phone,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return sms.MessageCost{}, errors.Join(err, lastErr)
		}
	}

	r.logger.Warn("sms send attempts exhausted",
		"attempts", r.maxAttempts,
		"phone", phone,
		"error", lastErr,
	)
	return sms.MessageCost{}, lastErr
}

func (r *Retry) CanSend(ctx context.Context, phone, message string) (bool, error) {
	return r.next.CanSend(ctx, phone, message)
}
