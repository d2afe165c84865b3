package sender

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smsgate/smsgate/internal/sms"
)

// Logging emits one structured event per Send. Results and errors pass
// through unchanged.
type Logging struct {
	next   Sender
	logger *slog.Logger
}

var _ Sender = (*Logging)(nil)

// NewLogging wraps next. A nil logger falls back to slog.Default().
func NewLogging(next Sender, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{next: next, logger: logger}
}

func (l *Logging) Send(ctx context.Context, phone, message string) (sms.MessageCost, error) {
	result, err := l.next.Send(ctx, phone, message)
	if err != nil {
		attrs := []any{
			"error", err,
			"error_kind", sms.ErrorKind(err),
			"phone", phone,
			"message", message,
			"message_length", len(message),
		}
		var ib *sms.InsufficientBalanceError
		if errors.As(err, &ib) {
			attrs = append(attrs, "balance", ib.Balance, "message_cost", ib.Cost)
		}
		l.logger.ErrorContext(ctx, "sms send failed", attrs...)
		return result, err
	}

	l.logger.InfoContext(ctx, "sms sent",
		"phone", phone,
		"message", message,
		"message_length", len(message),
		"message_cost", result.Cost,
		"remaining_balance", result.RemainingBalance,
	)
	return result, nil
}

func (l *Logging) CanSend(ctx context.Context, phone, message string) (bool, error) {
	return l.next.CanSend(ctx, phone, message)
}
