// Package sender implements the send pipeline: the balance-gated Service and
// the decorators that wrap it behind the same Sender contract.
package sender

import (
	"context"

	"github.com/smsgate/smsgate/internal/sms"
)

// Sender is the contract shared by the Service and every decorator.
type Sender interface {
	// Send delivers message to phone and reports the charged cost and the
	// balance remaining afterwards.
	Send(ctx context.Context, phone, message string) (sms.MessageCost, error)
	// CanSend reports whether a send would currently clear the balance gate.
	CanSend(ctx context.Context, phone, message string) (bool, error)
}
