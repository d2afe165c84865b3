package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/smsgate/smsgate/internal/sms"
)

// Service resolves the carrier, gates on the prepaid balance and sends.
//
// The balance read and the send are separate gateway calls. Two concurrent
// sends against one account can both pass the gate before either is
// charged; callers needing atomic debits must serialize per account at the
// gateway.
type Service struct {
	resolver sms.Resolver
	registry *sms.Registry
}

var _ Sender = (*Service)(nil)

// NewService creates a Service that looks carriers up in registry.
func NewService(resolver sms.Resolver, registry *sms.Registry) *Service {
	return &Service{resolver: resolver, registry: registry}
}

// Send validates the input, checks the balance against the estimated cost,
// sends, and re-reads the balance. The returned cost is the gateway's charge,
// which may differ from the estimate used for the gate.
func (s *Service) Send(ctx context.Context, phone, message string) (sms.MessageCost, error) {
	msg, caps, err := s.prepare(phone, message)
	if err != nil {
		return sms.MessageCost{}, err
	}
	if err := s.gate(ctx, msg, caps); err != nil {
		return sms.MessageCost{}, err
	}

	charged, err := caps.Sender.Send(ctx, msg)
	if err != nil {
		return sms.MessageCost{}, err
	}

	remaining, err := caps.Balance.CheckBalance(ctx)
	if err != nil {
		return sms.MessageCost{}, fmt.Errorf("read balance after send: %w", err)
	}
	return sms.MessageCost{Cost: charged, RemainingBalance: remaining}, nil
}

// CanSend runs the same validation and balance gate as Send without sending.
// Only an insufficient balance becomes false; other errors are returned.
func (s *Service) CanSend(ctx context.Context, phone, message string) (bool, error) {
	msg, caps, err := s.prepare(phone, message)
	if err != nil {
		return false, err
	}
	err = s.gate(ctx, msg, caps)
	var ib *sms.InsufficientBalanceError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &ib):
		return false, nil
	default:
		return false, err
	}
}

func (s *Service) prepare(phone, message string) (sms.SMS, sms.Capabilities, error) {
	msg, err := sms.NewSMS(phone, message, s.resolver)
	if err != nil {
		return sms.SMS{}, sms.Capabilities{}, err
	}
	caps, err := s.registry.Capabilities(msg.Provider)
	if err != nil {
		return sms.SMS{}, sms.Capabilities{}, err
	}
	return msg, caps, nil
}

func (s *Service) gate(ctx context.Context, msg sms.SMS, caps sms.Capabilities) error {
	balance, err := caps.Balance.CheckBalance(ctx)
	if err != nil {
		return err
	}
	cost := caps.Cost.CalculateCost(msg.Message)
	if balance < cost {
		return &sms.InsufficientBalanceError{Balance: balance, Cost: cost}
	}
	return nil
}
