package sms

import (
	"context"
	"fmt"
	"sync"
)

// SNSClient abstracts the AWS SNS calls used by SNSGateway for testability.
type SNSClient interface {
	Publish(ctx context.Context, phoneNumber, message string) (messageID string, err error)
	// MonthlySpendLimit returns the account's SMS spend limit in USD.
	MonthlySpendLimit(ctx context.Context) (float64, error)
}

// SNSGateway sends SMS via AWS SNS. SNS exposes no prepaid balance, so the
// balance is the monthly spend limit minus what this gateway has charged.
type SNSGateway struct {
	client SNSClient
	pricer CostCalculator

	mu    sync.Mutex
	spent float64
}

// NewSNSGateway creates an SNSGateway with the given client.
func NewSNSGateway(client SNSClient, pricePerSegment float64) *SNSGateway {
	return &SNSGateway{
		client: client,
		pricer: SegmentPricer{PricePerSegment: pricePerSegment},
	}
}

func (g *SNSGateway) CalculateCost(msg Message) float64 {
	return g.pricer.CalculateCost(msg)
}

func (g *SNSGateway) Send(ctx context.Context, msg SMS) (float64, error) {
	if _, err := g.client.Publish(ctx, msg.Phone.E164(), msg.Message.Value()); err != nil {
		return 0, &ServiceUnavailableError{Message: "publish", Service: "sns", Err: err}
	}
	cost := g.CalculateCost(msg.Message)
	g.mu.Lock()
	g.spent += cost
	g.mu.Unlock()
	return cost, nil
}

func (g *SNSGateway) CheckBalance(ctx context.Context) (float64, error) {
	limit, err := g.client.MonthlySpendLimit(ctx)
	if err != nil {
		return 0, &ServiceUnavailableError{Message: "read spend limit", Service: "sns", Err: fmt.Errorf("sns: %w", err)}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return limit - g.spent, nil
}
