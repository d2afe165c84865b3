package ledger

import (
	"context"

	"github.com/smsgate/smsgate/internal/sms"
)

// Gateway is a prepaid carrier account backed by the ledger. Send debits the
// estimated cost; nothing leaves the process.
type Gateway struct {
	ledger   *Ledger
	provider sms.Provider
	pricer   sms.CostCalculator
}

var _ sms.GatewayBundle = (*Gateway)(nil)

// Gateway returns the debiting gateway for p's account.
func (l *Ledger) Gateway(p sms.Provider, pricer sms.CostCalculator) *Gateway {
	return &Gateway{ledger: l, provider: p, pricer: pricer}
}

func (g *Gateway) Send(ctx context.Context, msg sms.SMS) (float64, error) {
	cost := g.pricer.CalculateCost(msg.Message)
	if _, err := g.ledger.Charge(ctx, g.provider, cost, msg.Phone.Value()); err != nil {
		return 0, err
	}
	return cost, nil
}

func (g *Gateway) CheckBalance(ctx context.Context) (float64, error) {
	return g.ledger.Balance(ctx, g.provider)
}

func (g *Gateway) CalculateCost(msg sms.Message) float64 {
	return g.pricer.CalculateCost(msg)
}
