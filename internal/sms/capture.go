package sms

import (
	"context"
	"sync"
)

// StaticGateway reports a fixed balance and charges per byte of text. It
// never debits, so the balance after a send equals the balance before.
// Useful for development and as a stand-in for carriers without a client.
type StaticGateway struct {
	balance float64
	pricer  UnitPricer
}

// NewStaticGateway creates a StaticGateway.
func NewStaticGateway(balance, pricePerUnit float64) *StaticGateway {
	return &StaticGateway{balance: balance, pricer: UnitPricer{PricePerUnit: pricePerUnit}}
}

func (g *StaticGateway) Send(_ context.Context, msg SMS) (float64, error) {
	return g.pricer.CalculateCost(msg.Message), nil
}

func (g *StaticGateway) CheckBalance(context.Context) (float64, error) {
	return g.balance, nil
}

func (g *StaticGateway) CalculateCost(msg Message) float64 {
	return g.pricer.CalculateCost(msg)
}

// CaptureGateway records every Send and delegates to the wrapped gateway.
// Integration tests use it to assert which messages reached a carrier.
type CaptureGateway struct {
	next GatewayBundle

	mu    sync.Mutex
	Calls []SMS
}

// NewCaptureGateway wraps next.
func NewCaptureGateway(next GatewayBundle) *CaptureGateway {
	return &CaptureGateway{next: next}
}

func (c *CaptureGateway) Send(ctx context.Context, msg SMS) (float64, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, msg)
	c.mu.Unlock()
	return c.next.Send(ctx, msg)
}

func (c *CaptureGateway) CheckBalance(ctx context.Context) (float64, error) {
	return c.next.CheckBalance(ctx)
}

func (c *CaptureGateway) CalculateCost(msg Message) float64 {
	return c.next.CalculateCost(msg)
}

// SendCount returns the number of recorded sends.
func (c *CaptureGateway) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Last returns the most recent captured message.
func (c *CaptureGateway) Last() (SMS, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Calls) == 0 {
		return SMS{}, false
	}
	return c.Calls[len(c.Calls)-1], true
}

// Reset clears all recorded calls.
func (c *CaptureGateway) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}
