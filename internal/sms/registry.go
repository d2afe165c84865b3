package sms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Gateway performs the network send and returns the price actually charged.
type Gateway interface {
	Send(ctx context.Context, msg SMS) (float64, error)
}

// BalanceChecker reads the current prepaid balance.
type BalanceChecker interface {
	CheckBalance(ctx context.Context) (float64, error)
}

// CostCalculator estimates the price of a message locally, without I/O.
type CostCalculator interface {
	CalculateCost(msg Message) float64
}

// Capabilities is the bundle of gateway operations registered for one carrier.
type Capabilities struct {
	Sender  Gateway
	Balance BalanceChecker
	Cost    CostCalculator
}

// GatewayBundle is implemented by gateways that provide all three capabilities.
type GatewayBundle interface {
	Gateway
	BalanceChecker
	CostCalculator
}

// Bundle builds Capabilities backed by a single gateway value.
func Bundle(g GatewayBundle) Capabilities {
	return Capabilities{Sender: g, Balance: g, Cost: g}
}

func (c Capabilities) validate() error {
	if c.Sender == nil || c.Balance == nil || c.Cost == nil {
		return errors.New("capabilities must provide sender, balance checker and cost calculator")
	}
	return nil
}

// Registry maps carriers to their capability bundles. It is owned by the
// caller and safe for concurrent use; registration normally happens during
// setup and lookups dominate afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[Provider]Capabilities
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Provider]Capabilities)}
}

// Register associates caps with p, replacing any previous entry.
func (r *Registry) Register(p Provider, caps Capabilities) error {
	if !p.Valid() {
		return fmt.Errorf("register %s: %w", p, ErrUnknownProvider)
	}
	if err := caps.validate(); err != nil {
		return fmt.Errorf("register %s: %w", p, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p] = caps
	return nil
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[Provider]Capabilities)
}

// Capabilities returns the bundle registered for p, or ErrUnknownProvider.
func (r *Registry) Capabilities(p Provider) (Capabilities, error) {
	r.mu.RLock()
	caps, ok := r.entries[p]
	r.mu.RUnlock()
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %s has no gateway registered", ErrUnknownProvider, p)
	}
	return caps, nil
}

// Has reports whether p has a registered bundle.
func (r *Registry) Has(p Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[p]
	return ok
}

// Providers lists registered carriers in declaration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	out := make([]Provider, 0, len(r.entries))
	for p := range r.entries {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
