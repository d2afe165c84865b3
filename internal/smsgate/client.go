// Package smsgate is the entry point for sending SMS: it assembles the
// send pipeline from configuration and exposes Send and CanSend.
package smsgate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smsgate/smsgate/internal/sender"
	"github.com/smsgate/smsgate/internal/sms"
)

type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// pipeline is one built decorator chain and the registry it sends through.
// It is replaced as a whole when configuration changes.
type pipeline struct {
	sender   sender.Sender
	registry *sms.Registry
}

// Client lazily builds the send pipeline on first use. Every With* call
// discards the built pipeline so the next call picks up the change.
type Client struct {
	resolver sms.Resolver
	registry *sms.Registry

	mu        sync.Mutex
	logger    *slog.Logger
	retry     *retryPolicy
	metrics   *sender.SendMetrics
	configure func(*sms.Registry) error
	built     *pipeline
}

// New creates a Client that routes numbers with resolver and sends through
// gateways registered in registry. Logging, retries and metrics start off.
func New(resolver sms.Resolver, registry *sms.Registry) *Client {
	if registry == nil {
		registry = sms.NewRegistry()
	}
	return &Client{resolver: resolver, registry: registry}
}

// WithLogging enables send events on logger. A nil logger disables logging.
func (c *Client) WithLogging(logger *slog.Logger) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
	c.built = nil
	return c
}

// WithRetries enables retrying transient gateway failures. maxAttempts
// counts the first attempt.
func (c *Client) WithRetries(maxAttempts int, baseDelay time.Duration) error {
	if err := sender.ValidateRetryPolicy(maxAttempts, baseDelay); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retry = &retryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
	c.built = nil
	return nil
}

// WithoutRetries disables retrying.
func (c *Client) WithoutRetries() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retry = nil
	c.built = nil
	return c
}

// WithMetrics records send metrics on reg.
func (c *Client) WithMetrics(reg prometheus.Registerer) error {
	m, err := sender.NewSendMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering send metrics: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	c.built = nil
	return nil
}

// WithCustomProviders replaces the registry passed to New. configure runs
// against a fresh registry each time the pipeline is built.
func (c *Client) WithCustomProviders(configure func(*sms.Registry) error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configure = configure
	c.built = nil
	return c
}

// Send delivers message to phone through the configured pipeline.
func (c *Client) Send(ctx context.Context, phone, message string) (sms.MessageCost, error) {
	p, err := c.pipeline()
	if err != nil {
		return sms.MessageCost{}, err
	}
	return p.sender.Send(ctx, phone, message)
}

// CanSend reports whether message to phone would clear the balance gate.
func (c *Client) CanSend(ctx context.Context, phone, message string) (bool, error) {
	p, err := c.pipeline()
	if err != nil {
		return false, err
	}
	return p.sender.CanSend(ctx, phone, message)
}

// Providers lists carriers with a registered gateway.
func (c *Client) Providers() ([]sms.Provider, error) {
	p, err := c.pipeline()
	if err != nil {
		return nil, err
	}
	return p.registry.Providers(), nil
}

// Balance reads the prepaid balance of provider's gateway.
func (c *Client) Balance(ctx context.Context, provider sms.Provider) (float64, error) {
	p, err := c.pipeline()
	if err != nil {
		return 0, err
	}
	caps, err := p.registry.Capabilities(provider)
	if err != nil {
		return 0, err
	}
	return caps.Balance.CheckBalance(ctx)
}

// Resolve returns the carrier a raw phone number routes to.
func (c *Client) Resolve(phone string) (sms.Provider, error) {
	number, err := sms.NewPhoneNumber(phone)
	if err != nil {
		return 0, err
	}
	return c.resolver.DetermineProvider(number)
}

func (c *Client) pipeline() (*pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built != nil {
		return c.built, nil
	}

	registry := c.registry
	if c.configure != nil {
		registry = sms.NewRegistry()
		if err := c.configure(registry); err != nil {
			return nil, fmt.Errorf("configuring providers: %w", err)
		}
	}

	var s sender.Sender = sender.NewService(c.resolver, registry)
	if c.retry != nil {
		logger := c.logger
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		r, err := sender.NewRetry(s, c.retry.maxAttempts, c.retry.baseDelay, logger)
		if err != nil {
			return nil, err
		}
		s = r
	}
	if c.metrics != nil {
		s = sender.NewMetrics(s, c.metrics)
	}
	if c.logger != nil {
		s = sender.NewLogging(s, c.logger)
	}

	c.built = &pipeline{sender: s, registry: registry}
	return c.built, nil
}
