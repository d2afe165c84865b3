package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smsgate/smsgate/internal/config"
	"github.com/smsgate/smsgate/internal/ledger"
	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/smsgate"
)

// newSNS is swapped in tests to avoid loading AWS credentials.
var newSNS = func(ctx context.Context, region string) (sms.SNSClient, error) {
	return newSNSClient(ctx, region)
}

// buildResolver returns the resolver selected by [routing].
func buildResolver(cfg *config.Config) (sms.Resolver, error) {
	table := sms.DefaultPrefixes()
	if len(cfg.Routing.Prefixes) > 0 {
		table = make(map[string]sms.Provider, len(cfg.Routing.Prefixes))
		for prefix, name := range cfg.Routing.Prefixes {
			p, err := sms.ParseProvider(name)
			if err != nil {
				return nil, fmt.Errorf("routing.prefixes.%s: %w", prefix, err)
			}
			table[prefix] = p
		}
	}

	switch cfg.Routing.Strategy {
	case "carrier":
		return sms.NewCarrierResolver(), nil
	case "chain":
		prefixes, err := sms.NewPrefixResolver(table)
		if err != nil {
			return nil, err
		}
		return sms.ChainResolver{prefixes, sms.NewCarrierResolver()}, nil
	default:
		return sms.NewPrefixResolver(table)
	}
}

// gatewaySet is the registry built from [gateways.*] plus the resources
// that must be released when the process exits.
type gatewaySet struct {
	registry *sms.Registry
	backends map[sms.Provider]string
	ledgers  map[string]*ledger.Ledger
}

func (g *gatewaySet) Close() error {
	var errs []error
	for _, l := range g.ledgers {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

// buildRegistry registers one gateway per [gateways.<provider>] table.
// Providers whose tables point at the same ledger path share one database.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gatewaySet, error) {
	set := &gatewaySet{
		registry: sms.NewRegistry(),
		backends: make(map[sms.Provider]string),
		ledgers:  make(map[string]*ledger.Ledger),
	}
	for _, name := range cfg.GatewayNames() {
		p, err := sms.ParseProvider(name)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("gateways.%s: %w", name, err)
		}
		gw, err := set.gateway(ctx, p, cfg.Gateways[name], logger)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("gateways.%s: %w", name, err)
		}
		if err := set.registry.Register(p, sms.Bundle(gw)); err != nil {
			set.Close()
			return nil, err
		}
		set.backends[p] = cfg.Gateways[name].Backend
		logger.Debug("gateway registered", "provider", p.String(), "backend", cfg.Gateways[name].Backend)
	}
	return set, nil
}

func (g *gatewaySet) gateway(ctx context.Context, p sms.Provider, gc config.GatewayConfig, logger *slog.Logger) (sms.GatewayBundle, error) {
	switch gc.Backend {
	case "exolve":
		return sms.NewExolveGateway(gc.Token, gc.Sender, gc.BaseURL, gc.PricePerSegment)
	case "sns":
		client, err := newSNS(ctx, gc.Region)
		if err != nil {
			return nil, err
		}
		return sms.NewSNSGateway(client, gc.PricePerSegment), nil
	case "ledger":
		l, err := g.ledger(ctx, gc.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := l.EnsureAccount(ctx, p, gc.OpeningBalance); err != nil {
			return nil, err
		}
		return l.Gateway(p, sms.UnitPricer{PricePerUnit: gc.PricePerUnit}), nil
	case "static":
		return sms.NewStaticGateway(gc.Balance, gc.PricePerUnit), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", gc.Backend)
	}
}

func (g *gatewaySet) ledger(ctx context.Context, path string, logger *slog.Logger) (*ledger.Ledger, error) {
	if l, ok := g.ledgers[path]; ok {
		return l, nil
	}
	l, err := ledger.Open(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	g.ledgers[path] = l
	return l, nil
}

// buildClient wires a facade client from configuration. reg may be nil
// when metrics are not exported.
func buildClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*smsgate.Client, *gatewaySet, error) {
	resolver, err := buildResolver(cfg)
	if err != nil {
		return nil, nil, err
	}
	set, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	client := smsgate.New(resolver, set.registry)
	if cfg.Logging.Enabled {
		client.WithLogging(logger)
	}
	if cfg.Retry.Enabled {
		if err := client.WithRetries(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay()); err != nil {
			set.Close()
			return nil, nil, err
		}
	}
	if reg != nil {
		if err := client.WithMetrics(reg); err != nil {
			set.Close()
			return nil, nil, err
		}
	}
	return client, set, nil
}

func resolvePhone(r sms.Resolver, raw string) (sms.Provider, sms.PhoneNumber, error) {
	number, err := sms.NewPhoneNumber(raw)
	if err != nil {
		return 0, sms.PhoneNumber{}, err
	}
	p, err := r.DetermineProvider(number)
	if err != nil {
		return 0, number, err
	}
	return p, number, nil
}
