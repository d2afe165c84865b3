package smsgate_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/smsgate"
)

func newClient(t *testing.T, gw sms.GatewayBundle) *smsgate.Client {
	t.Helper()
	resolver, err := sms.NewPrefixResolver(sms.DefaultPrefixes())
	require.NoError(t, err)
	reg := sms.NewRegistry()
	require.NoError(t, reg.Register(sms.MegaFon, sms.Bundle(gw)))
	return smsgate.New(resolver, reg)
}

// flakyGateway fails the first n sends with a ServiceUnavailableError.
type flakyGateway struct {
	*sms.StaticGateway
	failures int32
	calls    atomic.Int32
}

func (g *flakyGateway) Send(ctx context.Context, msg sms.SMS) (float64, error) {
	if g.calls.Add(1) <= g.failures {
		return 0, &sms.ServiceUnavailableError{Message: "failed to send SMS", Service: "MTS API", StatusCode: 503}
	}
	return g.StaticGateway.Send(ctx, msg)
}

func TestClientSend(t *testing.T) {
	c := newClient(t, sms.NewStaticGateway(100, 2))

	result, err := c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, sms.MessageCost{Cost: 4, RemainingBalance: 100}, result)

	ok, err := c.CanSend(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientInsufficientBalance(t *testing.T) {
	gw := sms.NewCaptureGateway(sms.NewStaticGateway(1, 1))
	c := newClient(t, gw)

	_, err := c.Send(t.Context(), "9251234567", "hello")
	var ib *sms.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, &sms.InsufficientBalanceError{Balance: 1, Cost: 5}, ib)

	ok, err := c.CanSend(t.Context(), "9251234567", "hello")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, gw.SendCount())
}

func TestClientRetriesTransientFailures(t *testing.T) {
	gw := &flakyGateway{StaticGateway: sms.NewStaticGateway(100, 2), failures: 2}
	c := newClient(t, gw)
	require.NoError(t, c.WithRetries(3, 0))

	result, err := c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, 4.0, result.Cost)
	assert.Equal(t, int32(3), gw.calls.Load())
}

func TestClientRetryWarningsSilentWithoutLogging(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(orig)

	gw := &flakyGateway{StaticGateway: sms.NewStaticGateway(100, 2), failures: 1}
	c := newClient(t, gw)
	require.NoError(t, c.WithRetries(3, 0))

	_, err := c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, int32(2), gw.calls.Load())
	assert.Empty(t, buf.String())
}

func TestClientWithoutRetriesFailsFast(t *testing.T) {
	gw := &flakyGateway{StaticGateway: sms.NewStaticGateway(100, 2), failures: 1}
	c := newClient(t, gw)
	require.NoError(t, c.WithRetries(3, 0))
	c.WithoutRetries()

	_, err := c.Send(t.Context(), "9251234567", "hi")
	assert.True(t, sms.IsRetryable(err))
	assert.Equal(t, int32(1), gw.calls.Load())
}

func TestClientWithRetriesValidatesEagerly(t *testing.T) {
	c := newClient(t, sms.NewStaticGateway(100, 2))

	err := c.WithRetries(0, time.Second)
	assert.ErrorIs(t, err, sms.ErrInvalidArgument)
	assert.ErrorContains(t, err, "max attempts must be at least 1")

	err = c.WithRetries(3, -time.Second)
	assert.ErrorIs(t, err, sms.ErrInvalidArgument)
	assert.ErrorContains(t, err, "retry delay cannot be negative")
}

func TestClientLoggingObservesFinalOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	gw := &flakyGateway{StaticGateway: sms.NewStaticGateway(100, 2), failures: 5}
	c := newClient(t, gw)
	c.WithLogging(logger)
	require.NoError(t, c.WithRetries(2, 0))

	_, err := c.Send(t.Context(), "9251234567", "hi")
	require.Error(t, err)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"msg":"sms send failed"`))
	assert.Contains(t, out, `"error_kind":"service_unavailable"`)
	assert.Contains(t, out, "retrying")
}

func TestClientLoggingToggleRebuildsChain(t *testing.T) {
	var buf bytes.Buffer
	c := newClient(t, sms.NewStaticGateway(100, 2))

	_, err := c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Zero(t, buf.Len())

	c.WithLogging(slog.New(slog.NewJSONHandler(&buf, nil)))
	_, err = c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"sms sent"`)
}

func TestClientCustomProviders(t *testing.T) {
	c := newClient(t, sms.NewStaticGateway(100, 2))
	custom := sms.NewCaptureGateway(sms.NewStaticGateway(50, 1))
	c.WithCustomProviders(func(r *sms.Registry) error {
		return r.Register(sms.MTS, sms.Bundle(custom))
	})

	result, err := c.Send(t.Context(), "9101234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, sms.MessageCost{Cost: 2, RemainingBalance: 50}, result)
	assert.Equal(t, 1, custom.SendCount())

	// The custom registry replaces the default one.
	_, err = c.Send(t.Context(), "9251234567", "hi")
	assert.ErrorIs(t, err, sms.ErrUnknownProvider)

	providers, err := c.Providers()
	require.NoError(t, err)
	assert.Equal(t, []sms.Provider{sms.MTS}, providers)
}

func TestClientCustomProvidersError(t *testing.T) {
	c := newClient(t, sms.NewStaticGateway(100, 2))
	c.WithCustomProviders(func(*sms.Registry) error { return errors.New("bad credentials") })

	_, err := c.CanSend(t.Context(), "9251234567", "hi")
	assert.ErrorContains(t, err, "configuring providers: bad credentials")
}

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newClient(t, sms.NewStaticGateway(100, 2))
	require.NoError(t, c.WithMetrics(reg))
	// Registering twice on the same registerer reuses the collectors.
	require.NoError(t, c.WithMetrics(reg))

	_, err := c.Send(t.Context(), "9251234567", "hi")
	require.NoError(t, err)

	count, err := promtest.GatherAndCount(reg, "smsgate_sends_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClientBalanceAndResolve(t *testing.T) {
	c := newClient(t, sms.NewStaticGateway(42, 1))

	balance, err := c.Balance(t.Context(), sms.MegaFon)
	require.NoError(t, err)
	assert.Equal(t, 42.0, balance)

	_, err = c.Balance(t.Context(), sms.Tele2)
	assert.ErrorIs(t, err, sms.ErrUnknownProvider)

	p, err := c.Resolve("+7 925 123 45 67")
	require.NoError(t, err)
	assert.Equal(t, sms.MegaFon, p)
}
