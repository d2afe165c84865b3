package ledger_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsgate/smsgate/internal/ledger"
	"github.com/smsgate/smsgate/internal/sender"
	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/testutil"
)

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(t.Context(), ":memory:", testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestEnsureAccountIsIdempotent(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MTS, 100))
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MTS, 500))

	balance, err := l.Balance(t.Context(), sms.MTS)
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance)

	entries, err := l.Entries(t.Context(), sms.MTS, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindTopUp, entries[0].Kind)
	assert.Len(t, entries[0].ID, 36)
}

func TestBalanceMissingAccount(t *testing.T) {
	l := openLedger(t)
	balance, err := l.Balance(t.Context(), sms.Tele2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
}

func TestTopUp(t *testing.T) {
	l := openLedger(t)
	balance, err := l.TopUp(t.Context(), sms.Beeline, 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance)

	balance, err = l.TopUp(t.Context(), sms.Beeline, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, balance)

	_, err = l.TopUp(t.Context(), sms.Beeline, 0)
	assert.ErrorIs(t, err, sms.ErrInvalidArgument)
}

func TestTopUpRejectsNonFinite(t *testing.T) {
	l := openLedger(t)
	for _, amount := range []float64{math.Inf(1), math.NaN()} {
		_, err := l.TopUp(t.Context(), sms.MTS, amount)
		assert.ErrorIs(t, err, sms.ErrInvalidArgument, "%v", amount)
	}
	assert.ErrorIs(t, l.EnsureAccount(t.Context(), sms.MTS, math.Inf(1)), sms.ErrInvalidArgument)

	balance, err := l.Balance(t.Context(), sms.MTS)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
}

func TestChargeRejectsOverdraft(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MegaFon, 1))

	_, err := l.Charge(t.Context(), sms.MegaFon, 5, "79251234567")
	var ib *sms.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, 1.0, ib.Balance)
	assert.Equal(t, 5.0, ib.Cost)

	balance, err := l.Balance(t.Context(), sms.MegaFon)
	require.NoError(t, err)
	assert.Equal(t, 1.0, balance)
}

func TestChargeJournals(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MegaFon, 10))

	remaining, err := l.Charge(t.Context(), sms.MegaFon, 4, "79251234567")
	require.NoError(t, err)
	assert.Equal(t, 6.0, remaining)

	entries, err := l.Entries(t.Context(), sms.MegaFon, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	kinds := []string{entries[0].Kind, entries[1].Kind}
	assert.ElementsMatch(t, []string{ledger.KindTopUp, ledger.KindCharge}, kinds)
}

func TestLedgerPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(t.Context(), path, nil)
	require.NoError(t, err)
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MTS, 7))
	require.NoError(t, l.Close())

	l, err = ledger.Open(t.Context(), path, nil)
	require.NoError(t, err)
	defer l.Close()
	balance, err := l.Balance(t.Context(), sms.MTS)
	require.NoError(t, err)
	assert.Equal(t, 7.0, balance)
}

func TestGatewayDebitsThroughSendPipeline(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.EnsureAccount(t.Context(), sms.MegaFon, 100))

	reg := sms.NewRegistry()
	require.NoError(t, reg.Register(sms.MegaFon, sms.Bundle(l.Gateway(sms.MegaFon, sms.UnitPricer{PricePerUnit: 2}))))
	resolver, err := sms.NewPrefixResolver(sms.DefaultPrefixes())
	require.NoError(t, err)
	svc := sender.NewService(resolver, reg)

	result, err := svc.Send(context.Background(), "9251234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, sms.MessageCost{Cost: 4, RemainingBalance: 96}, result)

	entries, err := l.Entries(t.Context(), sms.MegaFon, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "79251234567", entries[0].Phone)
}

func TestGatewayImplementsBundle(t *testing.T) {
	var _ sms.GatewayBundle = (*ledger.Gateway)(nil)
}
