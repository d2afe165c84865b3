package sender

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/testutil"
)

func TestMetricsRecordsOutcomes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := NewSendMetrics(reg)
	testutil.NoError(t, err)

	ok := NewMetrics(stubSender{result: sms.MessageCost{Cost: 2.5}, ok: true}, m)
	_, err = ok.Send(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)
	_, err = ok.Send(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)

	failing := NewMetrics(stubSender{err: &sms.InsufficientBalanceError{Balance: 1, Cost: 5}}, m)
	_, _ = failing.Send(context.Background(), "9251234567", "hi")

	testutil.Equal(t, 2.0, promtest.ToFloat64(m.sends.WithLabelValues("ok")))
	testutil.Equal(t, 1.0, promtest.ToFloat64(m.sends.WithLabelValues(sms.KindInsufficientBalance)))
	testutil.Equal(t, 5.0, promtest.ToFloat64(m.charged))
}

func TestMetricsCanSend(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := NewSendMetrics(reg)
	testutil.NoError(t, err)

	_, err = NewMetrics(stubSender{ok: false}, m).CanSend(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)
	_, err = NewMetrics(stubSender{err: sms.ErrUnknownProvider}, m).CanSend(context.Background(), "9251234567", "hi")
	testutil.ErrorIs(t, err, sms.ErrUnknownProvider)

	testutil.Equal(t, 1.0, promtest.ToFloat64(m.checks.WithLabelValues("false")))
	testutil.Equal(t, 1.0, promtest.ToFloat64(m.checks.WithLabelValues(sms.KindUnknownProvider)))
}

func TestNewSendMetricsReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	first, err := NewSendMetrics(reg)
	testutil.NoError(t, err)
	second, err := NewSendMetrics(reg)
	testutil.NoError(t, err)

	second.sends.WithLabelValues("ok").Inc()
	testutil.Equal(t, 1.0, promtest.ToFloat64(first.sends.WithLabelValues("ok")))
}
