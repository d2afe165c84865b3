package sender

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smsgate/smsgate/internal/sms"
)

const resultOK = "ok"

// SendMetrics holds the collectors shared by every Metrics decorator built
// against one registerer.
type SendMetrics struct {
	sends    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	charged  prometheus.Counter
	checks   *prometheus.CounterVec
}

// NewSendMetrics creates the send collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewSendMetrics(reg prometheus.Registerer) (*SendMetrics, error) {
	m := &SendMetrics{
		sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smsgate",
				Name:      "sends_total",
				Help:      "Total SMS send calls by result.",
			},
			[]string{"result"}, // "ok" or an error kind
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "smsgate",
				Name:      "send_duration_seconds",
				Help:      "Duration of SMS send calls, retries included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		charged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "smsgate",
				Name:      "charged_cost_total",
				Help:      "Sum of costs charged by gateways for successful sends.",
			},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smsgate",
				Name:      "can_send_total",
				Help:      "Total balance gate checks by result.",
			},
			[]string{"result"}, // "true", "false" or an error kind
		),
	}

	var err error
	if m.sends, err = register(reg, m.sends); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.charged, err = register(reg, m.charged); err != nil {
		return nil, err
	}
	if m.checks, err = register(reg, m.checks); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Metrics records send outcomes and latency.
type Metrics struct {
	next    Sender
	metrics *SendMetrics
	now     func() time.Time
}

var _ Sender = (*Metrics)(nil)

// NewMetrics wraps next.
func NewMetrics(next Sender, m *SendMetrics) *Metrics {
	return &Metrics{next: next, metrics: m, now: time.Now}
}

func (m *Metrics) Send(ctx context.Context, phone, message string) (sms.MessageCost, error) {
	start := m.now()
	result, err := m.next.Send(ctx, phone, message)

	label := resultOK
	if err != nil {
		label = sms.ErrorKind(err)
	} else if result.Cost > 0 {
		m.metrics.charged.Add(result.Cost)
	}
	m.metrics.sends.WithLabelValues(label).Inc()
	m.metrics.duration.WithLabelValues(label).Observe(m.now().Sub(start).Seconds())
	return result, err
}

func (m *Metrics) CanSend(ctx context.Context, phone, message string) (bool, error) {
	ok, err := m.next.CanSend(ctx, phone, message)
	label := strconv.FormatBool(ok)
	if err != nil {
		label = sms.ErrorKind(err)
	}
	m.metrics.checks.WithLabelValues(label).Inc()
	return ok, err
}
