package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/testutil"
)

// scriptedSender returns errs in order, then succeeds with result.
type scriptedSender struct {
	mu       sync.Mutex
	errs     []error
	result   sms.MessageCost
	calls    int
	canCalls int
}

func (s *scriptedSender) Send(context.Context, string, string) (sms.MessageCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) {
		return sms.MessageCost{}, s.errs[s.calls-1]
	}
	return s.result, nil
}

func (s *scriptedSender) CanSend(context.Context, string, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canCalls++
	return true, nil
}

func unavailable(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &sms.ServiceUnavailableError{Message: "gateway down", StatusCode: 503}
	}
	return errs
}

func newTestRetry(t *testing.T, next Sender, maxAttempts int) (*Retry, *[]time.Duration) {
	t.Helper()
	r, err := NewRetry(next, maxAttempts, 100*time.Millisecond, testutil.DiscardLogger())
	testutil.NoError(t, err)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	next := &scriptedSender{errs: unavailable(2), result: sms.MessageCost{Cost: 4, RemainingBalance: 96}}
	r, delays := newTestRetry(t, next, 5)

	result, err := r.Send(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)
	testutil.Equal(t, sms.MessageCost{Cost: 4, RemainingBalance: 96}, result)
	testutil.Equal(t, 3, next.calls)
	testutil.SliceLen(t, *delays, 2)
	testutil.Equal(t, 100*time.Millisecond, (*delays)[0])
	testutil.Equal(t, 200*time.Millisecond, (*delays)[1])
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()
	next := &scriptedSender{errs: unavailable(10)}
	r, delays := newTestRetry(t, next, 3)

	_, err := r.Send(context.Background(), "9251234567", "hi")
	testutil.True(t, sms.IsRetryable(err), "want ServiceUnavailableError, got %v", err)
	testutil.Equal(t, 3, next.calls)
	// No wait after the final attempt.
	testutil.SliceLen(t, *delays, 2)
}

func TestRetrySingleAttempt(t *testing.T) {
	t.Parallel()
	next := &scriptedSender{errs: unavailable(1)}
	r, delays := newTestRetry(t, next, 1)

	_, err := r.Send(context.Background(), "9251234567", "hi")
	testutil.True(t, sms.IsRetryable(err))
	testutil.Equal(t, 1, next.calls)
	testutil.SliceLen(t, *delays, 0)
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	cases := []error{
		&sms.InsufficientBalanceError{Balance: 1, Cost: 5},
		sms.ErrInvalidArgument,
		sms.ErrUnknownProvider,
		errors.New("boom"),
	}
	for _, want := range cases {
		next := &scriptedSender{errs: []error{want}}
		r, _ := newTestRetry(t, next, 5)

		_, err := r.Send(context.Background(), "9251234567", "hi")
		testutil.True(t, errors.Is(err, want), "got %v, want %v", err, want)
		testutil.Equal(t, 1, next.calls)
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	t.Parallel()
	next := &scriptedSender{errs: unavailable(5)}
	r, _ := newTestRetry(t, next, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Send(ctx, "9251234567", "hi")
	testutil.ErrorIs(t, err, context.Canceled)
	testutil.True(t, sms.IsRetryable(err), "last gateway error should be joined")
	testutil.Equal(t, 1, next.calls)
	testutil.Equal(t, sms.KindCanceled, sms.ErrorKind(err))
}

func TestRetryCanSendPassesThrough(t *testing.T) {
	t.Parallel()
	next := &scriptedSender{}
	r, _ := newTestRetry(t, next, 3)

	ok, err := r.CanSend(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)
	testutil.True(t, ok)
	testutil.Equal(t, 1, next.canCalls)
	testutil.Equal(t, 0, next.calls)
}

func TestNewRetryValidation(t *testing.T) {
	t.Parallel()
	_, err := NewRetry(&scriptedSender{}, 0, time.Second, nil)
	testutil.ErrorIs(t, err, sms.ErrInvalidArgument)
	testutil.ErrorContains(t, err, "max attempts must be at least 1")

	_, err = NewRetry(&scriptedSender{}, 3, -time.Millisecond, nil)
	testutil.ErrorIs(t, err, sms.ErrInvalidArgument)
	testutil.ErrorContains(t, err, "retry delay cannot be negative")

	r, err := NewRetry(&scriptedSender{}, 1, 0, nil)
	testutil.NoError(t, err)
	testutil.NotNil(t, r)
}

func TestRetryLogsEachFailedAttempt(t *testing.T) {
	t.Parallel()
	logger, buf := newCaptureLogger()
	next := &scriptedSender{errs: unavailable(2), result: sms.MessageCost{Cost: 1}}
	r, err := NewRetry(next, 3, 0, logger)
	testutil.NoError(t, err)

	_, err = r.Send(context.Background(), "9251234567", "hi")
	testutil.NoError(t, err)

	events := decodeEvents(t, buf)
	testutil.SliceLen(t, events, 2)
	testutil.Equal(t, "WARN", events[0]["level"].(string))
	testutil.Equal(t, 1.0, events[0]["attempt"].(float64))
	testutil.Equal(t, 2.0, events[1]["attempt"].(float64))
}

func TestRetryDoesNotResendAcceptedMessage(t *testing.T) {
	var sends atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messaging/v1/SendSMS":
			sends.Add(1)
			w.Write([]byte(`<html>OK</html>`))
		case "/finance/v1/GetBalance":
			w.Write([]byte(`{"balance":100}`))
		}
	}))
	defer srv.Close()

	g, err := sms.NewExolveGateway("tok", "79990000000", srv.URL, 2)
	testutil.NoError(t, err)
	registry := sms.NewRegistry()
	testutil.NoError(t, registry.Register(sms.MTS, sms.Bundle(g)))

	r, _ := newTestRetry(t, NewService(sms.FixedResolver(sms.MTS), registry), 3)
	result, err := r.Send(context.Background(), "9101234567", "hello")
	testutil.NoError(t, err)
	testutil.Equal(t, 2.0, result.Cost)
	testutil.Equal(t, int32(1), sends.Load())
}
