package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smsgate/smsgate/internal/config"
	"github.com/smsgate/smsgate/internal/httputil"
	"github.com/smsgate/smsgate/internal/server"
	"github.com/smsgate/smsgate/internal/sms"
	"github.com/smsgate/smsgate/internal/smsgate"
	"github.com/smsgate/smsgate/internal/testutil"
)

// downGateway fails every call as if the carrier API were unreachable.
type downGateway struct{}

func (downGateway) Send(context.Context, sms.SMS) (float64, error) {
	return 0, &sms.ServiceUnavailableError{Message: "send", Service: "MTS API", StatusCode: 502}
}

func (downGateway) CheckBalance(context.Context) (float64, error) {
	return 0, &sms.ServiceUnavailableError{Message: "balance", Service: "MTS API", StatusCode: 502}
}

func (downGateway) CalculateCost(sms.Message) float64 { return 1 }

// slowGateway reports a transport timeout the way an http.Client does.
type slowGateway struct{}

func (slowGateway) Send(context.Context, sms.SMS) (float64, error) {
	return 0, &sms.ServiceUnavailableError{
		Message: "failed to send SMS",
		Service: "Tele2 API",
		Err: &url.Error{Op: "Post", URL: "https://tele2.example/send",
			Err: fmt.Errorf("%w (Client.Timeout exceeded while awaiting headers)", context.DeadlineExceeded)},
	}
}

func (slowGateway) CheckBalance(context.Context) (float64, error) { return 100, nil }

func (slowGateway) CalculateCost(sms.Message) float64 { return 1 }

func newTestServer(t *testing.T, cfg *config.Config, metrics http.Handler) (*server.Server, *sms.CaptureGateway) {
	t.Helper()
	capture := sms.NewCaptureGateway(sms.NewStaticGateway(100, 2))
	registry := sms.NewRegistry()
	testutil.NoError(t, registry.Register(sms.MegaFon, sms.Bundle(capture)))
	testutil.NoError(t, registry.Register(sms.MTS, sms.Bundle(downGateway{})))

	resolver, err := sms.NewPrefixResolver(sms.DefaultPrefixes())
	testutil.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := smsgate.New(resolver, registry).WithLogging(logger)
	return server.New(cfg, logger, client, metrics), capture
}

func do(srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodGet, "/healthz", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, "ok", body["status"])
}

func TestSendEndpoint(t *testing.T) {
	srv, capture := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodPost, "/api/sms/send", `{"phone":"89251234567","message":"hi"}`)
	testutil.StatusCode(t, http.StatusOK, w.Code)

	var body map[string]any
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, "megafon", body["provider"].(string))
	testutil.Equal(t, 4.0, body["cost"].(float64))
	testutil.Equal(t, 100.0, body["remaining_balance"].(float64))

	testutil.Equal(t, 1, capture.SendCount())
	last, _ := capture.Last()
	testutil.Equal(t, "79251234567", last.Phone.Value())
}

func TestSendEndpointErrorMapping(t *testing.T) {
	srv, capture := newTestServer(t, config.Default(), nil)

	cases := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"invalid phone", `{"phone":"123","message":"hi"}`, http.StatusBadRequest, sms.KindInvalidArgument},
		{"blank message", `{"phone":"9251234567","message":"  "}`, http.StatusBadRequest, sms.KindInvalidArgument},
		{"no gateway", `{"phone":"9031234567","message":"hi"}`, http.StatusNotFound, sms.KindUnknownProvider},
		{"unroutable", `{"phone":"4951234567","message":"hi"}`, http.StatusNotFound, sms.KindUnknownProvider},
		{"insufficient", `{"phone":"9251234567","message":"` + strings.Repeat("x", 51) + `"}`, http.StatusPaymentRequired, sms.KindInsufficientBalance},
		{"carrier down", `{"phone":"9101234567","message":"hi"}`, http.StatusServiceUnavailable, sms.KindServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(srv, http.MethodPost, "/api/sms/send", tc.body)
			testutil.StatusCode(t, tc.status, w.Code)
			testutil.Equal(t, tc.kind, decodeError(t, w).Kind)
		})
	}
	testutil.Equal(t, 0, capture.SendCount())
}

func TestSendEndpointGatewayTimeoutIsUnavailable(t *testing.T) {
	registry := sms.NewRegistry()
	testutil.NoError(t, registry.Register(sms.Tele2, sms.Bundle(slowGateway{})))
	resolver, err := sms.NewPrefixResolver(sms.DefaultPrefixes())
	testutil.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(config.Default(), logger, smsgate.New(resolver, registry), nil)

	w := do(srv, http.MethodPost, "/api/sms/send", `{"phone":"9001234567","message":"hi"}`)
	testutil.StatusCode(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeError(t, w)
	testutil.Equal(t, sms.KindServiceUnavailable, resp.Kind)
	testutil.Equal(t, "Tele2 API", resp.Data["service"].(string))
}

func TestSendEndpointInsufficientBalanceData(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodPost, "/api/sms/send", `{"phone":"9251234567","message":"`+strings.Repeat("x", 51)+`"}`)
	resp := decodeError(t, w)
	testutil.Equal(t, 100.0, resp.Data["balance"].(float64))
	testutil.Equal(t, 102.0, resp.Data["cost"].(float64))
	testutil.Equal(t, "insufficient balance: 100, message cost: 102", resp.Message)
}

func TestSendEndpointRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodPost, "/api/sms/send", `{"phone":`)
	testutil.StatusCode(t, http.StatusBadRequest, w.Code)
	testutil.Equal(t, "invalid JSON body", decodeError(t, w).Message)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", strings.NewReader("phone=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	testutil.StatusCode(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCanSendEndpoint(t *testing.T) {
	srv, capture := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodPost, "/api/sms/can-send", `{"phone":"9251234567","message":"hi"}`)
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"can_send":true`)

	w = do(srv, http.MethodPost, "/api/sms/can-send", `{"phone":"9251234567","message":"`+strings.Repeat("x", 60)+`"}`)
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"can_send":false`)

	testutil.Equal(t, 0, capture.SendCount())
}

func TestProvidersAndBalanceEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodGet, "/api/providers", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"providers":["mts","megafon"]`)

	w = do(srv, http.MethodGet, "/api/providers/megafon/balance", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"balance":100`)

	w = do(srv, http.MethodGet, "/api/providers/yota/balance", "")
	testutil.StatusCode(t, http.StatusNotFound, w.Code)

	w = do(srv, http.MethodGet, "/api/providers/mts/balance", "")
	testutil.StatusCode(t, http.StatusServiceUnavailable, w.Code)
	testutil.Equal(t, "MTS API", decodeError(t, w).Data["service"].(string))
}

func TestResolveAndStatusEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)

	w := do(srv, http.MethodGet, "/api/resolve/89031234567", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"provider":"beeline"`)
	testutil.Contains(t, w.Body.String(), `"phone":"79031234567"`)

	w = do(srv, http.MethodGet, "/api/status", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPITokenRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Server.APIToken = "s3cret"
	srv, _ := newTestServer(t, cfg, nil)

	w := do(srv, http.MethodGet, "/api/providers", "")
	testutil.StatusCode(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	testutil.StatusCode(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	testutil.StatusCode(t, http.StatusOK, rec.Code)

	// Health stays open for load balancers.
	testutil.StatusCode(t, http.StatusOK, do(srv, http.MethodGet, "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "smsgate_test_total", Help: "test"}))
	cfg := config.Default()
	cfg.Metrics.Enabled = true

	srv, _ := newTestServer(t, cfg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	w := do(srv, http.MethodGet, "/metrics", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), "smsgate_test_total")

	srv, _ = newTestServer(t, config.Default(), nil)
	testutil.StatusCode(t, http.StatusNotFound, do(srv, http.MethodGet, "/metrics", "").Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t, config.Default(), nil)
	testutil.NoError(t, srv.Shutdown(context.Background()))
}
