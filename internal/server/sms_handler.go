package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smsgate/smsgate/internal/httputil"
	"github.com/smsgate/smsgate/internal/sms"
)

// statusClientClosedRequest is reported when the caller went away before
// the send finished.
const statusClientClosedRequest = 499

type smsRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Provider         string  `json:"provider"`
	Cost             float64 `json:"cost"`
	RemainingBalance float64 `json:"remaining_balance"`
}

type canSendResponse struct {
	Provider string `json:"provider"`
	CanSend  bool   `json:"can_send"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	provider, err := s.client.Resolve(req.Phone)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	result, err := s.client.Send(r.Context(), req.Phone, req.Message)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sendResponse{
		Provider:         provider.String(),
		Cost:             result.Cost,
		RemainingBalance: result.RemainingBalance,
	})
}

func (s *Server) handleCanSend(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	provider, err := s.client.Resolve(req.Phone)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	ok, err := s.client.CanSend(r.Context(), req.Phone, req.Message)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, canSendResponse{Provider: provider.String(), CanSend: ok})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.client.Providers()
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.String())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"providers": names})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	p, err := sms.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	balance, err := s.client.Balance(r.Context(), p)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"provider": p.String(), "balance": balance})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	p, err := s.client.Resolve(phone)
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	number, _ := sms.NewPhoneNumber(phone)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"phone": number.Value(), "provider": p.String()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	providers, err := s.client.Providers()
	if err != nil {
		s.writeSMSError(w, err)
		return
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.String())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"providers":      names,
	})
}

// writeSMSError maps a pipeline error to an HTTP status by its kind.
func (s *Server) writeSMSError(w http.ResponseWriter, err error) {
	kind := sms.ErrorKind(err)
	switch kind {
	case sms.KindInvalidArgument:
		httputil.WriteKindError(w, http.StatusBadRequest, kind, err.Error(), nil)
	case sms.KindUnknownProvider:
		httputil.WriteKindError(w, http.StatusNotFound, kind, err.Error(), nil)
	case sms.KindInsufficientBalance:
		var ib *sms.InsufficientBalanceError
		errors.As(err, &ib)
		httputil.WriteKindError(w, http.StatusPaymentRequired, kind, err.Error(), map[string]any{
			"balance": ib.Balance,
			"cost":    ib.Cost,
		})
	case sms.KindServiceUnavailable:
		s.logger.Warn("gateway unavailable", "error", err)
		var data map[string]any
		var su *sms.ServiceUnavailableError
		if errors.As(err, &su) && su.Service != "" {
			data = map[string]any{"service": su.Service}
		}
		httputil.WriteKindError(w, http.StatusServiceUnavailable, kind, err.Error(), data)
	case sms.KindCanceled:
		status := statusClientClosedRequest
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		httputil.WriteKindError(w, status, kind, "request canceled", nil)
	default:
		s.logger.Error("sms request failed", "error", err)
		httputil.WriteKindError(w, http.StatusInternalServerError, kind, "internal error", nil)
	}
}
