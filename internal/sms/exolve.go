package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// errUndecodableResponse marks a 2xx response whose body is not the expected
// JSON. The request itself was accepted.
var errUndecodableResponse = errors.New("exolve: undecodable response")

const (
	exolveDefaultBaseURL = "https://api.exolve.ru"
	exolveServiceName    = "MTS API"
)

// ExolveGateway sends SMS and reads the prepaid balance through the MTS
// Exolve REST API.
type ExolveGateway struct {
	token   string
	sender  string
	baseURL string
	pricer  CostCalculator
	client  http.Client
}

// NewExolveGateway creates an ExolveGateway. token and sender are required.
// If baseURL is empty, the Exolve production API is used (tests pass an
// httptest server URL).
func NewExolveGateway(token, sender, baseURL string, pricePerSegment float64) (*ExolveGateway, error) {
	if token == "" {
		return nil, errors.New("exolve: token is required")
	}
	if sender == "" {
		return nil, errors.New("exolve: sender is required")
	}
	if baseURL == "" {
		baseURL = exolveDefaultBaseURL
	}
	return &ExolveGateway{
		token:   token,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		pricer:  SegmentPricer{PricePerSegment: pricePerSegment},
		client:  http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *ExolveGateway) CalculateCost(msg Message) float64 {
	return g.pricer.CalculateCost(msg)
}

// Send submits msg and returns the charge reported by the API. When the
// response carries no price, or its body cannot be decoded, the local segment
// estimate is returned: the message was accepted and must not be retried.
func (g *ExolveGateway) Send(ctx context.Context, msg SMS) (float64, error) {
	payload := map[string]string{
		"number":      g.sender,
		"destination": msg.Phone.Value(),
		"text":        msg.Message.Value(),
	}
	var parsed struct {
		MessageID string   `json:"message_id"`
		Cost      *float64 `json:"cost"`
	}
	err := g.post(ctx, "/messaging/v1/SendSMS", payload, &parsed, "failed to send SMS")
	if errors.Is(err, errUndecodableResponse) {
		return g.CalculateCost(msg.Message), nil
	}
	if err != nil {
		return 0, err
	}
	if parsed.Cost != nil {
		return *parsed.Cost, nil
	}
	return g.CalculateCost(msg.Message), nil
}

// CheckBalance returns the account balance. A response without a balance
// field reads as zero.
func (g *ExolveGateway) CheckBalance(ctx context.Context) (float64, error) {
	var parsed struct {
		Balance float64 `json:"balance"`
	}
	err := g.post(ctx, "/finance/v1/GetBalance", struct{}{}, &parsed, "failed to retrieve balance")
	if errors.Is(err, errUndecodableResponse) {
		return 0, &ServiceUnavailableError{Message: "failed to retrieve balance", Service: exolveServiceName, StatusCode: http.StatusOK, Err: err}
	}
	if err != nil {
		return 0, err
	}
	return parsed.Balance, nil
}

func (g *ExolveGateway) post(ctx context.Context, path string, payload, out any, failure string) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("exolve: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("exolve: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return &ServiceUnavailableError{Message: failure, Service: exolveServiceName, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServiceUnavailableError{Message: failure, Service: exolveServiceName, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 300 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		detail := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				detail = errResp.Message
			} else if errResp.Error != "" {
				detail = errResp.Error
			}
		}
		return &ServiceUnavailableError{
			Message:    failure,
			Service:    exolveServiceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("exolve: error %d: %s", resp.StatusCode, detail),
		}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %w", errUndecodableResponse, err)
	}
	return nil
}
