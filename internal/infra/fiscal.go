package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FiscalPayload is sent by the worker pool to the fiscal emitter sidecar.
// The sidecar owns the tax-authority session handling and returns the
// authorization reference for the document.
type FiscalPayload struct {
	ReceiptToken    string          `json:"receipt_token"`
	SessionID       string          `json:"session_id"`
	TargetAmount    float64         `json:"target_amount"`
	CollectedAmount float64         `json:"collected_amount"`
	ChangeDue       float64         `json:"change_due"`
	Tenders         json.RawMessage `json:"tenders"`
}

// FiscalResponse is returned by the emitter sidecar.
type FiscalResponse struct {
	AuthRef string `json:"auth_ref"`
	Result  string `json:"result"` // "A" (approved) | "R" (rejected)
	Detail  string `json:"detail,omitempty"`
}

// FiscalClient is an HTTP client that delegates document emission to the
// sidecar. The decoupling isolates tax-authority failures from the core.
type FiscalClient struct {
	sidecarURL string
	httpClient *http.Client
}

func NewFiscalClient(sidecarURL string) *FiscalClient {
	return &FiscalClient{
		sidecarURL: sidecarURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Emit sends a POST to the emitter sidecar and returns its response.
func (c *FiscalClient) Emit(ctx context.Context, payload FiscalPayload) (*FiscalResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fiscal: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sidecarURL+"/emit", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fiscal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fiscal: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fiscal: sidecar returned %d", resp.StatusCode)
	}

	var result FiscalResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("fiscal: decode response: %w", err)
	}
	return &result, nil
}
