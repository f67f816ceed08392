package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// VerificationResult is the three-way outcome of checking an asynchronous
// tender (wire transfer, QR payment) against the payment provider.
type VerificationResult string

const (
	VerificationConfirmed VerificationResult = "confirmed"
	VerificationNotFound  VerificationResult = "not_found"
	VerificationPending   VerificationResult = "pending"
)

var (
	// ErrGatewayTimeout: the check did not answer within the bounded timeout.
	// The tender stays unverified; the operator retries explicitly — no silent
	// background retry that could double-count a tender.
	ErrGatewayTimeout = errors.New("verification gateway timed out")

	// ErrGatewayUnavailable: transport failure or non-OK response.
	ErrGatewayUnavailable = errors.New("verification gateway unavailable")
)

// GatewayClient talks to the payment-verification sidecar, which fronts the
// concrete bank / QR-provider protocols. This core never speaks those wire
// protocols itself.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient builds a client with a bounded per-check timeout.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type checkResponse struct {
	Status string `json:"status"` // "confirmed" | "not_found" | "pending"
}

// Check asks the gateway whether the funds behind reference actually arrived.
func (c *GatewayClient) Check(ctx context.Context, reference string) (VerificationResult, error) {
	endpoint := fmt.Sprintf("%s/v1/verifications/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("gateway: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return VerificationNotFound, nil
	default:
		return "", fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var body checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}

	switch VerificationResult(body.Status) {
	case VerificationConfirmed, VerificationNotFound, VerificationPending:
		return VerificationResult(body.Status), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrGatewayUnavailable, body.Status)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
