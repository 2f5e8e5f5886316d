package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noble1911/butler/internal/backoff"
)

// maxSendAttempts bounds retries of a transient delivery failure; the
// messaging bridge is a local dependency, so a handful of quick retries
// covers restarts without delaying the caller noticeably.
const maxSendAttempts = 3

// HTTPTransport delivers messages through an HTTP gateway (e.g. a local
// WhatsApp/SMS bridge) that accepts a JSON {"to","body"} payload and
// reports either immediate delivery or durable queuing.
type HTTPTransport struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
	Policy   backoff.BackoffPolicy
}

// NewHTTPTransport builds an HTTPTransport with a bounded request timeout
// and the package's default retry policy.
func NewHTTPTransport(endpoint, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		Endpoint: endpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Policy:   backoff.AggressivePolicy(),
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"` // "sent" | "queued"
}

// Send implements Transport. Any non-2xx response is treated as a
// transport failure; a 202 Accepted with status=="queued" surfaces the
// queued state instead of an error, per spec §4.6. Transient failures
// (connection refused, 5xx) are retried with exponential backoff before
// giving up.
func (t *HTTPTransport) Send(ctx context.Context, phone, message string) (TransportStatus, error) {
	policy := t.Policy
	if policy == (backoff.BackoffPolicy{}) {
		policy = backoff.AggressivePolicy()
	}

	result, err := backoff.RetryWithBackoff(ctx, policy, maxSendAttempts, func(_ int) (TransportStatus, error) {
		return t.sendOnce(ctx, phone, message)
	})
	if err != nil {
		if result.LastError != nil {
			return "", fmt.Errorf("send message after %d attempt(s): %w", result.Attempts, result.LastError)
		}
		return "", fmt.Errorf("send message: %w", err)
	}
	return result.Value, nil
}

func (t *HTTPTransport) sendOnce(ctx context.Context, phone, message string) (TransportStatus, error) {
	payload, err := json.Marshal(sendRequest{To: phone, Body: message})
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("transport returned status %d: %s", resp.StatusCode, body)
	}

	var out sendResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode send response: %w", err)
		}
	}
	if out.Status == string(StatusQueued) {
		return StatusQueued, nil
	}
	return StatusSent, nil
}
