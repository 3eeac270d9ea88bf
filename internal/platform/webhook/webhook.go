// Package webhook delivers HMAC-SHA256-signed JSON payloads to a
// configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload computes an HMAC-SHA256 signature of the payload using the given
// secret, returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the
// HMAC-SHA256 of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------------------------------------------------------------------------
// Egress
// ---------------------------------------------------------------------------

// Option configures an Egress.
type Option func(*Egress)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Egress) { e.httpClient = c }
}

// WithMaxRetries sets the number of re-attempts after a failed POST.
func WithMaxRetries(n int) Option {
	return func(e *Egress) { e.maxRetries = n }
}

// WithRetryDelay sets the pause between delivery attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Egress) { e.retryDelay = d }
}

// Egress posts JSON payloads to one configured endpoint, signing each
// request so the receiver can verify origin. Callers treat delivery as
// fire-and-forget; a small in-line retry absorbs transient failures.
type Egress struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewEgress creates an Egress with sensible defaults.
func NewEgress(url, secret string, logger zerolog.Logger, opts ...Option) *Egress {
	e := &Egress{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:     logger,
		maxRetries: 2,
		retryDelay: 1 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Deliver marshals the payload and POSTs it to the endpoint, retrying
// on failure up to the configured attempt count.
func (e *Egress) Deliver(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}
		if err := e.post(ctx, body); err != nil {
			lastErr = err
			e.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("webhook delivery attempt failed")
			continue
		}
		return nil
	}
	return lastErr
}

func (e *Egress) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(body, e.secret))
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
