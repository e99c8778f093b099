package notify

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

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/httpretry"
)

// Webhook request headers.
const (
	HeaderSignature  = "X-Signature"
	HeaderDeliveryID = "X-Delivery-ID"
	HeaderEvent      = "X-Webhook-Event"
)

// WebhookSink POSTs each event as JSON to a fixed URL.
type WebhookSink struct {
	url    string
	secret string
	client httpretry.HTTPDoer
}

// NewWebhookSink returns a sink for url. client is typically a
// *httpretry.RetryClient; secret may be empty to skip signing.
func NewWebhookSink(url, secret string, client httpretry.HTTPDoer) *WebhookSink {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &WebhookSink{url: url, secret: secret, client: client}
}

func (w *WebhookSink) Name() string { return "webhook" }

// Publish delivers evt. Any non-2xx response after retries is an error.
func (w *WebhookSink) Publish(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "waitlist-engine/1.0")
	req.Header.Set(HeaderDeliveryID, evt.DeliveryID)
	req.Header.Set(HeaderEvent, string(evt.Type))
	if w.secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", w.url, resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body: "sha256=" + hex HMAC.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
