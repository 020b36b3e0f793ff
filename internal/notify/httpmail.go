package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPMailClient sends mail through a JSON HTTP mail API (provider-neutral:
// POST {from,to,subject,text,html} with a bearer API key).
type HTTPMailClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewHTTPMailClient returns a client for the given endpoint, API key and sender address.
func NewHTTPMailClient(apiKey, baseURL, sender string) *HTTPMailClient {
	return &HTTPMailClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type mailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

// Send posts msg to the mail API. Any transport error or non-2xx status is
// wrapped in ErrDeliveryFailure. The message body is never included in errors.
func (c *HTTPMailClient) Send(ctx context.Context, msg Message) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("%w: mail API not configured", ErrDeliveryFailure)
	}
	raw, err := json.Marshal(mailRequest{
		From:    c.Sender,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d body=%s", ErrDeliveryFailure, resp.StatusCode, string(b))
	}
	return nil
}
