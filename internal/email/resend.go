package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// resendClient is the concrete Sender backed by the Resend API.
type resendClient struct {
	apiKey     string
	from       string // display form, e.g. "Detectar al Narcisista <noreply@historiasdelamente.com>"
	httpClient *http.Client
}

// NewResendClient returns a Sender that delivers email via Resend.
func NewResendClient(apiKey, fromAddr, fromName string) Sender {
	return &resendClient{
		apiKey: apiKey,
		from:   fmt.Sprintf("%s <%s>", fromName, fromAddr),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

// ─── SENDER IMPLEMENTATION ────────────────────────────────────────────────────

// Send delivers one message. Error classification drives the sweep's retry
// policy: 4xx responses (minus 429) are permanent — the address or payload is
// bad and will stay bad; everything else is transient and the entry stays
// pending for the next sweep.
func (c *resendClient) Send(ctx context.Context, m Message) (string, error) {
	reqBody := resendRequest{
		From:    c.from,
		To:      []string{m.To},
		Subject: m.Subject,
		HTML:    m.HTML,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &DispatchError{Permanent: true, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.resend.com/emails",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", &DispatchError{Permanent: true, Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure or timeout — the provider may never have seen it.
		return "", &DispatchError{Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", &DispatchError{Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed resendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", &DispatchError{Err: fmt.Errorf("unmarshal response (status %d): %w", resp.StatusCode, err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parsed.ID, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &DispatchError{Err: providerErr(parsed, resp.StatusCode, respBytes)}
	default:
		// 4xx: invalid recipient, malformed payload, bad API key — retrying
		// the identical request cannot succeed.
		return "", &DispatchError{Permanent: true, Err: providerErr(parsed, resp.StatusCode, respBytes)}
	}
}

func providerErr(parsed resendResponse, status int, raw []byte) error {
	if parsed.Error != nil {
		return fmt.Errorf("Resend %s (%d): %s", parsed.Error.Name, status, parsed.Error.Message)
	}
	return fmt.Errorf("Resend status %d: %.200s", status, string(raw))
}
