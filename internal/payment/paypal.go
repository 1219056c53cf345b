package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Report price in the PayPal variant. PayPal Colombia settles in USD.
const (
	paypalAmountValue  = "2.50"
	paypalCurrencyCode = "USD"
	paypalDescription  = "Reporte Completo - Detectar al Narcisista"
)

// paypalProvider implements the direct-capture variant: the client renders
// the PayPal buttons itself, then calls our capture endpoint with the order
// id once the buyer approves.
type paypalProvider struct {
	clientID     string
	clientSecret string
	apiBase      string // e.g. "https://api-m.paypal.com"
	httpClient   *http.Client
}

// NewPayPalProvider returns the PayPal-backed Provider. apiBase selects
// live vs. sandbox; empty means live.
func NewPayPalProvider(clientID, clientSecret, apiBase string) Provider {
	if apiBase == "" {
		apiBase = "https://api-m.paypal.com"
	}
	return &paypalProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (p *paypalProvider) Name() string { return "paypal" }

// ─── OAUTH ────────────────────────────────────────────────────────────────────

// accessToken exchanges client credentials for a short-lived bearer token.
// Tokens are not cached: call volume here is a handful of requests per sale,
// far below any point where caching pays for its invalidation logic.
func (p *paypalProvider) accessToken(ctx context.Context) (string, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/v1/oauth2/token",
		strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("paypal: build token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken      string `json:"access_token"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return "", fmt.Errorf("paypal: decode token response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		return "", fmt.Errorf("paypal: auth failed (status %d): %s", resp.StatusCode, body.ErrorDescription)
	}
	return body.AccessToken, nil
}

// ─── ORDER CREATION ──────────────────────────────────────────────────────────

type paypalOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalPurchaseUnit struct {
	Amount      paypalAmount `json:"amount"`
	Description string       `json:"description"`
	CustomID    string       `json:"custom_id"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (p *paypalProvider) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return Order{}, err
	}

	reqBody := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			Amount: paypalAmount{
				CurrencyCode: paypalCurrencyCode,
				Value:        paypalAmountValue,
			},
			Description: paypalDescription,
			CustomID:    params.SessionID.String(),
		}},
	}

	var order struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			Description string `json:"description"`
		} `json:"details"`
	}
	status, err := p.postJSON(ctx, token, "/v2/checkout/orders", reqBody, &order)
	if err != nil {
		return Order{}, err
	}
	if status < 200 || status >= 300 || order.ID == "" {
		detail := order.Message
		if len(order.Details) > 0 && order.Details[0].Description != "" {
			detail = order.Details[0].Description
		}
		return Order{}, fmt.Errorf("paypal: create order rejected (status %d): %s", status, detail)
	}

	return Order{Ref: order.ID}, nil
}

// ─── CAPTURE ─────────────────────────────────────────────────────────────────

// VerifyAndCapture captures the approved order. The capture response's status
// field is the sole source of truth: anything other than COMPLETED is
// not-paid, reported as Approved=false rather than an error.
func (p *paypalProvider) VerifyAndCapture(ctx context.Context, orderID string) (Confirmation, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return Confirmation{}, err
	}

	var capture struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
			Payments struct {
				Captures []struct {
					CustomID string `json:"custom_id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	status, err := p.postJSON(ctx, token, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &capture)
	if err != nil {
		return Confirmation{}, err
	}

	if status < 200 || status >= 300 || capture.Status != "COMPLETED" {
		return Confirmation{Approved: false, PaymentRef: orderID}, nil
	}

	sessionRef := ""
	if len(capture.PurchaseUnits) > 0 {
		pu := capture.PurchaseUnits[0]
		sessionRef = pu.CustomID
		if sessionRef == "" && len(pu.Payments.Captures) > 0 {
			sessionRef = pu.Payments.Captures[0].CustomID
		}
	}

	return Confirmation{
		Approved:   true,
		PaymentRef: orderID,
		SessionRef: sessionRef,
	}, nil
}

// WebhookPaymentRef is a no-op for PayPal: this deployment variant confirms
// payment through the synchronous capture endpoint, not webhooks.
func (p *paypalProvider) WebhookPaymentRef([]byte) (string, bool) {
	return "", false
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

func (p *paypalProvider) postJSON(ctx context.Context, token, path string, in, out any) (int, error) {
	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("paypal: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("paypal: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("paypal: decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
