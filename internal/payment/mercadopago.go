package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Report price in the MercadoPago variant, in Colombian pesos.
const (
	mercadoPagoAmountCOP = 9900
	mercadoPagoItemTitle = "Reporte Completo - Detectar al Narcisista"
)

// mercadoPagoProvider implements the redirect+webhook variant: order creation
// returns a checkout URL, and confirmation arrives asynchronously at the
// webhook endpoint.
type mercadoPagoProvider struct {
	accessToken string
	apiBase     string // e.g. "https://api.mercadopago.com"
	backURL     string // where the buyer lands after paying
	httpClient  *http.Client
}

// NewMercadoPagoProvider returns the MercadoPago-backed Provider. apiBase is
// overridable for tests; empty means the production API.
func NewMercadoPagoProvider(accessToken, apiBase, backURL string) Provider {
	if apiBase == "" {
		apiBase = "https://api.mercadopago.com"
	}
	return &mercadoPagoProvider{
		accessToken: accessToken,
		apiBase:     strings.TrimRight(apiBase, "/"),
		backURL:     backURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (p *mercadoPagoProvider) Name() string { return "mercadopago" }

// ─── PREFERENCE CREATION ─────────────────────────────────────────────────────

type mpPreferenceRequest struct {
	Items             []mpItem   `json:"items"`
	ExternalReference string     `json:"external_reference"`
	Payer             mpPayer    `json:"payer"`
	BackURLs          mpBackURLs `json:"back_urls,omitempty"`
	AutoReturn        string     `json:"auto_return,omitempty"`
}

type mpItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpBackURLs struct {
	Success string `json:"success,omitempty"`
}

func (p *mercadoPagoProvider) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	reqBody := mpPreferenceRequest{
		Items: []mpItem{{
			Title:      mercadoPagoItemTitle,
			Quantity:   1,
			UnitPrice:  mercadoPagoAmountCOP,
			CurrencyID: "COP",
		}},
		ExternalReference: params.SessionID.String(),
		Payer:             mpPayer{Email: params.Email},
	}
	if p.backURL != "" {
		reqBody.BackURLs = mpBackURLs{Success: p.backURL}
		reqBody.AutoReturn = "approved"
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Order{}, fmt.Errorf("mercadopago: marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/checkout/preferences", bytes.NewReader(bodyBytes))
	if err != nil {
		return Order{}, fmt.Errorf("mercadopago: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("mercadopago: create preference: %w", err)
	}
	defer resp.Body.Close()

	var pref struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(&pref); err != nil {
		return Order{}, fmt.Errorf("mercadopago: decode preference response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || pref.ID == "" {
		return Order{}, fmt.Errorf("mercadopago: create preference rejected (status %d): %s", resp.StatusCode, pref.Message)
	}

	return Order{Ref: pref.ID, RedirectURL: pref.InitPoint}, nil
}

// ─── VERIFICATION ────────────────────────────────────────────────────────────

// VerifyAndCapture re-fetches the payment by id. The webhook body's own
// status field is never trusted — only the provider's answer to this lookup
// counts, and only the literal status "approved" is paid.
func (p *mercadoPagoProvider) VerifyAndCapture(ctx context.Context, paymentID string) (Confirmation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.apiBase+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return Confirmation{}, fmt.Errorf("mercadopago: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("mercadopago: fetch payment %s: %w", paymentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Confirmation{}, fmt.Errorf("mercadopago: fetch payment %s: status %d", paymentID, resp.StatusCode)
	}

	var pay struct {
		Status            string `json:"status"`
		ExternalReference string `json:"external_reference"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(&pay); err != nil {
		return Confirmation{}, fmt.Errorf("mercadopago: decode payment %s: %w", paymentID, err)
	}

	return Confirmation{
		Approved:   pay.Status == "approved",
		PaymentRef: paymentID,
		SessionRef: pay.ExternalReference,
	}, nil
}

// WebhookPaymentRef normalizes MercadoPago's notification shapes: newer
// notifications nest the id under data.id, older ones put it at the top
// level, and the id itself may arrive as a number or a string.
func (p *mercadoPagoProvider) WebhookPaymentRef(payload []byte) (string, bool) {
	var body struct {
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}
	if id := rawID(body.Data.ID); id != "" {
		return id, true
	}
	if id := rawID(body.ID); id != "" {
		return id, true
	}
	return "", false
}

// rawID renders a JSON id that may be a number or a string.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
