// Package payment normalizes the two supported payment protocols — PayPal's
// direct-capture flow and MercadoPago's redirect+webhook flow — behind one
// Provider interface. Callers (api, fulfill) never branch on provider
// identity.
package payment

import (
	"context"

	"github.com/google/uuid"
)

// CreateOrderParams holds the inputs for creating a provider order. The
// session id travels to the provider as the external reference so an
// asynchronous confirmation can find its way back to the right row.
type CreateOrderParams struct {
	SessionID uuid.UUID
	Email     string
}

// Order is the normalized result of order creation.
type Order struct {
	// Ref is the provider order/preference identifier.
	Ref string
	// RedirectURL is where the buyer completes payment. Empty for
	// direct-capture providers, where the client drives the provider UI
	// itself and later calls the capture endpoint.
	RedirectURL string
}

// Confirmation is the normalized outcome of payment verification. Approved
// is only ever true when the provider itself reported its success status —
// a timeout or an ambiguous response is "not yet confirmed", never success.
type Confirmation struct {
	Approved bool
	// PaymentRef is the provider payment reference to persist on approval.
	PaymentRef string
	// SessionRef is the external reference echoed back by the provider
	// (our session id). May be empty for providers that don't echo it.
	SessionRef string
}

// Provider is the interface both payment variants satisfy.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// CreateOrder creates a provider order for the fixed report price.
	CreateOrder(ctx context.Context, p CreateOrderParams) (Order, error)

	// VerifyAndCapture confirms a payment by its provider reference: the
	// order id for direct-capture providers, the payment id for webhook
	// providers. The provider's own reported status is the sole source of
	// truth for Approved.
	VerifyAndCapture(ctx context.Context, ref string) (Confirmation, error)

	// WebhookPaymentRef extracts the payment reference from a webhook
	// payload, normalizing the provider's notification shapes. ok=false
	// means the payload carries nothing actionable (providers send several
	// notification kinds; unknown ones are acked and ignored).
	WebhookPaymentRef(payload []byte) (ref string, ok bool)
}
