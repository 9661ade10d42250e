package payment

import "context"

// Provider event types the reconciler understands. Any other type is
// acknowledged and ignored so new provider events never break the webhook.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// MetadataEnrollmentKey is the correlation key attached to checkout sessions.
const MetadataEnrollmentKey = "enrollmentId"

// SessionRequest describes a hosted checkout session to be created.
type SessionRequest struct {
	AmountMinor     int64
	Currency        string
	ProductName     string
	Description     string
	SuccessURL      string
	CancelURL       string
	ClientReference string
	Metadata        map[string]string
}

// Session is the provider-hosted checkout flow handed back to the client.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// EventObject carries the fields of the event payload the reconciler needs.
type EventObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// Event is a verified provider notification.
type Event struct {
	ID     string
	Type   string
	Object EventObject
}

// Provider abstracts the external payment API so the checkout orchestrator
// and webhook reconciler can be exercised without live network access.
type Provider interface {
	// CreateSession requests a hosted checkout session.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifyEvent authenticates the raw webhook body against the signature
	// header and decodes the event. It must operate on the untouched byte
	// stream; callers pass the body exactly as received.
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
