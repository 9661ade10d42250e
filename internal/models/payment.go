package models

import "time"

// PaymentStatus is the settlement state of a payment. Transitions are
// monotonic: pending moves to succeeded or failed, terminal states never
// change again.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment provider tags.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderFree   = "free"
)

// Payment is one checkout attempt for an enrollment. Rows are created once
// by the checkout orchestrator (or the free path) and mutated only by the
// webhook reconciler; they are never deleted so the ledger stays auditable.
type Payment struct {
	ID                string        `db:"id" json:"id"`
	EnrollmentID      string        `db:"enrollment_id" json:"enrollment_id"`
	Amount            float64       `db:"amount" json:"amount"`
	Provider          string        `db:"provider" json:"provider"`
	ProviderReference *string       `db:"provider_reference" json:"provider_reference,omitempty"`
	Status            PaymentStatus `db:"status" json:"status"`
	ReceiptPath       *string       `db:"receipt_path" json:"-"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// CheckoutSessionRequest starts payment for an enrollment. The redirect
// URLs are optional; configuration defaults apply when they are absent.
type CheckoutSessionRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	SuccessURL   string `json:"success_url" validate:"omitempty,url"`
	CancelURL    string `json:"cancel_url" validate:"omitempty,url"`
}

// PaymentFilter captures supported filters for the audit listing.
type PaymentFilter struct {
	EnrollmentID string
	Provider     string
	Status       PaymentStatus
	Page         int
	PageSize     int
}
