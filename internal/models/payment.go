package models

import (
	"time"
)

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "STRIPE"
	ProviderPayPal PaymentProvider = "PAYPAL"
	ProviderMpesa  PaymentProvider = "MPESA"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

func ValidPaymentStatus(s string) bool {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentSucceeded, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// Payment is one attempt to pay for a booking. Retries create new rows;
// rows are never deleted. (Provider, Reference) is the idempotency key a
// provider callback is matched on. RawResponse accumulates provider
// payloads over the payment's life: later writes merge into the blob,
// they never replace it wholesale.
type Payment struct {
	PaymentID   string                 `json:"payment_id"`
	BookingID   string                 `json:"booking_id"`
	Provider    PaymentProvider        `json:"provider"`
	Status      PaymentStatus          `json:"status"`
	Amount      float64                `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference,omitempty"`
	RawResponse map[string]interface{} `json:"raw_response,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at,omitempty"`
}

type PaymentSessionRequest struct {
	Provider PaymentProvider `json:"provider"`
	Phone    string          `json:"phone,omitempty"`
}

// PaymentSessionResponse carries whatever the guest's browser needs to
// finish the payment: a Stripe client secret, a PayPal approval URL, or
// the M-Pesa checkout request id the STK push was sent under.
type PaymentSessionResponse struct {
	PaymentID    string          `json:"payment_id"`
	Provider     PaymentProvider `json:"provider"`
	Status       PaymentStatus   `json:"status"`
	Amount       float64         `json:"amount"`
	Currency     string          `json:"currency"`
	ClientSecret string          `json:"client_secret,omitempty"`
	RedirectURL  string          `json:"redirect_url,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}

type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	BookingID string    `json:"booking_id"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
