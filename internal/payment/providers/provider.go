package providers

import (
	"fmt"

	"hotel-booking/internal/models"
)

// Result is a provider outcome normalized across Stripe, PayPal and
// M-Pesa.
type Result string

const (
	ResultSuccess   Result = "success"
	ResultFailure   Result = "failure"
	ResultCancelled Result = "cancelled"
	ResultPending   Result = "pending"
)

// Outcome is what a status fetch, capture or callback boils down to. Raw
// keeps the provider payload for the payment's audit blob.
type Outcome struct {
	Result Result
	Reason string
	Raw    map[string]interface{}
}

// Session is a freshly opened provider payment session.
type Session struct {
	Reference    string
	ClientSecret string
	RedirectURL  string
	Raw          map[string]interface{}
}

type SessionRequest struct {
	BookingID string
	Amount    float64
	Currency  string
	Email     string
	Phone     string
}

// Client is the capability each provider integration exposes. PayPal
// additionally implements Capturer for its redirect-return capture step.
type Client interface {
	Name() models.PaymentProvider
	CreateSession(req SessionRequest) (*Session, error)
	FetchStatus(reference string) (*Outcome, error)
}

type Capturer interface {
	Capture(reference string) (*Outcome, error)
}

// Error categories, per the session-manager error contract.
const (
	CategoryUnavailable   = "provider_unavailable"
	CategoryMisconfigured = "provider_misconfigured"
	CategoryInvalidAmount = "invalid_amount"
	CategoryRejected      = "provider_rejected"
)

// ProviderError is a classified provider-call failure. Raw transport
// errors never escape a provider client; they arrive here with a short
// public reason and the detail kept for logs. For M-Pesa a failed STK
// push carries Raw and Reference so the session manager can still record
// a FAILED payment for audit.
type ProviderError struct {
	Provider  models.PaymentProvider
	Category  string
	Reason    string
	Reference string
	Raw       map[string]interface{}
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }
