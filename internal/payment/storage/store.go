package storage

import (
	"errors"

	"hotel-booking/internal/models"
)

// ErrPaymentNotFound is returned when no payment row matches. Callback
// handlers treat it as "not ours" and acknowledge without mutating.
var ErrPaymentNotFound = errors.New("payment not found")

// Store persists payment attempts. UpdateStatus is the only way a
// status changes after insert; it is compare-and-swap so concurrent
// callbacks cannot double-apply an outcome.
type Store interface {
	SavePayment(payment *models.Payment) error
	GetPayment(id string) (*models.Payment, error)
	GetPaymentByReference(provider models.PaymentProvider, reference string) (*models.Payment, error)
	UpdateStatus(id string, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error)
	MergeRawResponse(id string, patch map[string]interface{}) error
	ListPayments(status models.PaymentStatus, limit, offset int) ([]*models.Payment, error)
	ListPaymentsByBooking(bookingID string) ([]*models.Payment, error)
	Close() error
	HealthCheck() error
}
