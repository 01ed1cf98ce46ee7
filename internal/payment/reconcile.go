package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment/providers"
	"hotel-booking/internal/payment/storage"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrPaymentNotFound    = storage.ErrPaymentNotFound
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrProviderMismatch   = errors.New("payment belongs to a different provider")
	ErrReferenceMismatch  = errors.New("reference does not match this payment")
	ErrPaymentUnsupported = errors.New("operation not supported for this provider")
)

// BookingLifecycle is what reconciliation needs from the booking side:
// confirm or cancel the booking behind a payment, and send the receipt
// when a confirmation actually happened.
type BookingLifecycle interface {
	Confirm(id string) (bool, error)
	Cancel(id string) (bool, error)
	SendReceipt(id string, amount float64)
}

// ConfirmLock serializes confirmation of one booking across concurrent
// callbacks. It is best-effort: reconciliation proceeds without the
// lock if Redis is down, the store's compare-and-swap still keeps the
// outcome applied exactly once.
type ConfirmLock interface {
	Acquire(bookingID string) (bool, error)
	Release(bookingID string)
}

// Reconciler folds provider outcomes back into payments and bookings.
// Every entry point is idempotent: replaying a webhook, refreshing a
// return page, or polling twice leaves the state it found.
type Reconciler struct {
	store    storage.Store
	bookings BookingLifecycle
	clients  map[models.PaymentProvider]providers.Client
	lock     ConfirmLock
	events   EventPublisher
	log      *logger.Logger

	stripeWebhookSecret string
}

func NewReconciler(store storage.Store, bookings BookingLifecycle, clients []providers.Client, lock ConfirmLock, events EventPublisher, stripeWebhookSecret string, log *logger.Logger) *Reconciler {
	byName := make(map[models.PaymentProvider]providers.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Reconciler{
		store:               store,
		bookings:            bookings,
		clients:             byName,
		lock:                lock,
		events:              events,
		log:                 log,
		stripeWebhookSecret: stripeWebhookSecret,
	}
}

// ConfirmStripe handles the browser returning from a Stripe payment.
// The intent id from the return URL must match the session's stored
// reference; the status itself is fetched from Stripe, never trusted
// from the client.
func (r *Reconciler) ConfirmStripe(paymentID, intentID string) (*models.Payment, error) {
	payment, err := r.store.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Provider != models.ProviderStripe {
		return nil, ErrProviderMismatch
	}
	if payment.Reference != "" && intentID != "" && payment.Reference != intentID {
		return nil, ErrReferenceMismatch
	}

	client, ok := r.clients[models.ProviderStripe]
	if !ok {
		return nil, ErrUnknownProvider
	}
	outcome, err := client.FetchStatus(payment.Reference)
	if err != nil {
		return nil, err
	}

	return r.applyOutcome(payment, outcome, false)
}

// HandleStripeWebhook verifies and applies a Stripe event. Events for
// intents we never opened a session on are acknowledged untouched, a
// shared Stripe account may carry traffic that is not ours.
func (r *Reconciler) HandleStripeWebhook(payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.stripeWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		r.log.Warn("STRIPE", "Webhook signature verification failed: "+err.Error())
		return ErrInvalidSignature
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		r.log.Debug("STRIPE", fmt.Sprintf("Ignoring webhook event %s", event.Type))
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to decode payment intent from event %s: %w", event.ID, err)
	}

	payment, err := r.store.GetPaymentByReference(models.ProviderStripe, intent.ID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			r.log.Info("STRIPE", fmt.Sprintf("Webhook for unknown intent %s, acknowledging", intent.ID))
			return nil
		}
		return err
	}

	outcome := providers.OutcomeFromIntent(&intent)
	if event.Type == "payment_intent.canceled" {
		outcome.Result = providers.ResultCancelled
	}

	_, err = r.applyOutcome(payment, outcome, false)
	return err
}

// PayPalReturn captures an approved PayPal order when the guest lands
// back on the return URL. Capture happens server side; a replay of the
// return URL finds the order already captured and changes nothing.
func (r *Reconciler) PayPalReturn(orderID string) (*models.Payment, error) {
	payment, err := r.store.GetPaymentByReference(models.ProviderPayPal, orderID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentSucceeded {
		return payment, nil
	}

	client, ok := r.clients[models.ProviderPayPal]
	if !ok {
		return nil, ErrUnknownProvider
	}
	capturer, ok := client.(providers.Capturer)
	if !ok {
		return nil, ErrPaymentUnsupported
	}

	outcome, err := capturer.Capture(orderID)
	if err != nil {
		return nil, err
	}
	return r.applyOutcome(payment, outcome, false)
}

// PayPalCancel records the guest backing out of the PayPal approval
// page. Only the payment moves; the booking stays pending so another
// attempt can be made.
func (r *Reconciler) PayPalCancel(orderID string) (*models.Payment, error) {
	payment, err := r.store.GetPaymentByReference(models.ProviderPayPal, orderID)
	if err != nil {
		return nil, err
	}
	outcome := &providers.Outcome{Result: providers.ResultCancelled, Reason: "guest cancelled on paypal"}
	return r.applyOutcome(payment, outcome, false)
}

// MpesaCallback applies a Daraja STK callback. Unknown checkout
// references are acknowledged so Daraja stops retrying.
func (r *Reconciler) MpesaCallback(body []byte) error {
	reference, outcome, err := providers.ParseCallback(body)
	if err != nil {
		return fmt.Errorf("unreadable m-pesa callback: %w", err)
	}
	if reference == "" {
		r.log.Warn("MPESA", "Callback without a checkout request id, acknowledging")
		return nil
	}

	payment, err := r.store.GetPaymentByReference(models.ProviderMpesa, reference)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			r.log.Info("MPESA", fmt.Sprintf("Callback for unknown checkout %s, acknowledging", reference))
			return nil
		}
		return err
	}

	_, err = r.applyOutcome(payment, outcome, false)
	return err
}

// PollMpesa runs an STK status query for a payment awaiting its
// callback. With adminCancel set, a subscriber-cancelled push also
// cancels the booking; the admin is resolving the attempt, not just
// peeking at it.
func (r *Reconciler) PollMpesa(paymentID string, adminCancel bool) (*models.Payment, error) {
	payment, err := r.store.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Provider != models.ProviderMpesa {
		return nil, ErrProviderMismatch
	}
	if payment.Reference == "" {
		return payment, nil
	}

	client, ok := r.clients[models.ProviderMpesa]
	if !ok {
		return nil, ErrUnknownProvider
	}
	outcome, err := client.FetchStatus(payment.Reference)
	if err != nil {
		return nil, err
	}
	return r.applyOutcome(payment, outcome, adminCancel)
}

// AdminOverride forcibly sets a payment's status, cascading to the
// booking: SUCCEEDED confirms it and sends the receipt, CANCELLED and
// REFUNDED cancel it. Used by staff to resolve payments the providers
// never settled on their own.
func (r *Reconciler) AdminOverride(paymentID string, to models.PaymentStatus) (*models.Payment, error) {
	payment, err := r.store.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}

	all := []models.PaymentStatus{
		models.PaymentPending, models.PaymentSucceeded, models.PaymentFailed,
		models.PaymentCancelled, models.PaymentRefunded,
	}
	from := make([]models.PaymentStatus, 0, len(all)-1)
	for _, s := range all {
		if s != to {
			from = append(from, s)
		}
	}

	transitioned, err := r.store.UpdateStatus(paymentID, to, from...)
	if err != nil {
		return nil, err
	}
	if transitioned {
		r.log.LogPayment("OVERRIDE", paymentID, fmt.Sprintf("Status forced from %s to %s", payment.Status, to))
		r.publishEvent("payment.overridden", payment, to)
	}

	switch to {
	case models.PaymentSucceeded:
		confirmed, err := r.bookings.Confirm(payment.BookingID)
		if err != nil {
			return nil, fmt.Errorf("payment %s overridden but booking %s confirmation failed: %w", paymentID, payment.BookingID, err)
		}
		if confirmed {
			r.bookings.SendReceipt(payment.BookingID, payment.Amount)
		}
	case models.PaymentCancelled, models.PaymentRefunded:
		if _, err := r.bookings.Cancel(payment.BookingID); err != nil {
			r.log.Error("BOOKING", fmt.Sprintf("Failed to cancel booking %s after override of payment %s: %s", payment.BookingID, paymentID, err.Error()))
		}
	}

	return r.store.GetPayment(paymentID)
}

// applyOutcome is the single reconciliation path. The raw payload is
// recorded no matter what; the status transition is compare-and-swap so
// a second delivery of the same outcome is a no-op; and on success the
// booking confirmation is always attempted, which repairs a crash that
// left the payment settled but the booking pending.
func (r *Reconciler) applyOutcome(payment *models.Payment, outcome *providers.Outcome, adminCancel bool) (*models.Payment, error) {
	if len(outcome.Raw) > 0 {
		if err := r.store.MergeRawResponse(payment.PaymentID, outcome.Raw); err != nil {
			r.log.Error("PAYMENT", fmt.Sprintf("Failed to record provider payload for %s: %s", payment.PaymentID, err.Error()))
		}
	}

	switch outcome.Result {
	case providers.ResultSuccess:
		if err := r.applySuccess(payment); err != nil {
			return nil, err
		}
	case providers.ResultFailure:
		transitioned, err := r.store.UpdateStatus(payment.PaymentID, models.PaymentFailed, models.PaymentPending)
		if err != nil {
			return nil, err
		}
		if transitioned {
			r.log.LogPayment("FAILED", payment.PaymentID, "Payment failed: "+outcome.Reason)
			r.publishEvent("payment.failed", payment, models.PaymentFailed)
		}
	case providers.ResultCancelled:
		transitioned, err := r.store.UpdateStatus(payment.PaymentID, models.PaymentCancelled, models.PaymentPending)
		if err != nil {
			return nil, err
		}
		if transitioned {
			r.log.LogPayment("CANCELLED", payment.PaymentID, "Payment cancelled: "+outcome.Reason)
			r.publishEvent("payment.cancelled", payment, models.PaymentCancelled)
		}
		if adminCancel {
			if _, err := r.bookings.Cancel(payment.BookingID); err != nil {
				r.log.Error("BOOKING", fmt.Sprintf("Failed to cancel booking %s for payment %s: %s", payment.BookingID, payment.PaymentID, err.Error()))
			}
		}
	case providers.ResultPending:
		r.log.LogPayment("PENDING", payment.PaymentID, "Payment still pending: "+outcome.Reason)
	}

	return r.store.GetPayment(payment.PaymentID)
}

func (r *Reconciler) applySuccess(payment *models.Payment) error {
	if r.lock != nil {
		acquired, err := r.lock.Acquire(payment.BookingID)
		if err != nil {
			r.log.Warn("REDIS", fmt.Sprintf("Confirm lock unavailable for booking %s, proceeding: %s", payment.BookingID, err.Error()))
		} else if acquired {
			defer r.lock.Release(payment.BookingID)
		}
	}

	transitioned, err := r.store.UpdateStatus(payment.PaymentID, models.PaymentSucceeded,
		models.PaymentPending, models.PaymentFailed, models.PaymentCancelled)
	if err != nil {
		return err
	}
	if transitioned {
		r.log.LogPayment("SUCCEEDED", payment.PaymentID, "Payment settled for booking "+payment.BookingID)
		r.publishEvent("payment.succeeded", payment, models.PaymentSucceeded)
	}

	// Confirmation is attempted even when the payment row was already
	// settled: a crash between the two writes leaves a succeeded payment
	// on a pending booking, and the next delivery repairs it.
	confirmed, err := r.bookings.Confirm(payment.BookingID)
	if err != nil {
		return fmt.Errorf("payment %s settled but booking %s confirmation failed: %w", payment.PaymentID, payment.BookingID, err)
	}
	if confirmed {
		r.bookings.SendReceipt(payment.BookingID, payment.Amount)
	}
	return nil
}

func (r *Reconciler) publishEvent(eventType string, payment *models.Payment, status models.PaymentStatus) {
	if r.events == nil {
		return
	}
	event := models.PaymentEvent{
		Type:      eventType,
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Provider:  string(payment.Provider),
		Status:    string(status),
		Timestamp: time.Now().UTC(),
	}
	if err := r.events.PublishPaymentEvent(event); err != nil {
		r.log.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for payment %s: %s", eventType, payment.PaymentID, err.Error()))
	}
}
