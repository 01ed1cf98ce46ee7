package payment_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment"
	"hotel-booking/internal/payment/providers"
	"hotel-booking/internal/payment/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Reuse the mocks from service_test.go. This file covers folding
// provider outcomes back into payments and bookings.

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Confirm(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) Cancel(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) SendReceipt(id string, amount float64) {
	m.Called(id, amount)
}

type MockConfirmLock struct {
	mock.Mock
}

func (m *MockConfirmLock) Acquire(bookingID string) (bool, error) {
	args := m.Called(bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockConfirmLock) Release(bookingID string) {
	m.Called(bookingID)
}

func stripePayment(status models.PaymentStatus) *models.Payment {
	return &models.Payment{
		PaymentID: "pay1",
		BookingID: "b1",
		Provider:  models.ProviderStripe,
		Status:    status,
		Amount:    9000,
		Currency:  "KES",
		Reference: "pi_123",
	}
}

func mpesaPayment(status models.PaymentStatus) *models.Payment {
	return &models.Payment{
		PaymentID: "pay2",
		BookingID: "b1",
		Provider:  models.ProviderMpesa,
		Status:    status,
		Amount:    9000,
		Currency:  "KES",
		Reference: "ws_CO_123",
	}
}

func newReconciler(store *MockStore, bookings *MockLifecycle, clients []providers.Client, lock *MockConfirmLock) *payment.Reconciler {
	var l payment.ConfirmLock
	if lock != nil {
		l = lock
	}
	return payment.NewReconciler(store, bookings, clients, l, nil, "whsec_test", logger.NewNop())
}

func TestConfirmStripeSuccess(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	p := stripePayment(models.PaymentPending)
	outcome := &providers.Outcome{
		Result: providers.ResultSuccess,
		Raw:    map[string]interface{}{"callback": map[string]interface{}{"id": "pi_123"}},
	}

	store.On("GetPayment", "pay1").Return(p, nil)
	client.On("FetchStatus", "pi_123").Return(outcome, nil)
	store.On("MergeRawResponse", "pay1", outcome.Raw).Return(nil)
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentCancelled}).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()

	result, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)
	assert.NotNil(t, result)

	store.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestConfirmStripeProviderMismatch(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	store.On("GetPayment", "pay2").Return(mpesaPayment(models.PaymentPending), nil)

	_, err := rec.ConfirmStripe("pay2", "pi_123")
	assert.ErrorIs(t, err, payment.ErrProviderMismatch)
}

func TestConfirmStripeReferenceMismatch(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil)

	_, err := rec.ConfirmStripe("pay1", "pi_other")
	assert.ErrorIs(t, err, payment.ErrReferenceMismatch)
	client.AssertNotCalled(t, "FetchStatus", mock.Anything)
}

func TestSuccessDeliveredTwiceSendsOneReceipt(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	outcome := &providers.Outcome{Result: providers.ResultSuccess}
	client.On("FetchStatus", "pi_123").Return(outcome, nil)

	// First delivery wins the compare-and-swap and confirms the booking
	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil).Once()
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded, mock.Anything).Return(true, nil).Once()
	bookings.On("Confirm", "b1").Return(true, nil).Once()
	bookings.On("SendReceipt", "b1", 9000.0).Return().Once()
	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentSucceeded), nil)

	_, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)

	// Replay: both swaps lose, nothing is sent again
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded, mock.Anything).Return(false, nil).Once()
	bookings.On("Confirm", "b1").Return(false, nil).Once()

	_, err = rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)

	bookings.AssertExpectations(t)
	bookings.AssertNumberOfCalls(t, "SendReceipt", 1)
}

func TestSuccessRepairsPendingBooking(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	// A crash left the payment settled but the booking still pending.
	// The replayed delivery loses the payment swap yet still confirms.
	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentSucceeded), nil)
	client.On("FetchStatus", "pi_123").Return(&providers.Outcome{Result: providers.ResultSuccess}, nil)
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded, mock.Anything).Return(false, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()

	_, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)
	bookings.AssertExpectations(t)
}

func TestSuccessHoldsConfirmLock(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	lock := new(MockConfirmLock)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, lock)

	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil)
	client.On("FetchStatus", "pi_123").Return(&providers.Outcome{Result: providers.ResultSuccess}, nil)
	lock.On("Acquire", "b1").Return(true, nil)
	lock.On("Release", "b1").Return()
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded, mock.Anything).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()

	_, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)
	lock.AssertExpectations(t)
}

func TestSuccessProceedsWhenLockUnavailable(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	lock := new(MockConfirmLock)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, lock)

	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil)
	client.On("FetchStatus", "pi_123").Return(&providers.Outcome{Result: providers.ResultSuccess}, nil)
	lock.On("Acquire", "b1").Return(false, errors.New("redis down"))
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded, mock.Anything).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()

	_, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)
	lock.AssertNotCalled(t, "Release", mock.Anything)
	bookings.AssertExpectations(t)
}

func TestFailureOnlyMovesPendingPayments(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderStripe}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil)
	client.On("FetchStatus", "pi_123").Return(&providers.Outcome{Result: providers.ResultFailure, Reason: "card declined"}, nil)
	store.On("UpdateStatus", "pay1", models.PaymentFailed,
		[]models.PaymentStatus{models.PaymentPending}).Return(true, nil)

	_, err := rec.ConfirmStripe("pay1", "pi_123")
	assert.NoError(t, err)

	// The booking is untouched: the guest can retry with another provider
	bookings.AssertNotCalled(t, "Cancel", mock.Anything)
	bookings.AssertNotCalled(t, "Confirm", mock.Anything)
	store.AssertExpectations(t)
}

func TestMpesaCallbackCancelledLeavesBookingPending(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	store.On("GetPaymentByReference", models.ProviderMpesa, "ws_CO_123").Return(mpesaPayment(models.PaymentPending), nil)
	store.On("MergeRawResponse", "pay2", mock.Anything).Return(nil)
	store.On("UpdateStatus", "pay2", models.PaymentCancelled,
		[]models.PaymentStatus{models.PaymentPending}).Return(true, nil)
	store.On("GetPayment", "pay2").Return(mpesaPayment(models.PaymentCancelled), nil)

	err := rec.MpesaCallback(body)
	assert.NoError(t, err)

	// Guest dismissing the prompt never cancels the booking
	bookings.AssertNotCalled(t, "Cancel", mock.Anything)
	store.AssertExpectations(t)
}

func TestMpesaCallbackUnknownReferenceIsAcked(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	body := []byte(`{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_unknown",
				"ResultCode": 0,
				"ResultDesc": "Success"
			}
		}
	}`)

	store.On("GetPaymentByReference", models.ProviderMpesa, "ws_CO_unknown").Return(nil, storage.ErrPaymentNotFound)

	err := rec.MpesaCallback(body)
	assert.NoError(t, err)
	store.AssertNotCalled(t, "MergeRawResponse", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestMpesaCallbackMalformed(t *testing.T) {
	store := new(MockStore)
	rec := newReconciler(store, new(MockLifecycle), nil, nil)

	err := rec.MpesaCallback([]byte("not json"))
	assert.Error(t, err)
}

func TestPollMpesaAdminCancelCascades(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockClient{provider: models.ProviderMpesa}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	store.On("GetPayment", "pay2").Return(mpesaPayment(models.PaymentPending), nil)
	client.On("FetchStatus", "ws_CO_123").Return(&providers.Outcome{Result: providers.ResultCancelled, Reason: "cancelled by user"}, nil)
	store.On("UpdateStatus", "pay2", models.PaymentCancelled, mock.Anything).Return(true, nil)
	bookings.On("Cancel", "b1").Return(true, nil)

	_, err := rec.PollMpesa("pay2", true)
	assert.NoError(t, err)
	bookings.AssertExpectations(t)
}

func TestPollMpesaWithoutReferenceIsNoop(t *testing.T) {
	store := new(MockStore)
	client := &MockClient{provider: models.ProviderMpesa}
	rec := newReconciler(store, new(MockLifecycle), []providers.Client{client}, nil)

	p := mpesaPayment(models.PaymentPending)
	p.Reference = ""
	store.On("GetPayment", "pay2").Return(p, nil)

	result, err := rec.PollMpesa("pay2", false)
	assert.NoError(t, err)
	assert.Equal(t, p, result)
	client.AssertNotCalled(t, "FetchStatus", mock.Anything)
}

func TestPollMpesaWrongProvider(t *testing.T) {
	store := new(MockStore)
	rec := newReconciler(store, new(MockLifecycle), nil, nil)

	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentPending), nil)

	_, err := rec.PollMpesa("pay1", false)
	assert.ErrorIs(t, err, payment.ErrProviderMismatch)
}

func TestPayPalReturnCaptures(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	client := &MockCapturingClient{MockClient{provider: models.ProviderPayPal}}
	rec := newReconciler(store, bookings, []providers.Client{client}, nil)

	p := &models.Payment{
		PaymentID: "pay3",
		BookingID: "b1",
		Provider:  models.ProviderPayPal,
		Status:    models.PaymentPending,
		Amount:    9000,
		Reference: "ORDER-1",
	}
	store.On("GetPaymentByReference", models.ProviderPayPal, "ORDER-1").Return(p, nil)
	client.On("Capture", "ORDER-1").Return(&providers.Outcome{Result: providers.ResultSuccess}, nil)
	store.On("UpdateStatus", "pay3", models.PaymentSucceeded, mock.Anything).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()
	store.On("GetPayment", "pay3").Return(p, nil)

	_, err := rec.PayPalReturn("ORDER-1")
	assert.NoError(t, err)
	client.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestPayPalReturnAlreadySettled(t *testing.T) {
	store := new(MockStore)
	client := &MockCapturingClient{MockClient{provider: models.ProviderPayPal}}
	rec := newReconciler(store, new(MockLifecycle), []providers.Client{client}, nil)

	p := &models.Payment{
		PaymentID: "pay3",
		Provider:  models.ProviderPayPal,
		Status:    models.PaymentSucceeded,
		Reference: "ORDER-1",
	}
	store.On("GetPaymentByReference", models.ProviderPayPal, "ORDER-1").Return(p, nil)

	result, err := rec.PayPalReturn("ORDER-1")
	assert.NoError(t, err)
	assert.Equal(t, p, result)

	// Refreshing the return page captures nothing twice
	client.AssertNotCalled(t, "Capture", mock.Anything)
}

func TestPayPalCancelMovesOnlyThePayment(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	p := &models.Payment{
		PaymentID: "pay3",
		BookingID: "b1",
		Provider:  models.ProviderPayPal,
		Status:    models.PaymentPending,
		Reference: "ORDER-1",
	}
	store.On("GetPaymentByReference", models.ProviderPayPal, "ORDER-1").Return(p, nil)
	store.On("UpdateStatus", "pay3", models.PaymentCancelled,
		[]models.PaymentStatus{models.PaymentPending}).Return(true, nil)
	store.On("GetPayment", "pay3").Return(p, nil)

	_, err := rec.PayPalCancel("ORDER-1")
	assert.NoError(t, err)
	bookings.AssertNotCalled(t, "Cancel", mock.Anything)
}

func TestAdminOverrideToSucceeded(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	p := stripePayment(models.PaymentFailed)
	store.On("GetPayment", "pay1").Return(p, nil)
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentCancelled, models.PaymentRefunded}).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()

	_, err := rec.AdminOverride("pay1", models.PaymentSucceeded)
	assert.NoError(t, err)
	store.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestAdminOverrideToRefundedCancelsBooking(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	p := stripePayment(models.PaymentSucceeded)
	store.On("GetPayment", "pay1").Return(p, nil)
	store.On("UpdateStatus", "pay1", models.PaymentRefunded,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded, models.PaymentFailed, models.PaymentCancelled}).Return(true, nil)
	bookings.On("Cancel", "b1").Return(true, nil)

	_, err := rec.AdminOverride("pay1", models.PaymentRefunded)
	assert.NoError(t, err)
	bookings.AssertExpectations(t)
}

// signStripePayload builds a Stripe-Signature header the verifier
// accepts: v1 is an HMAC-SHA256 over "<t>.<payload>".
func signStripePayload(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	store := new(MockStore)
	rec := newReconciler(store, new(MockLifecycle), nil, nil)

	err := rec.HandleStripeWebhook([]byte(`{"type":"payment_intent.succeeded"}`), "t=1,v1=bogus")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestStripeWebhookSettlesPayment(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_123",
				"object": "payment_intent",
				"status": "succeeded"
			}
		}
	}`)

	store.On("GetPaymentByReference", models.ProviderStripe, "pi_123").Return(stripePayment(models.PaymentPending), nil)
	store.On("MergeRawResponse", "pay1", mock.Anything).Return(nil)
	store.On("UpdateStatus", "pay1", models.PaymentSucceeded,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentCancelled}).Return(true, nil)
	bookings.On("Confirm", "b1").Return(true, nil)
	bookings.On("SendReceipt", "b1", 9000.0).Return()
	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentSucceeded), nil)

	err := rec.HandleStripeWebhook(payload, signStripePayload(payload, "whsec_test"))
	assert.NoError(t, err)
	store.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestStripeWebhookUnknownIntentIsAcked(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	payload := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_not_ours",
				"object": "payment_intent",
				"status": "succeeded"
			}
		}
	}`)

	// A shared Stripe account may carry traffic that is not ours
	store.On("GetPaymentByReference", models.ProviderStripe, "pi_not_ours").Return(nil, storage.ErrPaymentNotFound)

	err := rec.HandleStripeWebhook(payload, signStripePayload(payload, "whsec_test"))
	assert.NoError(t, err)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	bookings.AssertNotCalled(t, "Confirm", mock.Anything)
}

func TestStripeWebhookCanceledIntentCancelsPayment(t *testing.T) {
	store := new(MockStore)
	bookings := new(MockLifecycle)
	rec := newReconciler(store, bookings, nil, nil)

	payload := []byte(`{
		"id": "evt_3",
		"type": "payment_intent.canceled",
		"data": {
			"object": {
				"id": "pi_123",
				"object": "payment_intent",
				"status": "canceled"
			}
		}
	}`)

	store.On("GetPaymentByReference", models.ProviderStripe, "pi_123").Return(stripePayment(models.PaymentPending), nil)
	store.On("MergeRawResponse", "pay1", mock.Anything).Return(nil)
	store.On("UpdateStatus", "pay1", models.PaymentCancelled,
		[]models.PaymentStatus{models.PaymentPending}).Return(true, nil)
	store.On("GetPayment", "pay1").Return(stripePayment(models.PaymentCancelled), nil)

	err := rec.HandleStripeWebhook(payload, signStripePayload(payload, "whsec_test"))
	assert.NoError(t, err)

	// The booking stays pending for another attempt
	bookings.AssertNotCalled(t, "Cancel", mock.Anything)
	store.AssertExpectations(t)
}
