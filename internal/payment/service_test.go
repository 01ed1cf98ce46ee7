package payment_test

import (
	"errors"
	"testing"
	"time"

	"hotel-booking/internal/availability"
	"hotel-booking/internal/booking/db"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment"
	"hotel-booking/internal/payment/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Mock implementations
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SavePayment(p *models.Payment) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockStore) GetPayment(id string) (*models.Payment, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockStore) GetPaymentByReference(provider models.PaymentProvider, reference string) (*models.Payment, error) {
	args := m.Called(provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockStore) UpdateStatus(id string, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error) {
	args := m.Called(id, to, from)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) MergeRawResponse(id string, patch map[string]interface{}) error {
	args := m.Called(id, patch)
	return args.Error(0)
}

func (m *MockStore) ListPayments(status models.PaymentStatus, limit, offset int) ([]*models.Payment, error) {
	args := m.Called(status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockStore) ListPaymentsByBooking(bookingID string) ([]*models.Payment, error) {
	args := m.Called(bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) HealthCheck() error {
	args := m.Called()
	return args.Error(0)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetBookingByID(id string) (*models.Booking, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockDirectory) GetRoomByID(id string) (*models.Room, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

type MockClient struct {
	mock.Mock
	provider models.PaymentProvider
}

func (m *MockClient) Name() models.PaymentProvider { return m.provider }

func (m *MockClient) CreateSession(req providers.SessionRequest) (*providers.Session, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Session), args.Error(1)
}

func (m *MockClient) FetchStatus(reference string) (*providers.Outcome, error) {
	args := m.Called(reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Outcome), args.Error(1)
}

// MockCapturingClient adds the PayPal capture step.
type MockCapturingClient struct {
	MockClient
}

func (m *MockCapturingClient) Capture(reference string) (*providers.Outcome, error) {
	args := m.Called(reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Outcome), args.Error(1)
}

type MockPaymentEvents struct {
	mock.Mock
}

func (m *MockPaymentEvents) PublishPaymentEvent(event models.PaymentEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

type nopBookingStore struct{}

func (nopBookingStore) HasConfirmedOverlap(roomID string, checkIn, checkOut time.Time) (bool, error) {
	return false, nil
}
func (nopBookingStore) CompleteElapsed(today time.Time) (int64, error) { return 0, nil }

func testEngine() *availability.Engine {
	return availability.NewEngine(nopBookingStore{}, nil, logger.NewNop())
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		BookingID:  "b1",
		RoomID:     "room1",
		Email:      "jane@example.com",
		CheckIn:    time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Status:     models.BookingPending,
		TotalPrice: 9000,
	}
}

// Tests start here
func TestOpenSessionUnknownProvider(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	svc := payment.NewService(store, dir, testEngine(), nil, "KES", nil, logger.NewNop())

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: "BITCOIN"})
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
}

func TestOpenSessionBookingNotFound(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	dir.On("GetBookingByID", "ghost").Return(nil, db.ErrNotFound)

	_, err := svc.OpenSession("ghost", models.PaymentSessionRequest{Provider: models.ProviderStripe})
	assert.ErrorIs(t, err, payment.ErrBookingNotFound)
}

func TestOpenSessionBookingNotPayable(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	for _, status := range []models.BookingStatus{
		models.BookingConfirmed, models.BookingCancelled, models.BookingCompleted,
	} {
		b := pendingBooking()
		b.Status = status
		dir.On("GetBookingByID", "b1").Return(b, nil).Once()

		_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderStripe})
		assert.ErrorIs(t, err, payment.ErrBookingNotPayable)
	}
	client.AssertNotCalled(t, "CreateSession", mock.Anything)
}

func TestOpenSessionInvalidMpesaPhone(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderMpesa}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	dir.On("GetBookingByID", "b1").Return(pendingBooking(), nil)
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 4500}, nil)

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderMpesa, Phone: "12345"})
	assert.ErrorIs(t, err, providers.ErrInvalidPhone)
	client.AssertNotCalled(t, "CreateSession", mock.Anything)
}

func TestOpenSessionChargesSnapshotAmount(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	events := new(MockPaymentEvents)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", events, logger.NewNop())

	dir.On("GetBookingByID", "b1").Return(pendingBooking(), nil)
	// Room was repriced after the booking was taken; the snapshot wins
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 99999}, nil)

	session := &providers.Session{
		Reference:    "pi_123",
		ClientSecret: "pi_123_secret",
		Raw:          map[string]interface{}{"id": "pi_123"},
	}
	client.On("CreateSession", mock.MatchedBy(func(req providers.SessionRequest) bool {
		return req.BookingID == "b1" && req.Amount == 9000 && req.Currency == "KES"
	})).Return(session, nil)

	var saved *models.Payment
	store.On("SavePayment", mock.AnythingOfType("*models.Payment")).Run(func(args mock.Arguments) {
		saved = args.Get(0).(*models.Payment)
	}).Return(nil)
	events.On("PublishPaymentEvent", mock.AnythingOfType("models.PaymentEvent")).Return(nil)

	resp, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderStripe})
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.Status)
	assert.Equal(t, 9000.0, resp.Amount)
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	assert.Equal(t, "pi_123", resp.Reference)

	assert.NotNil(t, saved)
	assert.Equal(t, models.PaymentPending, saved.Status)
	assert.Equal(t, "pi_123", saved.Reference)
	// Session payload is filed under response in the audit blob
	assert.Equal(t, map[string]interface{}{"id": "pi_123"}, saved.RawResponse["response"])

	client.AssertExpectations(t)
	store.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestOpenSessionNoSnapshotFallsBackToRoomPrice(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	b := pendingBooking()
	b.TotalPrice = 0
	dir.On("GetBookingByID", "b1").Return(b, nil)
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 4500}, nil)

	client.On("CreateSession", mock.MatchedBy(func(req providers.SessionRequest) bool {
		// Two nights at 4500
		return req.Amount == 9000
	})).Return(&providers.Session{Reference: "pi_456"}, nil)
	store.On("SavePayment", mock.AnythingOfType("*models.Payment")).Return(nil)

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderStripe})
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestOpenSessionRejectedPushLeavesAuditRow(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderMpesa}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	dir.On("GetBookingByID", "b1").Return(pendingBooking(), nil)
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 4500}, nil)

	provErr := &providers.ProviderError{
		Provider:  models.ProviderMpesa,
		Category:  providers.CategoryRejected,
		Reason:    "push rejected",
		Reference: "ws_CO_123",
		Raw: map[string]interface{}{
			"response": map[string]interface{}{"ResponseCode": "1"},
		},
	}
	client.On("CreateSession", mock.Anything).Return(nil, provErr)

	var saved *models.Payment
	store.On("SavePayment", mock.AnythingOfType("*models.Payment")).Run(func(args mock.Arguments) {
		saved = args.Get(0).(*models.Payment)
	}).Return(nil)

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderMpesa, Phone: "0712345678"})
	assert.Error(t, err)

	// The rejection is still visible in the payment history
	assert.NotNil(t, saved)
	assert.Equal(t, models.PaymentFailed, saved.Status)
	assert.Equal(t, "ws_CO_123", saved.Reference)
	assert.Equal(t, provErr.Raw, saved.RawResponse)
}

func TestOpenSessionRejectedPayPalOrderLeavesNoRow(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderPayPal}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	dir.On("GetBookingByID", "b1").Return(pendingBooking(), nil)
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 4500}, nil)

	// A rejected order carries the provider payload, but only M-Pesa
	// rejections are worth an audit row
	client.On("CreateSession", mock.Anything).Return(nil, &providers.ProviderError{
		Provider: models.ProviderPayPal,
		Category: providers.CategoryRejected,
		Reason:   "paypal rejected the order",
		Raw:      map[string]interface{}{"name": "INVALID_REQUEST"},
	})

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderPayPal})
	assert.Error(t, err)
	store.AssertNotCalled(t, "SavePayment", mock.Anything)
}

func TestOpenSessionTransportFailureLeavesNoRow(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	dir.On("GetBookingByID", "b1").Return(pendingBooking(), nil)
	dir.On("GetRoomByID", "room1").Return(&models.Room{RoomID: "room1", Price: 4500}, nil)
	client.On("CreateSession", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderStripe})
	assert.Error(t, err)
	store.AssertNotCalled(t, "SavePayment", mock.Anything)
}

func TestOpenSessionZeroAmount(t *testing.T) {
	store := new(MockStore)
	dir := new(MockDirectory)
	client := &MockClient{provider: models.ProviderStripe}
	svc := payment.NewService(store, dir, testEngine(), []providers.Client{client}, "KES", nil, logger.NewNop())

	b := pendingBooking()
	b.TotalPrice = 0
	b.RoomID = ""
	dir.On("GetBookingByID", "b1").Return(b, nil)

	_, err := svc.OpenSession("b1", models.PaymentSessionRequest{Provider: models.ProviderStripe})
	assert.Error(t, err)
	client.AssertNotCalled(t, "CreateSession", mock.Anything)
}
