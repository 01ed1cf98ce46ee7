package payment

import (
	"errors"
	"fmt"
	"time"

	"hotel-booking/internal/availability"
	"hotel-booking/internal/booking/db"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment/providers"
	"hotel-booking/internal/payment/storage"
	"hotel-booking/internal/utils"
)

var (
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingNotPayable = errors.New("booking is not awaiting payment")
)

// BookingDirectory is the slice of the booking store the payment side
// reads: the booking being paid for and its room, for pricing.
type BookingDirectory interface {
	GetBookingByID(id string) (*models.Booking, error)
	GetRoomByID(id string) (*models.Room, error)
}

type EventPublisher interface {
	PublishPaymentEvent(event models.PaymentEvent) error
}

// Service opens payment sessions. Each attempt is its own payment row;
// a guest who abandons a Stripe intent and retries with M-Pesa leaves
// both rows behind, and reconciliation matches callbacks to rows by
// (provider, reference).
type Service struct {
	store    storage.Store
	bookings BookingDirectory
	engine   *availability.Engine
	clients  map[models.PaymentProvider]providers.Client
	currency string
	events   EventPublisher
	log      *logger.Logger
}

func NewService(store storage.Store, bookings BookingDirectory, engine *availability.Engine, clients []providers.Client, currency string, events EventPublisher, log *logger.Logger) *Service {
	byName := make(map[models.PaymentProvider]providers.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Service{
		store:    store,
		bookings: bookings,
		engine:   engine,
		clients:  byName,
		currency: currency,
		events:   events,
		log:      log,
	}
}

func (s *Service) Client(provider models.PaymentProvider) (providers.Client, bool) {
	c, ok := s.clients[provider]
	return c, ok
}

// OpenSession starts a payment attempt for a pending booking. The
// amount always comes from the booking's price snapshot when one was
// taken, so a room price change mid-payment cannot alter what the guest
// owes.
func (s *Service) OpenSession(bookingID string, req models.PaymentSessionRequest) (*models.PaymentSessionResponse, error) {
	client, ok := s.clients[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	booking, err := s.bookings.GetBookingByID(bookingID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, ErrBookingNotPayable
	}

	var room *models.Room
	if booking.RoomID != "" {
		if room, err = s.bookings.GetRoomByID(booking.RoomID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	amount := s.engine.BookingAmount(booking, room)
	if amount <= 0 {
		return nil, fmt.Errorf("booking %s has no payable amount", bookingID)
	}

	sessionReq := providers.SessionRequest{
		BookingID: booking.BookingID,
		Amount:    amount,
		Currency:  s.currency,
		Email:     booking.Email,
	}
	if req.Provider == models.ProviderMpesa {
		phone, err := providers.NormalizePhone(req.Phone)
		if err != nil {
			return nil, err
		}
		sessionReq.Phone = phone
	}

	s.log.LogPayment("SESSION", bookingID, fmt.Sprintf("Opening %s session (%.2f %s)", req.Provider, amount, s.currency))

	session, err := client.CreateSession(sessionReq)
	if err != nil {
		s.recordRejectedSession(booking, req.Provider, amount, err)
		return nil, err
	}

	payment := &models.Payment{
		PaymentID:   utils.GeneratePaymentID(),
		BookingID:   booking.BookingID,
		Provider:    req.Provider,
		Status:      models.PaymentPending,
		Amount:      amount,
		Currency:    s.currency,
		Reference:   session.Reference,
		RawResponse: sessionRaw(session.Raw),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SavePayment(payment); err != nil {
		return nil, err
	}

	s.publishEvent("payment.session.opened", payment)

	return &models.PaymentSessionResponse{
		PaymentID:    payment.PaymentID,
		Provider:     payment.Provider,
		Status:       payment.Status,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		ClientSecret: session.ClientSecret,
		RedirectURL:  session.RedirectURL,
		Reference:    session.Reference,
	}, nil
}

// recordRejectedSession keeps an audit row for a declined STK push, so
// the rejection is still visible in the payment history even though no
// session ever opened. Only M-Pesa gets this: a push reaches the
// subscriber's handset before Daraja answers, while a rejected Stripe or
// PayPal session never left the provider.
func (s *Service) recordRejectedSession(booking *models.Booking, provider models.PaymentProvider, amount float64, cause error) {
	if provider != models.ProviderMpesa {
		return
	}
	var provErr *providers.ProviderError
	if !errors.As(cause, &provErr) || provErr.Raw == nil {
		return
	}

	audit := &models.Payment{
		PaymentID:   utils.GeneratePaymentID(),
		BookingID:   booking.BookingID,
		Provider:    provider,
		Status:      models.PaymentFailed,
		Amount:      amount,
		Currency:    s.currency,
		Reference:   provErr.Reference,
		RawResponse: provErr.Raw,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SavePayment(audit); err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("Failed to record rejected %s session for booking %s: %s", provider, booking.BookingID, err.Error()))
		return
	}
	s.log.LogPayment("AUDIT", audit.PaymentID, fmt.Sprintf("Recorded rejected %s session for booking %s", provider, booking.BookingID))
}

func (s *Service) GetPayment(id string) (*models.Payment, error) {
	return s.store.GetPayment(id)
}

func (s *Service) PaymentsForBooking(bookingID string) ([]*models.Payment, error) {
	return s.store.ListPaymentsByBooking(bookingID)
}

func (s *Service) publishEvent(eventType string, payment *models.Payment) {
	if s.events == nil {
		return
	}
	event := models.PaymentEvent{
		Type:      eventType,
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Provider:  string(payment.Provider),
		Status:    string(payment.Status),
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.PublishPaymentEvent(event); err != nil {
		s.log.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for payment %s: %s", eventType, payment.PaymentID, err.Error()))
	}
}

// sessionRaw shapes the first raw_response write. Providers that built
// their own request/response split keep it; otherwise the payload is
// filed under response.
func sessionRaw(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	if _, ok := raw["response"]; ok {
		return raw
	}
	return map[string]interface{}{"response": raw}
}
