package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hotel-booking/internal/availability"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"

	"github.com/google/uuid"
)

// ErrRoomUnavailable is returned when a CONFIRMED booking already covers
// part of the requested range.
var ErrRoomUnavailable = errors.New("selected room is not available for those dates")

// ErrInvalidStay rejects ranges where checkout is not after checkin.
var ErrInvalidStay = availability.ErrCheckOutNotAfterCheckIn

// ValidationError marks user-correctable input problems so handlers can
// answer 400 instead of 500.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErr(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type DBLayer interface {
	CreateBooking(booking models.Booking) error
	GetBookingByID(id string) (*models.Booking, error)
	UpdateBookingStatus(id string, to models.BookingStatus, from ...models.BookingStatus) (bool, error)
	GetRoomByID(id string) (*models.Room, error)
	ListRooms() ([]models.Room, error)
	HasConfirmedOverlap(roomID string, checkIn, checkOut time.Time) (bool, error)
	CompleteElapsed(today time.Time) (int64, error)
	ListBookedRooms(today time.Time) ([]models.Booking, error)
}

// Notifier delivers guest email. Both sends are best-effort: a failed
// mail never fails the booking or the reconciliation that triggered it.
type Notifier interface {
	SendBookingAck(booking *models.Booking, room *models.Room) error
	SendReceipt(booking *models.Booking, room *models.Room, amount float64) error
}

type EventPublisher interface {
	PublishBookingCreated(booking models.Booking) error
	PublishBookingConfirmed(booking models.Booking) error
}

type Service struct {
	DB           DBLayer
	Availability *availability.Engine
	Notifier     Notifier
	Events       EventPublisher
	logger       *logger.Logger
}

func NewService(db DBLayer, engine *availability.Engine, notifier Notifier, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		DB:           db,
		Availability: engine,
		Notifier:     notifier,
		Events:       events,
		logger:       log,
	}
}

// ParseDate accepts ISO dates and the MM/DD/YYYY form the legacy booking
// widget posts.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validationErr("invalid date %q, use YYYY-MM-DD", value)
}

// CreateBooking validates the request, checks availability, snapshots the
// total price and persists a PENDING booking. Unpaid bookings do not
// reserve inventory and never expire on their own.
func (s *Service) CreateBooking(req models.BookingRequest) (*models.Booking, error) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, validationErr("guest name is required")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, validationErr("email is required")
	}
	if strings.TrimSpace(req.Mobile) == "" {
		return nil, validationErr("mobile number is required")
	}
	if req.RoomID == "" {
		return nil, validationErr("room_id is required")
	}

	checkIn, err := ParseDate(req.CheckIn)
	if err != nil {
		return nil, err
	}
	checkOut, err := ParseDate(req.CheckOut)
	if err != nil {
		return nil, err
	}

	room, err := s.DB.GetRoomByID(req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.Available {
		return nil, ErrRoomUnavailable
	}

	guests := req.Guests
	if guests < 1 {
		guests = 1
	}
	if guests > room.Capacity {
		return nil, validationErr("room %s sleeps at most %d guests", room.Title, room.Capacity)
	}

	free, err := s.Availability.IsAvailable(room.RoomID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrRoomUnavailable
	}

	total, err := s.Availability.Quote(room, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	booking := models.Booking{
		BookingID:      uuid.New().String(),
		UserID:         req.UserID,
		RoomID:         room.RoomID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Mobile:         req.Mobile,
		Email:          req.Email,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Guests:         guests,
		SpecialRequest: req.SpecialRequest,
		Status:         models.BookingPending,
		TotalPrice:     total,
		CreatedAt:      time.Now(),
	}

	if err := s.DB.CreateBooking(booking); err != nil {
		return nil, err
	}
	s.logger.LogBooking("CREATE", booking.BookingID, fmt.Sprintf("room %s, %d night(s), total %.2f", room.RoomID, booking.Nights(), total))

	if s.Events != nil {
		if err := s.Events.PublishBookingCreated(booking); err != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking created event: %v", err))
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.SendBookingAck(&booking, room); err != nil {
			s.logger.Warn("NOTIFY", fmt.Sprintf("Booking ack email failed for %s: %v", booking.BookingID, err))
		}
	}

	return &booking, nil
}

func (s *Service) GetBooking(id string) (*models.Booking, error) {
	return s.DB.GetBookingByID(id)
}

func (s *Service) GetRoom(id string) (*models.Room, error) {
	return s.DB.GetRoomByID(id)
}

func (s *Service) ListRooms() ([]models.Room, error) {
	return s.DB.ListRooms()
}

// CheckAvailability answers whether roomID can take the stay.
func (s *Service) CheckAvailability(roomID string, checkIn, checkOut time.Time) (bool, error) {
	return s.Availability.IsAvailable(roomID, checkIn, checkOut)
}

// StayQuote prices a stay without touching any state.
type StayQuote struct {
	RoomID      string  `json:"room_id"`
	CheckIn     string  `json:"check_in"`
	CheckOut    string  `json:"check_out"`
	Nights      int     `json:"nights"`
	NightlyRate float64 `json:"nightly_rate"`
	Total       float64 `json:"total"`
}

func (s *Service) QuoteStay(roomID string, checkIn, checkOut time.Time) (*StayQuote, error) {
	room, err := s.DB.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	total, err := s.Availability.Quote(room, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	return &StayQuote{
		RoomID:      room.RoomID,
		CheckIn:     checkIn.Format("2006-01-02"),
		CheckOut:    checkOut.Format("2006-01-02"),
		Nights:      int(checkOut.Sub(checkIn).Hours() / 24),
		NightlyRate: room.Price,
		Total:       total,
	}, nil
}

// RoomsWithAvailability lists catalog rooms annotated with whether each
// can be booked for the requested range. A zero range skips annotation.
func (s *Service) RoomsWithAvailability(checkIn, checkOut time.Time) ([]models.RoomWithAvailability, error) {
	s.Availability.SweepCompleted()

	rooms, err := s.DB.ListRooms()
	if err != nil {
		return nil, err
	}

	annotate := !checkIn.IsZero() && checkIn.Before(checkOut)
	out := make([]models.RoomWithAvailability, 0, len(rooms))
	for _, room := range rooms {
		entry := models.RoomWithAvailability{Room: room, IsBookable: true}
		if annotate {
			overlap, err := s.DB.HasConfirmedOverlap(room.RoomID, checkIn, checkOut)
			if err != nil {
				return nil, err
			}
			entry.IsBookable = !overlap
		}
		out = append(out, entry)
	}
	return out, nil
}

// Confirm moves a PENDING booking to CONFIRMED. Only a successful payment
// reconciliation calls this; the compare-and-set means the second of two
// racing confirmations is a no-op.
func (s *Service) Confirm(id string) (bool, error) {
	transitioned, err := s.DB.UpdateBookingStatus(id, models.BookingConfirmed, models.BookingPending)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	s.logger.LogBooking("CONFIRM", id, "booking confirmed by payment")
	if s.Events != nil {
		if booking, err := s.DB.GetBookingByID(id); err == nil {
			if err := s.Events.PublishBookingConfirmed(*booking); err != nil {
				s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking confirmed event: %v", err))
			}
		}
	}
	return true, nil
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED. COMPLETED and
// CANCELLED are terminal and never leave.
func (s *Service) Cancel(id string) (bool, error) {
	transitioned, err := s.DB.UpdateBookingStatus(id, models.BookingCancelled,
		models.BookingPending, models.BookingConfirmed)
	if err != nil {
		return false, err
	}
	if transitioned {
		s.logger.LogBooking("CANCEL", id, "booking cancelled")
	}
	return transitioned, nil
}

// SendReceipt emails the payment receipt for a booking. Failures are
// logged and swallowed.
func (s *Service) SendReceipt(id string, amount float64) {
	if s.Notifier == nil {
		return
	}
	booking, err := s.DB.GetBookingByID(id)
	if err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Receipt skipped, booking %s not found: %v", id, err))
		return
	}
	var room *models.Room
	if booking.RoomID != "" {
		room, _ = s.DB.GetRoomByID(booking.RoomID)
	}
	if err := s.Notifier.SendReceipt(booking, room, amount); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Receipt email failed for booking %s: %v", id, err))
	}
}

// BookedRooms is the staff report of CONFIRMED stays still occupying
// inventory. The sweep runs first so finished stays drop off the list.
func (s *Service) BookedRooms() ([]models.Booking, error) {
	s.Availability.SweepCompleted()
	return s.DB.ListBookedRooms(s.Availability.Today())
}
