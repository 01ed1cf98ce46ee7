package availability

import (
	"errors"
	"fmt"
	"time"

	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
)

// ErrCheckOutNotAfterCheckIn is the validation failure for inverted or
// zero-night date ranges.
var ErrCheckOutNotAfterCheckIn = errors.New("checkout must be after checkin")

// BookingStore is the slice of the bookings DB layer the engine needs.
type BookingStore interface {
	HasConfirmedOverlap(roomID string, checkIn, checkOut time.Time) (bool, error)
	CompleteElapsed(today time.Time) (int64, error)
}

// Clock supplies "today" so the completion sweep and tests stay off the
// wall clock.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Engine decides whether a room can be booked for a date range and what
// it costs. Only CONFIRMED bookings block availability: unpaid holds do
// not reserve inventory.
type Engine struct {
	store  BookingStore
	clock  Clock
	logger *logger.Logger
}

func NewEngine(store BookingStore, clock Clock, log *logger.Logger) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{store: store, clock: clock, logger: log}
}

// Today returns the current date truncated to midnight UTC.
func (e *Engine) Today() time.Time {
	now := e.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// SweepCompleted moves every CONFIRMED booking whose checkout has passed
// to COMPLETED. It runs at the top of every availability-related read so
// stale bookings never block new reservations; there is no scheduled job.
func (e *Engine) SweepCompleted() {
	n, err := e.store.CompleteElapsed(e.Today())
	if err != nil {
		e.logger.Error("SWEEP", fmt.Sprintf("Failed to complete elapsed bookings: %v", err))
		return
	}
	if n > 0 {
		e.logger.Info("SWEEP", fmt.Sprintf("Marked %d booking(s) COMPLETED", n))
	}
}

// IsAvailable reports whether the room is free for [checkIn, checkOut).
// The overlap test is half-open: a booking ending on checkIn day does not
// collide with one starting the same day.
func (e *Engine) IsAvailable(roomID string, checkIn, checkOut time.Time) (bool, error) {
	if !checkIn.Before(checkOut) {
		return false, ErrCheckOutNotAfterCheckIn
	}

	e.SweepCompleted()

	overlap, err := e.store.HasConfirmedOverlap(roomID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

// Quote prices a stay: nightly price times whole nights.
func (e *Engine) Quote(room *models.Room, checkIn, checkOut time.Time) (float64, error) {
	if !checkIn.Before(checkOut) {
		return 0, ErrCheckOutNotAfterCheckIn
	}
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	return room.Price * float64(nights), nil
}

// BookingAmount returns the amount a payment for the booking must charge.
// The snapshot taken at creation wins over a re-derived quote, so room
// price changes never reprice an existing booking.
func (e *Engine) BookingAmount(booking *models.Booking, room *models.Room) float64 {
	if booking.TotalPrice > 0 {
		return booking.TotalPrice
	}
	if room == nil {
		return 0
	}
	return room.Price * float64(booking.Nights())
}
