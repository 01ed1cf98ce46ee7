package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Terminal reports whether no further transition is permitted out of s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// Booking is a reservation for a room over the half-open date range
// [CheckIn, CheckOut). TotalPrice is snapshotted at creation and stays
// authoritative even if the room's nightly price changes afterwards.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID      string        `bun:"booking_id,pk" json:"booking_id"`
	UserID         string        `bun:"user_id,nullzero" json:"user_id,omitempty"`
	RoomID         string        `bun:"room_id,nullzero" json:"room_id,omitempty"`
	FirstName      string        `bun:"first_name,notnull" json:"first_name"`
	LastName       string        `bun:"last_name,notnull" json:"last_name"`
	Mobile         string        `bun:"mobile,notnull" json:"mobile"`
	Email          string        `bun:"email,notnull" json:"email"`
	CheckIn        time.Time     `bun:"check_in,notnull" json:"check_in"`
	CheckOut       time.Time     `bun:"check_out,notnull" json:"check_out"`
	Guests         int           `bun:"guests,notnull" json:"guests"`
	SpecialRequest string        `bun:"special_request,nullzero" json:"special_request,omitempty"`
	Status         BookingStatus `bun:"status,notnull" json:"status"`
	TotalPrice     float64       `bun:"total_price" json:"total_price"`
	CreatedAt      time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Nights returns the number of nights covered by the booking.
func (b *Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

type BookingRequest struct {
	RoomID         string `json:"room_id"`
	UserID         string `json:"user_id,omitempty"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Mobile         string `json:"mobile"`
	Email          string `json:"email"`
	CheckIn        string `json:"check_in"`
	CheckOut       string `json:"check_out"`
	Guests         int    `json:"guests"`
	SpecialRequest string `json:"special_request,omitempty"`
}

type BookingResponse struct {
	BookingID  string        `json:"booking_id"`
	RoomID     string        `json:"room_id,omitempty"`
	Status     BookingStatus `json:"status"`
	CheckIn    string        `json:"check_in"`
	CheckOut   string        `json:"check_out"`
	Guests     int           `json:"guests"`
	TotalPrice float64       `json:"total_price"`
}

type BookingEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	RoomID    string    `json:"room_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
