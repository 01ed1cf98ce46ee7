package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hotel-booking/internal/models"

	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("record not found")

type DB struct {
	Bun *bun.DB
}

// ---------------- ROOMS ----------------

func (d *DB) CreateRoom(room models.Room) error {
	_, err := d.Bun.NewInsert().Model(&room).Exec(context.Background())
	return err
}

func (d *DB) GetRoomByID(id string) (*models.Room, error) {
	var room models.Room
	err := d.Bun.NewSelect().
		Model(&room).
		Where("room_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns rooms flagged available by catalog management, in
// title order.
func (d *DB) ListRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := d.Bun.NewSelect().
		Model(&rooms).
		Where("available = ?", true).
		Order("title ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// ---------------- BOOKINGS ----------------

func (d *DB) CreateBooking(booking models.Booking) error {
	_, err := d.Bun.NewInsert().Model(&booking).Exec(context.Background())
	return err
}

func (d *DB) GetBookingByID(id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) ListBookingsByUser(userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// UpdateBookingStatus is a compare-and-set: the row moves to the new
// status only if its current status is one of from. Returns whether a
// transition happened, which is how callers keep confirmation and
// receipt sending exactly-once.
func (d *DB) UpdateBookingStatus(id string, to models.BookingStatus, from ...models.BookingStatus) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN (?)", bun.In(from))
	}

	res, err := q.Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasConfirmedOverlap reports whether a CONFIRMED booking on the room
// overlaps the half-open range [checkIn, checkOut).
func (d *DB) HasConfirmedOverlap(roomID string, checkIn, checkOut time.Time) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("room_id = ?", roomID).
		Where("status = ?", models.BookingConfirmed).
		Where("check_in < ?", checkOut).
		Where("check_out > ?", checkIn).
		Exists(context.Background())
}

// CompleteElapsed transitions CONFIRMED bookings with check_out <= today
// to COMPLETED and returns how many rows moved.
func (d *DB) CompleteElapsed(today time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCompleted).
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.BookingConfirmed).
		Where("check_out <= ?", today).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBookedRooms returns CONFIRMED bookings that are still occupying
// inventory, ordered for the staff report.
func (d *DB) ListBookedRooms(today time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingConfirmed).
		Where("check_out > ?", today).
		Order("check_in ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
