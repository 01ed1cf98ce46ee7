package db

import (
	"context"
	"log"

	"hotel-booking/internal/models"

	"github.com/uptrace/bun"
)

// Migrate creates the rooms and bookings tables if they do not exist.
// The payments table belongs to the lib/pq store and is created there.
func Migrate(db *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{(*models.Room)(nil), (*models.Booking)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed for %T: %v", m, err)
		}
	}

	log.Println("rooms and bookings tables ready")
}
