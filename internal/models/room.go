package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RoomCategory string

const (
	CategoryStandard  RoomCategory = "STD"
	CategoryPremium   RoomCategory = "PRE"
	CategorySilver    RoomCategory = "SLV"
	CategoryDeluxe    RoomCategory = "DLX"
	CategoryExecutive RoomCategory = "EXE"
)

type Room struct {
	bun.BaseModel `bun:"table:rooms"`

	RoomID      string       `bun:"room_id,pk" json:"room_id"`
	Title       string       `bun:"title,notnull" json:"title"`
	Category    RoomCategory `bun:"category,notnull" json:"category"`
	Description string       `bun:"description,nullzero" json:"description,omitempty"`
	Price       float64      `bun:"price,notnull" json:"price"`
	Size        int          `bun:"size" json:"size"`
	Beds        string       `bun:"beds" json:"beds"`
	Capacity    int          `bun:"capacity,notnull" json:"capacity"`
	Available   bool         `bun:"available" json:"available"`
	CreatedAt   time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// RoomWithAvailability is the listing view: the room plus whether it can be
// booked for the dates the guest asked about.
type RoomWithAvailability struct {
	Room
	IsBookable bool `json:"is_bookable"`
}
