package models

import (
	"time"

	"github.com/google/uuid"
)

// WatchlistItem is an auction notice the user chose to keep track of.
type WatchlistItem struct {
	ID        uuid.UUID    `json:"id"`
	Event     AuctionEvent `json:"event"`
	Note      *string      `json:"note,omitempty"`
	Summary   *string      `json:"summary,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
