package notify

import (
	"time"

	"github.com/google/uuid"
)

// BidInfo is the wire shape of one accepted bid on the bid feed stream.
// The SSE broadcast and the notification worker both decode it, so it
// carries everything either side needs without a database read.
type BidInfo struct {
	BidID        uuid.UUID  `json:"bid_id"`
	ItemID       uuid.UUID  `json:"item_id"`
	EventID      uuid.UUID  `json:"event_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Username     string     `json:"username"`
	Amount       int64      `json:"amount"`
	TotalBids    int64      `json:"total_bids"`
	PlacedAt     time.Time  `json:"placed_at"`
	OutbidUserID *uuid.UUID `json:"outbid_user_id,omitempty"`
}

// ItemChannel names the SSE channel carrying one lot's live bid feed.
func ItemChannel(itemID uuid.UUID) string {
	return "auction-item:" + itemID.String()
}
