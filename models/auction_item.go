package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemStatus is the lifecycle state of a single lot.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemActive    ItemStatus = "active"
	ItemSold      ItemStatus = "sold"
	ItemUnsold    ItemStatus = "unsold"
	ItemWithdrawn ItemStatus = "withdrawn"
)

// AuctionItem is one lot offered within an event.
//
// CurrentBid, when non-nil, equals the amount of the most recently
// accepted bid; TotalBids equals the count of accepted bids. TotalBids
// doubles as the optimistic version counter for bid placement: the
// aggregate update is guarded by the TotalBids value the transaction
// loaded, so two racing bids can never both commit against the same
// stale CurrentBid.
type AuctionItem struct {
	gorm.Model

	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AuctionEventID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_auction_item_event_lot,where:deleted_at IS NULL;<-:create"`
	ProductID         uuid.UUID  `gorm:"type:uuid;not null;<-:create"`
	LotNumber         int        `gorm:"not null;uniqueIndex:idx_auction_item_event_lot,where:deleted_at IS NULL;<-:create"`
	StartPrice        int64      `gorm:"not null"`
	ReservePrice      *int64     `gorm:""`
	EstimatedPriceMin *int64     `gorm:""`
	EstimatedPriceMax *int64     `gorm:""`
	CurrentBid        *int64     `gorm:""`
	WinningBid        *int64     `gorm:""`
	TotalBids         int64      `gorm:"not null;default:0"`
	Status            ItemStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	HammerTime        *time.Time `gorm:""`

	Event   *AuctionEvent `gorm:"foreignKey:AuctionEventID"`
	Product *ArtProduct   `gorm:"foreignKey:ProductID"`
	Bids    []AuctionBid  `gorm:"foreignKey:AuctionItemID;constraint:OnDelete:CASCADE"`
}
