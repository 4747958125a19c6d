package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionBid is an immutable record of one accepted bid. Rows are created
// only by the bid placement service and never updated afterwards, except
// for the single IsWinner flip at closure.
type AuctionBid struct {
	gorm.Model

	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AuctionItemID uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount        int64     `gorm:"not null;<-:create"`
	PlacedAt      time.Time `gorm:"not null;<-:create"`
	IsWinner      bool      `gorm:"not null;default:false"`
	IsAuto        bool      `gorm:"not null;default:false;<-:create"`

	Item *AuctionItem `gorm:"foreignKey:AuctionItemID"`
	User *User        `gorm:"foreignKey:UserID"`
}
