package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationKind labels what happened to the recipient.
type NotificationKind string

const (
	NotifyBidAccepted     NotificationKind = "bid_accepted"
	NotifyOutbid          NotificationKind = "outbid"
	NotifyItemSold        NotificationKind = "item_sold"
	NotifyItemUnsold      NotificationKind = "item_unsold"
	NotifyAuctionCanceled NotificationKind = "auction_canceled"
)

// Notification is a persisted message for a user. Delivery (email/SMS/push)
// is handled by a separate service reading this table; the auction core
// only records the fact.
type Notification struct {
	gorm.Model

	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID        `gorm:"type:uuid;not null;index;<-:create"`
	Kind          NotificationKind `gorm:"type:varchar(30);not null;<-:create"`
	Message       string           `gorm:"type:text;not null;<-:create"`
	AuctionItemID *uuid.UUID       `gorm:"type:uuid;<-:create"`
	IsRead        bool             `gorm:"not null;default:false"`

	User *User        `gorm:"foreignKey:UserID"`
	Item *AuctionItem `gorm:"foreignKey:AuctionItemID"`
}
