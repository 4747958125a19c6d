package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus tracks a purchase order through the payment flow.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderCanceled       OrderStatus = "canceled"
)

// Order is the purchase order created for the winning bidder when a lot
// closes sold. Payment capture through the gateway is outside this
// service; it picks orders up from this table.
type Order struct {
	gorm.Model

	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index;<-:create"`
	AuctionItemID uuid.UUID   `gorm:"type:uuid;not null;unique;<-:create"`
	Amount        int64       `gorm:"not null;<-:create"`
	Status        OrderStatus `gorm:"type:varchar(20);not null;default:'pending_payment'"`

	User *User        `gorm:"foreignKey:UserID"`
	Item *AuctionItem `gorm:"foreignKey:AuctionItemID"`
}
