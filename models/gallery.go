package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gallery hosts exhibitions and auction events. The owner sees the full
// bid history of every lot in the gallery's auctions.
type Gallery struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Slug       string    `gorm:"type:varchar(255);not null;unique;<-:create"`
	City       string    `gorm:"type:varchar(100)"`
	OwnerID    uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	IsActive   bool      `gorm:"not null;default:true"`
	IsVerified bool      `gorm:"not null;default:false"`

	Owner *User `gorm:"foreignKey:OwnerID"`
}
