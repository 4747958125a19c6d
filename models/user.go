package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a marketplace account that can place bids. Staff accounts see
// full bid histories and manage auctions.
type User struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username string    `gorm:"type:varchar(255);not null;<-:create"`
	Email    string    `gorm:"type:varchar(255);not null;unique;<-:create"`
	IsStaff  bool      `gorm:"not null;default:false"`
}
