package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtProduct is the sellable artwork a lot wraps. The full catalog lives
// outside this service; only the fields the auction surface displays are
// kept here.
type ArtProduct struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title      string    `gorm:"type:varchar(255);not null"`
	Slug       string    `gorm:"type:varchar(255);not null;unique;<-:create"`
	ArtistName string    `gorm:"type:varchar(255);not null"`
	Category   string    `gorm:"type:varchar(100)"`
}
