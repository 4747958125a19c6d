package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStatus is the lifecycle state of an auction event. Transitions are
// monotonic (planned -> active -> ended) except for manual cancellation,
// which is reachable from planned or active.
type EventStatus string

const (
	EventPlanned  EventStatus = "planned"
	EventActive   EventStatus = "active"
	EventEnded    EventStatus = "ended"
	EventCanceled EventStatus = "canceled"
)

// AuctionEvent is a scheduled sale session holding a set of lots.
// EndDatetime moves forward when a late bid triggers an anti-snipe
// extension, so it must always be read fresh inside the bid transaction.
type AuctionEvent struct {
	gorm.Model

	ID               uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Title            string      `gorm:"type:varchar(255);not null"`
	Slug             string      `gorm:"type:varchar(255);not null;unique;<-:create"`
	Description      string      `gorm:"type:text;not null"`
	ShortDescription string      `gorm:"type:varchar(500)"`
	GalleryID        *uuid.UUID  `gorm:"type:uuid;<-:create"`
	Organizer        string      `gorm:"type:varchar(255)"`
	StartDatetime    time.Time   `gorm:"not null"`
	EndDatetime      time.Time   `gorm:"not null"`
	IsLive           bool        `gorm:"not null;default:false"`
	IsOnline         bool        `gorm:"not null;default:true"`
	LiveURL          string      `gorm:"type:text"`
	Status           EventStatus `gorm:"type:varchar(20);not null;default:'planned';index"`
	IsFeatured       bool        `gorm:"not null;default:false"`
	CommissionRate   float64     `gorm:"not null;default:0"`
	RegistrationFee  int64       `gorm:"not null;default:0"`
	NeedRegistration bool        `gorm:"not null;default:false"`

	Gallery *Gallery      `gorm:"foreignKey:GalleryID"`
	Items   []AuctionItem `gorm:"foreignKey:AuctionEventID;constraint:OnDelete:CASCADE"`
}
