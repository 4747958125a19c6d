package auction

import (
	"time"

	"gorm.io/gorm"

	"ma2ta/models"
)

// Scope is one composable filter dimension over auction events. The list
// endpoint builds its query from explicit typed scopes instead of
// reflecting request parameters onto column names.
type Scope func(*gorm.DB) *gorm.DB

// WithStatus filters events by lifecycle status.
func WithStatus(status models.EventStatus) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	}
}

// WithLive filters on the real-time video flag.
func WithLive(live bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_live = ?", live)
	}
}

// WithOnline filters on online-only events.
func WithOnline(online bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_online = ?", online)
	}
}

// WithFeatured filters on curated events.
func WithFeatured(featured bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_featured = ?", featured)
	}
}

// WithGallery restricts to events hosted by the gallery with the slug.
func WithGallery(slug string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Joins("JOIN galleries ON galleries.id = auction_events.gallery_id").
			Where("galleries.slug = ?", slug)
	}
}

// Period names the relative time windows the event list can be sliced by.
type Period string

const (
	PeriodActive   Period = "active"
	PeriodUpcoming Period = "upcoming"
	PeriodPast     Period = "past"
)

// WithPeriod filters events by their schedule relative to now. Unknown
// periods leave the query unchanged.
func WithPeriod(period Period, now time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		switch period {
		case PeriodActive:
			return db.Where("start_datetime <= ? AND end_datetime >= ?", now, now)
		case PeriodUpcoming:
			return db.Where("start_datetime > ?", now)
		case PeriodPast:
			return db.Where("end_datetime < ?", now)
		default:
			return db
		}
	}
}

// VisibleTo hides canceled events from everyone but staff.
func VisibleTo(staff bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if staff {
			return db
		}
		return db.Where("status <> ?", models.EventCanceled)
	}
}

// ListEvents applies the scopes and returns matching events ordered by
// start time, newest first.
func ListEvents(db *gorm.DB, scopes ...Scope) ([]models.AuctionEvent, error) {
	query := db.Model(&models.AuctionEvent{})
	for _, scope := range scopes {
		query = scope(query)
	}
	var events []models.AuctionEvent
	if result := query.Order("start_datetime DESC").Find(&events); result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

// VisibleBids returns the bids of an item the viewer may see: everything
// for staff and the owning gallery's owner (by amount descending), only
// the winning bid plus the viewer's own bids for anyone else.
func VisibleBids(db *gorm.DB, item *models.AuctionItem, viewer *models.User, galleryOwner *models.User) ([]models.AuctionBid, error) {
	privileged := viewer.IsStaff || (galleryOwner != nil && galleryOwner.ID == viewer.ID)
	if privileged {
		var bids []models.AuctionBid
		result := db.Where("auction_item_id = ?", item.ID).
			Order("amount DESC").
			Find(&bids)
		return bids, result.Error
	}

	var bids []models.AuctionBid
	result := db.Where("auction_item_id = ? AND (is_winner OR user_id = ?)", item.ID, viewer.ID).
		Order("is_winner DESC, amount DESC").
		Find(&bids)
	return bids, result.Error
}
