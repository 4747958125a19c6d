package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ma2ta/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Gallery{},
		&models.ArtProduct{},
		&models.AuctionEvent{},
		&models.AuctionItem{},
		&models.AuctionBid{},
		&models.Notification{},
		&models.Order{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@ma2ta.test"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedEvent(t *testing.T, db *gorm.DB) *models.AuctionEvent {
	t.Helper()
	now := time.Now()
	event := &models.AuctionEvent{
		Title:         "حراج آثار معاصر",
		Slug:          "contemporary-" + uuid.NewString()[:8],
		Description:   "test event",
		StartDatetime: now.Add(-time.Hour),
		EndDatetime:   now.Add(time.Hour),
		Status:        models.EventActive,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func seedItem(t *testing.T, db *gorm.DB, event *models.AuctionEvent, lot int) *models.AuctionItem {
	t.Helper()
	product := &models.ArtProduct{
		Title:      fmt.Sprintf("اثر شماره %d", lot),
		Slug:       "artwork-" + uuid.NewString()[:8],
		ArtistName: "سهراب سپهری",
	}
	require.NoError(t, db.Create(product).Error)
	item := &models.AuctionItem{
		AuctionEventID: event.ID,
		ProductID:      product.ID,
		LotNumber:      lot,
		StartPrice:     500_000,
		Status:         models.ItemActive,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func seedBid(t *testing.T, db *gorm.DB, item *models.AuctionItem, user *models.User, amount int64) *models.AuctionBid {
	t.Helper()
	bid := &models.AuctionBid{
		AuctionItemID: item.ID,
		UserID:        user.ID,
		Amount:        amount,
		PlacedAt:      time.Now(),
	}
	require.NoError(t, db.Create(bid).Error)
	return bid
}

// captureProducer records published feed messages instead of sending
// them to redis.
type captureProducer struct {
	published []BidInfo
	err       error
}

func (p *captureProducer) Start() {}

func (p *captureProducer) Publish(info BidInfo) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, info)
	return nil
}

func (p *captureProducer) Close() {}
