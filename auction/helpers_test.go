package auction

import (
	"context"
	"fmt"
	"sync"
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

func seedUser(t *testing.T, db *gorm.DB, username string, staff bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@ma2ta.test", IsStaff: staff}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedGallery(t *testing.T, db *gorm.DB, owner *models.User) *models.Gallery {
	t.Helper()
	gallery := &models.Gallery{
		Name:    "گالری آبان",
		Slug:    "aban-" + uuid.NewString()[:8],
		OwnerID: owner.ID,
	}
	require.NoError(t, db.Create(gallery).Error)
	return gallery
}

func seedEvent(t *testing.T, db *gorm.DB, status models.EventStatus, start, end time.Time) *models.AuctionEvent {
	t.Helper()
	event := &models.AuctionEvent{
		Title:         "حراج آثار معاصر",
		Slug:          "contemporary-" + uuid.NewString()[:8],
		Description:   "test event",
		StartDatetime: start,
		EndDatetime:   end,
		Status:        status,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func seedItem(t *testing.T, db *gorm.DB, event *models.AuctionEvent, lot int, startPrice int64, reserve *int64) *models.AuctionItem {
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
		StartPrice:     startPrice,
		ReservePrice:   reserve,
		Status:         models.ItemActive,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

// seedTestBid writes a bid row directly, bypassing placement. Callers
// that need consistent aggregates update the item themselves.
func seedTestBid(t *testing.T, db *gorm.DB, item *models.AuctionItem, user *models.User, amount int64) *models.AuctionBid {
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

func i64(v int64) *int64 { return &v }

// rewriteReads installs a query hook that hands fn every loaded record,
// letting a test serve a read from state a concurrent transaction has
// since replaced. Returns a counter of rewrites performed.
func rewriteReads(t *testing.T, db *gorm.DB, fn func(dest any) bool) *int {
	t.Helper()
	hits := new(int)
	name := "test:rewrite-reads:" + uuid.NewString()[:8]
	require.NoError(t, db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Error != nil {
			return
		}
		if fn(tx.Statement.Dest) {
			*hits++
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
	return hits
}

// deniedLock is a SweepLock that never grants the lock.
type deniedLock struct {
	mu       sync.Mutex
	attempts int
}

func (l *deniedLock) TryLock(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	return false, nil
}

func (l *deniedLock) Unlock(context.Context) (bool, error) { return true, nil }

// recordingHooks captures hook invocations for assertions.
type recordingHooks struct {
	mu       sync.Mutex
	accepted []acceptedCall
	sold     []soldCall
	unsold   []uuid.UUID
	canceled []uuid.UUID
}

type acceptedCall struct {
	bid    models.AuctionBid
	outbid *models.AuctionBid
}

type soldCall struct {
	itemID  uuid.UUID
	winning models.AuctionBid
}

func (h *recordingHooks) BidAccepted(item *models.AuctionItem, bid *models.AuctionBid, outbid *models.AuctionBid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := acceptedCall{bid: *bid}
	if outbid != nil {
		prev := *outbid
		call.outbid = &prev
	}
	h.accepted = append(h.accepted, call)
}

func (h *recordingHooks) ItemSold(item *models.AuctionItem, winning *models.AuctionBid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sold = append(h.sold, soldCall{itemID: item.ID, winning: *winning})
}

func (h *recordingHooks) ItemUnsold(item *models.AuctionItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsold = append(h.unsold, item.ID)
}

func (h *recordingHooks) EventCanceled(event *models.AuctionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = append(h.canceled, event.ID)
}
