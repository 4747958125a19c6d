package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ma2ta/auction"
	"ma2ta/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	log.SetOutput(io.Discard)
}

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

// newTestServer wires a ServerImpl against sqlite and miniredis, leaving
// the stream machinery out: handler tests drive the HTTP surface only.
func newTestServer(t *testing.T) (*ServerImpl, *gin.Engine, *gorm.DB) {
	t.Helper()

	db := setupDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	config := ServerConfig{
		ID: "test-1",
		Redis: RedisConfig{
			Addr:          mr.Addr(),
			KeyPrefix:     "test:",
			ConsumerGroup: "test-notify",
			StreamKeys:    RedisStreamKeys{BidFeed: "test-bid-feed"},
		},
		Auth: AuthConfig{
			PrivateKey:     privateKey,
			Issuer:         "ma2ta",
			Audience:       "ma2ta-web",
			ExpireDuration: time.Hour,
		},
		Bidding: BiddingConfig{
			IncrementPercent: 5,
			SnipeWindow:      15 * time.Minute,
			SnipeExtension:   15 * time.Minute,
			LockTimeout:      200 * time.Millisecond,
		},
		Sweep: SweepConfig{Interval: time.Minute},
	}

	impl := &ServerImpl{
		db:          db,
		redisClient: client,
		htmlChecker: bluemonday.UGCPolicy(),
		bidService:  auction.NewBidService(db, config.Bidding.Policy(), nil, nil),
		sweeper:     auction.NewSweeper(db, nil, nil),
		closed:      true,
		config:      config,
	}
	router := gin.New()
	impl.RegisterRoutes(router)
	return impl, router, db
}

func seedUser(t *testing.T, db *gorm.DB, username string, staff bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@ma2ta.test", IsStaff: staff}
	require.NoError(t, db.Create(user).Error)
	return user
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

func seedItem(t *testing.T, db *gorm.DB, event *models.AuctionEvent, lot int, startPrice int64) *models.AuctionItem {
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

func bearerFor(t *testing.T, impl *ServerImpl, user *models.User) string {
	t.Helper()
	token, err := SignJWT(user, impl.config.Auth)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path, auth string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}
