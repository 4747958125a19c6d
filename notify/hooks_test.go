package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma2ta/models"
)

func TestStreamHooks_BidAccepted(t *testing.T) {
	t.Run("publishes the bid with the bidder name", func(t *testing.T) {
		db := setupDB(t)
		producer := &captureProducer{}
		hooks := NewStreamHooks(db, producer, nil)

		event := seedEvent(t, db)
		item := seedItem(t, db, event, 1)
		bidder := seedUser(t, db, "sohrab")
		bid := seedBid(t, db, item, bidder, 750_000)
		item.TotalBids = 1

		hooks.BidAccepted(item, bid, nil)

		require.Len(t, producer.published, 1)
		info := producer.published[0]
		assert.Equal(t, bid.ID, info.BidID)
		assert.Equal(t, item.ID, info.ItemID)
		assert.Equal(t, event.ID, info.EventID)
		assert.Equal(t, "sohrab", info.Username)
		assert.Equal(t, int64(750_000), info.Amount)
		assert.Equal(t, int64(1), info.TotalBids)
		assert.Nil(t, info.OutbidUserID)
	})

	t.Run("carries the outbid user", func(t *testing.T) {
		db := setupDB(t)
		producer := &captureProducer{}
		hooks := NewStreamHooks(db, producer, nil)

		event := seedEvent(t, db)
		item := seedItem(t, db, event, 1)
		loser := seedUser(t, db, "golnar")
		winner := seedUser(t, db, "sohrab")
		outbid := seedBid(t, db, item, loser, 750_000)
		bid := seedBid(t, db, item, winner, 800_000)

		hooks.BidAccepted(item, bid, outbid)

		require.Len(t, producer.published, 1)
		require.NotNil(t, producer.published[0].OutbidUserID)
		assert.Equal(t, loser.ID, *producer.published[0].OutbidUserID)
	})

	t.Run("self outbid is not reported", func(t *testing.T) {
		db := setupDB(t)
		producer := &captureProducer{}
		hooks := NewStreamHooks(db, producer, nil)

		event := seedEvent(t, db)
		item := seedItem(t, db, event, 1)
		bidder := seedUser(t, db, "sohrab")
		outbid := seedBid(t, db, item, bidder, 750_000)
		bid := seedBid(t, db, item, bidder, 800_000)

		hooks.BidAccepted(item, bid, outbid)

		require.Len(t, producer.published, 1)
		assert.Nil(t, producer.published[0].OutbidUserID)
	})
}

func TestStreamHooks_ItemSold(t *testing.T) {
	db := setupDB(t)
	hooks := NewStreamHooks(db, &captureProducer{}, nil)

	event := seedEvent(t, db)
	item := seedItem(t, db, event, 1)
	winner := seedUser(t, db, "sohrab")
	winning := seedBid(t, db, item, winner, 2_100_000)

	hooks.ItemSold(item, winning)

	var order models.Order
	require.NoError(t, db.First(&order, "auction_item_id = ?", item.ID).Error)
	assert.Equal(t, winner.ID, order.UserID)
	assert.Equal(t, int64(2_100_000), order.Amount)
	assert.Equal(t, models.OrderPendingPayment, order.Status)

	var notes []models.Notification
	require.NoError(t, db.Find(&notes, "user_id = ?", winner.ID).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyItemSold, notes[0].Kind)

	// A replayed callback must not open a second order.
	hooks.ItemSold(item, winning)
	var count int64
	require.NoError(t, db.Model(&models.Order{}).Where("auction_item_id = ?", item.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStreamHooks_ItemUnsold(t *testing.T) {
	t.Run("notifies the highest bidder", func(t *testing.T) {
		db := setupDB(t)
		hooks := NewStreamHooks(db, &captureProducer{}, nil)

		event := seedEvent(t, db)
		item := seedItem(t, db, event, 1)
		low := seedUser(t, db, "golnar")
		high := seedUser(t, db, "sohrab")
		seedBid(t, db, item, low, 750_000)
		seedBid(t, db, item, high, 900_000)

		hooks.ItemUnsold(item)

		var notes []models.Notification
		require.NoError(t, db.Find(&notes).Error)
		require.Len(t, notes, 1)
		assert.Equal(t, high.ID, notes[0].UserID)
		assert.Equal(t, models.NotifyItemUnsold, notes[0].Kind)
	})

	t.Run("no bids means no notification", func(t *testing.T) {
		db := setupDB(t)
		hooks := NewStreamHooks(db, &captureProducer{}, nil)

		event := seedEvent(t, db)
		item := seedItem(t, db, event, 1)

		hooks.ItemUnsold(item)

		var count int64
		require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestStreamHooks_EventCanceled(t *testing.T) {
	db := setupDB(t)
	hooks := NewStreamHooks(db, &captureProducer{}, nil)

	event := seedEvent(t, db)
	first := seedItem(t, db, event, 1)
	second := seedItem(t, db, event, 2)
	sohrab := seedUser(t, db, "sohrab")
	golnar := seedUser(t, db, "golnar")
	seedBid(t, db, first, sohrab, 750_000)
	seedBid(t, db, first, golnar, 800_000)
	seedBid(t, db, second, sohrab, 1_000_000)

	// Bidder on another event must not be notified.
	other := seedEvent(t, db)
	otherItem := seedItem(t, db, other, 1)
	outsider := seedUser(t, db, "dariush")
	seedBid(t, db, otherItem, outsider, 600_000)

	hooks.EventCanceled(event)

	var notes []models.Notification
	require.NoError(t, db.Find(&notes, "kind = ?", models.NotifyAuctionCanceled).Error)
	require.Len(t, notes, 2)
	notified := map[string]bool{}
	for _, note := range notes {
		notified[note.UserID.String()] = true
	}
	assert.True(t, notified[sohrab.ID.String()])
	assert.True(t, notified[golnar.ID.String()])
	assert.False(t, notified[outsider.ID.String()])
}
