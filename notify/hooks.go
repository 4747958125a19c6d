package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ma2ta/adapters/redis"
	"ma2ta/models"
)

// StreamHooks is the production wiring of the auction callbacks. An
// accepted bid goes onto the feed stream without touching the database
// again; closure and cancellation outcomes are written straight to the
// orders and notifications tables.
type StreamHooks struct {
	db       *gorm.DB
	producer redis.IProducer[BidInfo]
	logger   *slog.Logger
}

func NewStreamHooks(db *gorm.DB, producer redis.IProducer[BidInfo], logger *slog.Logger) *StreamHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHooks{
		db:       db,
		producer: producer,
		logger:   logger.With(slog.String("caller", "StreamHooks")),
	}
}

// BidAccepted publishes the bid to the feed stream. Publish only hands
// the message to the producer's buffer, so the bid path never waits on
// redis.
func (h *StreamHooks) BidAccepted(item *models.AuctionItem, bid *models.AuctionBid, outbid *models.AuctionBid) {
	const op = "BidAccepted"

	info := BidInfo{
		BidID:     bid.ID,
		ItemID:    item.ID,
		EventID:   item.AuctionEventID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		TotalBids: item.TotalBids,
		PlacedAt:  bid.PlacedAt,
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", bid.UserID).Error; err != nil {
		h.logger.Warn("fail to resolve bidder name",
			slog.String("userID", bid.UserID.String()),
			slog.Any("error", err))
	} else {
		info.Username = user.Username
	}

	if outbid != nil && outbid.UserID != bid.UserID {
		outbidUser := outbid.UserID
		info.OutbidUserID = &outbidUser
	}

	if err := h.producer.Publish(info); err != nil {
		h.logger.Error(fmt.Sprintf("[%s] fail to publish bid to feed", op),
			slog.String("bidID", bid.ID.String()),
			slog.Any("error", err))
	}
}

// ItemSold opens the purchase order for the winning bidder and records
// the win notification. The unique constraint on the order's item column
// keeps a replayed callback from producing a second order.
func (h *StreamHooks) ItemSold(item *models.AuctionItem, winning *models.AuctionBid) {
	const op = "ItemSold"

	err := h.db.Transaction(func(tx *gorm.DB) error {
		order := models.Order{
			UserID:        winning.UserID,
			AuctionItemID: item.ID,
			Amount:        winning.Amount,
			Status:        models.OrderPendingPayment,
		}
		if result := tx.Create(&order); result.Error != nil {
			return fmt.Errorf("[%s] fail to create order, err=%w", op, result.Error)
		}
		note := models.Notification{
			UserID:        winning.UserID,
			Kind:          models.NotifyItemSold,
			Message:       fmt.Sprintf("تبریک! پیشنهاد %d تومانی شما برنده این اثر شد.", winning.Amount),
			AuctionItemID: &item.ID,
		}
		if result := tx.Create(&note); result.Error != nil {
			return fmt.Errorf("[%s] fail to create notification, err=%w", op, result.Error)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("fail to record sale",
			slog.String("itemID", item.ID.String()),
			slog.Any("error", err))
	}
}

// ItemUnsold tells the highest bidder, if there is one, that the lot
// closed below its reserve.
func (h *StreamHooks) ItemUnsold(item *models.AuctionItem) {
	const op = "ItemUnsold"

	var top models.AuctionBid
	err := h.db.Where("auction_item_id = ?", item.ID).
		Order("amount DESC").
		First(&top).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		h.logger.Error(fmt.Sprintf("[%s] fail to load top bid", op),
			slog.String("itemID", item.ID.String()),
			slog.Any("error", err))
		return
	}

	note := models.Notification{
		UserID:        top.UserID,
		Kind:          models.NotifyItemUnsold,
		Message:       "این اثر به قیمت ذخیره نرسید و فروخته نشد.",
		AuctionItemID: &item.ID,
	}
	if result := h.db.Create(&note); result.Error != nil {
		h.logger.Error(fmt.Sprintf("[%s] fail to create notification", op),
			slog.String("itemID", item.ID.String()),
			slog.Any("error", result.Error))
	}
}

// EventCanceled notifies every user who bid on any lot of the event.
func (h *StreamHooks) EventCanceled(event *models.AuctionEvent) {
	const op = "EventCanceled"

	var userIDs []uuid.UUID
	err := h.db.Model(&models.AuctionBid{}).
		Distinct("auction_bids.user_id").
		Joins("JOIN auction_items ON auction_items.id = auction_bids.auction_item_id").
		Where("auction_items.auction_event_id = ?", event.ID).
		Pluck("auction_bids.user_id", &userIDs).Error
	if err != nil {
		h.logger.Error(fmt.Sprintf("[%s] fail to collect bidders", op),
			slog.String("eventID", event.ID.String()),
			slog.Any("error", err))
		return
	}
	if len(userIDs) == 0 {
		return
	}

	notes := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		notes = append(notes, models.Notification{
			UserID:  userID,
			Kind:    models.NotifyAuctionCanceled,
			Message: fmt.Sprintf("حراج «%s» لغو شد و پیشنهادهای شما دیگر معتبر نیستند.", event.Title),
		})
	}
	if result := h.db.Create(&notes); result.Error != nil {
		h.logger.Error(fmt.Sprintf("[%s] fail to create notifications", op),
			slog.String("eventID", event.ID.String()),
			slog.Any("error", result.Error))
	}
}
