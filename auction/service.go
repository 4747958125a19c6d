package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ma2ta/models"
)

// Hooks receive callbacks after a state change has committed. They run
// outside the transaction (commit-then-notify): a client canceling its
// request after commit can no longer undo the bid, and a hook failure
// never rolls back accepted state. Implementations must not block.
type Hooks interface {
	// BidAccepted fires once per accepted bid. outbid is the bid that
	// held the top spot before this one, nil on a first bid.
	BidAccepted(item *models.AuctionItem, bid *models.AuctionBid, outbid *models.AuctionBid)
	// ItemSold fires when closure marks a lot sold.
	ItemSold(item *models.AuctionItem, winning *models.AuctionBid)
	// ItemUnsold fires when closure ends a lot without a sale.
	ItemUnsold(item *models.AuctionItem)
	// EventCanceled fires after a manual cancellation commits.
	EventCanceled(event *models.AuctionEvent)
}

// NopHooks is the default no-op Hooks implementation.
type NopHooks struct{}

func (NopHooks) BidAccepted(*models.AuctionItem, *models.AuctionBid, *models.AuctionBid) {}
func (NopHooks) ItemSold(*models.AuctionItem, *models.AuctionBid)                        {}
func (NopHooks) ItemUnsold(*models.AuctionItem)                                          {}
func (NopHooks) EventCanceled(*models.AuctionEvent)                                      {}

// errStale aborts one attempt when the optimistic guard loses to a
// concurrent writer; the attempt is retried against fresh state.
var errStale = errors.New("stale read of auction item")

const placeBidAttempts = 3

// BidService is the transactional bid placement operation.
//
// Concurrency discipline: each attempt runs in one transaction that
// re-reads the item, validates, inserts the bid row and updates the
// item's aggregates with a compare-and-swap on TotalBids. A racer that
// committed in between makes the CAS affect zero rows; the transaction
// rolls back (taking the bid row with it) and the attempt is retried
// against the new CurrentBid, where validation usually rejects it as too
// low. At most one of any set of concurrent bids can therefore commit
// per TotalBids value — no lost updates, and accepted amounts stay
// strictly increasing.
type BidService struct {
	db        *gorm.DB
	policy    BidPolicy
	validator *Validator
	hooks     Hooks
	logger    *slog.Logger

	now func() time.Time
}

func NewBidService(db *gorm.DB, policy BidPolicy, hooks Hooks, logger *slog.Logger) *BidService {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BidService{
		db:        db,
		policy:    policy,
		validator: NewValidator(policy),
		hooks:     hooks,
		logger:    logger.With(slog.String("caller", "BidService")),
		now:       time.Now,
	}
}

// PlaceBid validates and persists one bid for bidder on itemID.
//
// Returns the accepted bid, or: *RejectError (validation, not retried),
// ErrItemNotFound, or ErrConflict after the bounded retry budget is
// exhausted by concurrent updates.
func (s *BidService) PlaceBid(ctx context.Context, itemID, bidder uuid.UUID, amount int64) (*models.AuctionBid, error) {
	var lastErr error
	for attempt := 1; attempt <= placeBidAttempts; attempt++ {
		bid, outbid, item, err := s.placeBidOnce(ctx, itemID, bidder, amount)
		if errors.Is(err, errStale) {
			s.logger.Debug("lost bid race, retrying",
				slog.String("itemID", itemID.String()),
				slog.Int("attempt", attempt))
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("bid accepted",
			slog.String("itemID", itemID.String()),
			slog.String("bidID", bid.ID.String()),
			slog.String("userID", bidder.String()),
			slog.Int64("amount", amount),
			slog.Int64("totalBids", item.TotalBids))
		s.hooks.BidAccepted(item, bid, outbid)
		return bid, nil
	}

	s.logger.Warn("bid placement exhausted retries",
		slog.String("itemID", itemID.String()),
		slog.String("userID", bidder.String()),
		slog.Any("error", lastErr))
	return nil, ErrConflict
}

// placeBidOnce runs a single validate-and-write attempt in its own
// transaction. On success the returned item reflects the committed
// aggregates.
func (s *BidService) placeBidOnce(ctx context.Context, itemID, bidder uuid.UUID, amount int64) (*models.AuctionBid, *models.AuctionBid, *models.AuctionItem, error) {
	const op = "placeBidOnce"

	var (
		bid    models.AuctionBid
		outbid *models.AuctionBid
		item   models.AuctionItem
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.First(&item, "id = ?", itemID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return fmt.Errorf("[%s] fail to load auction item, err=%w", op, result.Error)
		}

		var event models.AuctionEvent
		if result := tx.First(&event, "id = ?", item.AuctionEventID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("[%s] fail to load auction event, err=%w", op, result.Error)
		}

		// The previous top bid identifies the current bidder for the
		// self-outbid rule and the outbid notification.
		var currentBidder *uuid.UUID
		if item.CurrentBid != nil {
			var top models.AuctionBid
			result := tx.Where("auction_item_id = ?", item.ID).
				Order("amount DESC").
				First(&top)
			if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("[%s] fail to load top bid, err=%w", op, result.Error)
			}
			if result.Error == nil {
				currentBidder = &top.UserID
				outbid = &top
			}
		}

		now := s.now()
		if err := s.validator.Check(&event, &item, currentBidder, bidder, amount, now); err != nil {
			return err
		}

		// Anti-snipe: a bid landing inside the trailing window pushes the
		// end out, in the same transaction that accepts it. The guard on
		// the loaded end time keeps racing extensions from stacking; the
		// status predicate keeps a sweep that closed the event mid-flight
		// from being reopened by a late extension.
		if newEnd, extended := s.policy.ExtendedEnd(event.EndDatetime, now); extended {
			result := tx.Model(&models.AuctionEvent{}).
				Where("id = ? AND end_datetime = ? AND status = ?",
					event.ID, event.EndDatetime, models.EventActive).
				Update("end_datetime", newEnd)
			if result.Error != nil {
				return fmt.Errorf("[%s] fail to extend auction end, err=%w", op, result.Error)
			}
			if result.RowsAffected == 0 {
				return errStale
			}
			s.logger.Info("auction end extended",
				slog.String("eventID", event.ID.String()),
				slog.Time("from", event.EndDatetime),
				slog.Time("to", newEnd))
		}

		bid = models.AuctionBid{
			AuctionItemID: item.ID,
			UserID:        bidder,
			Amount:        amount,
			PlacedAt:      now,
		}
		if result := tx.Create(&bid); result.Error != nil {
			return fmt.Errorf("[%s] fail to save bid, err=%w", op, result.Error)
		}

		// Optimistic guard: TotalBids is the accepted-bid count, so it
		// only matches when no other bid committed since our read. The
		// status predicate closes the other race: a closure that committed
		// after our read leaves TotalBids alone but flips the status, and
		// must not take another bid.
		result := tx.Model(&models.AuctionItem{}).
			Where("id = ? AND total_bids = ? AND status = ?",
				item.ID, item.TotalBids, models.ItemActive).
			Updates(map[string]any{
				"current_bid": amount,
				"total_bids":  item.TotalBids + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("[%s] fail to update auction item aggregates, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return errStale
		}

		item.CurrentBid = &amount
		item.TotalBids++
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return &bid, outbid, &item, nil
}
