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

// SweepLock serializes the periodic sweep across instances. TryLock must
// not block: a sweep that cannot get the lock skips the cycle instead of
// queueing behind in-flight bids.
type SweepLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) (bool, error)
}

// Sweeper advances the auction lifecycle over time: due planned events
// become active (with their pending lots), expired active events close
// with winner assignment. It is invoked on a fixed interval by Run and
// can also be driven directly through Sweep.
type Sweeper struct {
	db     *gorm.DB
	hooks  Hooks
	logger *slog.Logger

	now func() time.Time
}

func NewSweeper(db *gorm.DB, hooks Hooks, logger *slog.Logger) *Sweeper {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		db:     db,
		hooks:  hooks,
		logger: logger.With(slog.String("caller", "Sweeper")),
		now:    time.Now,
	}
}

// Run sweeps on every tick until ctx is canceled. lock may be nil when a
// single instance is known to run.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, lock SweepLock) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lock != nil {
				ok, err := lock.TryLock(ctx)
				if err != nil {
					s.logger.Error("sweep lock error", slog.Any("error", err))
					continue
				}
				if !ok {
					s.logger.Debug("sweep lock held elsewhere, skipping cycle")
					continue
				}
			}
			s.Sweep(ctx)
			if lock != nil {
				if _, err := lock.Unlock(ctx); err != nil {
					s.logger.Warn("fail to release sweep lock", slog.Any("error", err))
				}
			}
		}
	}
}

// Sweep runs one activation and closure pass. A failure on one event is
// logged and isolated; the remaining events are still processed.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	var due []models.AuctionEvent
	if result := s.db.WithContext(ctx).
		Where("status = ? AND start_datetime <= ?", models.EventPlanned, now).
		Find(&due); result.Error != nil {
		s.logger.Error("fail to list due planned events", slog.Any("error", result.Error))
	} else {
		for i := range due {
			if err := s.activate(ctx, &due[i]); err != nil {
				s.logger.Error("fail to activate event",
					slog.String("eventID", due[i].ID.String()),
					slog.Any("error", err))
			}
		}
	}

	var expired []models.AuctionEvent
	if result := s.db.WithContext(ctx).
		Where("status = ? AND end_datetime <= ?", models.EventActive, now).
		Find(&expired); result.Error != nil {
		s.logger.Error("fail to list expired events", slog.Any("error", result.Error))
		return
	}
	for i := range expired {
		if err := s.close(ctx, expired[i].ID); err != nil {
			s.logger.Error("fail to close event",
				slog.String("eventID", expired[i].ID.String()),
				slog.Any("error", err))
		}
	}
}

// activate flips a due planned event to active along with its pending
// lots. The guarded update makes concurrent sweeps idempotent.
func (s *Sweeper) activate(ctx context.Context, event *models.AuctionEvent) error {
	const op = "activate"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.AuctionEvent{}).
			Where("id = ? AND status = ?", event.ID, models.EventPlanned).
			Update("status", models.EventActive)
		if result.Error != nil {
			return fmt.Errorf("[%s] fail to update event status, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if result := tx.Model(&models.AuctionItem{}).
			Where("auction_event_id = ? AND status = ?", event.ID, models.ItemPending).
			Update("status", models.ItemActive); result.Error != nil {
			return fmt.Errorf("[%s] fail to activate items, err=%w", op, result.Error)
		}
		s.logger.Info("auction event activated", slog.String("eventID", event.ID.String()))
		return nil
	})
}

// closedItem carries a post-commit hook call out of the closure
// transaction.
type closedItem struct {
	item    models.AuctionItem
	winning *models.AuctionBid
}

// close finalizes one expired event: the event row is flipped to ended
// with a guard on its current status AND its end time, so an event whose
// end moved out mid-sweep (anti-snipe) and one already closed by another
// sweep are both left alone. Winner assignment therefore runs at most
// once per event.
func (s *Sweeper) close(ctx context.Context, eventID uuid.UUID) error {
	const op = "close"

	var closed []closedItem
	var ended bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.AuctionEvent
		if result := tx.First(&event, "id = ?", eventID); result.Error != nil {
			return fmt.Errorf("[%s] fail to load event, err=%w", op, result.Error)
		}

		now := s.now()
		result := tx.Model(&models.AuctionEvent{}).
			Where("id = ? AND status = ? AND end_datetime <= ?", event.ID, models.EventActive, now).
			Update("status", models.EventEnded)
		if result.Error != nil {
			return fmt.Errorf("[%s] fail to end event, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			// Already ended, canceled, or extended past now.
			return nil
		}
		ended = true

		var items []models.AuctionItem
		if result := tx.Where("auction_event_id = ? AND status IN ?", event.ID,
			[]models.ItemStatus{models.ItemActive, models.ItemPending}).
			Find(&items); result.Error != nil {
			return fmt.Errorf("[%s] fail to load open items, err=%w", op, result.Error)
		}

		for i := range items {
			ci, err := s.closeItem(tx, &items[i], now)
			if err != nil {
				return err
			}
			closed = append(closed, *ci)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ended {
		return nil
	}

	s.logger.Info("auction event ended",
		slog.String("eventID", eventID.String()),
		slog.Int("closedItems", len(closed)))
	for i := range closed {
		if closed[i].winning != nil {
			s.hooks.ItemSold(&closed[i].item, closed[i].winning)
		} else {
			s.hooks.ItemUnsold(&closed[i].item)
		}
	}
	return nil
}

// closeItem settles one lot inside the closure transaction: sold with the
// top bid marked winner when the reserve is met, unsold otherwise.
func (s *Sweeper) closeItem(tx *gorm.DB, item *models.AuctionItem, now time.Time) (*closedItem, error) {
	const op = "closeItem"

	// Closure is gated on the event's single active->ended flip, so a
	// winner mark found here means aggregates and bids disagree. Refuse
	// to guess.
	var winners int64
	if result := tx.Model(&models.AuctionBid{}).
		Where("auction_item_id = ? AND is_winner", item.ID).
		Count(&winners); result.Error != nil {
		return nil, fmt.Errorf("[%s] fail to count winner marks, err=%w", op, result.Error)
	}
	if winners > 0 {
		return nil, fmt.Errorf("[%s] internal consistency error: item %s already has %d winner-marked bids",
			op, item.ID, winners)
	}

	sold := item.CurrentBid != nil &&
		(item.ReservePrice == nil || *item.CurrentBid >= *item.ReservePrice)

	if !sold {
		if result := tx.Model(item).Updates(map[string]any{
			"status":      models.ItemUnsold,
			"hammer_time": now,
		}); result.Error != nil {
			return nil, fmt.Errorf("[%s] fail to mark item unsold, err=%w", op, result.Error)
		}
		return &closedItem{item: *item}, nil
	}

	var top models.AuctionBid
	if result := tx.Where("auction_item_id = ?", item.ID).
		Order("amount DESC").
		First(&top); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("[%s] internal consistency error: item %s has current_bid but no bids", op, item.ID)
		}
		return nil, fmt.Errorf("[%s] fail to load top bid, err=%w", op, result.Error)
	}
	if result := tx.Model(&top).Update("is_winner", true); result.Error != nil {
		return nil, fmt.Errorf("[%s] fail to mark winning bid, err=%w", op, result.Error)
	}
	if result := tx.Model(item).Updates(map[string]any{
		"status":      models.ItemSold,
		"winning_bid": *item.CurrentBid,
		"hammer_time": now,
	}); result.Error != nil {
		return nil, fmt.Errorf("[%s] fail to mark item sold, err=%w", op, result.Error)
	}
	top.IsWinner = true
	return &closedItem{item: *item, winning: &top}, nil
}

// Cancel is the manual, staff-triggered terminal transition. It is valid
// from planned or active only; open lots are withdrawn and no winners are
// assigned. The EventCanceled hook fires after commit so bidders get an
// explicit no-sale notification.
func (s *Sweeper) Cancel(ctx context.Context, eventID uuid.UUID) error {
	const op = "Cancel"

	var event models.AuctionEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.First(&event, "id = ?", eventID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("[%s] fail to load event, err=%w", op, result.Error)
		}
		result := tx.Model(&models.AuctionEvent{}).
			Where("id = ? AND status IN ?", eventID,
				[]models.EventStatus{models.EventPlanned, models.EventActive}).
			Update("status", models.EventCanceled)
		if result.Error != nil {
			return fmt.Errorf("[%s] fail to cancel event, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		if result := tx.Model(&models.AuctionItem{}).
			Where("auction_event_id = ? AND status IN ?", eventID,
				[]models.ItemStatus{models.ItemPending, models.ItemActive}).
			Update("status", models.ItemWithdrawn); result.Error != nil {
			return fmt.Errorf("[%s] fail to withdraw items, err=%w", op, result.Error)
		}
		event.Status = models.EventCanceled
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("auction event canceled", slog.String("eventID", eventID.String()))
	s.hooks.EventCanceled(&event)
	return nil
}
