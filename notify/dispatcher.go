package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"ma2ta/adapters/redis"
	"ma2ta/models"
)

// Dispatcher turns feed messages into persisted notifications. It reads
// the bid feed through a consumer group, so across all running instances
// each accepted bid is recorded exactly once: a confirmation for the
// bidder and, when someone lost the top spot, an outbid notice for them.
type Dispatcher struct {
	db       *gorm.DB
	consumer redis.IGroupConsumer[BidInfo]
	logger   *slog.Logger
	wg       sync.WaitGroup
	closed   bool
}

func NewDispatcher(db *gorm.DB, consumer redis.IGroupConsumer[BidInfo], logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		db:       db,
		consumer: consumer,
		logger:   logger.With(slog.String("caller", "Dispatcher")),
		closed:   true,
	}
}

func (d *Dispatcher) Start() error {
	const op = "Dispatcher.Start"
	if !d.closed {
		return nil
	}
	if err := d.consumer.Start(); err != nil {
		return fmt.Errorf("[%s] fail to start feed consumer, err=%w", op, err)
	}
	d.closed = false
	d.logger.Info("starting notification dispatcher")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.logger.Info("notification dispatcher stopped")

		ctx := context.Background()
		for msg := range d.consumer.Subscribe() {
			if err := d.record(ctx, msg.Data); err != nil {
				d.logger.Error("fail to record notifications",
					slog.String("bidID", msg.Data.BidID.String()),
					slog.Any("error", err))
				if failErr := msg.Fail(ctx, err); failErr != nil {
					d.logger.Error("fail to dead-letter message", slog.Any("error", failErr))
				}
				continue
			}
			if err := msg.Done(ctx); err != nil {
				d.logger.Error("fail to ack message",
					slog.String("bidID", msg.Data.BidID.String()),
					slog.Any("error", err))
			}
		}
	}()
	return nil
}

func (d *Dispatcher) record(ctx context.Context, info BidInfo) error {
	const op = "Dispatcher.record"

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		itemID := info.ItemID
		accepted := models.Notification{
			UserID:        info.UserID,
			Kind:          models.NotifyBidAccepted,
			Message:       fmt.Sprintf("پیشنهاد شما به مبلغ %d تومان ثبت شد.", info.Amount),
			AuctionItemID: &itemID,
		}
		if result := tx.Create(&accepted); result.Error != nil {
			return fmt.Errorf("[%s] fail to create bid confirmation, err=%w", op, result.Error)
		}

		if info.OutbidUserID == nil {
			return nil
		}
		outbid := models.Notification{
			UserID:        *info.OutbidUserID,
			Kind:          models.NotifyOutbid,
			Message:       fmt.Sprintf("پیشنهاد بالاتری به مبلغ %d تومان برای این اثر ثبت شد.", info.Amount),
			AuctionItemID: &itemID,
		}
		if result := tx.Create(&outbid); result.Error != nil {
			return fmt.Errorf("[%s] fail to create outbid notice, err=%w", op, result.Error)
		}
		return nil
	})
}

func (d *Dispatcher) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.logger.Info("closing notification dispatcher")
	if err := d.consumer.Close(); err != nil {
		return err
	}
	d.wg.Wait()
	d.logger.Info("notification dispatcher closed")
	return nil
}
