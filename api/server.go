package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	redisAdapter "ma2ta/adapters/redis"
	"ma2ta/adapters/sse"
	"ma2ta/auction"
	"ma2ta/notify"
)

// BidEvent is the SSE payload for one accepted bid.
type BidEvent struct {
	Bid       int64     `json:"bid"`
	User      string    `json:"user"`
	TotalBids int64     `json:"total_bids"`
	Time      time.Time `json:"time"`
}

// ServerImpl owns the HTTP handlers and the background machinery behind
// them: the bid feed producer, the SSE broadcast, the notification
// dispatcher and the lifecycle sweeper.
type ServerImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
	htmlChecker *bluemonday.Policy

	producer   redisAdapter.IProducer[notify.BidInfo]
	sseManager sse.IConnectionManager[BidEvent]
	dispatcher *notify.Dispatcher
	bidService *auction.BidService
	sweeper    *auction.Sweeper

	sweepCancel context.CancelFunc
	wg          sync.WaitGroup
	closed      bool

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to connect to database, err=%w", op, err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	producer, err := redisAdapter.NewProducer[notify.BidInfo](redisClient, config.Redis.StreamKeys.BidFeed)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to create bid feed producer, err=%w", op, err)
	}

	hooks := notify.NewStreamHooks(db, producer, slog.Default())
	bidService := auction.NewBidService(db, config.Bidding.Policy(), hooks, slog.Default())
	sweeper := auction.NewSweeper(db, hooks, slog.Default())

	// The SSE side reads the same feed stream, translating each accepted
	// bid into a broadcast on its lot's channel.
	sseConsumer, err := redisAdapter.NewConsumer(
		redisClient,
		config.Redis.StreamKeys.BidFeed,
		redisAdapter.WithConsumerParseFunc(func(m map[string]any) (sse.PublishRequest[BidEvent], error) {
			info, err := redisAdapter.DefaultParseFromMessage[notify.BidInfo](m)
			if err != nil {
				return sse.PublishRequest[BidEvent]{}, fmt.Errorf("fail to parse bid feed message, err=%w", err)
			}
			return sse.PublishRequest[BidEvent]{
				Channel: notify.ItemChannel(info.ItemID),
				Message: BidEvent{
					Bid:       info.Amount,
					User:      info.Username,
					TotalBids: info.TotalBids,
					Time:      info.PlacedAt,
				},
			}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to create sse consumer, err=%w", op, err)
	}
	sseManager, err := sse.NewConnectionManager[BidEvent](
		redisClient,
		config.Redis.StreamKeys.BidFeed,
		sse.WithManagerLogger[BidEvent](slog.Default()),
		sse.WithManagerConsumer[BidEvent](sseConsumer),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to create sse connection manager, err=%w", op, err)
	}

	groupConsumer, err := redisAdapter.NewGroupConsumer[notify.BidInfo](
		redisClient,
		config.Redis.StreamKeys.BidFeed,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[notify.BidInfo](slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to create feed group consumer, err=%w", op, err)
	}
	dispatcher := notify.NewDispatcher(db, groupConsumer, slog.Default())

	return &ServerImpl{
		db:          db,
		redisClient: redisClient,
		htmlChecker: bluemonday.UGCPolicy(),
		producer:    producer,
		sseManager:  sseManager,
		dispatcher:  dispatcher,
		bidService:  bidService,
		sweeper:     sweeper,
		closed:      true,
		config:      config,
	}, nil
}

// Start launches the feed producer, the SSE broadcast, the notification
// dispatcher and the lifecycle sweep loop.
func (impl *ServerImpl) Start() error {
	const op = "Start"
	if !impl.closed {
		return nil
	}
	impl.closed = false

	impl.producer.Start()
	impl.sseManager.Start()
	if err := impl.dispatcher.Start(); err != nil {
		return fmt.Errorf("[%s] fail to start notification dispatcher, err=%w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	impl.sweepCancel = cancel
	sweepLock := redisAdapter.NewAutoRenewMutex(
		impl.redisClient,
		impl.config.Redis.KeyPrefix+"sweep:lock",
		redisAdapter.WithAutoRenewMutexSkipLockError(true),
	)
	slog.Info("starting auction lifecycle sweep", slog.Duration("interval", impl.config.Sweep.Interval))
	impl.wg.Add(1)
	go func() {
		defer impl.wg.Done()
		impl.sweeper.Run(ctx, impl.config.Sweep.Interval, sweepLock)
	}()
	return nil
}

func (impl *ServerImpl) Close() {
	if impl.closed {
		return
	}
	impl.closed = true

	impl.sweepCancel()
	impl.wg.Wait()
	if err := impl.dispatcher.Close(); err != nil {
		slog.Error("fail to close notification dispatcher", slog.Any("error", err))
	}
	impl.sseManager.Done()
	impl.producer.Close()
}

// RegisterRoutes mounts the HTTP surface on the router.
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	auctions := router.Group("/auctions")
	auctions.GET("/", impl.ListAuctions)
	auctions.POST("/", impl.requireAuth, impl.requireStaff, impl.CreateAuction)
	auctions.POST("/place-bid/", impl.requireAuth, impl.PlaceBid)
	auctions.GET("/:slug/", impl.GetAuction)
	auctions.GET("/:slug/items/", impl.ListAuctionItems)
	auctions.POST("/:slug/items/", impl.requireAuth, impl.requireStaff, impl.CreateAuctionItem)
	auctions.POST("/:slug/cancel/", impl.requireAuth, impl.requireStaff, impl.CancelAuction)

	items := router.Group("/auction-items")
	items.GET("/:id/bids/", impl.requireAuth, impl.ListBids)
	items.GET("/:id/events/", impl.StreamBidEvents)
}
