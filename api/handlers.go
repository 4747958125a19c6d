package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	redisAdapter "ma2ta/adapters/redis"
	"ma2ta/auction"
	"ma2ta/models"
	"ma2ta/notify"
)

type fieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Minimum int64  `json:"minimum,omitempty"`
}

type bidResponse struct {
	ID          uuid.UUID `json:"id"`
	AuctionItem uuid.UUID `json:"auction_item"`
	User        uuid.UUID `json:"user"`
	Amount      int64     `json:"amount"`
	PlacedAt    time.Time `json:"placed_at"`
	IsWinner    bool      `json:"is_winner"`
	IsAuto      bool      `json:"is_auto"`
}

func serializeBid(bid *models.AuctionBid) bidResponse {
	return bidResponse{
		ID:          bid.ID,
		AuctionItem: bid.AuctionItemID,
		User:        bid.UserID,
		Amount:      bid.Amount,
		PlacedAt:    bid.PlacedAt,
		IsWinner:    bid.IsWinner,
		IsAuto:      bid.IsAuto,
	}
}

type eventResponse struct {
	ID               uuid.UUID          `json:"id"`
	Title            string             `json:"title"`
	Slug             string             `json:"slug"`
	Description      string             `json:"description"`
	ShortDescription string             `json:"short_description,omitempty"`
	Organizer        string             `json:"organizer,omitempty"`
	StartDatetime    time.Time          `json:"start_datetime"`
	EndDatetime      time.Time          `json:"end_datetime"`
	IsLive           bool               `json:"is_live"`
	IsOnline         bool               `json:"is_online"`
	LiveURL          string             `json:"live_url,omitempty"`
	Status           models.EventStatus `json:"status"`
	IsFeatured       bool               `json:"is_featured"`
}

func serializeEvent(event models.AuctionEvent) eventResponse {
	return eventResponse{
		ID:               event.ID,
		Title:            event.Title,
		Slug:             event.Slug,
		Description:      event.Description,
		ShortDescription: event.ShortDescription,
		Organizer:        event.Organizer,
		StartDatetime:    event.StartDatetime,
		EndDatetime:      event.EndDatetime,
		IsLive:           event.IsLive,
		IsOnline:         event.IsOnline,
		LiveURL:          event.LiveURL,
		Status:           event.Status,
		IsFeatured:       event.IsFeatured,
	}
}

// itemResponse deliberately omits the reserve price: whether a lot met
// its reserve is only revealed by the closing outcome.
type itemResponse struct {
	ID                uuid.UUID         `json:"id"`
	LotNumber         int               `json:"lot_number"`
	StartPrice        int64             `json:"start_price"`
	EstimatedPriceMin *int64            `json:"estimated_price_min,omitempty"`
	EstimatedPriceMax *int64            `json:"estimated_price_max,omitempty"`
	CurrentBid        *int64            `json:"current_bid"`
	WinningBid        *int64            `json:"winning_bid,omitempty"`
	TotalBids         int64             `json:"total_bids"`
	Status            models.ItemStatus `json:"status"`
	HammerTime        *time.Time        `json:"hammer_time,omitempty"`
	ProductTitle      string            `json:"product_title,omitempty"`
	ArtistName        string            `json:"artist_name,omitempty"`
}

func serializeItem(item models.AuctionItem) itemResponse {
	out := itemResponse{
		ID:                item.ID,
		LotNumber:         item.LotNumber,
		StartPrice:        item.StartPrice,
		EstimatedPriceMin: item.EstimatedPriceMin,
		EstimatedPriceMax: item.EstimatedPriceMax,
		CurrentBid:        item.CurrentBid,
		WinningBid:        item.WinningBid,
		TotalBids:         item.TotalBids,
		Status:            item.Status,
		HammerTime:        item.HammerTime,
	}
	if item.Product != nil {
		out.ProductTitle = item.Product.Title
		out.ArtistName = item.Product.ArtistName
	}
	return out
}

type placeBidRequest struct {
	AuctionItemID string `json:"auction_item_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
}

// PlaceBid handles POST /auctions/place-bid/.
//
// The placement itself is safe under concurrency; the per-item redis
// lock in front of it only serializes bidders on a hot lot so retries
// are spent on validation instead of CAS races.
func (impl *ServerImpl) PlaceBid(c *gin.Context) {
	const op = "PlaceBid"

	var request placeBidRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "auction_item_id and amount are required"})
		return
	}
	itemID, err := uuid.Parse(request.AuctionItemID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			auction.FieldItem: []fieldError{{Code: "INVALID_ID", Message: "auction_item_id is not a valid id"}},
		})
		return
	}
	user := currentUser(c)

	lockKey := fmt.Sprintf("%sauction-item:%s:lock", impl.config.Redis.KeyPrefix, itemID)
	mutex := redisAdapter.NewAutoRenewMutex(impl.redisClient, lockKey,
		redisAdapter.WithAutoRenewMutexSkipLockError(true),
		redisAdapter.WithAutoRenewMutexLockTimeout(impl.config.Bidding.LockTimeout))
	lockCtx, err := mutex.Lock(c.Request.Context())
	if err != nil {
		slog.Error("fail to acquire bid lock", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "could not process the bid, try again"})
		return
	}
	defer func() {
		if _, err := mutex.Unlock(c.Request.Context()); err != nil {
			slog.Warn("fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	bid, err := impl.bidService.PlaceBid(lockCtx, itemID, user.ID, request.Amount)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, serializeBid(bid))
	case errors.Is(err, auction.ErrItemNotFound):
		c.Status(http.StatusNotFound)
	case errors.Is(err, auction.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"detail": "bid lost to concurrent updates, try again"})
	default:
		var rejectErr *auction.RejectError
		if errors.As(err, &rejectErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				rejectErr.Field: []fieldError{{
					Code:    string(rejectErr.Code),
					Message: rejectErr.Message,
					Minimum: rejectErr.Minimum,
				}},
			})
			return
		}
		slog.Error("fail to place bid", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
	}
}

// ListAuctions handles GET /auctions/ with the typed filter scopes.
func (impl *ServerImpl) ListAuctions(c *gin.Context) {
	const op = "ListAuctions"

	scopes := []auction.Scope{auction.VisibleTo(impl.isStaff(c))}
	if status, ok := c.GetQuery("status"); ok {
		scopes = append(scopes, auction.WithStatus(models.EventStatus(status)))
	}
	if live, ok := c.GetQuery("live"); ok {
		scopes = append(scopes, auction.WithLive(live == "true"))
	}
	if online, ok := c.GetQuery("online"); ok {
		scopes = append(scopes, auction.WithOnline(online == "true"))
	}
	if featured, ok := c.GetQuery("featured"); ok {
		scopes = append(scopes, auction.WithFeatured(featured == "true"))
	}
	if gallery, ok := c.GetQuery("gallery"); ok {
		scopes = append(scopes, auction.WithGallery(gallery))
	}
	if period, ok := c.GetQuery("period"); ok {
		scopes = append(scopes, auction.WithPeriod(auction.Period(period), time.Now()))
	}

	events, err := auction.ListEvents(impl.db, scopes...)
	if err != nil {
		slog.Error("fail to list auctions", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(events),
		"results": lo.Map(events, func(event models.AuctionEvent, _ int) eventResponse {
			return serializeEvent(event)
		}),
	})
}

// findEvent resolves a slug honoring the canceled-event visibility rule.
func (impl *ServerImpl) findEvent(c *gin.Context, slug string) (*models.AuctionEvent, bool) {
	var event models.AuctionEvent
	err := impl.db.First(&event, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("fail to load auction", slog.String("slug", slug), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return nil, false
	}
	if event.Status == models.EventCanceled && !impl.isStaff(c) {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	return &event, true
}

// GetAuction handles GET /auctions/:slug/.
func (impl *ServerImpl) GetAuction(c *gin.Context) {
	event, ok := impl.findEvent(c, c.Param("slug"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, serializeEvent(*event))
}

// ListAuctionItems handles GET /auctions/:slug/items/.
func (impl *ServerImpl) ListAuctionItems(c *gin.Context) {
	const op = "ListAuctionItems"

	event, ok := impl.findEvent(c, c.Param("slug"))
	if !ok {
		return
	}
	var items []models.AuctionItem
	err := impl.db.Preload("Product").
		Where("auction_event_id = ?", event.ID).
		Order("lot_number ASC").
		Find(&items).Error
	if err != nil {
		slog.Error("fail to list auction items", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(items),
		"results": lo.Map(items, func(item models.AuctionItem, _ int) itemResponse {
			return serializeItem(item)
		}),
	})
}

// ListBids handles GET /auction-items/:id/bids/ with role-based
// visibility: staff and the hosting gallery's owner see everything,
// everyone else sees the winning bid plus their own.
func (impl *ServerImpl) ListBids(c *gin.Context) {
	const op = "ListBids"

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	var item models.AuctionItem
	if err := impl.db.Preload("Event.Gallery.Owner").First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("fail to load auction item", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}

	var galleryOwner *models.User
	if item.Event != nil && item.Event.Gallery != nil {
		galleryOwner = item.Event.Gallery.Owner
	}
	bids, err := auction.VisibleBids(impl.db, &item, currentUser(c), galleryOwner)
	if err != nil {
		slog.Error("fail to list bids", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(bids),
		"results": lo.Map(bids, func(bid models.AuctionBid, _ int) bidResponse {
			return serializeBid(&bid)
		}),
	})
}

// StreamBidEvents handles GET /auction-items/:id/events/, the SSE live
// bid feed. The stream opens five minutes before the event starts and
// closes with it.
func (impl *ServerImpl) StreamBidEvents(c *gin.Context) {
	const op = "StreamBidEvents"

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	var item models.AuctionItem
	if err := impl.db.Preload("Event").First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("fail to load auction item", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if item.Event == nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	now := time.Now()
	if now.Before(item.Event.StartDatetime.Add(-5 * time.Minute)) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "auction has not started"})
		return
	}
	if now.After(item.Event.EndDatetime) {
		c.JSON(http.StatusGone, gin.H{"detail": "auction has ended"})
		return
	}

	channelName := notify.ItemChannel(itemID)
	ch, err := impl.sseManager.Subscribe(channelName)
	if err != nil {
		slog.Error("fail to subscribe to bid feed", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer impl.sseManager.Unsubscribe(channelName, ch)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("bid", event)
			w.Flush()
		// Proxies drop quiet connections; keep the stream warm.
		case <-heartbeat.C:
			if _, err := w.WriteString("\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

type createAuctionRequest struct {
	Title            string    `json:"title" binding:"required"`
	Slug             string    `json:"slug" binding:"required"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"short_description"`
	Organizer        string    `json:"organizer"`
	GallerySlug      string    `json:"gallery_slug"`
	StartDatetime    time.Time `json:"start_datetime" binding:"required"`
	EndDatetime      time.Time `json:"end_datetime" binding:"required"`
	IsLive           bool      `json:"is_live"`
	IsOnline         bool      `json:"is_online"`
	LiveURL          string    `json:"live_url"`
	IsFeatured       bool      `json:"is_featured"`
}

// CreateAuction handles the staff-only POST /auctions/.
func (impl *ServerImpl) CreateAuction(c *gin.Context) {
	const op = "CreateAuction"

	var request createAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if !request.StartDatetime.Before(request.EndDatetime) || request.EndDatetime.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid auction schedule"})
		return
	}

	event := models.AuctionEvent{
		Title:            request.Title,
		Slug:             request.Slug,
		Description:      impl.htmlChecker.Sanitize(request.Description),
		ShortDescription: request.ShortDescription,
		Organizer:        request.Organizer,
		StartDatetime:    request.StartDatetime,
		EndDatetime:      request.EndDatetime,
		IsLive:           request.IsLive,
		IsOnline:         request.IsOnline,
		LiveURL:          request.LiveURL,
		IsFeatured:       request.IsFeatured,
		Status:           models.EventPlanned,
	}
	if request.GallerySlug != "" {
		var gallery models.Gallery
		if err := impl.db.First(&gallery, "slug = ?", request.GallerySlug).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "unknown gallery"})
				return
			}
			slog.Error("fail to load gallery", slog.String("op", op), slog.Any("error", err))
			c.Status(http.StatusInternalServerError)
			return
		}
		event.GalleryID = &gallery.ID
	}

	if result := impl.db.Create(&event); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "slug already in use"})
			return
		}
		slog.Error("fail to create auction", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, serializeEvent(event))
}

type createItemRequest struct {
	ProductID         string `json:"product_id" binding:"required"`
	LotNumber         int    `json:"lot_number" binding:"required"`
	StartPrice        int64  `json:"start_price" binding:"required"`
	ReservePrice      *int64 `json:"reserve_price"`
	EstimatedPriceMin *int64 `json:"estimated_price_min"`
	EstimatedPriceMax *int64 `json:"estimated_price_max"`
}

// CreateAuctionItem handles the staff-only POST /auctions/:slug/items/.
func (impl *ServerImpl) CreateAuctionItem(c *gin.Context) {
	const op = "CreateAuctionItem"

	event, ok := impl.findEvent(c, c.Param("slug"))
	if !ok {
		return
	}
	if event.Status != models.EventPlanned && event.Status != models.EventActive {
		c.JSON(http.StatusConflict, gin.H{"detail": "auction no longer accepts lots"})
		return
	}

	var request createItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	productID, err := uuid.Parse(request.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "product_id is not a valid id"})
		return
	}
	if request.StartPrice <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "start_price must be greater than zero"})
		return
	}

	item := models.AuctionItem{
		AuctionEventID:    event.ID,
		ProductID:         productID,
		LotNumber:         request.LotNumber,
		StartPrice:        request.StartPrice,
		ReservePrice:      request.ReservePrice,
		EstimatedPriceMin: request.EstimatedPriceMin,
		EstimatedPriceMax: request.EstimatedPriceMax,
		Status:            models.ItemPending,
	}
	// Lots added to a running event open immediately.
	if event.Status == models.EventActive {
		item.Status = models.ItemActive
	}
	if result := impl.db.Create(&item); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "lot number already in use"})
			return
		}
		slog.Error("fail to create auction item", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, serializeItem(item))
}

// CancelAuction handles the staff-only POST /auctions/:slug/cancel/.
func (impl *ServerImpl) CancelAuction(c *gin.Context) {
	const op = "CancelAuction"

	var event models.AuctionEvent
	if err := impl.db.First(&event, "slug = ?", c.Param("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("fail to load auction", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}

	err := impl.sweeper.Cancel(c.Request.Context(), event.ID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": string(models.EventCanceled)})
	case errors.Is(err, auction.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"detail": "auction already finished"})
	case errors.Is(err, auction.ErrEventNotFound):
		c.Status(http.StatusNotFound)
	default:
		slog.Error("fail to cancel auction", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
	}
}
