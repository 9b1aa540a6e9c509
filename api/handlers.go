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
	"github.com/shopspring/decimal"

	"silentbid/auction"
	"silentbid/models"
	"silentbid/store"
)

type createItemRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	ImageURL    string           `json:"imageUrl"`
	BasePrice   *decimal.Decimal `json:"basePrice"`
	EndDate     *time.Time       `json:"endDate"`
}

type placeBidRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// Health check endpoint
// (GET /health)
func (impl *ServerImpl) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// List all auction items
// (GET /api/items)
func (impl *ServerImpl) GetItems(c *gin.Context) {
	const op = "GetItems"
	ctx := c.Request.Context()

	// 讀取路徑的儲存層錯誤降級為空結果，不讓請求失敗
	items, err := impl.store.ListItems(ctx)
	if err != nil {
		slog.Error("Fail to list auction items", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusOK, []models.AuctionItem{})
		return
	}

	// 懶結標掃描：截止時間已過但尚未落盤的商品在這裡轉為終止狀態
	now := time.Now()
	expired := lo.Filter(items, func(item models.AuctionItem, _ int) bool {
		_, needsPersist := auction.ResolveStatus(item, now)
		return needsPersist
	})
	for _, item := range expired {
		if _, err := impl.closer.CloseExpired(ctx, item.ID); err != nil && !errors.Is(err, auction.ErrAlreadyClosed) {
			slog.Error("Fail to lazily close expired auction",
				slog.String("op", op),
				slog.String("itemID", item.ID.String()),
				slog.Any("error", err))
		}
	}
	if len(expired) > 0 {
		if items, err = impl.store.ListItems(ctx); err != nil {
			slog.Error("Fail to list auction items", slog.String("op", op), slog.Any("error", err))
			c.JSON(http.StatusOK, []models.AuctionItem{})
			return
		}
	}

	c.JSON(http.StatusOK, items)
}

// Get one auction item with its bid history
// (GET /api/items/:id)
func (impl *ServerImpl) GetItem(c *gin.Context) {
	const op = "GetItem"
	ctx := c.Request.Context()
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
		return
	}

	item, err := impl.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
			return
		}
		slog.Error("Fail to fetch auction item", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"item": nil, "bids": []models.Bid{}})
		return
	}

	// 懶結標：讀到過期但尚未落盤的商品就先結標再回傳
	if _, needsPersist := auction.ResolveStatus(item, time.Now()); needsPersist {
		updated, err := impl.closer.CloseExpired(ctx, itemID)
		switch {
		case err == nil:
			item = updated
		case errors.Is(err, auction.ErrAlreadyClosed):
			if refreshed, err := impl.store.GetItem(ctx, itemID); err == nil {
				item = refreshed
			}
		default:
			slog.Error("Fail to lazily close expired auction",
				slog.String("op", op),
				slog.String("itemID", itemID.String()),
				slog.Any("error", err))
		}
	}

	bids, err := impl.store.BidsForItem(ctx, itemID)
	if err != nil {
		slog.Error("Fail to fetch bid history", slog.String("op", op), slog.Any("error", err))
		bids = []models.Bid{}
	}

	c.JSON(http.StatusOK, gin.H{"item": item, "bids": bids})
}

// Create a new auction item
// (POST /api/items)
func (impl *ServerImpl) PostItem(c *gin.Context) {
	ctx := c.Request.Context()
	if !impl.policy(callerIdentity(c)) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden: Admins only"})
		return
	}

	var request createItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeAuctionError(c, &auction.ValidationError{Message: "Invalid request body"})
		return
	}
	if err := validateCreateItem(request); err != nil {
		writeAuctionError(c, err)
		return
	}

	item := models.AuctionItem{
		Title:       request.Title,
		Description: impl.htmlChecker.Sanitize(request.Description),
		ImageURL:    request.ImageURL,
		BasePrice:   *request.BasePrice,
		EndTime:     *request.EndDate,
	}
	if err := impl.store.CreateItem(ctx, &item); err != nil {
		writeAuctionError(c, &auction.StorageError{Op: "PostItem", Err: err})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Place a bid on an auction item
// (POST /api/items/:id/bid)
func (impl *ServerImpl) PostItemBid(c *gin.Context) {
	ctx := c.Request.Context()
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
		return
	}

	var request placeBidRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bid amount must be a valid number"})
		return
	}

	bid, err := impl.engine.PlaceBid(ctx, itemID, callerIdentity(c), *request.Amount)
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Bid placed", "bidId": bid.ID})
}

// Close an auction
// (PATCH /api/items/:id/close)
func (impl *ServerImpl) PatchItemClose(c *gin.Context) {
	ctx := c.Request.Context()
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
		return
	}

	item, err := impl.closer.Close(ctx, itemID, callerIdentity(c))
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Delete an auction item and its bid records
// (DELETE /api/items/:id)
func (impl *ServerImpl) DeleteItem(c *gin.Context) {
	const op = "DeleteItem"
	ctx := c.Request.Context()
	if !impl.policy(callerIdentity(c)) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden: Admins only"})
		return
	}
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
		return
	}

	if err := impl.store.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
			return
		}
		writeAuctionError(c, &auction.StorageError{Op: op, Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
}

func validateCreateItem(request createItemRequest) error {
	if request.Title == "" {
		return &auction.ValidationError{Message: "Title is required"}
	}
	if request.Description == "" {
		return &auction.ValidationError{Message: "Description is required"}
	}
	if request.ImageURL == "" {
		return &auction.ValidationError{Message: "Image URL is required"}
	}
	if request.BasePrice == nil || request.BasePrice.IsNegative() {
		return &auction.ValidationError{Message: "Base price must be a non-negative number"}
	}
	if request.EndDate == nil || !request.EndDate.After(time.Now()) {
		return &auction.ValidationError{Message: "End date must be a valid future date"}
	}
	return nil
}

// writeAuctionError 將核心錯誤分類轉換為HTTP回應
func writeAuctionError(c *gin.Context, err error) {
	var bidTooLow *auction.BidTooLowError
	var validation *auction.ValidationError
	switch {
	case errors.Is(err, auction.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bid amount must be a valid number"})
	case errors.Is(err, auction.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Item not found"})
	case errors.Is(err, auction.ErrAuctionClosed):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Auction is closed"})
	case errors.Is(err, auction.ErrAlreadyClosed):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Auction already closed"})
	case errors.Is(err, auction.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden: Admins only"})
	case errors.As(err, &bidTooLow):
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("Bid must be higher than $%s", bidTooLow.CurrentPrice)})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"message": validation.Message})
	default:
		slog.Error("Unhandled error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}
