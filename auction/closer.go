package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"silentbid/models"
	"silentbid/store"
)

type closerOptions struct {
	logger *slog.Logger
	mailer Mailer
}

type CloserOption func(*closerOptions)

// WithCloserLogger 設置日誌記錄器
func WithCloserLogger(logger *slog.Logger) CloserOption {
	return func(o *closerOptions) {
		o.logger = logger
	}
}

// WithCloserMailer 設置信件協作者
func WithCloserMailer(mailer Mailer) CloserOption {
	return func(o *closerOptions) {
		o.mailer = mailer
	}
}

// Closer 負責決定得標出價並將拍賣轉為終止狀態。
// 由管理員透過 Close 觸發，或由讀取路徑在截止時間過後透過 CloseExpired 懶觸發。
type Closer struct {
	store     *store.Store
	locker    ItemLocker
	publisher Publisher
	policy    Policy
	mailer    Mailer
	logger    *slog.Logger
}

// NewCloser 建立拍賣結標器
func NewCloser(st *store.Store, locker ItemLocker, publisher Publisher, policy Policy, opts ...CloserOption) (*Closer, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if policy == nil {
		return nil, errors.New("policy cannot be nil")
	}

	// 默認選項
	options := closerOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Closer{
		store:     st,
		locker:    locker,
		publisher: publisher,
		policy:    policy,
		mailer:    options.mailer,
		logger:    options.logger.With(slog.String("caller", "Closer")),
	}, nil
}

// Close 由管理員明確結標。呼叫者必須通過管理員授權，否則回傳 ErrForbidden。
func (c *Closer) Close(ctx context.Context, itemID uuid.UUID, requestedBy Identity) (models.AuctionItem, error) {
	if !c.policy(requestedBy) {
		return models.AuctionItem{}, ErrForbidden
	}
	return c.closeWithLock(ctx, itemID)
}

// CloseExpired 是系統驅動的懶結標，用於截止時間已過的商品，不需要授權
func (c *Closer) CloseExpired(ctx context.Context, itemID uuid.UUID) (models.AuctionItem, error) {
	return c.closeWithLock(ctx, itemID)
}

func (c *Closer) closeWithLock(ctx context.Context, itemID uuid.UUID) (models.AuctionItem, error) {
	const op = "Closer.closeWithLock"
	lockCtx, release, err := c.locker.Acquire(ctx, itemID)
	if err != nil {
		return models.AuctionItem{}, fmt.Errorf("[%s] Fail to acquire item lock, err=%w", op, err)
	}
	defer release()

	item, err := c.store.GetItem(lockCtx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.AuctionItem{}, ErrNotFound
		}
		return models.AuctionItem{}, &StorageError{Op: op, Err: err}
	}
	return c.closeLocked(lockCtx, item)
}

// closeLocked 在商品鎖已持有的前提下執行結標。
// 從帳本選出得標者（金額最高，相同金額最早者勝出）、原子性地寫入終止狀態、
// 廣播 auctionClosed 事件，最後通知得標者；信件失敗永遠不回滾結標。
func (c *Closer) closeLocked(ctx context.Context, item models.AuctionItem) (models.AuctionItem, error) {
	const op = "Closer.closeLocked"
	// 結標是冪等的終止轉移，已結標的商品直接拒絕
	if item.IsClosed {
		return models.AuctionItem{}, ErrAlreadyClosed
	}

	// 從帳本選出得標出價；沒有任何出價時結標但沒有得標者
	var winnerEmail *string
	top, err := c.store.TopBid(ctx, item.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.AuctionItem{}, &StorageError{Op: op, Err: err}
	}
	if err == nil {
		winnerEmail = &top.UserEmail
	}

	updated, err := c.store.CloseItem(ctx, item.ID, winnerEmail)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.AuctionItem{}, ErrAlreadyClosed
		}
		return models.AuctionItem{}, &StorageError{Op: op, Err: err}
	}

	c.logger.Info("Auction closed",
		slog.String("itemID", item.ID.String()),
		slog.Any("winner", winnerEmail))

	// 事件廣播是盡力而為，失敗只記錄
	if err := c.publisher.Publish(Event{
		Type:        EventAuctionClosed,
		ItemID:      item.ID,
		WinnerEmail: winnerEmail,
	}); err != nil {
		c.logger.Error("Fail to publish auction closed event", slog.String("op", op), slog.Any("error", err))
	}

	// 通知得標者，寄送失敗只記錄，不影響已完成的結標
	if c.mailer != nil && winnerEmail != nil {
		if err := c.mailer.SendWinnerEmail(ctx, *winnerEmail, item.Title); err != nil {
			c.logger.Error("Fail to send winner email",
				slog.String("op", op),
				slog.String("to", *winnerEmail),
				slog.Any("error", err))
		}
	}

	return updated, nil
}
