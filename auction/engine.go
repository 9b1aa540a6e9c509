package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"silentbid/models"
	"silentbid/store"
)

// ReleaseFunc 釋放已取得的商品鎖
type ReleaseFunc func()

// ItemLocker 以商品為單位序列化所有狀態變更。
// 同一商品的出價與結標必須互斥，不同商品之間完全獨立。
type ItemLocker interface {
	Acquire(ctx context.Context, itemID uuid.UUID) (context.Context, ReleaseFunc, error)
}

// Mailer 是外部的信件協作者。寄送失敗只記錄，永遠不影響狀態變更的結果。
type Mailer interface {
	SendWinnerEmail(ctx context.Context, to, itemTitle string) error
	SendOutbidEmail(ctx context.Context, to, itemTitle string, newAmount, yourAmount decimal.Decimal) error
}

type engineOptions struct {
	logger *slog.Logger
	mailer Mailer
	now    func() time.Time
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithEngineMailer 設置信件協作者
func WithEngineMailer(mailer Mailer) EngineOption {
	return func(o *engineOptions) {
		o.mailer = mailer
	}
}

// WithEngineClock 設置時間來源 (主要用於測試)
func WithEngineClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.now = now
	}
}

// Engine 是出價接受引擎：驗證並提交單一出價。
// 讀取-驗證-寫入的序列透過商品鎖序列化，寫入本身再以
// 條件式更新做最後防線，確保不會發生遺失更新。
type Engine struct {
	store     *store.Store
	locker    ItemLocker
	publisher Publisher
	closer    *Closer
	mailer    Mailer
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine 建立出價接受引擎
func NewEngine(st *store.Store, locker ItemLocker, publisher Publisher, closer *Closer, opts ...EngineOption) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if closer == nil {
		return nil, errors.New("closer cannot be nil")
	}

	// 默認選項
	options := engineOptions{
		logger: slog.Default(),
		now:    time.Now,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		store:     st,
		locker:    locker,
		publisher: publisher,
		closer:    closer,
		mailer:    options.mailer,
		logger:    options.logger.With(slog.String("caller", "Engine")),
		now:       options.now,
	}, nil
}

// PlaceBid 驗證並提交一筆出價。
// 驗證順序：金額 → 商品存在 → 拍賣未結束（含懶結標）→ 嚴格高於有效價格。
// 成功時追加帳本、更新價格快取、廣播 bidUpdate 事件，並通知被超越的出價者。
func (e *Engine) PlaceBid(ctx context.Context, itemID uuid.UUID, bidder Identity, amount decimal.Decimal) (models.Bid, error) {
	const op = "Engine.PlaceBid"
	// 檢查出價金額
	if !amount.IsPositive() {
		return models.Bid{}, ErrInvalidAmount
	}

	// 取得商品出價鎖，同一商品的所有出價在此序列化
	lockCtx, release, err := e.locker.Acquire(ctx, itemID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err)
	}
	defer release()

	// 檢查商品是否存在
	item, err := e.store.GetItem(lockCtx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Bid{}, ErrNotFound
		}
		return models.Bid{}, &StorageError{Op: op, Err: err}
	}

	// 檢查拍賣是否已經結束；過期但尚未落盤的商品先懶結標再拒絕出價
	if closed, needsPersist := ResolveStatus(item, e.now()); closed {
		if needsPersist {
			if _, err := e.closer.closeLocked(lockCtx, item); err != nil && !errors.Is(err, ErrAlreadyClosed) {
				e.logger.Error("Fail to lazily close expired auction",
					slog.String("op", op),
					slog.String("itemID", itemID.String()),
					slog.Any("error", err))
			}
		}
		return models.Bid{}, ErrAuctionClosed
	}

	// 檢查出價是否嚴格高於目前有效價格
	current := item.EffectivePrice()
	if amount.LessThanOrEqual(current) {
		return models.Bid{}, &BidTooLowError{CurrentPrice: current}
	}

	// 同一商品的時間戳必須嚴格遞增，帳本順序才等於接受順序；
	// 時鐘解析度不足以分開兩筆出價時往前推一微秒
	ts := e.now()
	last, err := e.store.LatestBidTime(lockCtx, itemID)
	if err != nil {
		return models.Bid{}, &StorageError{Op: op, Err: err}
	}
	if !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}

	// 追加帳本並更新價格快取，兩者在同一交易中完成或一起失敗
	bid := models.Bid{
		AuctionItemID: itemID,
		UserID:        bidder.UID,
		UserEmail:     bidder.Email,
		Amount:        amount,
		Timestamp:     ts,
	}
	if err := e.store.AppendBidAndUpdatePrice(lockCtx, &bid, item.CurrentPrice); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// 商品鎖應該已經擋掉競爭者，條件式更新只是最後一道防線；
			// 真的發生衝突就重新讀取價格讓呼叫者帶著最新狀態重試
			return models.Bid{}, e.freshBidTooLow(lockCtx, itemID, current)
		}
		return models.Bid{}, &StorageError{Op: op, Err: err}
	}

	e.logger.Info("Higher bid accepted",
		slog.String("itemID", itemID.String()),
		slog.String("bidder", bidder.Email),
		slog.String("amount", amount.String()))

	// 事件廣播是盡力而為，失敗只記錄
	if err := e.publisher.Publish(Event{
		Type:      EventBidUpdate,
		ItemID:    itemID,
		UserEmail: bidder.Email,
		Amount:    &bid.Amount,
		Timestamp: &ts,
	}); err != nil {
		e.logger.Error("Fail to publish bid update", slog.String("op", op), slog.Any("error", err))
	}

	// 通知被超越的前一位出價者，寄送失敗不影響出價結果
	if e.mailer != nil && item.CurrentBidderEmail != nil && item.CurrentPrice != nil && *item.CurrentBidderEmail != bidder.Email {
		if err := e.mailer.SendOutbidEmail(lockCtx, *item.CurrentBidderEmail, item.Title, amount, *item.CurrentPrice); err != nil {
			e.logger.Error("Fail to send outbid email",
				slog.String("op", op),
				slog.String("to", *item.CurrentBidderEmail),
				slog.Any("error", err))
		}
	}

	return bid, nil
}

// freshBidTooLow 重新讀取商品價格，讓 BidTooLowError 帶上最新的有效價格
func (e *Engine) freshBidTooLow(ctx context.Context, itemID uuid.UUID, fallback decimal.Decimal) error {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return &BidTooLowError{CurrentPrice: fallback}
	}
	return &BidTooLowError{CurrentPrice: item.EffectivePrice()}
}
