package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"silentbid/models"
)

var (
	// ErrNotFound 表示查詢的紀錄不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 表示條件式更新沒有命中任何紀錄，
	// 代表呼叫者讀到的狀態已經被其他操作改寫
	ErrConflict = errors.New("conditional update conflict")
)

// Store 封裝 Item Store 與 Bid Ledger 的資料存取。
// 商品紀錄是唯一的共享可變資源，所有價格與結標的寫入
// 都透過條件式更新，確保讀取-驗證-寫入的序列不會遺失更新。
type Store struct {
	db *gorm.DB
}

// New 建立 Store 實例
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 建立資料表結構
func (s *Store) Migrate() error {
	const op = "Store.Migrate"
	if err := s.db.AutoMigrate(&models.AuctionItem{}, &models.Bid{}); err != nil {
		return fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}
	return nil
}

// CreateItem 建立新的拍賣商品
func (s *Store) CreateItem(ctx context.Context, item *models.AuctionItem) error {
	const op = "Store.CreateItem"
	if result := s.db.WithContext(ctx).Create(item); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create auction item, err=%w", op, result.Error)
	}
	return nil
}

// ListItems 依截止時間遞增列出所有拍賣商品
func (s *Store) ListItems(ctx context.Context) ([]models.AuctionItem, error) {
	const op = "Store.ListItems"
	var items []models.AuctionItem
	result := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "end_time"}}).
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list auction items, err=%w", op, result.Error)
	}
	return items, nil
}

// GetItem 以 ID 取得單一拍賣商品
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (models.AuctionItem, error) {
	const op = "Store.GetItem"
	var item models.AuctionItem
	result := s.db.WithContext(ctx).First(&item, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.AuctionItem{}, ErrNotFound
		}
		return models.AuctionItem{}, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error)
	}
	return item, nil
}

// DeleteItem 刪除拍賣商品並一併清除其所有出價紀錄
func (s *Store) DeleteItem(ctx context.Context, id uuid.UUID) error {
	const op = "Store.DeleteItem"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("auction_item_id = ?", id).Delete(&models.Bid{}); result.Error != nil {
			return result.Error
		}
		result := tx.Delete(&models.AuctionItem{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("[%s] Fail to delete auction item, err=%w", op, err)
	}
	return nil
}

// BidsForItem 回傳商品的完整出價帳本，依時間遞增排序
func (s *Store) BidsForItem(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	const op = "Store.BidsForItem"
	var bids []models.Bid
	result := s.db.WithContext(ctx).
		Where("auction_item_id = ?", itemID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}

// LatestBidTime 回傳商品最近一筆出價的時間戳，沒有任何出價時回傳零值時間
func (s *Store) LatestBidTime(ctx context.Context, itemID uuid.UUID) (time.Time, error) {
	const op = "Store.LatestBidTime"
	var bid models.Bid
	result := s.db.WithContext(ctx).
		Where("auction_item_id = ?", itemID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		First(&bid)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("[%s] Fail to find latest bid, err=%w", op, result.Error)
	}
	return bid.Timestamp, nil
}

// TopBid 取得商品的最高出價；金額相同時最早的出價勝出。
// 沒有任何出價時回傳 ErrNotFound。
func (s *Store) TopBid(ctx context.Context, itemID uuid.UUID) (models.Bid, error) {
	const op = "Store.TopBid"
	var bid models.Bid
	result := s.db.WithContext(ctx).
		Where("auction_item_id = ?", itemID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "amount"}, Desc: true},
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		First(&bid)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.Bid{}, ErrNotFound
		}
		return models.Bid{}, fmt.Errorf("[%s] Fail to find top bid, err=%w", op, result.Error)
	}
	return bid, nil
}

// AppendBidAndUpdatePrice 在同一個交易中追加出價紀錄並更新商品的價格快取。
// 更新以呼叫者先前讀到的價格 prev（nil 表示當時還沒有人出價）為條件，
// 價格已被其他出價改寫時整筆交易回滾並回傳 ErrConflict，帳本不會留下紀錄。
func (s *Store) AppendBidAndUpdatePrice(ctx context.Context, bid *models.Bid, prev *decimal.Decimal) error {
	const op = "Store.AppendBidAndUpdatePrice"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(bid); result.Error != nil {
			return result.Error
		}
		query := tx.Model(&models.AuctionItem{}).
			Where("id = ? AND is_closed = ?", bid.AuctionItemID, false)
		if prev == nil {
			query = query.Where("current_price IS NULL")
		} else {
			query = query.Where("current_price = ?", *prev)
		}
		result := query.Updates(map[string]any{
			"current_price":        bid.Amount,
			"current_bidder_id":    bid.UserID,
			"current_bidder_email": bid.UserEmail,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("[%s] Fail to append bid, err=%w", op, err)
	}
	return nil
}

// CloseItem 將商品標記為已結標並寫入得標者信箱，結標是不可逆的終止狀態。
// 以 is_closed = false 為更新條件，重複結標回傳 ErrConflict。
func (s *Store) CloseItem(ctx context.Context, id uuid.UUID, winnerEmail *string) (models.AuctionItem, error) {
	const op = "Store.CloseItem"
	result := s.db.WithContext(ctx).Model(&models.AuctionItem{}).
		Where("id = ? AND is_closed = ?", id, false).
		Updates(map[string]any{
			"is_closed":    true,
			"winner_email": winnerEmail,
		})
	if result.Error != nil {
		return models.AuctionItem{}, fmt.Errorf("[%s] Fail to close auction item, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.AuctionItem{}, ErrConflict
	}
	return s.GetItem(ctx, id)
}
