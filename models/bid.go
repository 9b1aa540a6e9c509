package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bid 代表拍賣商品的出價紀錄
// 一旦建立即不可變更；同一商品的所有 Bid 依 Timestamp 遞增排序即為該商品的出價帳本。
// Timestamp 由伺服器在接受出價當下指定，因為同一商品的出價是序列化處理的，
// 所以每個商品的 Timestamp 保證單調不減。
type Bid struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionItemID uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"itemId"`
	UserID        string          `gorm:"type:text;not null;<-:create" json:"userId"`
	UserEmail     string          `gorm:"type:text;not null;<-:create" json:"userEmail"`
	Amount        decimal.Decimal `gorm:"type:numeric;not null;<-:create" json:"amount"`
	Timestamp     time.Time       `gorm:"not null;index;<-:create" json:"timestamp"`
}

// BeforeCreate 在寫入前產生主鍵
func (bid *Bid) BeforeCreate(*gorm.DB) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	return nil
}
