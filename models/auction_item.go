package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuctionItem 代表拍賣系統中的商品
// 包含商品資訊、起標價、目前最高出價的快取投影、拍賣截止時間與結標狀態。
// 出價的權威紀錄在 Bid 帳本中，CurrentPrice / CurrentBidder* 只是帳本尾端的快取。
type AuctionItem struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title              string           `gorm:"type:varchar(255);not null" json:"title"`
	Description        string           `gorm:"type:text;not null" json:"description"`
	ImageURL           string           `gorm:"type:text" json:"imageUrl"`
	BasePrice          decimal.Decimal  `gorm:"type:numeric;not null;<-:create" json:"basePrice"`
	CurrentPrice       *decimal.Decimal `gorm:"type:numeric" json:"currentPrice,omitempty"`
	CurrentBidderID    *string          `gorm:"type:text" json:"-"`
	CurrentBidderEmail *string          `gorm:"type:text" json:"currentBidder,omitempty"`
	EndTime            time.Time        `gorm:"not null;<-:create" json:"endTime"`
	IsClosed           bool             `gorm:"not null;default:false" json:"isClosed"`
	WinnerEmail        *string          `gorm:"type:text" json:"winnerEmail,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`

	// 外鍵關聯
	BidRecords []Bid `gorm:"foreignKey:AuctionItemID;constraint:OnDelete:CASCADE" json:"-"`
}

// EffectivePrice 回傳商品目前的有效價格：
// 有人出價時為最高出價，否則為起標價。
func (item *AuctionItem) EffectivePrice() decimal.Decimal {
	if item.CurrentPrice != nil {
		return *item.CurrentPrice
	}
	return item.BasePrice
}

// BeforeCreate 在寫入前產生主鍵
func (item *AuctionItem) BeforeCreate(*gorm.DB) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return nil
}
