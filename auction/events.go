package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// EventType 是即時通知事件的種類
type EventType string

const (
	// EventBidUpdate 表示有新的最高出價
	EventBidUpdate EventType = "bidUpdate"
	// EventAuctionClosed 表示拍賣已進入終止狀態
	EventAuctionClosed EventType = "auctionClosed"
)

// Event 是推送給所有觀察者的狀態變更事件。
// 僅作為低延遲的提示，Item Store 才是資料的唯一依據；
// 不保證送達、不保留歷史，離線的觀察者重新連線後需自行重新查詢。
type Event struct {
	Type        EventType        `json:"type"`
	ItemID      uuid.UUID        `json:"itemId"`
	UserEmail   string           `json:"userEmail,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Timestamp   *time.Time       `json:"timestamp,omitempty"`
	WinnerEmail *string          `json:"winnerEmail,omitempty"`
}

// Publisher 將事件送進通知廣播層
type Publisher interface {
	Publish(event Event) error
}

var (
	_ msgpack.CustomEncoder = (*Event)(nil)
	_ msgpack.CustomDecoder = (*Event)(nil)
)

// wireEvent 是 Event 在 stream 上的傳輸格式。
// decimal.Decimal 的欄位皆未匯出，直接反射序列化會遺失數值，
// 因此金額以十進位字串傳輸。
type wireEvent struct {
	Type        string
	ItemID      string
	UserEmail   string
	Amount      string
	HasAmount   bool
	Timestamp   time.Time
	HasTime     bool
	WinnerEmail *string
}

// EncodeMsgpack 實作 msgpack.CustomEncoder
func (e *Event) EncodeMsgpack(enc *msgpack.Encoder) error {
	w := wireEvent{
		Type:        string(e.Type),
		ItemID:      e.ItemID.String(),
		UserEmail:   e.UserEmail,
		WinnerEmail: e.WinnerEmail,
	}
	if e.Amount != nil {
		w.Amount = e.Amount.String()
		w.HasAmount = true
	}
	if e.Timestamp != nil {
		w.Timestamp = *e.Timestamp
		w.HasTime = true
	}
	return enc.Encode(w)
}

// DecodeMsgpack 實作 msgpack.CustomDecoder
func (e *Event) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return err
	}
	itemID, err := uuid.Parse(w.ItemID)
	if err != nil {
		return err
	}
	e.Type = EventType(w.Type)
	e.ItemID = itemID
	e.UserEmail = w.UserEmail
	e.WinnerEmail = w.WinnerEmail
	e.Amount = nil
	e.Timestamp = nil
	if w.HasAmount {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return err
		}
		e.Amount = &amount
	}
	if w.HasTime {
		ts := w.Timestamp
		e.Timestamp = &ts
	}
	return nil
}
