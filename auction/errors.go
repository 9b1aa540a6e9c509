package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 競標流程的失敗分類，由 HTTP 層轉換為對應的狀態碼與訊息
var (
	// ErrInvalidAmount 表示出價金額不是合法的正數
	ErrInvalidAmount = errors.New("bid amount must be a valid positive number")
	// ErrNotFound 表示拍賣商品不存在
	ErrNotFound = errors.New("item not found")
	// ErrAuctionClosed 表示拍賣已經結束，無法再出價
	ErrAuctionClosed = errors.New("auction is closed")
	// ErrForbidden 表示呼叫者不具備管理員權限
	ErrForbidden = errors.New("forbidden: admins only")
	// ErrAlreadyClosed 表示拍賣已經結標，不可重複結標
	ErrAlreadyClosed = errors.New("auction already closed")
)

// BidTooLowError 表示出價未超過目前有效價格，
// 攜帶目前價格讓呼叫者能直接顯示給使用者。
type BidTooLowError struct {
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than $%s", e.CurrentPrice.String())
}

// ValidationError 表示建立商品時的輸入驗證失敗
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StorageError 包裝持久層的非預期錯誤
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("[%s] storage failure, err=%v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
