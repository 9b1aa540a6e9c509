package auction

import (
	"time"

	"silentbid/models"
)

// ResolveStatus 判斷商品在 now 這個時間點的有效結標狀態。
// 商品過了截止時間但尚未實際結標時，讀取端必須把它視為已結標，
// needsPersist 告訴呼叫者是否該觸發一次懶結標把狀態落盤。
// 此函式本身不做任何狀態變更。
func ResolveStatus(item models.AuctionItem, now time.Time) (effectiveClosed, needsPersist bool) {
	if item.IsClosed {
		return true, false
	}
	if !now.Before(item.EndTime) {
		return true, true
	}
	return false, false
}
