package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"silentbid/auction"
)

// Track auction events
// (GET /api/events)
func (impl *ServerImpl) GetEvents(c *gin.Context) {
	const op = "GetEvents"
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")

	ch, err := impl.sseManager.Subscribe(eventsChannel)
	if err != nil {
		slog.Error("Fail to subscribe to auction events", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	defer impl.sseManager.Unsubscribe(eventsChannel, ch)

	for {
		select {
		case <-w.CloseNotify():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			// 結標事件額外以舊名稱重發一次，維持對既有客戶端的相容
			if event.Type == auction.EventAuctionClosed {
				c.SSEvent("auctionEnded", event)
			}
			w.Flush()
		// 30秒沒有事件就發送一個空行，確保瀏覽器和Proxy不會斷開連線
		case <-time.After(30 * time.Second):
			fmt.Fprint(w, "\n\n")
			w.Flush()
		}
	}
}
