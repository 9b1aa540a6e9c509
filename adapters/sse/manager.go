package sse

import (
	"context"
	"log/slog"
	"sync"
)

type managerOptions[T any] struct {
	logger     *slog.Logger
	subscriber Subscriber[T]
}

type ManagerOption[T any] func(*managerOptions[T])

// WithManagerLogger 設置日誌記錄器
func WithManagerLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithManagerSubscriber 設置跨節點的訊息來源。
// 未設置時管理器只在本地節點廣播。
func WithManagerSubscriber[T any](subscriber Subscriber[T]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.subscriber = subscriber
	}
}

// connectionManager 管理多個 SSE 頻道的訂閱與發布。
// 掛上 Subscriber 後會把上游（通常是 Redis Stream）收到的訊息
// 廣播給對應頻道的本地訂閱者，讓多個服務實例協同運作。
type connectionManager[T any] struct {
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg     sync.WaitGroup // 用於等待所有 goroutine 完成
	active bool           // 標記 manager 是否正在運作中

	subscriber Subscriber[T]          // 跨節點訊息來源，可為 nil
	channels   map[string]IChannel[T] // 儲存所有活躍的頻道
}

// NewConnectionManager 建立一個新的連線管理器。
func NewConnectionManager[T any](opts ...ManagerOption[T]) IConnectionManager[T] {
	// 默認選項
	options := managerOptions[T]{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &connectionManager[T]{
		logger:     options.logger.With(slog.String("caller", "ConnectionManager")),
		subscriber: options.subscriber,
		channels:   make(map[string]IChannel[T]),
	}
}

// Start 啟動連線管理器，開始處理訊息的接收與廣播。
// 應在呼叫其他方法前先呼叫此方法。
func (cm *connectionManager[T]) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.active {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cm.cancel = cancel
	cm.active = true

	if cm.subscriber == nil {
		return
	}

	// 啟動訊息處理的 goroutine
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		upstream := cm.subscriber.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-upstream:
				if !ok {
					return
				}
				cm.broadcast(msg.Channel, msg.Message)
			}
		}
	}()
}

// Done 停止連線管理器的運作。
func (cm *connectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	cancel := cm.cancel
	cm.mu.Unlock()

	// 等待訊息處理goroutine結束時不能持有鎖，broadcast會需要它
	cancel()
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道。
// channelName: 要訂閱的頻道名稱
// 返回: 用於接收訊息的唯讀通道，以及可能的錯誤
func (cm *connectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, context.Canceled
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T]()
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 將訊息廣播給指定頻道的本地訂閱者。
// 跨節點的發布走事件Stream，不經過此方法。
func (cm *connectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	if !cm.active {
		cm.mu.RUnlock()
		return context.Canceled
	}
	cm.mu.RUnlock()

	cm.broadcast(channelName, data)
	return nil
}

// Unsubscribe 取消訂閱指定的頻道。
func (cm *connectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}

func (cm *connectionManager[T]) broadcast(channelName string, data T) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if channel, ok := cm.channels[channelName]; ok {
		channel.Broadcast(data)
	}
}
