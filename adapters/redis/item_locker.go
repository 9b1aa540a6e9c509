package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"silentbid/auction"
)

type itemLockerOptions struct {
	logger    *slog.Logger
	mutexOpts []AutoRenewMutexOption
}

type ItemLockerOption func(*itemLockerOptions)

// WithItemLockerLogger 設置日誌記錄器
func WithItemLockerLogger(logger *slog.Logger) ItemLockerOption {
	return func(o *itemLockerOptions) {
		o.logger = logger
	}
}

// WithItemLockerMutexOptions 設置底層互斥鎖的選項
func WithItemLockerMutexOptions(opts ...AutoRenewMutexOption) ItemLockerOption {
	return func(o *itemLockerOptions) {
		o.mutexOpts = opts
	}
}

// ItemLocker 以商品 ID 產生對應的自動續期分散式鎖，
// 讓同一商品的出價與結標在多個實例之間互斥。
type ItemLocker struct {
	client  *redis.Client
	prefix  string
	logger  *slog.Logger
	options itemLockerOptions
}

// NewItemLocker 建立商品鎖工廠，鎖的鍵為 <prefix>item:<id>:lock
func NewItemLocker(client *redis.Client, prefix string, opts ...ItemLockerOption) (*ItemLocker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// 默認選項
	options := itemLockerOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &ItemLocker{
		client:  client,
		prefix:  prefix,
		logger:  options.logger.With(slog.String("caller", "ItemLocker")),
		options: options,
	}, nil
}

// Acquire 取得指定商品的鎖，回傳帶鎖生命週期的 context 與釋放函數。
// 釋放失敗只記錄，鎖最終仍會因停止續期而過期。
func (l *ItemLocker) Acquire(ctx context.Context, itemID uuid.UUID) (context.Context, auction.ReleaseFunc, error) {
	key := fmt.Sprintf("%sitem:%s:lock", l.prefix, itemID)
	mutex := NewAutoRenewMutex(l.client, key, l.options.mutexOpts...)

	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire lock for %s: %w", key, err)
	}

	release := func() {
		if _, err := mutex.Unlock(); err != nil {
			l.logger.Error("Fail to release item lock",
				slog.String("key", key),
				slog.Any("error", err))
		}
	}
	return lockCtx, release, nil
}
