package auction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"silentbid/models"
	"silentbid/store"
)

const (
	testAdminEmail = "admin@example.com"
)

var (
	adminCaller  = Identity{UID: "uid-admin", Email: testAdminEmail}
	aliceCaller  = Identity{UID: "uid-alice", Email: "alice@example.com"}
	bobCaller    = Identity{UID: "uid-bob", Email: "bob@example.com"}
	quietLogger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	testDBSerial int
	testDBMu     sync.Mutex
)

// localLocker 是測試用的行程內商品鎖
type localLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *localLocker) Acquire(ctx context.Context, itemID uuid.UUID) (context.Context, ReleaseFunc, error) {
	l.mu.Lock()
	m, ok := l.locks[itemID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return ctx, m.Unlock, nil
}

// capturePublisher 記錄所有發布的事件
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// captureMailer 記錄所有寄送的通知信
type captureMailer struct {
	mu      sync.Mutex
	winners []string
	outbids []string
}

func (m *captureMailer) SendWinnerEmail(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.winners = append(m.winners, to)
	return nil
}

func (m *captureMailer) SendOutbidEmail(_ context.Context, to, _ string, _, _ decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbids = append(m.outbids, to)
	return nil
}

func (m *captureMailer) Winners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.winners...)
}

func (m *captureMailer) Outbids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outbids...)
}

type harness struct {
	store   *store.Store
	engine  *Engine
	closer  *Closer
	pub     *capturePublisher
	mailer  *captureMailer
	nowMu   sync.Mutex
	current time.Time
}

func (h *harness) now() time.Time {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	return h.current
}

func (h *harness) advance(d time.Duration) {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	h.current = h.current.Add(d)
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	testDBMu.Lock()
	testDBSerial++
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), testDBSerial)
	testDBMu.Unlock()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate())
	return st
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   setupStore(t),
		pub:     &capturePublisher{},
		mailer:  &captureMailer{},
		current: time.Now(),
	}
	locker := newLocalLocker()

	closer, err := NewCloser(h.store, locker, h.pub, AdminOnly(testAdminEmail),
		WithCloserLogger(quietLogger),
		WithCloserMailer(h.mailer))
	require.NoError(t, err)
	h.closer = closer

	engine, err := NewEngine(h.store, locker, h.pub, closer,
		WithEngineLogger(quietLogger),
		WithEngineMailer(h.mailer),
		WithEngineClock(h.now))
	require.NoError(t, err)
	h.engine = engine

	return h
}

func (h *harness) createItem(t *testing.T, basePrice string, endIn time.Duration) models.AuctionItem {
	t.Helper()
	item := models.AuctionItem{
		Title:       "Vintage Pocket Watch",
		Description: "A silver pocket watch from 1923.",
		ImageURL:    "https://example.com/watch.jpg",
		BasePrice:   decimal.RequireFromString(basePrice),
		EndTime:     h.now().Add(endIn),
	}
	require.NoError(t, h.store.CreateItem(context.Background(), &item))
	return item
}

func (h *harness) getItem(t *testing.T, id uuid.UUID) models.AuctionItem {
	t.Helper()
	item, err := h.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

// appendBid 直接在帳本上追加一筆帶指定時間的出價
func (h *harness) appendBid(t *testing.T, item *models.AuctionItem, caller Identity, amount string, at time.Time) models.Bid {
	t.Helper()
	bid := models.Bid{
		AuctionItemID: item.ID,
		UserID:        caller.UID,
		UserEmail:     caller.Email,
		Amount:        decimal.RequireFromString(amount),
		Timestamp:     at,
	}
	require.NoError(t, h.store.AppendBidAndUpdatePrice(context.Background(), &bid, item.CurrentPrice))
	item.CurrentPrice = &bid.Amount
	item.CurrentBidderID = &bid.UserID
	item.CurrentBidderEmail = &bid.UserEmail
	return bid
}
