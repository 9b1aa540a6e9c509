package auction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCloser(t *testing.T) {
	h := newHarness(t)
	locker := newLocalLocker()
	policy := AdminOnly(testAdminEmail)

	tests := []struct {
		name    string
		build   func() (*Closer, error)
		wantErr string
	}{
		{
			name: "nil store",
			build: func() (*Closer, error) {
				return NewCloser(nil, locker, h.pub, policy)
			},
			wantErr: "store cannot be nil",
		},
		{
			name: "nil locker",
			build: func() (*Closer, error) {
				return NewCloser(h.store, nil, h.pub, policy)
			},
			wantErr: "locker cannot be nil",
		},
		{
			name: "nil publisher",
			build: func() (*Closer, error) {
				return NewCloser(h.store, locker, nil, policy)
			},
			wantErr: "publisher cannot be nil",
		},
		{
			name: "nil policy",
			build: func() (*Closer, error) {
				return NewCloser(h.store, locker, h.pub, nil)
			},
			wantErr: "policy cannot be nil",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer, err := tt.build()
			assert.Nil(t, closer)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClose_TieEarliestTimestampWins(t *testing.T) {
	h := newHarness(t)
	item := h.createItem(t, "5", time.Hour)
	ctx := context.Background()

	base := h.now()
	carol := Identity{UID: "uid-carol", Email: "carol@example.com"}
	h.appendBid(t, &item, aliceCaller, "10", base.Add(1*time.Minute))
	h.appendBid(t, &item, bobCaller, "25", base.Add(2*time.Minute))
	h.appendBid(t, &item, carol, "25", base.Add(3*time.Minute))

	updated, err := h.closer.Close(ctx, item.ID, adminCaller)
	require.NoError(t, err)

	// 金額相同時最早的出價勝出
	assert.True(t, updated.IsClosed)
	require.NotNil(t, updated.WinnerEmail)
	assert.Equal(t, bobCaller.Email, *updated.WinnerEmail)
	assert.Equal(t, []string{bobCaller.Email}, h.mailer.Winners())
}

func TestClose_ZeroBids(t *testing.T) {
	h := newHarness(t)
	item := h.createItem(t, "100", time.Hour)

	updated, err := h.closer.Close(context.Background(), item.ID, adminCaller)
	require.NoError(t, err)

	assert.True(t, updated.IsClosed)
	assert.Nil(t, updated.WinnerEmail)
	assert.Empty(t, h.mailer.Winners())

	events := h.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAuctionClosed, events[0].Type)
	assert.Equal(t, item.ID, events[0].ItemID)
	assert.Nil(t, events[0].WinnerEmail)
}

func TestClose_AlreadyClosed(t *testing.T) {
	h := newHarness(t)
	item := h.createItem(t, "5", time.Hour)
	ctx := context.Background()

	h.appendBid(t, &item, aliceCaller, "10", h.now())
	first, err := h.closer.Close(ctx, item.ID, adminCaller)
	require.NoError(t, err)

	_, err = h.closer.Close(ctx, item.ID, adminCaller)
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	// 重複結標不得改動得標者與價格
	stored := h.getItem(t, item.ID)
	require.NotNil(t, stored.WinnerEmail)
	assert.Equal(t, *first.WinnerEmail, *stored.WinnerEmail)
	require.NotNil(t, stored.CurrentPrice)
	assert.True(t, stored.CurrentPrice.Equal(decimal.RequireFromString("10")))
}

func TestClose_Forbidden(t *testing.T) {
	h := newHarness(t)
	item := h.createItem(t, "100", time.Hour)

	_, err := h.closer.Close(context.Background(), item.ID, aliceCaller)
	assert.ErrorIs(t, err, ErrForbidden)

	stored := h.getItem(t, item.ID)
	assert.False(t, stored.IsClosed)
	assert.Empty(t, h.pub.Events())
}

func TestClose_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.closer.Close(context.Background(), uuid.New(), adminCaller)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseExpired_NeedsNoAuthorization(t *testing.T) {
	h := newHarness(t)
	item := h.createItem(t, "5", time.Hour)
	ctx := context.Background()

	h.appendBid(t, &item, aliceCaller, "10", h.now())

	updated, err := h.closer.CloseExpired(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsClosed)
	require.NotNil(t, updated.WinnerEmail)
	assert.Equal(t, aliceCaller.Email, *updated.WinnerEmail)

	events := h.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAuctionClosed, events[0].Type)
	require.NotNil(t, events[0].WinnerEmail)
	assert.Equal(t, aliceCaller.Email, *events[0].WinnerEmail)
}
