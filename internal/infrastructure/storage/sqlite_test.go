package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_scalper/internal/domain"
)

func newStore(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func order(id string, side domain.Side, price string, at time.Time) *domain.Order {
	p := decimal.RequireFromString(price)
	q := decimal.NewFromInt(1)
	return &domain.Order{
		ID:              id,
		Symbol:          "BTCUSDT",
		Side:            side,
		Type:            domain.OrderTypeLimit,
		Price:           p,
		Quantity:        q,
		Status:          domain.OrderStatusFilled,
		FilledPrice:     p,
		FilledQuantity:  q,
		CumulativeQuote: p.Mul(q),
		CreatedAt:       at,
	}
}

func TestSQLiteStore_Orders(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveOrder(ctx, order("a", domain.SideBuy, "100.5", now)))
	require.NoError(t, store.SaveOrder(ctx, order("b", domain.SideSell, "101.25", now.Add(time.Second))))

	// saving again updates in place
	again := order("b", domain.SideSell, "101.25", now.Add(time.Second))
	again.FilledPrice = decimal.RequireFromString("101.3")
	require.NoError(t, store.SaveOrder(ctx, again))

	orders, err := store.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "b", orders[0].ID)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.True(t, orders[0].FilledPrice.Equal(decimal.RequireFromString("101.3")))
	assert.True(t, orders[1].Price.Equal(decimal.RequireFromString("100.5")))
}

func TestSQLiteStore_OrderPairs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pair := &domain.OrderPair{
		Closed:   order("buy-1", domain.SideBuy, "100", now),
		Opened:   order("sell-1", domain.SideSell, "101", now),
		Realized: decimal.NewFromInt(1),
		ClosedAt: now,
	}
	require.NoError(t, store.SaveOrderPair(ctx, pair))
	assert.Error(t, store.SaveOrderPair(ctx, &domain.OrderPair{}))

	pairs, err := store.ListOrderPairs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "buy-1", pairs[0].Closed.ID)
	assert.Equal(t, "sell-1", pairs[0].Opened.ID)
	assert.True(t, pairs[0].Realized.Equal(decimal.NewFromInt(1)))
	assert.True(t, pairs[0].Closed.FilledPrice.Equal(decimal.NewFromInt(100)))
}
