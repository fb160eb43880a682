package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			status TEXT NOT NULL,
			filled_price TEXT NOT NULL,
			filled_quantity TEXT NOT NULL,
			cumulative_quote TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);`,
		`CREATE TABLE IF NOT EXISTS order_pairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			closed_id TEXT NOT NULL,
			closed_side TEXT NOT NULL,
			closed_price TEXT NOT NULL,
			opened_id TEXT NOT NULL,
			opened_side TEXT NOT NULL,
			opened_price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			realized TEXT NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, symbol, side, type, price, quantity, status, filled_price, filled_quantity, cumulative_quote, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  filled_price=excluded.filled_price,
			  filled_quantity=excluded.filled_quantity,
			  cumulative_quote=excluded.cumulative_quote`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Symbol, string(o.Side), string(o.Type), o.Price.String(), o.Quantity.String(), string(o.Status),
		o.FilledPrice.String(), o.FilledQuantity.String(), o.CumulativeQuote.String(), o.CreatedAt)
	return err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT id, symbol, side, type, price, quantity, status, filled_price, filled_quantity, cumulative_quote, created_at
			  FROM orders ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var (
			o                                                   domain.Order
			side, typ, status                                   string
			price, qty, filledPrice, filledQty, cumulativeQuote string
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &typ, &price, &qty, &status, &filledPrice, &filledQty, &cumulativeQuote, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		if err := parseDecimals(
			[]string{price, qty, filledPrice, filledQty, cumulativeQuote},
			&o.Price, &o.Quantity, &o.FilledPrice, &o.FilledQuantity, &o.CumulativeQuote,
		); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) SaveOrderPair(ctx context.Context, pair *domain.OrderPair) error {
	if pair.Closed == nil || pair.Opened == nil {
		return fmt.Errorf("order pair needs both orders")
	}
	closedAt := pair.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	query := `INSERT INTO order_pairs (symbol, closed_id, closed_side, closed_price, opened_id, opened_side, opened_price, quantity, realized, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		pair.Opened.Symbol,
		pair.Closed.ID, string(pair.Closed.Side), pair.Closed.AveragePrice().String(),
		pair.Opened.ID, string(pair.Opened.Side), pair.Opened.FilledPrice.String(),
		pair.Opened.FilledQuantity.String(), pair.Realized.String(), closedAt)
	return err
}

func (s *SQLiteStore) ListOrderPairs(ctx context.Context, limit int) ([]*domain.OrderPair, error) {
	query := `SELECT symbol, closed_id, closed_side, closed_price, opened_id, opened_side, opened_price, quantity, realized, closed_at
			  FROM order_pairs ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*domain.OrderPair
	for rows.Next() {
		var (
			closed, opened                          domain.Order
			symbol, closedSide, openedSide          string
			closedPrice, openedPrice, qty, realized string
			p                                       domain.OrderPair
		)
		if err := rows.Scan(&symbol, &closed.ID, &closedSide, &closedPrice, &opened.ID, &openedSide, &openedPrice, &qty, &realized, &p.ClosedAt); err != nil {
			return nil, err
		}
		closed.Symbol, opened.Symbol = symbol, symbol
		closed.Side, opened.Side = domain.Side(closedSide), domain.Side(openedSide)
		closed.Status, opened.Status = domain.OrderStatusFilled, domain.OrderStatusFilled
		if err := parseDecimals(
			[]string{closedPrice, openedPrice, qty, realized},
			&closed.FilledPrice, &opened.FilledPrice, &opened.FilledQuantity, &p.Realized,
		); err != nil {
			return nil, fmt.Errorf("order pair %s/%s: %w", closed.ID, opened.ID, err)
		}
		p.Closed, p.Opened = &closed, &opened
		pairs = append(pairs, &p)
	}
	return pairs, rows.Err()
}

func parseDecimals(values []string, out ...*decimal.Decimal) error {
	for i, v := range values {
		dec, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*out[i] = dec
	}
	return nil
}
