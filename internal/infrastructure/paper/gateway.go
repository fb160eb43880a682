// Package paper simulates order execution against live quotes so the scalper
// can run without touching the exchange.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

var ErrNoQuote = errors.New("no quote for symbol")

// Gateway wraps a real TickFeed and fills orders against the last quote it
// forwarded. It is both a TickFeed and an OrderGateway.
type Gateway struct {
	feed   domain.TickFeed
	logger *zap.Logger

	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

func NewGateway(feed domain.TickFeed, logger *zap.Logger) *Gateway {
	return &Gateway{
		feed:   feed,
		logger: logger,
		quotes: make(map[string]domain.Quote),
	}
}

func (g *Gateway) SubscribeQuotes(symbol string, callback func(domain.Quote)) (func(), error) {
	return g.feed.SubscribeQuotes(symbol, func(q domain.Quote) {
		g.Observe(q)
		callback(q)
	})
}

// Observe stores q as the book to fill against.
func (g *Gateway) Observe(q domain.Quote) {
	if !q.Valid() {
		return
	}
	g.mu.Lock()
	g.quotes[q.Symbol] = q
	g.mu.Unlock()
}

func (g *Gateway) quote(symbol string) (domain.Quote, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	q, ok := g.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w %s", ErrNoQuote, symbol)
	}
	return q, nil
}

// PlaceLimitFOK fills at the touch when the limit crosses it and is cancelled
// otherwise.
func (g *Gateway) PlaceLimitFOK(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side, price decimal.Decimal) (*domain.OrderResult, error) {
	q, err := g.quote(symbol)
	if err != nil {
		return nil, err
	}

	var crosses bool
	var fill decimal.Decimal
	switch side {
	case domain.SideBuy:
		fill = q.BestAsk
		crosses = price.GreaterThanOrEqual(q.BestAsk)
	case domain.SideSell:
		fill = q.BestBid
		crosses = price.LessThanOrEqual(q.BestBid)
	default:
		return nil, fmt.Errorf("invalid side %q", side)
	}

	if !crosses {
		g.logger.Debug("Paper FOK killed",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Stringer("limit", price),
			zap.Stringer("bid", q.BestBid),
			zap.Stringer("ask", q.BestAsk))
		return &domain.OrderResult{OrderID: uuid.NewString(), Status: domain.OrderStatusCancelled}, nil
	}
	return g.filled(symbol, side, fill, quantity), nil
}

func (g *Gateway) PlaceMarket(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side) (*domain.OrderResult, error) {
	q, err := g.quote(symbol)
	if err != nil {
		return nil, err
	}
	switch side {
	case domain.SideBuy:
		return g.filled(symbol, side, q.BestAsk, quantity), nil
	case domain.SideSell:
		return g.filled(symbol, side, q.BestBid, quantity), nil
	}
	return nil, fmt.Errorf("invalid side %q", side)
}

func (g *Gateway) filled(symbol string, side domain.Side, price, quantity decimal.Decimal) *domain.OrderResult {
	res := &domain.OrderResult{
		Success:        true,
		OrderID:        uuid.NewString(),
		Status:         domain.OrderStatusFilled,
		FilledPrice:    price,
		FilledQuantity: quantity,
	}
	g.logger.Info("Paper order filled",
		zap.String("id", res.OrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Stringer("price", price),
		zap.Stringer("quantity", quantity))
	return res
}
