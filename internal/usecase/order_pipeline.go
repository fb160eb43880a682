package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrGuardBusy       = errors.New("order submission blocked: another order on this side is in flight")
	ErrNotFilled       = errors.New("fill-or-kill order was not filled")
	ErrMarketNotFilled = errors.New("market order reported not filled")
	ErrInvalidSide     = errors.New("invalid order side")
)

// Submission describes one order the pipeline should send. A zero Price
// always results in a market order.
type Submission struct {
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// OrderPipeline sends orders through the gateway. At most one buy and one sell
// are in flight at any time; a submission that finds its side busy is
// rejected, not queued.
type OrderPipeline struct {
	gateway  domain.OrderGateway
	journal  domain.TradeRepository
	settings *Settings
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	slimBuy  *Guard
	slimSell *Guard
}

func NewOrderPipeline(gateway domain.OrderGateway, journal domain.TradeRepository, settings *Settings, logger *zap.Logger) *OrderPipeline {
	return &OrderPipeline{
		gateway:  gateway,
		journal:  journal,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		slimBuy:  NewGuard(),
		slimSell: NewGuard(),
	}
}

func (p *OrderPipeline) guard(side domain.Side) (*Guard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch side {
	case domain.SideBuy:
		return p.slimBuy, nil
	case domain.SideSell:
		return p.slimSell, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidSide, side)
}

// Reset reallocates both guards. Submissions still in flight release the
// guard they acquired, which is no longer the pipeline's.
func (p *OrderPipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slimBuy = NewGuard()
	p.slimSell = NewGuard()
}

// Available reports the free slots of the buy and sell guards.
func (p *OrderPipeline) Available() (buy, sell int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slimBuy.Available(), p.slimSell.Available()
}

// Submit sends sub and blocks until the gateway answers. The returned order is
// non-nil whenever the gateway answered, filled or not.
func (p *OrderPipeline) Submit(ctx context.Context, sub Submission) (*domain.Order, error) {
	g, err := p.guard(sub.Side)
	if err != nil {
		return nil, err
	}
	if !g.TryAcquire() {
		p.logger.Warn("Order submission blocked",
			zap.String("symbol", sub.Symbol),
			zap.String("side", string(sub.Side)))
		return nil, ErrGuardBusy
	}
	defer g.Release()

	useFOK := p.settings.Get().UseLimitFOK && sub.Price.IsPositive()

	order := &domain.Order{
		ID:        uuid.NewString(),
		Symbol:    sub.Symbol,
		Side:      sub.Side,
		Type:      domain.OrderTypeMarket,
		Price:     sub.Price,
		Quantity:  sub.Quantity,
		Status:    domain.OrderStatusNew,
		CreatedAt: p.now(),
	}

	var res *domain.OrderResult
	if useFOK {
		order.Type = domain.OrderTypeLimit
		res, err = p.gateway.PlaceLimitFOK(ctx, sub.Symbol, sub.Quantity, sub.Side, sub.Price)
	} else {
		res, err = p.gateway.PlaceMarket(ctx, sub.Symbol, sub.Quantity, sub.Side)
	}
	if err != nil {
		return nil, fmt.Errorf("place %s %s order: %w", order.Type, sub.Side, err)
	}
	if res == nil {
		return nil, fmt.Errorf("place %s %s order: empty gateway response", order.Type, sub.Side)
	}

	if res.OrderID != "" {
		order.ID = res.OrderID
	}
	order.Status = res.Status

	if !res.Success || res.Status != domain.OrderStatusFilled {
		if useFOK {
			p.logger.Info("FOK order not filled",
				zap.String("symbol", sub.Symbol),
				zap.String("side", string(sub.Side)),
				zap.Stringer("price", sub.Price),
				zap.String("status", string(res.Status)))
			return order, ErrNotFilled
		}
		p.logger.Error("Market order not filled",
			zap.String("symbol", sub.Symbol),
			zap.String("side", string(sub.Side)),
			zap.Stringer("quantity", sub.Quantity),
			zap.String("status", string(res.Status)))
		return order, ErrMarketNotFilled
	}

	order.FilledPrice = res.FilledPrice
	if order.FilledPrice.IsZero() {
		order.FilledPrice = sub.Price
	}
	order.FilledQuantity = res.FilledQuantity
	if order.FilledQuantity.IsZero() {
		order.FilledQuantity = sub.Quantity
	}
	order.CumulativeQuote = order.FilledPrice.Mul(order.FilledQuantity)

	p.logger.Info("Order filled",
		zap.String("id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.Stringer("price", order.FilledPrice),
		zap.Stringer("quantity", order.FilledQuantity))

	if p.journal != nil {
		if err := p.journal.SaveOrder(context.WithoutCancel(ctx), order); err != nil {
			p.logger.Error("Failed to journal order", zap.String("id", order.ID), zap.Error(err))
		}
	}
	return order, nil
}
