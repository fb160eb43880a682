package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TickFeed delivers best bid / best ask updates for a symbol.
type TickFeed interface {
	// SubscribeQuotes registers callback for symbol and returns a function
	// that removes it again.
	SubscribeQuotes(symbol string, callback func(Quote)) (unsubscribe func(), err error)
}

// OrderGateway places orders on the exchange. Orders that do not fill must be
// reported as such and never retried by the gateway.
type OrderGateway interface {
	PlaceLimitFOK(ctx context.Context, symbol string, quantity decimal.Decimal, side Side, price decimal.Decimal) (*OrderResult, error)
	PlaceMarket(ctx context.Context, symbol string, quantity decimal.Decimal, side Side) (*OrderResult, error)
}

// TradeRepository defines storage operations for the trade journal.
type TradeRepository interface {
	SaveOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, limit int) ([]*Order, error)

	SaveOrderPair(ctx context.Context, pair *OrderPair) error
	ListOrderPairs(ctx context.Context, limit int) ([]*OrderPair, error)
}

type NotificationLevel string

const (
	NotifyInfo  NotificationLevel = "info"
	NotifyError NotificationLevel = "error"
)

// Notifier receives user visible messages. Implementations must not block.
type Notifier interface {
	Notify(level NotificationLevel, message string)
}
