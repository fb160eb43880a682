package usecase

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type gatewayCall struct {
	Type     domain.OrderType
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// MockGateway fills every order at its limit price, or at MarketPrice for
// market orders, unless Fill says otherwise.
type MockGateway struct {
	mu          sync.Mutex
	Calls       []gatewayCall
	MarketPrice decimal.Decimal
	Fill        func(call gatewayCall) (*domain.OrderResult, error)
}

func (m *MockGateway) place(call gatewayCall) (*domain.OrderResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	fill := m.Fill
	m.mu.Unlock()

	if fill != nil {
		return fill(call)
	}
	price := call.Price
	if call.Type == domain.OrderTypeMarket {
		price = m.MarketPrice
	}
	return &domain.OrderResult{
		Success:        true,
		Status:         domain.OrderStatusFilled,
		FilledPrice:    price,
		FilledQuantity: call.Quantity,
	}, nil
}

func (m *MockGateway) PlaceLimitFOK(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side, price decimal.Decimal) (*domain.OrderResult, error) {
	return m.place(gatewayCall{Type: domain.OrderTypeLimit, Symbol: symbol, Side: side, Quantity: quantity, Price: price})
}

func (m *MockGateway) PlaceMarket(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side) (*domain.OrderResult, error) {
	return m.place(gatewayCall{Type: domain.OrderTypeMarket, Symbol: symbol, Side: side, Quantity: quantity})
}

func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockGateway) LastCall() gatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[len(m.Calls)-1]
}

func notFilled(call gatewayCall) (*domain.OrderResult, error) {
	return &domain.OrderResult{Success: false, Status: domain.OrderStatusCancelled}, nil
}

type MockFeed struct {
	mu           sync.Mutex
	callbacks    map[string]func(domain.Quote)
	Unsubscribed int
	Err          error
}

func (f *MockFeed) SubscribeQuotes(symbol string, callback func(domain.Quote)) (func(), error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callbacks == nil {
		f.callbacks = make(map[string]func(domain.Quote))
	}
	f.callbacks[symbol] = callback
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.callbacks, symbol)
		f.Unsubscribed++
	}, nil
}

func (f *MockFeed) Push(symbol, bid, ask string) {
	f.mu.Lock()
	cb := f.callbacks[symbol]
	f.mu.Unlock()
	if cb != nil {
		cb(domain.Quote{Symbol: symbol, BestBid: d(bid), BestAsk: d(ask)})
	}
}

func (f *MockFeed) UnsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Unsubscribed
}

type MockJournal struct {
	mu     sync.Mutex
	Orders []*domain.Order
	Pairs  []*domain.OrderPair
}

func (j *MockJournal) SaveOrder(ctx context.Context, order *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Orders = append(j.Orders, order)
	return nil
}

func (j *MockJournal) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Orders, nil
}

func (j *MockJournal) SaveOrderPair(ctx context.Context, pair *domain.OrderPair) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Pairs = append(j.Pairs, pair)
	return nil
}

func (j *MockJournal) ListOrderPairs(ctx context.Context, limit int) ([]*domain.OrderPair, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Pairs, nil
}

type MockNotifier struct {
	mu       sync.Mutex
	Messages []string
	Errors   int
}

func (n *MockNotifier) Notify(level domain.NotificationLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, message)
	if level == domain.NotifyError {
		n.Errors++
	}
}

func (n *MockNotifier) ErrorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Errors
}
