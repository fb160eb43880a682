package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/spot"

	recvWindow   = 5000
	pingInterval = 20 * time.Second
)

var ErrOrderPending = errors.New("order status not final")

// BybitSpotAdapter is a TickFeed and OrderGateway for Bybit spot.
type BybitSpotAdapter struct {
	apiKey    string
	apiSecret string
	wsURL     string
	client    *resty.Client
	logger    *zap.Logger

	// PollInterval and PollAttempts bound the wait for a final order status.
	PollInterval time.Duration
	PollAttempts int

	mu          sync.Mutex
	wsConn      *websocket.Conn
	wsDone      chan struct{}
	nextID      int
	subscribers map[string]map[int]func(domain.Quote)
	books       map[string]domain.Quote
}

func NewBybitSpotAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BybitSpotAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return &BybitSpotAdapter{
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		wsURL:        wsURL,
		client:       resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		logger:       logger,
		PollInterval: 200 * time.Millisecond,
		PollAttempts: 10,
		subscribers:  make(map[string]map[int]func(domain.Quote)),
		books:        make(map[string]domain.Quote),
	}
}

// --- REST API ---

func (b *BybitSpotAdapter) sign(params string, timestamp int64) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitSpotAdapter) signed(ctx context.Context, params string) *resty.Request {
	timestamp := time.Now().UnixMilli()
	return b.client.R().
		SetContext(ctx).
		SetHeader("X-BAPI-API-KEY", b.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10)).
		SetHeader("X-BAPI-SIGN", b.sign(params, timestamp)).
		SetHeader("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow)).
		SetHeader("Content-Type", "application/json")
}

func (b *BybitSpotAdapter) post(ctx context.Context, path string, payload map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := b.signed(ctx, string(body)).SetBody(body).Post(path)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func (b *BybitSpotAdapter) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	qs := query.Encode()
	resp, err := b.signed(ctx, qs).SetQueryString(qs).Get(path)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *resty.Response) (json.RawMessage, error) {
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("API error: %s", resp.String())
	}
	var result apiResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", result.RetCode, result.RetMsg)
	}
	return result.Result, nil
}

func (b *BybitSpotAdapter) PlaceLimitFOK(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side, price decimal.Decimal) (*domain.OrderResult, error) {
	return b.placeOrder(ctx, map[string]interface{}{
		"category":    "spot",
		"symbol":      symbol,
		"side":        string(side),
		"orderType":   "Limit",
		"qty":         quantity.String(),
		"price":       price.String(),
		"timeInForce": "FOK",
	})
}

func (b *BybitSpotAdapter) PlaceMarket(ctx context.Context, symbol string, quantity decimal.Decimal, side domain.Side) (*domain.OrderResult, error) {
	return b.placeOrder(ctx, map[string]interface{}{
		"category":   "spot",
		"symbol":     symbol,
		"side":       string(side),
		"orderType":  "Market",
		"qty":        quantity.String(),
		"marketUnit": "baseCoin",
	})
}

func (b *BybitSpotAdapter) placeOrder(ctx context.Context, payload map[string]interface{}) (*domain.OrderResult, error) {
	linkID := uuid.NewString()
	payload["orderLinkId"] = linkID

	raw, err := b.post(ctx, "/v5/order/create", payload)
	if err != nil {
		return nil, err
	}
	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < b.PollAttempts; attempt++ {
		res, err := b.getOrder(ctx, payload["symbol"].(string), created.OrderID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrOrderPending) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.PollInterval):
		}
	}
	return nil, fmt.Errorf("order %s: %w after %d polls", created.OrderID, ErrOrderPending, b.PollAttempts)
}

func (b *BybitSpotAdapter) getOrder(ctx context.Context, symbol, orderID string) (*domain.OrderResult, error) {
	query := url.Values{}
	query.Set("category", "spot")
	query.Set("symbol", symbol)
	query.Set("orderId", orderID)

	raw, err := b.get(ctx, "/v5/order/realtime", query)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderStatus string `json:"orderStatus"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, ErrOrderPending
	}

	item := result.List[0]
	status := mapOrderStatus(item.OrderStatus)
	if !status.Final() {
		return nil, ErrOrderPending
	}
	avg, _ := decimal.NewFromString(item.AvgPrice)
	qty, _ := decimal.NewFromString(item.CumExecQty)
	return &domain.OrderResult{
		Success:        status == domain.OrderStatusFilled,
		OrderID:        item.OrderID,
		Status:         status,
		FilledPrice:    avg,
		FilledQuantity: qty,
	}, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "Filled":
		return domain.OrderStatusFilled
	case "PartiallyFilled":
		return domain.OrderStatusPartiallyFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return domain.OrderStatusCancelled
	case "Rejected":
		return domain.OrderStatusRejected
	}
	return domain.OrderStatusNew
}

// --- WebSocket ---

func (b *BybitSpotAdapter) SubscribeQuotes(symbol string, callback func(domain.Quote)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn == nil {
		if err := b.connect(); err != nil {
			return nil, err
		}
	}

	subs := b.subscribers[symbol]
	if subs == nil {
		subs = make(map[int]func(domain.Quote))
		b.subscribers[symbol] = subs
		if err := b.send("subscribe", symbol); err != nil {
			delete(b.subscribers, symbol)
			return nil, err
		}
	}
	id := b.nextID
	b.nextID++
	subs[id] = callback

	return func() { b.unsubscribe(symbol, id) }, nil
}

func (b *BybitSpotAdapter) unsubscribe(symbol string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[symbol]
	if subs == nil {
		return
	}
	delete(subs, id)
	if len(subs) > 0 {
		return
	}
	delete(b.subscribers, symbol)
	delete(b.books, symbol)
	if b.wsConn != nil {
		if err := b.send("unsubscribe", symbol); err != nil {
			b.logger.Warn("Failed to unsubscribe", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// connect must be called with b.mu held.
func (b *BybitSpotAdapter) connect() error {
	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.wsConn = c
	b.wsDone = make(chan struct{})

	go b.readLoop(c, b.wsDone)
	go b.pingLoop(c, b.wsDone)
	return nil
}

// send must be called with b.mu held.
func (b *BybitSpotAdapter) send(op, symbol string) error {
	return b.wsConn.WriteJSON(map[string]interface{}{
		"op":   op,
		"args": []string{"orderbook.1." + symbol},
	})
}

// Close drops the websocket connection and all subscriptions.
func (b *BybitSpotAdapter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsConn == nil {
		return nil
	}
	err := b.wsConn.Close()
	b.wsConn = nil
	b.subscribers = make(map[string]map[int]func(domain.Quote))
	return err
}

func (b *BybitSpotAdapter) pingLoop(c *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.mu.Lock()
			err := c.WriteJSON(map[string]string{"op": "ping"})
			b.mu.Unlock()
			if err != nil {
				b.logger.Warn("WS ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (b *BybitSpotAdapter) readLoop(c *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		c.Close()
		b.mu.Lock()
		if b.wsConn == c {
			// Subscriptions die with the connection; callers resubscribe.
			b.wsConn = nil
			b.subscribers = make(map[string]map[int]func(domain.Quote))
			b.books = make(map[string]domain.Quote)
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			b.logger.Warn("WS read error", zap.Error(err))
			return
		}

		b.mu.Lock()
		quote, ok := b.applyOrderbook(message)
		var callbacks []func(domain.Quote)
		if ok {
			for _, cb := range b.subscribers[quote.Symbol] {
				callbacks = append(callbacks, cb)
			}
		}
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(quote)
		}
	}
}

type orderbookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	TS    int64  `json:"ts"`
	Data  struct {
		S string     `json:"s"`
		B [][]string `json:"b"`
		A [][]string `json:"a"`
	} `json:"data"`
}

// applyOrderbook merges a level 1 orderbook message into the cached book and
// returns the resulting quote. Must be called with b.mu held.
func (b *BybitSpotAdapter) applyOrderbook(message []byte) (domain.Quote, bool) {
	var msg orderbookMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return domain.Quote{}, false
	}
	if !strings.HasPrefix(msg.Topic, "orderbook.1.") {
		return domain.Quote{}, false
	}
	symbol := strings.TrimPrefix(msg.Topic, "orderbook.1.")

	q := b.books[symbol]
	if msg.Type == "snapshot" {
		q = domain.Quote{}
	}
	q.Symbol = symbol
	if p, ok := topLevel(msg.Data.B); ok {
		q.BestBid = p
	}
	if p, ok := topLevel(msg.Data.A); ok {
		q.BestAsk = p
	}
	q.Time = time.UnixMilli(msg.TS)
	b.books[symbol] = q

	return q, q.Valid()
}

func topLevel(levels [][]string) (decimal.Decimal, bool) {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return decimal.Zero, false
	}
	size, err := decimal.NewFromString(levels[0][1])
	if err != nil || size.IsZero() {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(levels[0][0])
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}
