package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

func newTestAdapter(restURL, wsURL string) *BybitSpotAdapter {
	b := NewBybitSpotAdapter("key", "secret", restURL, wsURL, zap.NewNop())
	b.PollInterval = time.Millisecond
	return b
}

func TestBybit_PlaceLimitFOK_PollsUntilFinal(t *testing.T) {
	var polls int32
	var created map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))

		switch r.URL.Path {
		case "/v5/order/create":
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &created))
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"abc"}}`))
		case "/v5/order/realtime":
			assert.Equal(t, "abc", r.URL.Query().Get("orderId"))
			status := "New"
			if atomic.AddInt32(&polls, 1) > 1 {
				status = "Filled"
			}
			w.Write([]byte(`{"retCode":0,"result":{"list":[{"orderId":"abc","orderStatus":"` + status + `","avgPrice":"100.5","cumExecQty":"0.2"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := newTestAdapter(srv.URL, "")
	res, err := b.PlaceLimitFOK(context.Background(), "BTCUSDT", decimal.RequireFromString("0.2"), domain.SideBuy, decimal.RequireFromString("100.5"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "abc", res.OrderID)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.True(t, res.FilledPrice.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, res.FilledQuantity.Equal(decimal.RequireFromString("0.2")))
	assert.EqualValues(t, 2, atomic.LoadInt32(&polls))

	assert.Equal(t, "spot", created["category"])
	assert.Equal(t, "FOK", created["timeInForce"])
	assert.Equal(t, "Limit", created["orderType"])
	assert.Equal(t, "100.5", created["price"])
	assert.NotEmpty(t, created["orderLinkId"])
}

func TestBybit_PlaceMarket_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/order/create":
			w.Write([]byte(`{"retCode":0,"result":{"orderId":"m1"}}`))
		case "/v5/order/realtime":
			w.Write([]byte(`{"retCode":0,"result":{"list":[{"orderId":"m1","orderStatus":"Cancelled","avgPrice":"","cumExecQty":"0"}]}}`))
		}
	}))
	defer srv.Close()

	b := newTestAdapter(srv.URL, "")
	res, err := b.PlaceMarket(context.Background(), "BTCUSDT", decimal.NewFromInt(1), domain.SideSell)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusCancelled, res.Status)
}

func TestBybit_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":170131,"retMsg":"Insufficient balance."}`))
	}))
	defer srv.Close()

	b := newTestAdapter(srv.URL, "")
	_, err := b.PlaceMarket(context.Background(), "BTCUSDT", decimal.NewFromInt(1), domain.SideBuy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient balance")
}

func TestBybit_PollLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/order/create" {
			w.Write([]byte(`{"retCode":0,"result":{"orderId":"x"}}`))
			return
		}
		w.Write([]byte(`{"retCode":0,"result":{"list":[]}}`))
	}))
	defer srv.Close()

	b := newTestAdapter(srv.URL, "")
	b.PollAttempts = 3
	_, err := b.PlaceMarket(context.Background(), "BTCUSDT", decimal.NewFromInt(1), domain.SideBuy)
	assert.ErrorIs(t, err, ErrOrderPending)
}

func TestApplyOrderbook_SnapshotAndDelta(t *testing.T) {
	b := newTestAdapter("", "")

	q, ok := b.applyOrderbook([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{"s":"BTCUSDT","b":[["100.1","2"]],"a":[["100.2","1"]]}}`))
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.True(t, q.BestBid.Equal(decimal.RequireFromString("100.1")))
	assert.True(t, q.BestAsk.Equal(decimal.RequireFromString("100.2")))

	// A delta carrying only the ask keeps the cached bid.
	q, ok = b.applyOrderbook([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1700000000100,"data":{"s":"BTCUSDT","b":[],"a":[["100.3","1"]]}}`))
	require.True(t, ok)
	assert.True(t, q.BestBid.Equal(decimal.RequireFromString("100.1")))
	assert.True(t, q.BestAsk.Equal(decimal.RequireFromString("100.3")))

	_, ok = b.applyOrderbook([]byte(`{"op":"pong","success":true}`))
	assert.False(t, ok)
}

func TestMapOrderStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStatusFilled, mapOrderStatus("Filled"))
	assert.Equal(t, domain.OrderStatusCancelled, mapOrderStatus("PartiallyFilledCanceled"))
	assert.Equal(t, domain.OrderStatusRejected, mapOrderStatus("Rejected"))
	assert.Equal(t, domain.OrderStatusNew, mapOrderStatus("Untriggered"))
}

func TestBybit_SubscribeQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ops := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var req struct {
				Op   string   `json:"op"`
				Args []string `json:"args"`
			}
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			ops <- req.Op
			if req.Op == "subscribe" {
				c.WriteMessage(websocket.TextMessage, []byte(`{"topic":"`+req.Args[0]+`","type":"snapshot","ts":1,"data":{"s":"ETHUSDT","b":[["2000","1"]],"a":[["2001","1"]]}}`))
			}
		}
	}))
	defer srv.Close()

	b := newTestAdapter("", "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer b.Close()

	quotes := make(chan domain.Quote, 1)
	unsubscribe, err := b.SubscribeQuotes("ETHUSDT", func(q domain.Quote) { quotes <- q })
	require.NoError(t, err)

	select {
	case q := <-quotes:
		assert.Equal(t, "ETHUSDT", q.Symbol)
		assert.True(t, q.BestAsk.Equal(decimal.NewFromInt(2001)))
	case <-time.After(2 * time.Second):
		t.Fatal("no quote received")
	}
	assert.Equal(t, "subscribe", <-ops)

	unsubscribe()
	select {
	case op := <-ops:
		assert.Equal(t, "unsubscribe", op)
	case <-time.After(2 * time.Second):
		t.Fatal("no unsubscribe sent")
	}
}
