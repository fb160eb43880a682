package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Final reports whether the exchange will not change the status any more.
func (s OrderStatus) Final() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order is an order sent to the exchange. The most recent filled order that is
// not completed is the position currently held by the scalper.
type Order struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	Type            OrderType       `json:"type"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Status          OrderStatus     `json:"status"`
	FilledPrice     decimal.Decimal `json:"filled_price"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"`
	CumulativeQuote decimal.Decimal `json:"cumulative_quote"`
	Completed       bool            `json:"completed"`
	Hidden          bool            `json:"hidden"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (o *Order) Filled() bool {
	return o.Status == OrderStatusFilled
}

// AveragePrice is the quote spent (or received) per unit filled.
func (o *Order) AveragePrice() decimal.Decimal {
	if o.FilledQuantity.IsZero() {
		return o.FilledPrice
	}
	return o.CumulativeQuote.Div(o.FilledQuantity)
}

// OrderResult is what a gateway reports back for a single submission.
type OrderResult struct {
	Success        bool            `json:"success"`
	OrderID        string          `json:"order_id"`
	Status         OrderStatus     `json:"status"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
}

// OrderPair links the order consumed by a transition with the order replacing it.
type OrderPair struct {
	Closed   *Order          `json:"closed"`
	Opened   *Order          `json:"opened"`
	Realized decimal.Decimal `json:"realized"`
	ClosedAt time.Time       `json:"closed_at"`
}
