package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Quote is a best bid / best ask update for one symbol.
type Quote struct {
	Symbol  string          `json:"symbol"`
	BestBid decimal.Decimal `json:"best_bid"`
	BestAsk decimal.Decimal `json:"best_ask"`
	Time    time.Time       `json:"time"`
}

// Mid is the average of bid and ask.
func (q Quote) Mid() decimal.Decimal {
	return q.BestBid.Add(q.BestAsk).Div(two)
}

func (q Quote) Valid() bool {
	return q.BestBid.IsPositive() && q.BestAsk.IsPositive()
}
