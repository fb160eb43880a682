package domain

import "github.com/shopspring/decimal"

// Stats are the running counters of one scalper session.
type Stats struct {
	RunningTotal decimal.Decimal `json:"running_total"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	Trades       int             `json:"trades"`
	Rebalances   int             `json:"rebalances"`
	Misses       int             `json:"misses"`
	Blocked      int             `json:"blocked"`
}
