package usecase

import (
	"sync"
	"time"
)

// GuesserSettings tune the reversal counter.
type GuesserSettings struct {
	UpWeight     float64 `yaml:"up_weight" json:"up_weight"`
	DownWeight   float64 `yaml:"down_weight" json:"down_weight"`
	Decay        float64 `yaml:"decay" json:"decay"`
	ReverseBias  float64 `yaml:"reverse_bias" json:"reverse_bias"`
	ResetAfterMs int64   `yaml:"reset_after_ms" json:"reset_after_ms"`
	ResetBias    float64 `yaml:"reset_bias" json:"reset_bias"`
	MaxNewHighs  int     `yaml:"max_new_highs" json:"max_new_highs"`
	MaxNewLows   int     `yaml:"max_new_lows" json:"max_new_lows"`
	MaxTotalLows int     `yaml:"max_total_lows" json:"max_total_lows"`
}

func (g GuesserSettings) ResetAfter() time.Duration {
	return time.Duration(g.ResetAfterMs) * time.Millisecond
}

// ScalperSettings are the tunables of the scalper. Percentages are plain
// percent values, so 1.5 means 1.5%.
type ScalperSettings struct {
	Symbol              string          `yaml:"symbol" json:"symbol"`
	SellPercent         float64         `yaml:"sell_percent" json:"sell_percent"`
	ReverseDownPercent  float64         `yaml:"reverse_down_percent" json:"reverse_down_percent"`
	PriceBias           float64         `yaml:"price_bias" json:"price_bias"`
	WaitTimeCount       int             `yaml:"wait_time_count" json:"wait_time_count"`
	UseLimitFOK         bool            `yaml:"use_limit_fok" json:"use_limit_fok"`
	DontGuess           bool            `yaml:"dont_guess" json:"dont_guess"`
	ReverseBeforeRepeat bool            `yaml:"reverse_before_repeat" json:"reverse_before_repeat"`
	TickIntervalMs      int64           `yaml:"tick_interval_ms" json:"tick_interval_ms"`
	StaleQuoteMs        int64           `yaml:"stale_quote_ms" json:"stale_quote_ms"`
	Guesser             GuesserSettings `yaml:"guesser" json:"guesser"`
}

func DefaultScalperSettings() ScalperSettings {
	return ScalperSettings{
		Symbol:             "BTCUSDT",
		SellPercent:        0.5,
		ReverseDownPercent: 0.5,
		WaitTimeCount:      0,
		UseLimitFOK:        true,
		TickIntervalMs:     1,
		StaleQuoteMs:       30000,
		Guesser: GuesserSettings{
			UpWeight:     1,
			DownWeight:   1,
			Decay:        0.95,
			ReverseBias:  3,
			ResetAfterMs: 3000,
			MaxNewLows:   5,
		},
	}
}

func (s ScalperSettings) TickInterval() time.Duration {
	if s.TickIntervalMs <= 0 {
		return time.Millisecond
	}
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

func (s ScalperSettings) StaleQuoteTimeout() time.Duration {
	return time.Duration(s.StaleQuoteMs) * time.Millisecond
}

// Settings is the live, mutable settings object shared between the engine and
// whatever edits it (config loader, control API).
type Settings struct {
	mu     sync.RWMutex
	values ScalperSettings
}

func NewSettings(values ScalperSettings) *Settings {
	return &Settings{values: values}
}

func (s *Settings) Get() ScalperSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

func (s *Settings) Set(values ScalperSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
}

// Update applies fn to the current values under the write lock.
func (s *Settings) Update(fn func(*ScalperSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.values)
}
