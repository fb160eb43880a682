package usecase

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the price direction a ReversalCounter counts as favourable.
type Direction int

const (
	TrackUp Direction = iota
	TrackDown
)

func (d Direction) String() string {
	if d == TrackDown {
		return "down"
	}
	return "up"
}

// ReversalCounter keeps a decaying bias of tick directions. Highs and lows are
// relative to the tracked direction: a new high is a tick that moves the way
// the counter is tracking.
//
// It is not safe for concurrent use.
type ReversalCounter struct {
	settings  GuesserSettings
	direction Direction

	newHighs   int
	newLows    int
	totalHighs int
	totalLows  int
	bias       float64

	started time.Time
	now     func() time.Time
}

// GuesserSnapshot is a copy of the counter state for status reporting.
type GuesserSnapshot struct {
	Direction  string  `json:"direction"`
	Bias       float64 `json:"bias"`
	NewHighs   int     `json:"new_highs"`
	NewLows    int     `json:"new_lows"`
	TotalHighs int     `json:"total_highs"`
	TotalLows  int     `json:"total_lows"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

func NewReversalCounter(settings GuesserSettings, direction Direction, now func() time.Time) *ReversalCounter {
	if now == nil {
		now = time.Now
	}
	return &ReversalCounter{
		settings:  settings,
		direction: direction,
		started:   now(),
		now:       now,
	}
}

// Configure swaps the tunables without touching the counters.
func (c *ReversalCounter) Configure(settings GuesserSettings) {
	c.settings = settings
}

// Track changes the favourable direction.
func (c *ReversalCounter) Track(direction Direction) {
	c.direction = direction
}

// Count folds one price move into the counter and returns the price to pass
// as last on the next call.
func (c *ReversalCounter) Count(current, last decimal.Decimal) decimal.Decimal {
	if last.IsZero() {
		return current
	}
	if current.Equal(last) {
		return last
	}

	if ra := c.settings.ResetAfter(); ra > 0 && c.now().Sub(c.started) >= ra {
		c.bias = c.settings.ResetBias
		c.started = c.now()
	}

	if d := c.settings.Decay; d > 0 && d < 1 {
		c.bias *= d
	}

	favourable := current.GreaterThan(last)
	if c.direction == TrackDown {
		favourable = current.LessThan(last)
	}

	if favourable {
		c.bias += c.settings.UpWeight
		c.newHighs++
		c.totalHighs++
		if c.newLows > 0 {
			c.newLows--
		}
	} else {
		c.bias -= c.settings.DownWeight
		c.newLows++
		c.totalLows++
		if c.newHighs > 0 {
			c.newHighs--
		}
	}
	return current
}

// ResetCounter zeroes the run counters and the bias. The stopwatch keeps running.
func (c *ReversalCounter) ResetCounter() {
	c.newHighs = 0
	c.newLows = 0
	c.totalHighs = 0
	c.totalLows = 0
	c.bias = 0
}

// ResetGuesserStopwatch restarts the elapsed time clock only.
func (c *ReversalCounter) ResetGuesserStopwatch() {
	c.started = c.now()
}

// Reversed reports a sustained move against the tracked direction. The
// threshold is always negative; a zero threshold never fires.
func (c *ReversalCounter) Reversed() bool {
	threshold := -math.Abs(c.settings.ReverseBias)
	if threshold == 0 {
		return false
	}
	return c.bias <= threshold
}

// RunExceeded reports whether one of the run length limits was passed. With
// reverseBeforeRepeat a run of new highs never settles on its own.
func (c *ReversalCounter) RunExceeded(reverseBeforeRepeat bool) bool {
	s := c.settings
	if s.MaxNewLows > 0 && c.newLows > s.MaxNewLows {
		return true
	}
	if s.MaxTotalLows > 0 && c.totalLows > s.MaxTotalLows {
		return true
	}
	if !reverseBeforeRepeat && s.MaxNewHighs > 0 && c.newHighs > s.MaxNewHighs {
		return true
	}
	return false
}

func (c *ReversalCounter) Bias() float64 {
	return c.bias
}

func (c *ReversalCounter) Snapshot() GuesserSnapshot {
	return GuesserSnapshot{
		Direction:  c.direction.String(),
		Bias:       c.bias,
		NewHighs:   c.newHighs,
		NewLows:    c.newLows,
		TotalHighs: c.totalHighs,
		TotalLows:  c.totalLows,
		ElapsedMs:  c.now().Sub(c.started).Milliseconds(),
	}
}
