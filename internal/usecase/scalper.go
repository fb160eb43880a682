package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrNoOrder        = errors.New("scalper needs a filled order to start from")
	ErrNoTicker       = errors.New("no ticker for symbol")
	ErrAlreadyRunning = errors.New("scalper already running")
	ErrNotRunning     = errors.New("scalper not running")

	errSubmitPanicked = errors.New("order submission panicked")
)

var hundred = decimal.NewFromInt(100)

type State int

const (
	StateIdle State = iota
	StateWatching
	StateWaiting
	StateGuessingWatch
	StateGuessingWait
)

func (s State) String() string {
	switch s {
	case StateWatching:
		return "Watching"
	case StateWaiting:
		return "Waiting"
	case StateGuessingWatch:
		return "GuessingWatch"
	case StateGuessingWait:
		return "GuessingWait"
	}
	return "Idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Role selects the timer body that runs on each tick.
type Role int

const (
	RoleNone Role = iota
	RoleWatching
	RoleWatchingGuesser
	RoleWaiting
	RoleWaitingGuesser
)

type submitKind int

const (
	submitSell submitKind = iota
	submitBuy
	submitRebalance
)

func (k submitKind) String() string {
	switch k {
	case submitBuy:
		return "buy"
	case submitRebalance:
		return "rebalance"
	}
	return "sell"
}

// Mailbox events. Every event is handled to completion by the loop goroutine
// before the next one is taken.
type event interface{ isEvent() }

type quoteEvent struct{ quote domain.Quote }

type orderEvent struct {
	kind  submitKind
	order *domain.Order
	err   error
}

type selectEvent struct{ symbol string }

func (quoteEvent) isEvent()  {}
func (orderEvent) isEvent()  {}
func (selectEvent) isEvent() {}

// Status is a point in time copy of the scalper for readers outside the loop.
type Status struct {
	Running   bool            `json:"running"`
	Symbol    string          `json:"symbol"`
	State     State           `json:"state"`
	Pending   bool            `json:"pending"`
	Position  *domain.Order   `json:"position,omitempty"`
	Quote     domain.Quote    `json:"quote"`
	Stats     domain.Stats    `json:"stats"`
	Guesser   GuesserSnapshot `json:"guesser"`
	BiasRef   decimal.Decimal `json:"bias_ref"`
	WaitLoops int             `json:"wait_loops"`
	StartedAt time.Time       `json:"started_at"`
}

// session is everything owned by the loop goroutine of one run.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan event

	symbol    string
	state     State
	role      Role
	guards    map[Role]*Guard
	position  *domain.Order
	lot       decimal.Decimal
	quote     domain.Quote
	lastQuote time.Time
	lastPrice decimal.Decimal
	counter   *ReversalCounter
	biasRef   decimal.Decimal
	nextRef   decimal.Decimal
	waitLoops int

	pending  bool
	fallback State

	stats     domain.Stats
	startedAt time.Time
}

// Scalper flips a single position between long (Watching) and flat (Waiting)
// on live best bid / best ask updates.
type Scalper struct {
	feed     domain.TickFeed
	pipeline *OrderPipeline
	settings *Settings
	journal  domain.TradeRepository
	notifier domain.Notifier
	logger   *zap.Logger
	now      func() time.Time
	launch   func(func())

	runMu       sync.Mutex
	cancel      context.CancelFunc
	loopDone    chan struct{}
	unsubscribe func()
	events      chan event

	snapMu sync.RWMutex
	status Status

	// orderMu guards orders; it is the only lock around the order list.
	orderMu sync.Mutex
	orders  []*domain.Order
}

func NewScalper(feed domain.TickFeed, pipeline *OrderPipeline, settings *Settings, journal domain.TradeRepository, notifier domain.Notifier, logger *zap.Logger) *Scalper {
	return &Scalper{
		feed:     feed,
		pipeline: pipeline,
		settings: settings,
		journal:  journal,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		launch:   func(fn func()) { go fn() },
	}
}

// Start begins scalping from order, the position the user already holds. A
// buy order starts in Watching, a sell order in Waiting.
func (s *Scalper) Start(ctx context.Context, order *domain.Order) error {
	if order == nil || !order.Filled() || !order.FilledPrice.IsPositive() || !order.FilledQuantity.IsPositive() {
		return ErrNoOrder
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	set := s.settings.Get()
	if set.Symbol != order.Symbol {
		s.settings.Update(func(v *ScalperSettings) { v.Symbol = order.Symbol })
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := s.newSession(runCtx, order)
	sess.cancel = cancel

	events := sess.events
	unsubscribe, err := s.feed.SubscribeQuotes(order.Symbol, func(q domain.Quote) {
		select {
		case events <- quoteEvent{quote: q}:
		default:
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w %s: %v", ErrNoTicker, order.Symbol, err)
	}

	s.RecordOrder(order)

	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done
	s.unsubscribe = unsubscribe
	s.events = events

	if order.Side == domain.SideBuy {
		s.enterWatching(sess, order)
	} else {
		s.enterWaiting(sess, order, true)
	}
	s.publish(sess, true)

	s.logger.Info("Scalper started",
		zap.String("symbol", order.Symbol),
		zap.String("state", sess.state.String()),
		zap.Stringer("price", order.FilledPrice),
		zap.Stringer("quantity", order.FilledQuantity))
	s.notify(domain.NotifyInfo, fmt.Sprintf("Scalper started on %s in %s", order.Symbol, sess.state))

	go s.run(sess, set.TickInterval(), done)
	return nil
}

func (s *Scalper) newSession(ctx context.Context, order *domain.Order) *session {
	set := s.settings.Get()
	return &session{
		ctx:    ctx,
		events: make(chan event, 1024),
		symbol: order.Symbol,
		guards: map[Role]*Guard{
			RoleWatching:        NewGuard(),
			RoleWatchingGuesser: NewGuard(),
			RoleWaiting:         NewGuard(),
			RoleWaitingGuesser:  NewGuard(),
		},
		lot:       order.FilledQuantity,
		counter:   NewReversalCounter(set.Guesser, TrackUp, s.now),
		startedAt: s.now(),
	}
}

// Stop cancels the run from any state and returns once the scalper is Idle.
// Calling it while idle only reallocates the order guards.
func (s *Scalper) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.runMu.Unlock()

	if cancel == nil {
		s.pipeline.Reset()
		return
	}
	cancel()
	<-done
}

// SelectSymbol changes the selected symbol. Selecting another symbol while
// running stops the scalper.
func (s *Scalper) SelectSymbol(symbol string) {
	s.settings.Update(func(v *ScalperSettings) { v.Symbol = symbol })

	s.runMu.Lock()
	events := s.events
	running := s.cancel != nil
	s.runMu.Unlock()
	if !running {
		return
	}
	select {
	case events <- selectEvent{symbol: symbol}:
	default:
		s.logger.Warn("Scalper mailbox full, stopping for symbol change", zap.String("symbol", symbol))
		go s.Stop()
	}
}

func (s *Scalper) Status() Status {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	st := s.status
	if st.Position != nil {
		p := *st.Position
		st.Position = &p
	}
	return st
}

// Guards reports the free slots of the SlimBuy and SlimSell guards.
func (s *Scalper) Guards() (buy, sell int) {
	return s.pipeline.Available()
}

// RecordOrder adds an order placed outside the scalper, e.g. the user's
// manual position, to the order list.
func (s *Scalper) RecordOrder(order *domain.Order) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	for _, o := range s.orders {
		if o == order {
			return
		}
	}
	s.orders = append(s.orders, order)
}

// Orders returns copies of the order list, newest last.
func (s *Scalper) Orders() []domain.Order {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

// LatestOrder returns the newest filled order for symbol that has not been
// consumed yet.
func (s *Scalper) LatestOrder(symbol string) *domain.Order {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if o.Symbol == symbol && o.Filled() && !o.Completed {
			return o
		}
	}
	return nil
}

// PlaceManual sends a market order on behalf of the user and records it.
func (s *Scalper) PlaceManual(ctx context.Context, symbol string, side domain.Side, quantity decimal.Decimal) (*domain.Order, error) {
	order, err := s.pipeline.Submit(ctx, Submission{Symbol: symbol, Side: side, Quantity: quantity})
	if order != nil {
		s.RecordOrder(order)
	}
	return order, err
}

func (s *Scalper) complete(order *domain.Order) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	order.Completed = true
	order.Hidden = true
}

// --- loop ---

func (s *Scalper) run(sess *session, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer s.finish(sess)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			s.logger.Info("Scalper stopped", zap.String("symbol", sess.symbol))
			return
		case ev := <-sess.events:
			if s.safely(sess, "event", func() bool { return s.handle(sess, ev) }) {
				return
			}
		case <-ticker.C:
			if s.safely(sess, "timer", func() bool { return s.fire(sess) }) {
				return
			}
		}
		s.publish(sess, true)
	}
}

func (s *Scalper) finish(sess *session) {
	if sess.cancel != nil {
		sess.cancel()
	}
drain:
	for {
		select {
		case ev := <-sess.events:
			if oe, ok := ev.(orderEvent); ok {
				s.lateFill(oe.order)
			}
		default:
			break drain
		}
	}

	sess.role = RoleNone
	sess.state = StateIdle
	sess.pending = false

	s.runMu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel = nil
	s.unsubscribe = nil
	s.events = nil
	s.pipeline.Reset()
	s.runMu.Unlock()

	s.publish(sess, false)
}

// safely runs fn and turns a panic into a hard stop.
func (s *Scalper) safely(sess *session, where string, fn func() bool) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scalper died",
				zap.String("symbol", sess.symbol),
				zap.String("in", where),
				zap.String("state", sess.state.String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.notify(domain.NotifyError, fmt.Sprintf("Scalper died in %s: %v", where, r))
			stop = true
		}
	}()
	return fn()
}

func (s *Scalper) die(sess *session, reason string) bool {
	s.logger.Error("Scalper stopped on desync",
		zap.String("symbol", sess.symbol),
		zap.String("state", sess.state.String()),
		zap.String("reason", reason))
	s.notify(domain.NotifyError, fmt.Sprintf("Scalper stopped on %s: %s", sess.symbol, reason))
	return true
}

func (s *Scalper) handle(sess *session, ev event) bool {
	switch e := ev.(type) {
	case quoteEvent:
		s.onQuote(sess, e.quote)
	case orderEvent:
		return s.onOrder(sess, e)
	case selectEvent:
		if e.symbol != sess.symbol {
			s.logger.Info("Symbol deselected, stopping scalper",
				zap.String("symbol", sess.symbol),
				zap.String("selected", e.symbol))
			return true
		}
	}
	return false
}

func (s *Scalper) onQuote(sess *session, q domain.Quote) {
	if q.Symbol != sess.symbol || !q.Valid() {
		return
	}
	sess.quote = q
	sess.lastQuote = s.now()

	switch sess.state {
	case StateGuessingWatch:
		sess.lastPrice = sess.counter.Count(q.BestBid, sess.lastPrice)
	case StateGuessingWait:
		sess.lastPrice = sess.counter.Count(q.BestAsk, sess.lastPrice)
	}
}

// fire runs the body of the active role once.
func (s *Scalper) fire(sess *session) bool {
	if sess.pending || sess.role == RoleNone {
		return false
	}
	set := s.settings.Get()

	if sess.position == nil {
		return s.die(sess, "no current order")
	}
	if sess.lastQuote.IsZero() {
		if t := set.StaleQuoteTimeout(); t > 0 && s.now().Sub(sess.startedAt) > t {
			return s.die(sess, "ticker missing")
		}
		return false
	}
	if t := set.StaleQuoteTimeout(); t > 0 && s.now().Sub(sess.lastQuote) > t {
		return s.die(sess, "ticker stale")
	}

	role := sess.role
	g := sess.guards[role]
	if !g.TryAcquire() {
		s.logger.Debug("Scalper role busy", zap.Int("role", int(role)))
		return false
	}
	defer g.Release()

	sess.counter.Configure(set.Guesser)

	switch role {
	case RoleWatching:
		s.watching(sess, set)
	case RoleWatchingGuesser:
		s.watchingGuesser(sess, set)
	case RoleWaiting:
		s.waiting(sess, set)
	case RoleWaitingGuesser:
		s.waitingGuesser(sess, set)
	}
	return false
}

// --- transitions ---

func (s *Scalper) interrupt(sess *session) {
	sess.role = RoleNone
}

func (s *Scalper) enterWatching(sess *session, pos *domain.Order) {
	s.interrupt(sess)
	sess.state = StateWatching
	sess.position = pos
	sess.biasRef = pos.FilledPrice
	sess.counter.Track(TrackUp)
	sess.counter.ResetCounter()
	sess.counter.ResetGuesserStopwatch()
	sess.role = RoleWatching
}

// enterWaiting switches to the flat side. fresh restarts the wait loop count,
// which only happens after a new sell.
func (s *Scalper) enterWaiting(sess *session, pos *domain.Order, fresh bool) {
	s.interrupt(sess)
	sess.state = StateWaiting
	sess.position = pos
	if fresh {
		sess.waitLoops = 0
	}
	sess.counter.Track(TrackDown)
	sess.counter.ResetCounter()
	sess.counter.ResetGuesserStopwatch()
	sess.role = RoleWaiting
}

func (s *Scalper) enterGuessingWatch(sess *session) {
	s.interrupt(sess)
	sess.state = StateGuessingWatch
	sess.counter.Track(TrackUp)
	sess.counter.ResetCounter()
	sess.counter.ResetGuesserStopwatch()
	sess.lastPrice = sess.quote.BestBid
	sess.role = RoleWatchingGuesser
	s.logger.Info("Profit target reached, guessing",
		zap.String("symbol", sess.symbol),
		zap.Stringer("bid", sess.quote.BestBid))
}

func (s *Scalper) enterGuessingWait(sess *session) {
	s.interrupt(sess)
	sess.state = StateGuessingWait
	sess.counter.Track(TrackDown)
	sess.counter.ResetCounter()
	sess.counter.ResetGuesserStopwatch()
	sess.lastPrice = sess.quote.BestAsk
	sess.role = RoleWaitingGuesser
	s.logger.Info("Reversal reached, guessing",
		zap.String("symbol", sess.symbol),
		zap.Stringer("ask", sess.quote.BestAsk))
}

// restore re-enters the base state the engine was in before a submission.
func (s *Scalper) restore(sess *session, fallback State) {
	if fallback == StateWatching {
		s.enterWatching(sess, sess.position)
		return
	}
	s.enterWaiting(sess, sess.position, false)
}

// --- role bodies ---

func percent(diff, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	return diff.Div(base).Mul(hundred).InexactFloat64()
}

// profitPercent is the unrealized gain of the held position against the bid.
func profitPercent(sess *session) float64 {
	entry := sess.position.AveragePrice()
	return percent(sess.quote.BestBid.Sub(entry), entry)
}

// dropPercent is how far the ask fell below the last sell.
func dropPercent(sess *session) float64 {
	ref := sess.position.AveragePrice()
	return percent(ref.Sub(sess.quote.BestAsk), ref)
}

func (s *Scalper) watching(sess *session, set ScalperSettings) {
	if profitPercent(sess) >= set.SellPercent {
		if set.DontGuess {
			s.submit(sess, submitSell, domain.SideSell, sess.position.FilledQuantity, sess.quote.BestBid, StateWatching)
			return
		}
		s.enterGuessingWatch(sess)
		return
	}

	if boundary, ok := s.biasCrossed(sess, set); ok {
		s.logger.Info("Price bias crossed, rebalancing",
			zap.String("symbol", sess.symbol),
			zap.Stringer("ref", sess.biasRef),
			zap.Stringer("mid", sess.quote.Mid()),
			zap.Stringer("boundary", boundary))
		// Priced at the ask so a FOK can fill; the window recentres on the boundary.
		sess.nextRef = boundary
		s.submit(sess, submitRebalance, domain.SideBuy, sess.lot, sess.quote.BestAsk, StateWatching)
	}
}

// biasCrossed returns the window boundary the mid price moved past.
func (s *Scalper) biasCrossed(sess *session, set ScalperSettings) (decimal.Decimal, bool) {
	if set.PriceBias <= 0 || !sess.biasRef.IsPositive() {
		return decimal.Zero, false
	}
	bias := decimal.NewFromFloat(set.PriceBias)
	high := sess.biasRef.Add(bias)
	low := sess.biasRef.Sub(bias)
	mid := sess.quote.Mid()
	switch {
	case mid.GreaterThan(high):
		return high, true
	case mid.LessThan(low) && low.IsPositive():
		return low, true
	}
	return decimal.Zero, false
}

func (s *Scalper) watchingGuesser(sess *session, set ScalperSettings) {
	if profitPercent(sess) < set.SellPercent {
		s.logger.Info("Profit fell below target, back to watching", zap.String("symbol", sess.symbol))
		s.enterWatching(sess, sess.position)
		return
	}
	if sess.counter.Reversed() || sess.counter.RunExceeded(set.ReverseBeforeRepeat) {
		s.submit(sess, submitSell, domain.SideSell, sess.position.FilledQuantity, sess.quote.BestBid, StateWatching)
	}
}

func (s *Scalper) waiting(sess *session, set ScalperSettings) {
	sess.waitLoops++

	if dropPercent(sess) >= set.ReverseDownPercent {
		if set.DontGuess {
			s.submit(sess, submitBuy, domain.SideBuy, sess.position.FilledQuantity, sess.quote.BestAsk, StateWaiting)
			return
		}
		s.enterGuessingWait(sess)
		return
	}

	if set.WaitTimeCount > 0 && sess.waitLoops >= set.WaitTimeCount {
		s.logger.Info("Wait time elapsed, buying back",
			zap.String("symbol", sess.symbol),
			zap.Int("loops", sess.waitLoops),
			zap.Stringer("ask", sess.quote.BestAsk))
		s.submit(sess, submitBuy, domain.SideBuy, sess.position.FilledQuantity, sess.quote.BestAsk, StateWaiting)
	}
}

func (s *Scalper) waitingGuesser(sess *session, set ScalperSettings) {
	if dropPercent(sess) < set.ReverseDownPercent {
		s.logger.Info("Reversal faded, back to waiting", zap.String("symbol", sess.symbol))
		s.enterWaiting(sess, sess.position, false)
		return
	}
	if sess.counter.Reversed() || sess.counter.RunExceeded(set.ReverseBeforeRepeat) {
		s.submit(sess, submitBuy, domain.SideBuy, sess.position.FilledQuantity, sess.quote.BestAsk, StateWaiting)
	}
}

// --- order flow ---

// submit hands the order to the pipeline on a background goroutine and parks
// the state machine until the result arrives in the mailbox.
func (s *Scalper) submit(sess *session, kind submitKind, side domain.Side, qty, price decimal.Decimal, fallback State) {
	s.interrupt(sess)
	sess.pending = true
	sess.fallback = fallback

	sub := Submission{Symbol: sess.symbol, Side: side, Quantity: qty, Price: price}
	ctx := sess.ctx
	events := sess.events

	s.logger.Info("Submitting order",
		zap.String("kind", kind.String()),
		zap.String("symbol", sub.Symbol),
		zap.String("side", string(side)),
		zap.Stringer("quantity", qty),
		zap.Stringer("price", price))

	s.launch(func() {
		// An order already sent cannot be recalled, so the gateway call
		// outlives a stop.
		order, err := s.submitSafely(context.WithoutCancel(ctx), kind, sub)
		select {
		case <-ctx.Done():
			s.lateFill(order)
			return
		default:
		}
		select {
		case events <- orderEvent{kind: kind, order: order, err: err}:
		case <-ctx.Done():
			s.lateFill(order)
		}
	})
}

// submitSafely runs the pipeline and turns a panic into errSubmitPanicked,
// which the loop treats as a hard stop.
func (s *Scalper) submitSafely(ctx context.Context, kind submitKind, sub Submission) (order *domain.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scalper died",
				zap.String("symbol", sub.Symbol),
				zap.String("in", kind.String()+" submission"),
				zap.Any("panic", r),
				zap.Stack("stack"))
			order, err = nil, fmt.Errorf("%w: %v", errSubmitPanicked, r)
		}
	}()
	return s.pipeline.Submit(ctx, sub)
}

// lateFill records an order whose result arrived after the run ended.
func (s *Scalper) lateFill(order *domain.Order) {
	if order == nil || !order.Filled() {
		return
	}
	s.RecordOrder(order)
	s.logger.Warn("Order filled after scalper stopped",
		zap.String("id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Stringer("price", order.FilledPrice))
	s.notify(domain.NotifyError, fmt.Sprintf("Order %s filled after scalper stopped", order.ID))
}

func (s *Scalper) onOrder(sess *session, ev orderEvent) bool {
	sess.pending = false

	if errors.Is(ev.err, errSubmitPanicked) {
		s.notify(domain.NotifyError, fmt.Sprintf("Scalper died in %s on %s: %v", ev.kind, sess.symbol, ev.err))
		return true
	}

	if ev.err != nil {
		switch {
		case errors.Is(ev.err, ErrGuardBusy):
			sess.stats.Blocked++
		case errors.Is(ev.err, ErrNotFilled):
			sess.stats.Misses++
		case errors.Is(ev.err, ErrMarketNotFilled):
			sess.stats.Misses++
			s.notify(domain.NotifyError, fmt.Sprintf("Market %s on %s was not filled", ev.kind, sess.symbol))
		default:
			sess.stats.Misses++
			s.logger.Error("Order submission failed",
				zap.String("kind", ev.kind.String()),
				zap.String("symbol", sess.symbol),
				zap.Error(ev.err))
			s.notify(domain.NotifyError, fmt.Sprintf("%s on %s failed: %v", ev.kind, sess.symbol, ev.err))
		}
		if ev.order != nil {
			s.RecordOrder(ev.order)
		}
		s.restore(sess, sess.fallback)
		return false
	}

	order := ev.order
	closed := sess.position
	s.RecordOrder(order)

	pair := &domain.OrderPair{Closed: closed, Opened: order, Realized: decimal.Zero, ClosedAt: s.now()}

	switch ev.kind {
	case submitSell:
		entry := closed.AveragePrice()
		pair.Realized = order.FilledPrice.Sub(entry).Mul(order.FilledQuantity)
		sess.stats.RunningTotal = sess.stats.RunningTotal.Add(pair.Realized)
		if pair.Realized.IsPositive() {
			sess.stats.Wins++
		} else {
			sess.stats.Losses++
		}
		sess.stats.Trades++
		s.complete(closed)
		s.enterWaiting(sess, order, true)
		s.notify(domain.NotifyInfo, fmt.Sprintf("Sold %s %s at %s, realized %s",
			order.FilledQuantity, sess.symbol, order.FilledPrice, pair.Realized.StringFixed(8)))

	case submitBuy:
		sess.stats.Trades++
		s.complete(closed)
		s.enterWatching(sess, order)
		s.notify(domain.NotifyInfo, fmt.Sprintf("Bought %s %s at %s", order.FilledQuantity, sess.symbol, order.FilledPrice))

	case submitRebalance:
		merged := *order
		merged.FilledQuantity = closed.FilledQuantity.Add(order.FilledQuantity)
		merged.CumulativeQuote = closed.CumulativeQuote.Add(order.CumulativeQuote)
		sess.stats.Rebalances++
		s.complete(order)
		s.complete(closed)
		s.RecordOrder(&merged)
		pair.Opened = &merged
		s.enterWatching(sess, &merged)
		sess.biasRef = sess.nextRef
	}

	s.logger.Info("Order pair completed",
		zap.String("kind", ev.kind.String()),
		zap.String("closed", closed.ID),
		zap.String("opened", order.ID),
		zap.Stringer("realized", pair.Realized),
		zap.Stringer("running_total", sess.stats.RunningTotal),
		zap.Int("wins", sess.stats.Wins),
		zap.Int("losses", sess.stats.Losses))

	if s.journal != nil {
		if err := s.journal.SaveOrderPair(sess.ctx, pair); err != nil {
			s.logger.Error("Failed to journal order pair", zap.Error(err))
		}
	}
	return false
}

// --- output ---

func (s *Scalper) notify(level domain.NotificationLevel, msg string) {
	if s.notifier != nil {
		s.notifier.Notify(level, msg)
	}
}

func (s *Scalper) publish(sess *session, running bool) {
	st := Status{
		Running:   running,
		Symbol:    sess.symbol,
		State:     sess.state,
		Pending:   sess.pending,
		Quote:     sess.quote,
		Stats:     sess.stats,
		Guesser:   sess.counter.Snapshot(),
		BiasRef:   sess.biasRef,
		WaitLoops: sess.waitLoops,
		StartedAt: sess.startedAt,
	}
	if sess.position != nil {
		s.orderMu.Lock()
		p := *sess.position
		s.orderMu.Unlock()
		st.Position = &p
	}
	s.snapMu.Lock()
	s.status = st
	s.snapMu.Unlock()
}
