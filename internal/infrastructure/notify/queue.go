package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

type Notification struct {
	Level   domain.NotificationLevel `json:"level"`
	Message string                   `json:"message"`
	Time    time.Time                `json:"time"`
}

// Queue is a domain.Notifier that never blocks the caller. Messages that do
// not fit the buffer are dropped and counted.
type Queue struct {
	ch      chan Notification
	logger  *zap.Logger
	keep    int
	dropped atomic.Int64

	mu     sync.RWMutex
	recent []Notification
}

func NewQueue(size, keep int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		ch:     make(chan Notification, size),
		logger: logger,
		keep:   keep,
	}
}

func (q *Queue) Notify(level domain.NotificationLevel, message string) {
	select {
	case q.ch <- Notification{Level: level, Message: message, Time: time.Now()}:
	default:
		q.dropped.Add(1)
	}
}

// Run drains the queue until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.ch:
			q.deliver(n)
		}
	}
}

func (q *Queue) deliver(n Notification) {
	if n.Level == domain.NotifyError {
		q.logger.Error("Notification", zap.String("message", n.Message))
	} else {
		q.logger.Info("Notification", zap.String("message", n.Message))
	}

	if q.keep <= 0 {
		return
	}
	q.mu.Lock()
	q.recent = append(q.recent, n)
	if len(q.recent) > q.keep {
		q.recent = q.recent[len(q.recent)-q.keep:]
	}
	q.mu.Unlock()
}

// Recent returns the delivered notifications, newest last.
func (q *Queue) Recent() []Notification {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Notification, len(q.recent))
	copy(out, q.recent)
	return out
}

func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
