package usecase

// Guard is a binary semaphore that is only ever acquired with a zero timeout.
type Guard struct {
	slot chan struct{}
}

func NewGuard() *Guard {
	g := &Guard{slot: make(chan struct{}, 1)}
	g.slot <- struct{}{}
	return g
}

// TryAcquire takes the guard if it is free and never waits.
func (g *Guard) TryAcquire() bool {
	select {
	case <-g.slot:
		return true
	default:
		return false
	}
}

// Release frees the guard. Releasing a free guard is a no-op.
func (g *Guard) Release() {
	select {
	case g.slot <- struct{}{}:
	default:
	}
}

// Available returns 1 when the guard can be acquired and 0 otherwise.
func (g *Guard) Available() int {
	return len(g.slot)
}
