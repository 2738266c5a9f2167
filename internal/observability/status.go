package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker counts requests in flight for the health endpoint. One Tracker
// is created by the server and shared by its handlers.
type Tracker struct {
	inFlight atomic.Int64

	mu          sync.RWMutex
	lastRequest time.Time
	started     time.Time
}

func NewTracker() *Tracker {
	return &Tracker{started: time.Now()}
}

// Begin marks a request as started and returns the func that ends it.
func (t *Tracker) Begin() func() {
	t.inFlight.Add(1)
	t.mu.Lock()
	t.lastRequest = time.Now()
	t.mu.Unlock()
	return func() { t.inFlight.Add(-1) }
}

// Status is a point-in-time copy of the tracker.
type Status struct {
	InFlight    int64     `json:"in_flight"`
	LastRequest time.Time `json:"last_request,omitempty"`
	Uptime      string    `json:"uptime"`
}

func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		InFlight:    t.inFlight.Load(),
		LastRequest: t.lastRequest,
		Uptime:      time.Since(t.started).Round(time.Second).String(),
	}
}
