package observability

import (
	"context"
	"time"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically logs that the server is alive and how many
// requests are in flight.
type Heartbeat struct {
	Interval time.Duration
	Tracker  *Tracker
	Logger   *Logger
}

func NewHeartbeat(tracker *Tracker, logger *Logger, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = NewNop()
	}
	return &Heartbeat{Interval: interval, Tracker: tracker, Logger: logger}
}

// Start blocks until ctx is done.
func (h *Heartbeat) Start(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	var inFlight int64
	if h.Tracker != nil {
		inFlight = h.Tracker.Snapshot().InFlight
	}
	h.Logger.LogHeartbeat(inFlight)
}
