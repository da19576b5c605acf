package logic

import "time"

// Tally counts key events. Not safe for concurrent use.
type Tally struct {
	counts EventCounts
}

// NewTally creates an empty Tally.
func NewTally() *Tally {
	return &Tally{counts: make(EventCounts)}
}

// Record counts a single event.
func (t *Tally) Record(e Event) {
	kc := t.counts[e.Key.ID]
	switch e.Type {
	case EventPressed:
		kc.Presses++
	case EventReleased:
		kc.Releases++
	}
	t.counts[e.Key.ID] = kc
}

// Snapshot returns a copy of the counts.
func (t *Tally) Snapshot() EventCounts {
	out := make(EventCounts, len(t.counts))
	for id, kc := range t.counts {
		out[id] = kc
	}
	return out
}

// Heartbeat decides when a periodic heartbeat is due.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewHeartbeat creates a Heartbeat. The startTime is used for calculating
// uptime and as the reference for the first interval.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{startTime: startTime, lastHeartbeat: startTime}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed, or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration, counts EventCounts) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
