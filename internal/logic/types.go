// Package logic contains the per-key consumer task and the bookkeeping built
// on its events.
// This package has NO hardware or network dependencies.
// Time is always injectable via time.Time parameters or a now func.
package logic

import "time"

// KeyID is the user-facing number of a monitored key.
type KeyID int

// KeySpec places a monitored key in the matrix.
type KeySpec struct {
	ID  KeyID
	Row int
	Col int
}

// DefaultKeys are the monitored keys, fixed by the keypad wiring.
var DefaultKeys = []KeySpec{
	{ID: 1, Row: 0, Col: 0},
	{ID: 2, Row: 0, Col: 1},
	{ID: 3, Row: 1, Col: 0},
	{ID: 4, Row: 1, Col: 1},
}

// State represents the logical state of a key.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// EventType represents a key transition.
type EventType string

const (
	EventPressed  EventType = "KEY_PRESSED"
	EventReleased EventType = "KEY_RELEASED"
)

// Event represents a key transition to be published.
type Event struct {
	Timestamp time.Time
	Key       KeySpec
	Type      EventType
}

// State returns the key state after the event.
func (e Event) State() State {
	if e.Type == EventPressed {
		return StatePressed
	}
	return StateReleased
}

// KeyCounts tracks transitions of a single key.
type KeyCounts struct {
	Presses  int
	Releases int
}

// EventCounts tracks transitions per key since startup.
type EventCounts map[KeyID]KeyCounts

// Total returns the number of presses and releases across all keys.
func (c EventCounts) Total() (presses, releases int) {
	for _, kc := range c {
		presses += kc.Presses
		releases += kc.Releases
	}
	return presses, releases
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
