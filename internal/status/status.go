// Package status provides a thread-safe status tracker for the keypad-matrix daemon.
// It is read by HTTP handlers and lifecycle events while the drive loop writes it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad-matrix/internal/logic"
	"github.com/sweeney/keypad-matrix/internal/matrix"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Rows         int
	Cols         int
	ScanPeriodMs int64
	SettleUs     int64
	HeartbeatMs  int64
	Broker       string
	HTTPPort     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
}

// KeyStatus is the last reported state of a monitored key.
// An empty State means no scan has completed yet.
type KeyStatus struct {
	Key   logic.KeySpec
	State logic.State
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Keys          []KeyStatus
	Ready         bool
	Counts        logic.EventCounts
	Scan          matrix.Stats
	BootID        string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for the given monitored keys.
func NewTracker(startTime time.Time, bootID string, keys []logic.KeySpec, cfg Config) *Tracker {
	ks := make([]KeyStatus, len(keys))
	for i, k := range keys {
		ks[i] = KeyStatus{Key: k}
	}
	return &Tracker{
		snap: Snapshot{
			Keys:      ks,
			Counts:    logic.EventCounts{},
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetKey records the latest state of one key. Unknown IDs are ignored.
func (t *Tracker) SetKey(id logic.KeyID, state logic.State) {
	t.mu.Lock()
	for i := range t.snap.Keys {
		if t.snap.Keys[i].Key.ID == id {
			t.snap.Keys[i].State = state
		}
	}
	t.mu.Unlock()
}

// SetCounts replaces the event counts.
func (t *Tracker) SetCounts(counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetScanStats records scan counters.
func (t *Tracker) SetScanStats(stats matrix.Stats) {
	t.mu.Lock()
	t.snap.Scan = stats
	t.mu.Unlock()
}

// SetReady marks the tracker ready after the first completed pass. Keys with
// no reported state take the level the scanner latched for them, so a key held
// at startup shows as pressed before its consumer reports the press.
func (t *Tracker) SetReady(pressed func(logic.KeySpec) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Ready {
		return
	}
	t.snap.Ready = true
	for i := range t.snap.Keys {
		ks := &t.snap.Keys[i]
		if ks.State != "" {
			continue
		}
		ks.State = logic.StateReleased
		if pressed(ks.Key) {
			ks.State = logic.StatePressed
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Keys = append([]KeyStatus(nil), t.snap.Keys...)
	s.Counts = make(logic.EventCounts, len(t.snap.Counts))
	for id, kc := range t.snap.Counts {
		s.Counts[id] = kc
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
