package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/keypad-matrix/internal/gpio"
	"github.com/sweeney/keypad-matrix/internal/logic"
	"github.com/sweeney/keypad-matrix/internal/matrix"
	"github.com/sweeney/keypad-matrix/internal/mqtt"
	"github.com/sweeney/keypad-matrix/internal/notify"
	"github.com/sweeney/keypad-matrix/internal/status"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig wires a fake 2x2 grid through the scanner to one Watch goroutine per
// default key. The test goroutine plays the drive loop.
type rig struct {
	fake   *gpio.FakeMatrix
	m      *matrix.Matrix
	events chan logic.Event
}

func newRig(t *testing.T) *rig {
	t.Helper()
	f := gpio.NewFakeMatrix(2, 2)
	r := &rig{
		fake:   f,
		m:      matrix.New(f.Inputs(), f.Outputs(), matrix.WithSleep(f.Sleep)),
		events: make(chan logic.Event, 16),
	}
	for _, spec := range logic.DefaultKeys {
		key, err := r.m.Bind(spec.Row, spec.Col, notify.New())
		if err != nil {
			t.Fatalf("bind key %d: %v", spec.ID, err)
		}
		go logic.Watch(spec, key, time.Now, func(e logic.Event) { r.events <- e })
	}
	return r
}

func (r *rig) next(t *testing.T) logic.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for key event")
		return logic.Event{}
	}
}

func (r *rig) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event: key %d %s", e.Key.ID, e.Type)
	case <-time.After(30 * time.Millisecond):
	}
}

func expectEvent(t *testing.T, e logic.Event, id logic.KeyID, typ logic.EventType) {
	t.Helper()
	if e.Key.ID != id || e.Type != typ {
		t.Errorf("expected key %d %s, got key %d %s", id, typ, e.Key.ID, e.Type)
	}
}

// TestIntegrationFullFlow drives switch changes through the scanner, the key
// consumers and the publisher.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t)
	publisher := mqtt.NewFakePublisher()
	publisher.BootID = "boot-1"

	r.m.Scan()
	r.expectNone(t)

	steps := []struct {
		act  func()
		id   logic.KeyID
		want logic.EventType
	}{
		{func() { r.fake.Press(0, 0) }, 1, logic.EventPressed},
		{func() { r.fake.Press(1, 1) }, 4, logic.EventPressed},
		{func() { r.fake.Release(0, 0) }, 1, logic.EventReleased},
		{func() { r.fake.Release(1, 1) }, 4, logic.EventReleased},
	}
	for i, s := range steps {
		s.act()
		r.m.Scan()
		e := r.next(t)
		expectEvent(t, e, s.id, s.want)
		if err := publisher.Publish(e); err != nil {
			t.Fatalf("step %d: publish error: %v", i, err)
		}
	}
	r.expectNone(t)

	if len(publisher.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(publisher.Events))
	}
	for i, payload := range publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Fatalf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Key.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if parsed.Key.BootID != "boot-1" {
			t.Errorf("payload %d: boot_id %q", i, parsed.Key.BootID)
		}
		wantState := "PRESSED"
		if i >= 2 {
			wantState = "RELEASED"
		}
		if parsed.Key.State != wantState {
			t.Errorf("payload %d: state %q, want %q", i, parsed.Key.State, wantState)
		}
	}
}

// TestIntegrationNoEventsWhileIdle verifies repeated passes over an idle grid
// stay silent.
func TestIntegrationNoEventsWhileIdle(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 10; i++ {
		r.m.Scan()
	}
	r.expectNone(t)

	if st := r.m.Stats(); st.Passes != 10 || st.ReadFaults != 0 || st.WriteFaults != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// TestIntegrationHeldAtStartup verifies a switch closed before the first pass
// reports a press on that pass.
func TestIntegrationHeldAtStartup(t *testing.T) {
	r := newRig(t)
	r.fake.Press(0, 1)

	r.m.Scan()
	expectEvent(t, r.next(t), 2, logic.EventPressed)

	r.m.Scan()
	r.expectNone(t)
}

// TestIntegrationHeldKeyStaysQuiet verifies a key held across many passes
// produces a single press.
func TestIntegrationHeldKeyStaysQuiet(t *testing.T) {
	r := newRig(t)
	r.fake.Press(1, 0)
	for i := 0; i < 5; i++ {
		r.m.Scan()
	}
	expectEvent(t, r.next(t), 3, logic.EventPressed)
	r.expectNone(t)
}

// TestIntegrationMultipleKeysOnePass verifies every switch closed during a
// pass is reported, with no limit on simultaneous keys.
func TestIntegrationMultipleKeysOnePass(t *testing.T) {
	r := newRig(t)
	r.fake.Press(0, 0)
	r.fake.Press(0, 1)
	r.fake.Press(1, 0)

	r.m.Scan()

	seen := map[logic.KeyID]logic.EventType{}
	for i := 0; i < 3; i++ {
		e := r.next(t)
		seen[e.Key.ID] = e.Type
	}
	r.expectNone(t)
	for id := logic.KeyID(1); id <= 3; id++ {
		if seen[id] != logic.EventPressed {
			t.Errorf("key %d: expected press, got %q", id, seen[id])
		}
	}
}

// TestIntegrationQuickTapCollapses verifies that a press and release both
// seen before the consumer looks collapse to the latest level.
func TestIntegrationQuickTapCollapses(t *testing.T) {
	f := gpio.NewFakeMatrix(2, 2)
	m := matrix.New(f.Inputs(), f.Outputs(), matrix.WithSleep(f.Sleep))
	spec := logic.KeySpec{ID: 9, Row: 1, Col: 1}
	key, err := m.Bind(spec.Row, spec.Col, notify.New())
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	f.Press(1, 1)
	m.Scan()
	f.Release(1, 1)
	m.Scan()

	events := make(chan logic.Event, 4)
	go logic.Watch(spec, key, time.Now, func(e logic.Event) { events <- e })

	select {
	case e := <-events:
		t.Fatalf("tap should have collapsed, got %s", e.Type)
	case <-time.After(30 * time.Millisecond):
	}

	f.Press(1, 1)
	m.Scan()
	select {
	case e := <-events:
		if e.Type != logic.EventPressed {
			t.Errorf("expected press, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for press")
	}
}

// TestIntegrationReadFaultReleasesKey verifies a held key whose column stops
// reading is reported released and the fault is counted.
func TestIntegrationReadFaultReleasesKey(t *testing.T) {
	r := newRig(t)
	r.fake.Press(0, 0)
	r.m.Scan()
	expectEvent(t, r.next(t), 1, logic.EventPressed)

	r.fake.SetReadError(0, errors.New("gpio fault"))
	r.m.Scan()
	expectEvent(t, r.next(t), 1, logic.EventReleased)

	if got := r.m.Stats().ReadFaults; got != 2 {
		t.Errorf("read faults: got %d, want 2", got)
	}

	r.fake.SetReadError(0, nil)
	r.m.Scan()
	expectEvent(t, r.next(t), 1, logic.EventPressed)
}

// TestIntegrationWriteFaultStillScans verifies a failing row write is
// counted and the pass still samples every column.
func TestIntegrationWriteFaultStillScans(t *testing.T) {
	r := newRig(t)
	r.fake.SetWriteError(errors.New("gpio fault"))
	r.m.Scan()

	if got := r.m.Stats().WriteFaults; got != 4 {
		t.Errorf("write faults: got %d, want 4 (select and deselect per row)", got)
	}
	if got := r.m.Stats().Passes; got != 1 {
		t.Errorf("passes: got %d, want 1", got)
	}
}

// TestIntegrationPublishFailureDoesNotStall verifies the flow keeps going
// after the broker rejects a publish.
func TestIntegrationPublishFailureDoesNotStall(t *testing.T) {
	r := newRig(t)
	publisher := mqtt.NewFakePublisher()
	publisher.PublishError = errors.New("broker unavailable")

	r.fake.Press(1, 1)
	r.m.Scan()
	if err := publisher.Publish(r.next(t)); err == nil {
		t.Fatal("expected publish error")
	}

	publisher.PublishError = nil
	r.fake.Release(1, 1)
	r.m.Scan()
	if err := publisher.Publish(r.next(t)); err != nil {
		t.Fatalf("publish after recovery: %v", err)
	}
	if len(publisher.Events) != 1 || publisher.Events[0].Type != logic.EventReleased {
		t.Errorf("expected only the release to be recorded, got %+v", publisher.Events)
	}
}

// TestIntegrationStatusLifecycle runs STARTUP, key traffic, a HEARTBEAT and
// SHUTDOWN through the tracker and publisher.
func TestIntegrationStatusLifecycle(t *testing.T) {
	r := newRig(t)
	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(startTime, "boot-7", logic.DefaultKeys, status.Config{
		Rows:         2,
		Cols:         2,
		ScanPeriodMs: 10,
		SettleUs:     1,
		HeartbeatMs:  60000,
		Broker:       "tcp://192.168.1.200:1883",
	})
	tally := logic.NewTally()
	hb := logic.NewHeartbeat(startTime)

	snap := tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  startTime,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		t.Fatalf("startup publish: %v", err)
	}

	handle := func(e logic.Event) {
		tally.Record(e)
		tracker.SetKey(e.Key.ID, e.State())
		tracker.SetCounts(tally.Snapshot())
		if err := publisher.Publish(e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	r.m.Scan()
	tracker.SetScanStats(r.m.Stats())
	tracker.SetReady(func(k logic.KeySpec) bool { return r.m.Pressed(k.Row, k.Col) })
	r.fake.Press(0, 1)
	r.m.Scan()
	handle(r.next(t))
	r.fake.Release(0, 1)
	r.m.Scan()
	handle(r.next(t))
	r.fake.Press(0, 1)
	r.m.Scan()
	handle(r.next(t))
	tracker.SetScanStats(r.m.Stats())

	if data := hb.Check(startTime.Add(30*time.Second), time.Minute, tally.Snapshot()); data != nil {
		t.Fatal("heartbeat fired early")
	}
	data := hb.Check(startTime.Add(time.Minute), time.Minute, tally.Snapshot())
	if data == nil {
		t.Fatal("expected heartbeat after interval")
	}
	if presses, releases := data.Counts.Total(); presses != 2 || releases != 1 {
		t.Errorf("heartbeat counts: got %d/%d, want 2/1", presses, releases)
	}
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  data.Timestamp,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", ""),
	}); err != nil {
		t.Fatalf("heartbeat publish: %v", err)
	}

	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  startTime.Add(2 * time.Minute),
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", "SIGTERM"),
	}); err != nil {
		t.Fatalf("shutdown publish: %v", err)
	}

	names := publisher.SystemEventNames()
	want := []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"}
	if len(names) != len(want) {
		t.Fatalf("system events: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("system event %d: got %s, want %s", i, names[i], want[i])
		}
	}

	var startup status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[0], &startup); err != nil {
		t.Fatalf("startup payload: %v", err)
	}
	if startup.Status.Ready {
		t.Error("startup should precede the first pass")
	}
	if startup.Status.BootID != "boot-7" {
		t.Errorf("startup boot_id: got %q", startup.Status.BootID)
	}

	var shutdown status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[2], &shutdown); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	s := shutdown.Status
	if s.Event != "SHUTDOWN" || s.Reason != "SIGTERM" || !s.Ready {
		t.Errorf("shutdown header: %+v", s)
	}
	if s.Keys[1].State != "PRESSED" || s.Keys[1].Presses != 2 || s.Keys[1].Releases != 1 {
		t.Errorf("key 2 in shutdown payload: %+v", s.Keys[1])
	}
	if s.Keys[0].State != "RELEASED" {
		t.Errorf("key 1 in shutdown payload: %+v", s.Keys[0])
	}
	if s.Scan.Passes != 4 {
		t.Errorf("scan passes: got %d, want 4", s.Scan.Passes)
	}
}

// TestIntegrationWillPayload verifies the last-will message a broker would
// publish for an unclean exit.
func TestIntegrationWillPayload(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	will := mqtt.WillEvent(time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC), "boot-1")
	if err := publisher.PublishSystem(will); err != nil {
		t.Fatalf("publish: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T19:05:51Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT","boot_id":"boot-1"}}`
	if string(publisher.SystemPayloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", publisher.SystemPayloads[0], expected)
	}
	if !publisher.SystemEvents[0].Retained {
		t.Error("will should be retained")
	}
}
