package logic

import "time"

// Levels is the part of a key handle the consumer task needs.
type Levels interface {
	WaitForPress()
	WaitForRelease()
}

// Watch runs the consumer task for one key: wait for a press, report it, wait
// for the release, report it, forever. It never returns.
//
// Transitions that happen while emit is blocked collapse to the latest level,
// so a quick tap can go unreported; the pair of events is always emitted in
// order.
func Watch(spec KeySpec, key Levels, now func() time.Time, emit func(Event)) {
	for {
		key.WaitForPress()
		emit(Event{Timestamp: now(), Key: spec, Type: EventPressed})
		key.WaitForRelease()
		emit(Event{Timestamp: now(), Key: spec, Type: EventReleased})
	}
}
