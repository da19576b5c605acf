package matrix

import "github.com/sweeney/keypad-matrix/internal/notify"

// Key is the consumer's view of one bound switch. It caches the last level it
// observed and learns about changes only through its signal. A Key must be
// used by a single goroutine.
type Key struct {
	row, col int
	pressed  bool
	sig      *notify.Signal
}

func newKey(row, col int, sig *notify.Signal) *Key {
	return &Key{row: row, col: col, sig: sig}
}

// Row returns the key's row index.
func (k *Key) Row() int { return k.row }

// Col returns the key's column index.
func (k *Key) Col() int { return k.col }

// Peek returns the latest known level, consuming a pending change if there
// is one. Never blocks.
func (k *Key) Peek() bool {
	if v, ok := k.sig.TryTake(); ok {
		k.pressed = v
	}
	return k.pressed
}

// WaitForLevel blocks until the key is observed at the target level. It
// returns immediately if Peek already reports target.
func (k *Key) WaitForLevel(pressed bool) {
	for k.Peek() != pressed {
		k.pressed = k.sig.Wait()
	}
}

// WaitForPress blocks until the key is pressed.
func (k *Key) WaitForPress() { k.WaitForLevel(true) }

// WaitForRelease blocks until the key is released.
func (k *Key) WaitForRelease() { k.WaitForLevel(false) }

// WaitForEdge discards any stale pending change, then blocks for the next
// one and returns the new level.
func (k *Key) WaitForEdge() bool {
	k.sig.Reset()
	k.pressed = k.sig.Wait()
	return k.pressed
}

// WaitForRisingEdge blocks until a released-to-pressed transition.
func (k *Key) WaitForRisingEdge() {
	for !k.WaitForEdge() {
	}
}

// WaitForFallingEdge blocks until a pressed-to-released transition.
func (k *Key) WaitForFallingEdge() {
	for k.WaitForEdge() {
	}
}

// WaitForAnyEdge blocks until the next transition in either direction.
func (k *Key) WaitForAnyEdge() {
	k.WaitForEdge()
}
