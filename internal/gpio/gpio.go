// Package gpio provides digital line access for the keypad matrix with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation simulates a switch matrix for testing without hardware.
package gpio

import "errors"

// ErrHardwareFault is returned by lines on platforms where pin I/O can fail.
// The scanner treats it as "not pressed" for the affected column.
var ErrHardwareFault = errors.New("gpio: hardware fault")

// Logic levels, matching the values used by the GPIO character device.
const (
	Low  = 0
	High = 1
)

// Output is a line that can be driven to a logic level.
type Output interface {
	SetValue(value int) error
}

// Input is a line whose logic level can be sampled.
type Input interface {
	Value() (int, error)
}

// Chip is the GPIO character device the matrix is wired to.
const Chip = "gpiochip0"

// Row (strobed output) and column (sensed input) wiring, BCM numbering.
// Rows idle high and are pulled low to select; columns use pull-ups, so a
// closed switch on the selected row reads low.
var (
	RowPins = [...]int{5, 6, 13, 19}
	ColPins = [...]int{12, 16, 20, 21, 26, 24, 25}
)
