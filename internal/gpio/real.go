//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBank holds the row and column lines of the matrix on actual hardware.
type RealBank struct {
	chip *gpiocdev.Chip
	rows []*gpiocdev.Line
	cols []*gpiocdev.Line
}

// NewRealBank requests the given row pins as outputs (idle high) and column
// pins as inputs with pull-up.
func NewRealBank(rowPins, colPins []int) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBank{chip: chip}
	for _, pin := range rowPins {
		l, err := chip.RequestLine(pin, gpiocdev.AsOutput(High))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request row pin %d: %w", pin, err)
		}
		b.rows = append(b.rows, l)
	}
	for _, pin := range colPins {
		l, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request column pin %d: %w", pin, err)
		}
		b.cols = append(b.cols, l)
	}
	return b, nil
}

// Outputs returns the row lines in wiring order.
func (b *RealBank) Outputs() []Output {
	out := make([]Output, len(b.rows))
	for i, l := range b.rows {
		out[i] = l
	}
	return out
}

// Inputs returns the column lines in wiring order.
func (b *RealBank) Inputs() []Input {
	in := make([]Input, len(b.cols))
	for i, l := range b.cols {
		in[i] = l
	}
	return in
}

// Close releases GPIO resources.
// Row lines are reconfigured to inputs with pull-down (matching Pi boot
// defaults) before closing so nothing is left driven after exit.
func (b *RealBank) Close() error {
	var errs []error

	for i, l := range b.rows {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure row %d: %w", i, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close row %d: %w", i, err))
		}
	}
	for i, l := range b.cols {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close column %d: %w", i, err))
		}
	}
	b.rows, b.cols = nil, nil
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
