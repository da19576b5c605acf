// Package matrix scans a grid of switches wired as strobed output rows and
// sensed input columns, and hands each bound key's state changes to its
// consumer through a notify.Signal.
//
// There is no debounce filtering and no anti-ghosting: every pass reports the
// raw sampled level of each switch.
package matrix

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/keypad-matrix/internal/gpio"
	"github.com/sweeney/keypad-matrix/internal/notify"
)

// DefaultSettleDelay is the time a selected row is held before its columns are sampled.
const DefaultSettleDelay = time.Microsecond

var (
	ErrOutOfRange   = errors.New("matrix: key position out of range")
	ErrAlreadyBound = errors.New("matrix: key already bound")
)

// cell is the latched state of one switch. Only the scanner writes it.
type cell struct {
	pressed bool
	sig     *notify.Signal
}

// update latches pressed and signals the bound consumer on change.
func (c *cell) update(pressed bool) {
	if pressed != c.pressed && c.sig != nil {
		c.sig.Signal(pressed)
	}
	c.pressed = pressed
}

// Stats counts scan passes and line faults since construction.
type Stats struct {
	Passes      uint64
	ReadFaults  uint64
	WriteFaults uint64
}

// Matrix owns the row and column lines and the grid of key cells.
// Dimensions are fixed at construction.
type Matrix struct {
	rows  []gpio.Output
	cols  []gpio.Input
	cells []cell // row-major, len(rows)*len(cols)

	settle   time.Duration
	sleep    func(time.Duration)
	selected int
	idle     int

	stats Stats
}

// Option configures a Matrix.
type Option func(*Matrix)

// WithSettleDelay sets the per-row settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Matrix) { m.settle = d }
}

// WithSleep replaces the timer used for the settle delay.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Matrix) { m.sleep = sleep }
}

// WithActiveLevel sets the level that selects a row and marks a column as
// pressed. The default is gpio.Low (active-low under pull-up bias).
func WithActiveLevel(level int) Option {
	return func(m *Matrix) {
		m.selected = level
		if level == gpio.Low {
			m.idle = gpio.High
		} else {
			m.idle = gpio.Low
		}
	}
}

// New takes ownership of the column (input) and row (output) lines. Every key
// starts released with no consumer bound.
func New(inputs []gpio.Input, outputs []gpio.Output, opts ...Option) *Matrix {
	m := &Matrix{
		rows:     outputs,
		cols:     inputs,
		cells:    make([]cell, len(outputs)*len(inputs)),
		settle:   DefaultSettleDelay,
		sleep:    time.Sleep,
		selected: gpio.Low,
		idle:     gpio.High,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return len(m.rows), len(m.cols)
}

// Bind attaches sig to the key at (row, col) and returns the consumer handle.
// Each position and each signal can be bound once; bind before scanning starts.
func (m *Matrix) Bind(row, col int, sig *notify.Signal) (*Key, error) {
	if row < 0 || row >= len(m.rows) || col < 0 || col >= len(m.cols) {
		return nil, fmt.Errorf("%w: (%d,%d) in %dx%d grid", ErrOutOfRange, row, col, len(m.rows), len(m.cols))
	}
	c := &m.cells[row*len(m.cols)+col]
	if c.sig != nil {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrAlreadyBound, row, col)
	}
	if err := sig.Claim(); err != nil {
		return nil, fmt.Errorf("bind (%d,%d): %w", row, col, err)
	}
	c.sig = sig
	return newKey(row, col, sig), nil
}

// Scan strobes every row once, in ascending order, and updates every key.
// Exactly one row is selected at a time. A column that fails to read counts
// as not pressed for this pass.
func (m *Matrix) Scan() {
	n := len(m.cols)
	for r, out := range m.rows {
		m.scanRow(out, m.cells[r*n:(r+1)*n])
	}
	m.stats.Passes++
}

func (m *Matrix) scanRow(out gpio.Output, cells []cell) {
	if err := out.SetValue(m.selected); err != nil {
		m.stats.WriteFaults++
	}
	m.sleep(m.settle)
	for c, in := range m.cols {
		v, err := in.Value()
		if err != nil {
			m.stats.ReadFaults++
			cells[c].update(false)
			continue
		}
		cells[c].update(v == m.selected)
	}
	if err := out.SetValue(m.idle); err != nil {
		m.stats.WriteFaults++
	}
}

// Pressed reports the state of the switch at (row, col) as latched by the
// last pass. Out-of-range positions report false. Call only from the
// goroutine running Scan.
func (m *Matrix) Pressed(row, col int) bool {
	if row < 0 || row >= len(m.rows) || col < 0 || col >= len(m.cols) {
		return false
	}
	return m.cells[row*len(m.cols)+col].pressed
}

// Stats returns the scan counters. Call only from the goroutine running Scan.
func (m *Matrix) Stats() Stats {
	return m.stats
}
