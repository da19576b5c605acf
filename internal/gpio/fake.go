package gpio

import (
	"sync"
	"time"
)

// OpKind identifies a recorded line operation.
type OpKind string

const (
	OpSet   OpKind = "SET"
	OpRead  OpKind = "READ"
	OpSleep OpKind = "SLEEP"
)

// Op is a single recorded operation against the fake matrix.
type Op struct {
	Kind  OpKind
	Line  int           // row index for OpSet, column index for OpRead
	Value int           // level written or read
	Delay time.Duration // OpSleep only
}

// FakeMatrix is a test double that simulates a diode-less switch matrix.
// By default columns are pulled up and rows select when driven Low: a column
// reads Low when a closed switch connects it to a row currently driven Low,
// otherwise High. SetActiveLevel flips the wiring to pulled-down columns and
// High-selected rows.
type FakeMatrix struct {
	mu       sync.Mutex
	levels   []int
	cols     int
	selected int
	idle     int
	closed   map[[2]int]bool
	trace    []Op
	readErr  map[int]error
	writeErr error

	// MaxSelected is the largest number of rows ever driven to the select
	// level at once.
	MaxSelected int
}

// NewFakeMatrix creates a FakeMatrix with all rows idle (High) and all
// switches open.
func NewFakeMatrix(rows, cols int) *FakeMatrix {
	levels := make([]int, rows)
	for i := range levels {
		levels[i] = High
	}
	return &FakeMatrix{
		levels:   levels,
		cols:     cols,
		selected: Low,
		idle:     High,
		closed:   make(map[[2]int]bool),
		readErr:  make(map[int]error),
	}
}

// SetActiveLevel sets the level that selects a row and that a closed switch
// passes to its column. All rows return to the opposite, idle level.
func (f *FakeMatrix) SetActiveLevel(level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = level
	f.idle = High
	if level == High {
		f.idle = Low
	}
	for i := range f.levels {
		f.levels[i] = f.idle
	}
}

// Press closes the switch at (row, col).
func (f *FakeMatrix) Press(row, col int) {
	f.mu.Lock()
	f.closed[[2]int{row, col}] = true
	f.mu.Unlock()
}

// Release opens the switch at (row, col).
func (f *FakeMatrix) Release(row, col int) {
	f.mu.Lock()
	delete(f.closed, [2]int{row, col})
	f.mu.Unlock()
}

// SetReadError makes reads of the given column fail with err. A nil err
// clears the fault.
func (f *FakeMatrix) SetReadError(col int, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.readErr, col)
	} else {
		f.readErr[col] = err
	}
	f.mu.Unlock()
}

// SetWriteError makes every row write fail with err after applying the level.
func (f *FakeMatrix) SetWriteError(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// Level returns the level currently driven on row.
func (f *FakeMatrix) Level(row int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[row]
}

// Trace returns a copy of the recorded operations.
func (f *FakeMatrix) Trace() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Op, len(f.trace))
	copy(out, f.trace)
	return out
}

// ResetTrace clears the recorded operations.
func (f *FakeMatrix) ResetTrace() {
	f.mu.Lock()
	f.trace = nil
	f.mu.Unlock()
}

// Sleep records a settle delay without sleeping.
func (f *FakeMatrix) Sleep(d time.Duration) {
	f.mu.Lock()
	f.trace = append(f.trace, Op{Kind: OpSleep, Delay: d})
	f.mu.Unlock()
}

// Outputs returns the simulated row lines.
func (f *FakeMatrix) Outputs() []Output {
	out := make([]Output, len(f.levels))
	for i := range out {
		out[i] = &fakeRow{f: f, idx: i}
	}
	return out
}

// Inputs returns the simulated column lines.
func (f *FakeMatrix) Inputs() []Input {
	in := make([]Input, f.cols)
	for i := range in {
		in[i] = &fakeCol{f: f, idx: i}
	}
	return in
}

type fakeRow struct {
	f   *FakeMatrix
	idx int
}

func (r *fakeRow) SetValue(value int) error {
	f := r.f
	f.mu.Lock()
	defer f.mu.Unlock()

	f.levels[r.idx] = value
	f.trace = append(f.trace, Op{Kind: OpSet, Line: r.idx, Value: value})

	selected := 0
	for _, l := range f.levels {
		if l == f.selected {
			selected++
		}
	}
	if selected > f.MaxSelected {
		f.MaxSelected = selected
	}
	return f.writeErr
}

type fakeCol struct {
	f   *FakeMatrix
	idx int
}

func (c *fakeCol) Value() (int, error) {
	f := c.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readErr[c.idx]; err != nil {
		f.trace = append(f.trace, Op{Kind: OpRead, Line: c.idx, Value: f.selected})
		// A faulty line may report garbage alongside the error.
		return f.selected, err
	}

	v := f.idle
	for row, l := range f.levels {
		if l == f.selected && f.closed[[2]int{row, c.idx}] {
			v = f.selected
			break
		}
	}
	f.trace = append(f.trace, Op{Kind: OpRead, Line: c.idx, Value: v})
	return v, nil
}
