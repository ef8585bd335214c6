package frame

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/reedgrid/internal/monitoring"
	"github.com/banshee-data/reedgrid/internal/timeutil"
)

// LineSource delivers lines read from the sensor transport. Lines is closed
// when the transport ends; Err then reports why, or nil for a clean close.
type LineSource interface {
	Lines() <-chan string
	Err() error
	io.Closer
}

// State is the assembler's position in the frame cycle.
type State int

const (
	// Idle holds no rows: at stream start and after every reset.
	Idle State = iota
	// Accumulating holds between one and seven rows.
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// Assembler reassembles Frames from a LineSource. It owns the source for its
// lifetime and releases it on Close. An Assembler is meant for one consumer;
// only Stats is safe to call concurrently with NextFrame.
type Assembler struct {
	src         LineSource
	clock       timeutil.Clock
	readTimeout time.Duration
	onEvent     EventHandler

	state   State
	pending []Row

	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithReadTimeout bounds how long NextFrame waits for any single line. An
// expired wait discards the frame in progress and reading continues. Zero
// disables the timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(a *Assembler) { a.readTimeout = d }
}

// WithClock replaces the clock used for read timeouts.
func WithClock(c timeutil.Clock) Option {
	return func(a *Assembler) { a.clock = c }
}

// WithEventHandler registers h for recoverable events. Events are logged
// through monitoring.Logf whether or not a handler is set.
func WithEventHandler(h EventHandler) Option {
	return func(a *Assembler) { a.onEvent = h }
}

// NewAssembler returns an Assembler reading from src.
func NewAssembler(src LineSource, opts ...Option) *Assembler {
	a := &Assembler{
		src:     src,
		clock:   timeutil.RealClock{},
		pending: make([]Row, 0, Size),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextFrame blocks until a complete, validated frame has been read. It
// returns ErrStreamClosed when the source ends, a *TransportError when the
// source fails, or ctx.Err() when ctx is done. Corrupt input never surfaces
// as an error; it is reported to the event handler and discarded.
func (a *Assembler) NextFrame(ctx context.Context) (Frame, error) {
	lines := a.src.Lines()
	for {
		var (
			timer   timeutil.Timer
			timeout <-chan time.Time
		)
		if a.readTimeout > 0 {
			timer = a.clock.NewTimer(a.readTimeout)
			timeout = timer.C()
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return Frame{}, ctx.Err()

		case <-timeout:
			a.resync(Event{Kind: ReadTimeout, Err: errReadTimeout{a.readTimeout}})

		case line, ok := <-lines:
			stopTimer(timer)
			if !ok {
				if err := a.src.Err(); err != nil {
					return Frame{}, &TransportError{Err: err}
				}
				return Frame{}, ErrStreamClosed
			}
			if f, done := a.Push(line); done {
				return f, nil
			}
		}
	}
}

func stopTimer(t timeutil.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Push runs one line through the state machine and reports whether it
// completed a frame. NextFrame calls it for every line read; it is exported
// for consumers that own their own transport.
func (a *Assembler) Push(raw string) (Frame, bool) {
	line := strings.TrimSpace(raw)
	a.bump(func(s *Stats) { s.Lines++ })

	if line == "" {
		a.bump(func(s *Stats) { s.EmptyLines++ })
		return Frame{}, false
	}

	if n := tokenCount(line); n != Size {
		a.resync(Event{Kind: MalformedLine, Line: line, Err: &LineError{Line: line, Fields: n}})
		return Frame{}, false
	}

	terminator := IsTerminator(line)
	data := line
	if terminator {
		data = stripSentinel(line)
	}

	row, err := ParseRow(data)
	if err != nil {
		kind := InvalidCellValue
		if errors.Is(err, ErrMalformedLine) {
			kind = MalformedLine
		}
		a.resync(Event{Kind: kind, Line: line, Err: err})
		return Frame{}, false
	}

	a.pending = append(a.pending, row)
	a.state = Accumulating

	switch {
	case terminator && len(a.pending) == Size:
		f, err := a.complete()
		if err != nil {
			a.resync(Event{Kind: TerminatorMisalignment, Line: line, Err: err})
			return Frame{}, false
		}
		a.reset()
		a.bump(func(s *Stats) { s.Frames++ })
		return f, true

	case terminator:
		a.resync(Event{Kind: TerminatorMisalignment, Line: line, Err: errMisaligned{rows: len(a.pending), terminated: true}})

	case len(a.pending) == Size:
		// Eight rows and no terminator: the next row would overflow the
		// frame, so it can never complete.
		a.resync(Event{Kind: TerminatorMisalignment, Line: line, Err: errMisaligned{rows: len(a.pending)}})
	}
	return Frame{}, false
}

// complete copies the pending rows into a Frame. Cell values were validated
// by ParseRow and Row is a fixed-width bool array, so only the row count is
// re-checked here.
func (a *Assembler) complete() (Frame, error) {
	var f Frame
	if n := copy(f[:], a.pending); n != Size {
		return Frame{}, errMisaligned{rows: n, terminated: true}
	}
	return f, nil
}

// resync reports ev and discards the frame in progress.
func (a *Assembler) resync(ev Event) {
	ev.Rows = len(a.pending)
	a.bump(func(s *Stats) { s.count(ev) })
	monitoring.Logf("frame: resync after %s", ev)
	if a.onEvent != nil {
		a.onEvent(ev)
	}
	a.reset()
}

// reset is the only transition back to Idle.
func (a *Assembler) reset() {
	a.pending = a.pending[:0]
	a.state = Idle
}

// State returns the current state. Like Push it must not race NextFrame.
func (a *Assembler) State() State { return a.state }

// Pending returns the number of rows accumulated toward the next frame.
func (a *Assembler) Pending() int { return len(a.pending) }

func (a *Assembler) bump(f func(*Stats)) {
	a.statsMu.Lock()
	f(&a.stats)
	a.statsMu.Unlock()
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.stats
}

// Close releases the line source. It is safe to call more than once and
// concurrently with NextFrame, which then returns ErrStreamClosed or a
// *TransportError.
func (a *Assembler) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.src.Close()
	})
	return a.closeErr
}

type errReadTimeout struct{ d time.Duration }

func (e errReadTimeout) Error() string {
	return "no line within " + e.d.String()
}

type errMisaligned struct {
	rows       int
	terminated bool
}

func (e errMisaligned) Error() string {
	if e.terminated {
		return "terminator after " + strconv.Itoa(e.rows) + " rows, want 8"
	}
	return "8 rows without terminator"
}
