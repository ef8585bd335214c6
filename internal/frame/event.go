package frame

import "fmt"

// EventKind classifies a recoverable assembler event. Every kind resets the
// frame in progress.
type EventKind int

const (
	// MalformedLine is a line without exactly eight fields.
	MalformedLine EventKind = iota + 1
	// InvalidCellValue is a line with a field that is not 0 or 1.
	InvalidCellValue
	// TerminatorMisalignment is a terminator seen with other than eight
	// accumulated rows, or eight rows without a terminator.
	TerminatorMisalignment
	// ReadTimeout is a line that did not arrive within the read timeout.
	ReadTimeout
)

func (k EventKind) String() string {
	switch k {
	case MalformedLine:
		return "malformed_line"
	case InvalidCellValue:
		return "invalid_cell_value"
	case TerminatorMisalignment:
		return "terminator_misalignment"
	case ReadTimeout:
		return "read_timeout"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes one resync. Rows is the number of rows that were discarded.
type Event struct {
	Kind EventKind
	Line string
	Rows int
	Err  error
}

// Idle reports whether e is a read timeout that discarded nothing: the board
// is quiet rather than corrupting frames.
func (e Event) Idle() bool {
	return e.Kind == ReadTimeout && e.Rows == 0
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (discarded %d rows)", e.Kind, e.Err, e.Rows)
	}
	return fmt.Sprintf("%s: line %q (discarded %d rows)", e.Kind, e.Line, e.Rows)
}

// EventHandler receives recoverable events. It runs on the goroutine calling
// NextFrame and must not call back into the Assembler.
type EventHandler func(Event)

// Stats counts what an Assembler has seen since construction.
type Stats struct {
	Lines                  int64 `json:"lines"`
	EmptyLines             int64 `json:"empty_lines"`
	Frames                 int64 `json:"frames"`
	Resets                 int64 `json:"resets"`
	MalformedLines         int64 `json:"malformed_lines"`
	InvalidCellValues      int64 `json:"invalid_cell_values"`
	TerminatorMisalignment int64 `json:"terminator_misalignments"`
	ReadTimeouts           int64 `json:"read_timeouts"`
	// IdleTimeouts is the subset of ReadTimeouts that expired with no rows
	// pending.
	IdleTimeouts int64 `json:"idle_timeouts"`
}

func (s *Stats) count(ev Event) {
	s.Resets++
	if ev.Idle() {
		s.IdleTimeouts++
	}
	switch ev.Kind {
	case MalformedLine:
		s.MalformedLines++
	case InvalidCellValue:
		s.InvalidCellValues++
	case TerminatorMisalignment:
		s.TerminatorMisalignment++
	case ReadTimeout:
		s.ReadTimeouts++
	}
}
