package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is returned by NextFrame once the line source has been
	// closed or reached end of stream.
	ErrStreamClosed = errors.New("frame: stream closed")
	// ErrMalformedLine is matched by a *LineError.
	ErrMalformedLine = errors.New("malformed line")
	// ErrInvalidCell is matched by a *CellError.
	ErrInvalidCell = errors.New("invalid cell value")
	// ErrCellRange is the cause of a *CellError for integers other than 0/1.
	ErrCellRange = errors.New("value out of range, want 0 or 1")
)

// TransportError wraps an I/O failure of the underlying line source. It is
// fatal to the NextFrame call that observed it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("frame: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LineError reports a line without exactly Size fields.
type LineError struct {
	Line   string
	Fields int
}

func (e *LineError) Error() string {
	return fmt.Sprintf("malformed line %q: %d fields, want %d", e.Line, e.Fields, Size)
}

func (e *LineError) Is(target error) bool { return target == ErrMalformedLine }

// CellError reports the first token of a line that is not 0 or 1.
type CellError struct {
	Column int
	Value  string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("invalid cell [%d] %q: %v", e.Column, e.Value, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

func (e *CellError) Is(target error) bool { return target == ErrInvalidCell }
