package frame

import (
	"strconv"
	"strings"
)

const (
	// Sentinel marks the last row of a frame when it terminates a line.
	Sentinel = "."
	// Separator splits a line into cell tokens.
	Separator = ","
)

// IsTerminator reports whether line signals the end of a frame: it is
// empty, is the bare sentinel, or ends with the sentinel.
//
// The assembler skips empty lines and rejects the bare sentinel on token
// count before this predicate is consulted, so in practice only a data row
// ending in '.' completes a frame.
func IsTerminator(line string) bool {
	return line == "" || line == Sentinel || strings.HasSuffix(line, Sentinel)
}

// stripSentinel removes every sentinel character from line.
func stripSentinel(line string) string {
	return strings.ReplaceAll(line, Sentinel, "")
}

// tokenCount returns the number of comma separated fields in line.
func tokenCount(line string) int {
	return strings.Count(line, Separator) + 1
}

// ParseRow parses eight comma separated 0/1 tokens into a Row. Tokens may be
// padded with spaces. A wrong field count returns a *LineError; a token
// that is not an integer, or is an integer other than 0 or 1, returns a
// *CellError.
func ParseRow(line string) (Row, error) {
	var row Row
	fields := strings.Split(line, Separator)
	if len(fields) != Size {
		return row, &LineError{Line: line, Fields: len(fields)}
	}
	for i, field := range fields {
		tok := strings.TrimSpace(field)
		v, err := strconv.Atoi(tok)
		if err != nil {
			return row, &CellError{Column: i, Value: tok, Err: err}
		}
		switch v {
		case 0:
		case 1:
			row[i] = true
		default:
			return row, &CellError{Column: i, Value: tok, Err: ErrCellRange}
		}
	}
	return row, nil
}
