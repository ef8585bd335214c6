// Package frame reconstructs validated 8x8 reed-switch matrices from the
// line-oriented ASCII stream written by the sensor board.
//
// Each line on the wire carries one row as eight comma separated 0/1 tokens.
// The last row of a frame ends with a '.' sentinel:
//
//	1,0,0,0,0,0,0,0
//	...
//	0,0,0,0,0,0,0,1.
//
// An Assembler turns that stream into whole Frames and discards anything
// that was corrupted on the way.
package frame

import (
	"strings"
)

// Size is the number of rows in a frame and the number of cells in a row.
const Size = 8

// Row is one validated line of the sensor matrix. true means the reed switch
// at that position is closed.
type Row [Size]bool

// Frame is a complete 8x8 sensor snapshot in row-major order. Row 0 is the
// first row accepted after the previous frame or resync.
type Frame [Size]Row

// String renders the row as eight 0/1 characters.
func (r Row) String() string {
	var b strings.Builder
	b.Grow(Size)
	for _, on := range r {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// String renders the frame as eight newline separated rows.
func (f Frame) String() string {
	rows := make([]string, Size)
	for i, r := range f {
		rows[i] = r.String()
	}
	return strings.Join(rows, "\n")
}

// Count returns the number of closed switches in the frame.
func (f Frame) Count() int {
	n := 0
	for _, r := range f {
		for _, on := range r {
			if on {
				n++
			}
		}
	}
	return n
}

// At reports whether the switch at (row, col) is closed. Out of range
// coordinates report false.
func (f Frame) At(row, col int) bool {
	if row < 0 || row >= Size || col < 0 || col >= Size {
		return false
	}
	return f[row][col]
}

// Bits packs the frame into a uint64 in row-major order. Bit 63 holds
// (0,0) and bit 0 holds (7,7), so index row*8+col counts from the most
// significant bit.
func (f Frame) Bits() uint64 {
	var bits uint64
	for i, r := range f {
		for j, on := range r {
			if on {
				bits |= 1 << (63 - uint(i*Size+j))
			}
		}
	}
	return bits
}

// FromBits is the inverse of Frame.Bits.
func FromBits(bits uint64) Frame {
	var f Frame
	for i := range f {
		for j := range f[i] {
			f[i][j] = bits&(1<<(63-uint(i*Size+j))) != 0
		}
	}
	return f
}

// Cells returns the frame as nested slices, the shape JSON consumers expect.
func (f Frame) Cells() [][]bool {
	cells := make([][]bool, Size)
	for i, r := range f {
		row := make([]bool, Size)
		copy(row, r[:])
		cells[i] = row
	}
	return cells
}
