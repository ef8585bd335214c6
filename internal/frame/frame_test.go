package frame

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustFrame builds a Frame from eight 0/1 strings.
func mustFrame(t *testing.T, rows ...string) Frame {
	t.Helper()
	require.Len(t, rows, Size)
	var f Frame
	for i, r := range rows {
		require.Len(t, r, Size, "row %d", i)
		for j, c := range r {
			f[i][j] = c == '1'
		}
	}
	return f
}

func TestFrame_StringAndCount(t *testing.T) {
	f := mustFrame(t,
		"10000000",
		"01000000",
		"00100000",
		"00010000",
		"00001000",
		"00000100",
		"00000010",
		"00000001",
	)
	assert.Equal(t, 8, f.Count())
	assert.Equal(t, "10000000\n01000000\n00100000\n00010000\n00001000\n00000100\n00000010\n00000001", f.String())
	assert.True(t, f.At(3, 3))
	assert.False(t, f.At(3, 4))
	assert.False(t, f.At(-1, 0))
	assert.False(t, f.At(0, Size))
}

func TestFrame_Bits(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
		bits uint64
	}{
		{"empty", Frame{}, 0},
		{"top left", func() Frame { var f Frame; f[0][0] = true; return f }(), 1 << 63},
		{"bottom right", func() Frame { var f Frame; f[7][7] = true; return f }(), 1},
		{"full", FromBits(^uint64(0)), ^uint64(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.bits, tc.f.Bits())
			if diff := cmp.Diff(tc.f, FromBits(tc.bits)); diff != "" {
				t.Errorf("FromBits mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFrame_Cells(t *testing.T) {
	var f Frame
	f[2][5] = true
	cells := f.Cells()

	require.Len(t, cells, Size)
	for _, row := range cells {
		assert.Len(t, row, Size)
	}
	assert.True(t, cells[2][5])

	// The slices are copies.
	cells[2][5] = false
	assert.True(t, f[2][5])
}
