package frame

import (
	"gonum.org/v1/gonum/floats"
)

// Occupancy accumulates how often each switch was closed over a series of
// frames. The zero value is ready to use.
type Occupancy struct {
	counts []float64
	frames int
}

// Add counts the closed switches of f.
func (o *Occupancy) Add(f Frame) {
	if o.counts == nil {
		o.counts = make([]float64, Size*Size)
	}
	cells := make([]float64, Size*Size)
	for i, r := range f {
		for j, on := range r {
			if on {
				cells[i*Size+j] = 1
			}
		}
	}
	floats.Add(o.counts, cells)
	o.frames++
}

// Frames returns the number of frames added.
func (o *Occupancy) Frames() int { return o.frames }

// Rates returns the fraction of frames in which each switch was closed,
// indexed [row][col]. All rates are zero before the first frame.
func (o *Occupancy) Rates() [Size][Size]float64 {
	var out [Size][Size]float64
	if o.frames == 0 {
		return out
	}
	rates := make([]float64, len(o.counts))
	copy(rates, o.counts)
	floats.Scale(1/float64(o.frames), rates)
	for i := range out {
		copy(out[i][:], rates[i*Size:(i+1)*Size])
	}
	return out
}

// Busiest returns the row and column of the most frequently closed switch
// and its rate. It reports ok=false before the first frame.
func (o *Occupancy) Busiest() (row, col int, rate float64, ok bool) {
	if o.frames == 0 {
		return 0, 0, 0, false
	}
	idx := floats.MaxIdx(o.counts)
	return idx / Size, idx % Size, o.counts[idx] / float64(o.frames), true
}
