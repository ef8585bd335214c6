package api

import (
	"strconv"
	"time"

	"github.com/banshee-data/reedgrid/internal/feed"
	"github.com/banshee-data/reedgrid/internal/frame"
)

// FrameAPI is the JSON form of a stored or live frame.
type FrameAPI struct {
	ID          string    `json:"id"`
	CapturedAt  time.Time `json:"captured_at"`
	Cells       [][]bool  `json:"cells"`
	Bits        string    `json:"bits"` // hex; a uint64 does not survive a JSON number
	ActiveCells int       `json:"active_cells"`
}

func FrameToAPI(rec feed.Record) FrameAPI {
	return FrameAPI{
		ID:          rec.ID.String(),
		CapturedAt:  rec.CapturedAt.UTC(),
		Cells:       rec.Frame.Cells(),
		Bits:        "0x" + strconv.FormatUint(rec.Frame.Bits(), 16),
		ActiveCells: rec.Frame.Count(),
	}
}

type CellRate struct {
	Row  int     `json:"row"`
	Col  int     `json:"col"`
	Rate float64 `json:"rate"`
}

type OccupancyAPI struct {
	Frames  int                             `json:"frames"`
	Rates   [frame.Size][frame.Size]float64 `json:"rates"`
	Busiest *CellRate                       `json:"busiest,omitempty"`
}

type StatsAPI struct {
	Assembler    frame.Stats      `json:"assembler"`
	Published    int64            `json:"published"`
	Dropped      int64            `json:"dropped"`
	StoredFrames int64            `json:"stored_frames"`
	StoredEvents map[string]int64 `json:"stored_events"`
	Occupancy    OccupancyAPI     `json:"occupancy"`
}

func occupancyOf(records []feed.Record) OccupancyAPI {
	var occ frame.Occupancy
	for _, rec := range records {
		occ.Add(rec.Frame)
	}
	out := OccupancyAPI{Frames: occ.Frames(), Rates: occ.Rates()}
	if row, col, rate, ok := occ.Busiest(); ok {
		out.Busiest = &CellRate{Row: row, Col: col, Rate: rate}
	}
	return out
}
