package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/reedgrid/internal/feed"
	"github.com/banshee-data/reedgrid/internal/frame"
)

// MaxFrameQueryLimit caps RecentFrames.
const MaxFrameQueryLimit = 500

// RecordFrame stores one published frame. The 64 cells are packed with
// frame.Frame.Bits; SQLite integers are signed, so the bits are stored as
// their int64 reinterpretation.
func (db *DB) RecordFrame(rec feed.Record) error {
	_, err := db.Exec(
		`INSERT INTO frames (frame_id, captured_at, bits, active_cells) VALUES (?, ?, ?, ?)`,
		rec.ID.String(), rec.CapturedAt.UnixNano(), int64(rec.Frame.Bits()), rec.Frame.Count(),
	)
	if err != nil {
		return fmt.Errorf("failed to record frame %s: %w", rec.ID, err)
	}
	return nil
}

// RecentFrames returns up to limit frames, newest first.
func (db *DB) RecentFrames(limit int) ([]feed.Record, error) {
	if limit <= 0 || limit > MaxFrameQueryLimit {
		limit = MaxFrameQueryLimit
	}

	rows, err := db.Query(
		`SELECT frame_id, captured_at, bits FROM frames ORDER BY captured_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []feed.Record
	for rows.Next() {
		var (
			id         string
			capturedAt int64
			bits       int64
		)
		if err := rows.Scan(&id, &capturedAt, &bits); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("frame %q: %w", id, err)
		}
		records = append(records, feed.Record{
			ID:         parsed,
			CapturedAt: time.Unix(0, capturedAt).UTC(),
			Frame:      frame.FromBits(uint64(bits)),
		})
	}
	return records, rows.Err()
}

// FrameCount returns the number of stored frames.
func (db *DB) FrameCount() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM frames`).Scan(&n)
	return n, err
}
