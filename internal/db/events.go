package db

import (
	"fmt"

	"github.com/banshee-data/reedgrid/internal/frame"
)

// RecordEvent stores one assembler resync event.
func (db *DB) RecordEvent(ev frame.Event) error {
	var detail string
	if ev.Err != nil {
		detail = ev.Err.Error()
	}
	_, err := db.Exec(
		`INSERT INTO assembler_events (kind, line, pending_rows, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		ev.Kind.String(), ev.Line, ev.Rows, detail, db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	return nil
}

// EventCounts returns the number of stored events per kind.
func (db *DB) EventCounts() (map[string]int64, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM assembler_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
