package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/events"
)

// InsertEvent persists one event. Track IDs and metadata are stored as JSON
// text columns.
func (db *DB) InsertEvent(ctx context.Context, ev events.Event) error {
	trackIDs, err := json.Marshal(ev.TrackIDs)
	if err != nil {
		return fmt.Errorf("marshal track ids: %w", err)
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO events (id, type, camera_id, track_ids, timestamp, pos_x, pos_y, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.CameraID, string(trackIDs),
		ev.Timestamp.UTC(), ev.Position.X, ev.Position.Y, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// EventFilter narrows RecentEvents. Zero values mean no filtering.
type EventFilter struct {
	CameraID string
	Type     events.Type
	Since    time.Time
	Limit    int
}

// DefaultEventLimit caps RecentEvents when the filter does not set one.
const DefaultEventLimit = 100

// RecentEvents returns events matching the filter, newest first.
func (db *DB) RecentEvents(ctx context.Context, f EventFilter) ([]events.Event, error) {
	query := `SELECT id, type, camera_id, track_ids, timestamp, pos_x, pos_y, metadata
		FROM events WHERE 1=1`
	var args []interface{}
	if f.CameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, f.CameraID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev       events.Event
			evType   string
			trackIDs string
			metadata string
		)
		if err := rows.Scan(&ev.ID, &evType, &ev.CameraID, &trackIDs,
			&ev.Timestamp, &ev.Position.X, &ev.Position.Y, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = events.Type(evType)
		if err := json.Unmarshal([]byte(trackIDs), &ev.TrackIDs); err != nil {
			return nil, fmt.Errorf("unmarshal track ids for %s: %w", ev.ID, err)
		}
		if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByType returns per-type event totals, optionally since a cutoff.
func (db *DB) CountByType(ctx context.Context, since time.Time) (map[events.Type]int, error) {
	query := "SELECT type, COUNT(*) FROM events"
	var args []interface{}
	if !since.IsZero() {
		query += " WHERE timestamp >= ?"
		args = append(args, since.UTC())
	}
	query += " GROUP BY type"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[events.Type]int)
	for rows.Next() {
		var evType string
		var n int
		if err := rows.Scan(&evType, &n); err != nil {
			return nil, err
		}
		counts[events.Type(evType)] = n
	}
	return counts, rows.Err()
}

// EventByID fetches one event.
func (db *DB) EventByID(ctx context.Context, id string) (*events.Event, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, type, camera_id, track_ids, timestamp, pos_x, pos_y, metadata
		 FROM events WHERE id = ?`, id)

	var (
		ev       events.Event
		evType   string
		trackIDs string
		metadata string
	)
	err := row.Scan(&ev.ID, &evType, &ev.CameraID, &trackIDs,
		&ev.Timestamp, &ev.Position.X, &ev.Position.Y, &metadata)
	if err != nil {
		return nil, err
	}
	ev.Type = events.Type(evType)
	if err := json.Unmarshal([]byte(trackIDs), &ev.TrackIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
		return nil, err
	}
	return &ev, nil
}
