// Package events contains the stateful event detectors that turn tracked
// trajectories into debounced, de-duplicated security events: vehicle
// collisions, person loitering and falls, suspicious person-vehicle
// interaction and wall-writing behaviour.
//
// Each detector is private to one camera, keeps its own debounce/cooldown
// state, and shares nothing with the other detectors. All of them evaluate
// the tracker's output read-only and never retain track pointers past the
// current call.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// Type identifies the kind of security event.
type Type string

const (
	TypeCollision   Type = "collision"
	TypeLoitering   Type = "loitering"
	TypeFall        Type = "fall"
	TypeInteraction Type = "interaction"
	TypeWallWriting Type = "wall_writing"
)

// Event is a single detected incident. Immutable once created; it is
// consumed exactly once by the event sink and the statistics collector.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	CameraID  string                 `json:"camera_id"`
	TrackIDs  []int64                `json:"track_ids"`
	Timestamp time.Time              `json:"timestamp"`
	Position  vision.Point           `json:"position"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an event with a fresh UUID.
func New(t Type, cameraID string, ts time.Time, pos vision.Point, trackIDs ...int64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		CameraID:  cameraID,
		TrackIDs:  trackIDs,
		Timestamp: ts,
		Position:  pos,
		Metadata:  map[string]interface{}{},
	}
}

// Detector is the uniform contract all event detectors implement. The
// engine holds a fixed list of these behind this interface; there is no
// dynamic plugin discovery.
type Detector interface {
	// Name returns a short identifier for logs and diagnostics.
	Name() string

	// Evaluate inspects the current tracked state at the frame timestamp
	// and returns zero or more newly confirmed events. Implementations own
	// their debounce and cooldown state; an event for a given key is never
	// returned twice within that detector's cooldown window.
	Evaluate(tracks []*vision.Track, ts time.Time) []Event
}
