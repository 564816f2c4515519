package events

import (
	"time"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// PairKey identifies an unordered pair of track IDs. A is always the lower
// ID so symmetric lookups hit the same state.
type PairKey struct {
	A, B int64
}

// NewPairKey normalizes (id1, id2) into an unordered key.
func NewPairKey(id1, id2 int64) PairKey {
	if id1 > id2 {
		id1, id2 = id2, id1
	}
	return PairKey{A: id1, B: id2}
}

// DebounceState tracks the emit/suppress lifecycle for one detector key
// (a track or a track pair).
type DebounceState struct {
	ConsecutivePositive int
	LastEmitted         time.Time
	CooldownUntil       time.Time
}

// InCooldown reports whether emissions for this key are suppressed at ts.
func (s *DebounceState) InCooldown(ts time.Time) bool {
	return !s.CooldownUntil.IsZero() && ts.Before(s.CooldownUntil)
}

// MarkEmitted records an emission at ts and starts the cooldown window.
func (s *DebounceState) MarkEmitted(ts time.Time, cooldown time.Duration) {
	s.LastEmitted = ts
	s.CooldownUntil = ts.Add(cooldown)
	s.ConsecutivePositive = 0
}

// pruneByTrack deletes per-track keyed state for tracks no longer live.
func pruneByTrack[S any](states map[int64]S, live map[int64]*vision.Track) {
	for id := range states {
		if _, ok := live[id]; !ok {
			delete(states, id)
		}
	}
}

// liveByID indexes tracks by ID for state pruning.
func liveByID(tracks []*vision.Track) map[int64]*vision.Track {
	m := make(map[int64]*vision.Track, len(tracks))
	for _, t := range tracks {
		m[t.ID] = t
	}
	return m
}

// splitClasses partitions tracks into persons and vehicles.
func splitClasses(tracks []*vision.Track) (persons, vehicles []*vision.Track) {
	for _, t := range tracks {
		switch t.Class {
		case vision.ClassPerson:
			persons = append(persons, t)
		case vision.ClassVehicle:
			vehicles = append(vehicles, t)
		}
	}
	return persons, vehicles
}
