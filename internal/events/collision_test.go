package events

import (
	"testing"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

func vehicleTrack(id int64, box vision.Box, vx, vy float64) *vision.Track {
	return &vision.Track{
		ID:    id,
		Class: vision.ClassVehicle,
		Box:   box,
		VX:    vx,
		VY:    vy,
	}
}

// overlappingPair returns two vehicle tracks that satisfy the contact
// condition: overlapping boxes, one at impact speed.
func overlappingPair() []*vision.Track {
	return []*vision.Track{
		vehicleTrack(1, vision.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, 100, 0),
		vehicleTrack(2, vision.Box{X1: 80, Y1: 0, X2: 180, Y2: 100}, 0, 0),
	}
}

func TestCollision_DebounceExactlyOnce(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 3
	d := NewCollisionDetector("cam-1", cfg)
	start := time.Unix(1000, 0)
	tracks := overlappingPair()

	var total int
	for i := 0; i < cfg.DebounceFrames; i++ {
		ts := start.Add(time.Duration(i) * 33 * time.Millisecond)
		evs := d.Evaluate(tracks, ts)
		total += len(evs)
		if i < cfg.DebounceFrames-1 && len(evs) != 0 {
			t.Fatalf("frame %d: emitted before debounce count reached", i)
		}
	}
	if total != 1 {
		t.Fatalf("got %d events after debounce count frames, want exactly 1", total)
	}
}

func TestCollision_CooldownSuppressesPersistentCondition(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 3
	d := NewCollisionDetector("cam-1", cfg)
	start := time.Unix(1000, 0)
	tracks := overlappingPair()

	// Condition persists 10x longer than the debounce count: still exactly
	// one event within one cooldown window.
	var total int
	for i := 0; i < cfg.DebounceFrames*10; i++ {
		ts := start.Add(time.Duration(i) * 33 * time.Millisecond)
		total += len(d.Evaluate(tracks, ts))
	}
	if total != 1 {
		t.Fatalf("got %d events under persistent condition, want exactly 1", total)
	}
}

func TestCollision_EventShape(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 1
	d := NewCollisionDetector("cam-7", cfg)
	ts := time.Unix(1000, 0)

	evs := d.Evaluate(overlappingPair(), ts)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Type != TypeCollision {
		t.Errorf("Type = %s, want collision", ev.Type)
	}
	if ev.CameraID != "cam-7" {
		t.Errorf("CameraID = %s, want cam-7", ev.CameraID)
	}
	if len(ev.TrackIDs) != 2 || ev.TrackIDs[0] != 1 || ev.TrackIDs[1] != 2 {
		t.Errorf("TrackIDs = %v, want [1 2]", ev.TrackIDs)
	}
	if ev.ID == "" {
		t.Error("event ID should be set")
	}
	if _, ok := ev.Metadata["severity"]; !ok {
		t.Error("collision event should carry a severity")
	}
	// Both tracks sit at y 0..100; the overlap midpoint must too.
	if ev.Position.Y != 50 {
		t.Errorf("Position.Y = %v, want 50", ev.Position.Y)
	}
}

func TestCollision_NoEventBelowImpactSpeed(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 1
	d := NewCollisionDetector("cam-1", cfg)

	// Two parked cars with overlapping boxes (perspective): no collision.
	tracks := []*vision.Track{
		vehicleTrack(1, vision.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, 0, 0),
		vehicleTrack(2, vision.Box{X1: 80, Y1: 0, X2: 180, Y2: 100}, 5, 0),
	}
	if evs := d.Evaluate(tracks, time.Unix(1000, 0)); len(evs) != 0 {
		t.Errorf("emitted %d events below impact speed", len(evs))
	}
}

func TestCollision_MaskOverlapGate(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 1
	d := NewCollisionDetector("cam-1", cfg)

	// Boxes overlap but the segmentation masks are disjoint: perspective
	// overlap without contact, so the mask gate must veto the event.
	a := vehicleTrack(1, vision.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, 100, 0)
	b := vehicleTrack(2, vision.Box{X1: 80, Y1: 0, X2: 180, Y2: 100}, 0, 0)
	a.LastMask = vision.NewMask(16, 16)
	b.LastMask = vision.NewMask(16, 16)
	for y := 0; y < 16; y++ {
		a.LastMask.Set(0, y)
		b.LastMask.Set(15, y)
	}

	if evs := d.Evaluate([]*vision.Track{a, b}, time.Unix(1000, 0)); len(evs) != 0 {
		t.Errorf("emitted %d events despite disjoint masks", len(evs))
	}
}

func TestCollision_PairStateForgottenOnSeparation(t *testing.T) {
	cfg := DefaultCollisionConfig()
	cfg.DebounceFrames = 5
	cfg.SeparationFrames = 2
	d := NewCollisionDetector("cam-1", cfg)
	start := time.Unix(1000, 0)

	// Two positive frames, then the pair separates.
	d.Evaluate(overlappingPair(), start)
	d.Evaluate(overlappingPair(), start.Add(33*time.Millisecond))

	apart := []*vision.Track{
		vehicleTrack(1, vision.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, 100, 0),
		vehicleTrack(2, vision.Box{X1: 500, Y1: 0, X2: 600, Y2: 100}, 0, 0),
	}
	for i := 0; i < cfg.SeparationFrames; i++ {
		d.Evaluate(apart, start.Add(time.Duration(2+i)*33*time.Millisecond))
	}
	if len(d.pairs) != 0 {
		t.Errorf("pair state retained after sustained separation: %d entries", len(d.pairs))
	}
}

func TestBeforeAfterKinematics(t *testing.T) {
	start := time.Unix(1000, 0)
	mkBox := func(x float64) vision.Box { return vision.Box{X1: x, Y1: 0, X2: x + 100, Y2: 100} }

	// Fast rightward motion then a near stop: strong speed drop.
	var hist []vision.TrackPoint
	x := 0.0
	for i := 0; i < 8; i++ {
		step := 50.0
		if i >= 4 {
			step = 2.0
		}
		x += step
		hist = append(hist, vision.TrackPoint{
			Box:       mkBox(x),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		})
	}

	vBefore, vAfter, dir := beforeAfterKinematics(hist)
	if vBefore <= vAfter {
		t.Errorf("vBefore=%v should exceed vAfter=%v", vBefore, vAfter)
	}
	if vAfter > 0.5*vBefore {
		t.Errorf("expected a >50%% speed drop, got before=%v after=%v", vBefore, vAfter)
	}
	if dir > 1 {
		t.Errorf("straight-line motion should have ~0 heading change, got %v", dir)
	}

	// Too-short histories degrade to zeros, never panic.
	if v1, v2, d0 := beforeAfterKinematics(hist[:2]); v1 != 0 || v2 != 0 || d0 != 0 {
		t.Errorf("short history kinematics = %v %v %v, want zeros", v1, v2, d0)
	}
}
