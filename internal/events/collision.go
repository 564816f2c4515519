package events

import (
	"math"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// CollisionConfig holds thresholds for vehicle collision detection.
// Distances and speeds are in frame pixels and pixels per second.
type CollisionConfig struct {
	ProximityPx      float64       // Pair watch radius (centre distance)
	MinIoU           float64       // Low box-overlap threshold for contact
	MaskMinIoU       float64       // Stricter mask-overlap threshold when masks exist
	ImpactSpeed      float64       // Minimum instantaneous speed of at least one vehicle
	DebounceFrames   int           // Consecutive positive frames before confirmation
	Cooldown         time.Duration // Suppression window per pair after an emission
	SeparationFrames int           // Sustained separation before pair state is forgotten

	// Severity classification (major/minor), reported as event metadata.
	MovingSpeed     float64 // Speed above which a vehicle counts as moving
	SpeedDropFactor float64 // Post-impact speed below factor×pre-impact ⇒ major
	DirectionDeg    float64 // Heading change above this ⇒ major
}

// DefaultCollisionConfig returns the default collision thresholds.
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		ProximityPx:      160,
		MinIoU:           0.02,
		MaskMinIoU:       0.10,
		ImpactSpeed:      40,
		DebounceFrames:   3,
		Cooldown:         30 * time.Second,
		SeparationFrames: 30,
		MovingSpeed:      20,
		SpeedDropFactor:  0.5,
		DirectionDeg:     45,
	}
}

// pairPhase is the lifecycle of one watched vehicle pair. CONFIRMED is
// instantaneous: the event is emitted on the transition and the pair moves
// straight into cooldown.
type pairPhase int

const (
	pairWatching pairPhase = iota
	pairCandidate
	pairCooldown
)

type pairState struct {
	phase        pairPhase
	debounce     DebounceState
	separatedFor int
}

// CollisionDetector finds vehicle-vehicle collisions via a per-pair state
// machine: WATCHING → CANDIDATE → (confirm, emit once) → COOLDOWN.
type CollisionDetector struct {
	cameraID string
	cfg      CollisionConfig
	pairs    map[PairKey]*pairState
}

// NewCollisionDetector creates a collision detector for one camera.
func NewCollisionDetector(cameraID string, cfg CollisionConfig) *CollisionDetector {
	return &CollisionDetector{
		cameraID: cameraID,
		cfg:      cfg,
		pairs:    make(map[PairKey]*pairState),
	}
}

// Name implements Detector.
func (d *CollisionDetector) Name() string { return "collision" }

// Evaluate implements Detector.
func (d *CollisionDetector) Evaluate(tracks []*vision.Track, ts time.Time) []Event {
	_, vehicles := splitClasses(tracks)
	live := liveByID(tracks)

	var out []Event
	seen := make(map[PairKey]bool)

	for i := 0; i < len(vehicles); i++ {
		for j := i + 1; j < len(vehicles); j++ {
			a, b := vehicles[i], vehicles[j]
			if a.Box.CenterDistance(b.Box) > d.cfg.ProximityPx {
				continue
			}
			key := NewPairKey(a.ID, b.ID)
			seen[key] = true

			state := d.pairs[key]
			if state == nil {
				state = &pairState{}
				d.pairs[key] = state
			}
			state.separatedFor = 0

			if ev, ok := d.step(state, a, b, ts); ok {
				out = append(out, ev)
			}
		}
	}

	// Pairs not proximate this frame: count separation, forget the pair
	// once either track expires or the separation is sustained.
	for key, state := range d.pairs {
		if seen[key] {
			continue
		}
		_, aLive := live[key.A]
		_, bLive := live[key.B]
		state.separatedFor++
		if !aLive || !bLive || state.separatedFor >= d.cfg.SeparationFrames {
			delete(d.pairs, key)
		}
	}

	return out
}

// step advances one pair's state machine by one frame.
func (d *CollisionDetector) step(state *pairState, a, b *vision.Track, ts time.Time) (Event, bool) {
	cond := d.contactCondition(a, b)

	switch state.phase {
	case pairWatching:
		if cond {
			state.phase = pairCandidate
			state.debounce.ConsecutivePositive = 1
			if state.debounce.ConsecutivePositive >= d.cfg.DebounceFrames {
				return d.confirm(state, a, b, ts), true
			}
		}

	case pairCandidate:
		if !cond {
			// Single-frame noise: fall back to watching.
			state.phase = pairWatching
			state.debounce.ConsecutivePositive = 0
			break
		}
		state.debounce.ConsecutivePositive++
		if state.debounce.ConsecutivePositive >= d.cfg.DebounceFrames {
			return d.confirm(state, a, b, ts), true
		}

	case pairCooldown:
		// No re-emission while the same physical incident persists.
		if !state.debounce.InCooldown(ts) && !cond {
			state.phase = pairWatching
		}
	}

	return Event{}, false
}

// contactCondition is the per-frame collision predicate: box overlap, an
// impact-level speed on at least one vehicle, and (when both tracks carry
// segmentation masks) mask overlap above the stricter threshold. The mask
// check removes false positives from perspective overlap without contact.
func (d *CollisionDetector) contactCondition(a, b *vision.Track) bool {
	if a.Box.IoU(b.Box) < d.cfg.MinIoU {
		return false
	}
	if a.Speed() < d.cfg.ImpactSpeed && b.Speed() < d.cfg.ImpactSpeed {
		return false
	}
	if a.LastMask != nil && b.LastMask != nil {
		if a.LastMask.IoU(b.LastMask) < d.cfg.MaskMinIoU {
			return false
		}
	}
	return true
}

func (d *CollisionDetector) confirm(state *pairState, a, b *vision.Track, ts time.Time) Event {
	state.phase = pairCooldown
	state.debounce.MarkEmitted(ts, d.cfg.Cooldown)

	ev := New(TypeCollision, d.cameraID, ts, a.Box.OverlapMidpoint(b.Box), a.ID, b.ID)
	ev.Metadata["severity"] = d.classifySeverity(a, b)
	ev.Metadata["iou"] = a.Box.IoU(b.Box)
	monitoring.Logf("[%s] collision confirmed: vehicles %d and %d", d.cameraID, a.ID, b.ID)
	return ev
}

// classifySeverity labels a confirmed collision major or minor from the
// pre/post-impact kinematics of both tracks: a sharp speed drop or an
// abrupt heading change on a vehicle that was moving means major.
func (d *CollisionDetector) classifySeverity(a, b *vision.Track) string {
	v1Before, v1After, dir1 := beforeAfterKinematics(a.History)
	v2Before, v2After, dir2 := beforeAfterKinematics(b.History)

	if v1Before < d.cfg.MovingSpeed && v2Before < d.cfg.MovingSpeed {
		return "minor"
	}
	if (v1Before > 0 && v1After < d.cfg.SpeedDropFactor*v1Before) ||
		(v2Before > 0 && v2After < d.cfg.SpeedDropFactor*v2Before) ||
		dir1 > d.cfg.DirectionDeg || dir2 > d.cfg.DirectionDeg {
		return "major"
	}
	return "minor"
}

// beforeAfterKinematics splits a track history in half and returns the
// average speed of each half plus the heading change between them, in
// pixels per second and degrees.
func beforeAfterKinematics(hist []vision.TrackPoint) (vBefore, vAfter, dirChangeDeg float64) {
	if len(hist) < 4 {
		return 0, 0, 0
	}
	mid := len(hist) / 2
	vBefore = averageSpeed(hist[:mid])
	vAfter = averageSpeed(hist[mid:])

	dx1, dy1 := netDisplacement(hist[:mid])
	dx2, dy2 := netDisplacement(hist[mid:])
	if (dx1 == 0 && dy1 == 0) || (dx2 == 0 && dy2 == 0) {
		return vBefore, vAfter, 0
	}
	a1 := math.Atan2(dy1, dx1) * 180 / math.Pi
	a2 := math.Atan2(dy2, dx2) * 180 / math.Pi
	diff := math.Abs(a2 - a1)
	if diff > 180 {
		diff = 360 - diff
	}
	return vBefore, vAfter, diff
}

func averageSpeed(part []vision.TrackPoint) float64 {
	if len(part) < 2 {
		return 0
	}
	var sum float64
	var n int
	for i := 1; i < len(part); i++ {
		dt := part[i].Timestamp.Sub(part[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		sum += part[i].Box.Center().Distance(part[i-1].Box.Center()) / dt
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func netDisplacement(part []vision.TrackPoint) (dx, dy float64) {
	if len(part) < 2 {
		return 0, 0
	}
	first := part[0].Box.Center()
	last := part[len(part)-1].Box.Center()
	return last.X - first.X, last.Y - first.Y
}
