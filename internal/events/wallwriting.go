package events

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// WallWritingConfig holds thresholds for the wall-writing heuristic.
// Precision here is inherently best-effort: the signal is box micro-jitter
// near a wall, not pose estimation.
type WallWritingConfig struct {
	WallProximityPx float64       // Distance from a frame border to count as "at a wall"
	MinDuration     time.Duration // Sustained activity before an emission
	JitterStdDevPx  float64       // Min stddev of per-frame centre displacement
	MaxNetTravelPx  float64       // Max net displacement over the activity window
	Cooldown        time.Duration // Per-person suppression after an emission
	FrameWidth      float64       // Frame dimensions for the border fallback
	FrameHeight     float64
}

// DefaultWallWritingConfig returns the default wall-writing thresholds.
func DefaultWallWritingConfig() WallWritingConfig {
	return WallWritingConfig{
		WallProximityPx: 50,
		MinDuration:     3 * time.Second,
		JitterStdDevPx:  4,
		MaxNetTravelPx:  120,
		Cooldown:        60 * time.Second,
		FrameWidth:      1280,
		FrameHeight:     720,
	}
}

type wallState struct {
	nearSince time.Time
	points    []timedPoint
	debounce  DebounceState
}

// WallWritingDetector flags a person lingering against a wall zone (or a
// frame border when no wall zones are configured) with low net movement but
// sustained box micro-jitter.
type WallWritingDetector struct {
	cameraID string
	cfg      WallWritingConfig
	zones    vision.ZoneSet
	persons  map[int64]*wallState
}

// NewWallWritingDetector creates a wall-writing detector for one camera.
func NewWallWritingDetector(cameraID string, cfg WallWritingConfig, zones vision.ZoneSet) *WallWritingDetector {
	return &WallWritingDetector{
		cameraID: cameraID,
		cfg:      cfg,
		zones:    zones,
		persons:  make(map[int64]*wallState),
	}
}

// Name implements Detector.
func (d *WallWritingDetector) Name() string { return "wall_writing" }

// Evaluate implements Detector.
func (d *WallWritingDetector) Evaluate(tracks []*vision.Track, ts time.Time) []Event {
	persons, _ := splitClasses(tracks)
	live := liveByID(tracks)
	pruneByTrack(d.persons, live)

	var out []Event
	for _, p := range persons {
		if ev, ok := d.evalPerson(p, ts); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (d *WallWritingDetector) evalPerson(p *vision.Track, ts time.Time) (Event, bool) {
	state := d.persons[p.ID]
	if state == nil {
		state = &wallState{}
		d.persons[p.ID] = state
	}

	c := p.Box.Center()
	if !d.nearWall(p.Box, c) {
		state.nearSince = time.Time{}
		state.points = state.points[:0]
		return Event{}, false
	}

	if state.nearSince.IsZero() {
		state.nearSince = ts
		state.points = state.points[:0]
	}
	state.points = append(state.points, timedPoint{ts: ts, p: c})

	// Bound the sample window to twice the required duration.
	cutoff := ts.Add(-2 * d.cfg.MinDuration)
	for len(state.points) > 0 && state.points[0].ts.Before(cutoff) {
		state.points = state.points[1:]
	}

	if ts.Sub(state.nearSince) < d.cfg.MinDuration || state.debounce.InCooldown(ts) {
		return Event{}, false
	}
	if len(state.points) < 5 {
		return Event{}, false
	}

	first := state.points[0].p
	last := state.points[len(state.points)-1].p
	if first.Distance(last) > d.cfg.MaxNetTravelPx {
		// Walking along the wall, not writing on it.
		state.nearSince = ts
		state.points = state.points[:0]
		return Event{}, false
	}

	steps := make([]float64, 0, len(state.points)-1)
	for i := 1; i < len(state.points); i++ {
		steps = append(steps, state.points[i].p.Distance(state.points[i-1].p))
	}
	jitter := stat.StdDev(steps, nil)
	if jitter < d.cfg.JitterStdDevPx {
		return Event{}, false
	}

	state.debounce.MarkEmitted(ts, d.cfg.Cooldown)
	state.nearSince = ts
	state.points = state.points[:0]

	ev := New(TypeWallWriting, d.cameraID, ts, c, p.ID)
	ev.Metadata["jitter_stddev"] = jitter
	monitoring.Logf("[%s] wall writing: person %d jitter=%.1fpx", d.cameraID, p.ID, jitter)
	return ev, true
}

// nearWall prefers configured wall zones; without any it falls back to
// proximity to a frame border, the original field heuristic.
func (d *WallWritingDetector) nearWall(b vision.Box, c vision.Point) bool {
	if d.zones.HasWalls() {
		return d.zones.NearWall(c)
	}
	return b.X1 <= d.cfg.WallProximityPx ||
		b.Y1 <= d.cfg.WallProximityPx ||
		d.cfg.FrameWidth-b.X2 <= d.cfg.WallProximityPx ||
		d.cfg.FrameHeight-b.Y2 <= d.cfg.WallProximityPx
}
