package events

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// InteractionConfig holds thresholds for the person-vehicle interaction
// detector.
type InteractionConfig struct {
	ProximityPx  float64       // Person-to-vehicle centre distance to count as "near"
	MinTimeNear  time.Duration // Minimum continuous time near one vehicle to count it
	NearGap      time.Duration // Gap after which a near-spell restarts
	Window       time.Duration // Rolling window over which distinct vehicles accumulate
	MinVehicles  int           // Distinct-vehicle count that triggers an event
	Cooldown     time.Duration // Per-person suppression after an emission
	CircularMinR float64       // Minimum mean radius for the circular-pattern signal
	CircularMaxR float64       // Maximum mean radius for the circular-pattern signal
	CircularCV   float64       // Max coefficient of variation of radius for "circular"
}

// DefaultInteractionConfig returns the default interaction thresholds.
func DefaultInteractionConfig() InteractionConfig {
	return InteractionConfig{
		ProximityPx:  150,
		MinTimeNear:  3 * time.Second,
		NearGap:      2 * time.Second,
		Window:       30 * time.Second,
		MinVehicles:  3,
		Cooldown:     60 * time.Second,
		CircularMinR: 50,
		CircularMaxR: 200,
		CircularCV:   0.5,
	}
}

type nearSpan struct {
	first time.Time
	last  time.Time
}

type timedPoint struct {
	ts time.Time
	p  vision.Point
}

type interactionState struct {
	near     map[int64]*nearSpan  // vehicle ID -> current near-spell
	visited  map[int64]time.Time  // vehicle ID -> when it was credited
	recent   []timedPoint         // person positions inside the window
	debounce DebounceState
}

// InteractionDetector flags a person moving between several distinct
// vehicles within a rolling time window.
type InteractionDetector struct {
	cameraID string
	cfg      InteractionConfig
	persons  map[int64]*interactionState
}

// NewInteractionDetector creates an interaction detector for one camera.
func NewInteractionDetector(cameraID string, cfg InteractionConfig) *InteractionDetector {
	return &InteractionDetector{
		cameraID: cameraID,
		cfg:      cfg,
		persons:  make(map[int64]*interactionState),
	}
}

// Name implements Detector.
func (d *InteractionDetector) Name() string { return "interaction" }

// Evaluate implements Detector.
func (d *InteractionDetector) Evaluate(tracks []*vision.Track, ts time.Time) []Event {
	persons, vehicles := splitClasses(tracks)
	live := liveByID(tracks)
	pruneByTrack(d.persons, live)

	var out []Event
	for _, p := range persons {
		if ev, ok := d.evalPerson(p, vehicles, ts); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (d *InteractionDetector) evalPerson(p *vision.Track, vehicles []*vision.Track, ts time.Time) (Event, bool) {
	state := d.persons[p.ID]
	if state == nil {
		state = &interactionState{
			near:    make(map[int64]*nearSpan),
			visited: make(map[int64]time.Time),
		}
		d.persons[p.ID] = state
	}

	// Track the person's recent positions for the circular-pattern signal.
	state.recent = append(state.recent, timedPoint{ts: ts, p: p.Box.Center()})
	cutoff := ts.Add(-d.cfg.Window)
	for len(state.recent) > 0 && state.recent[0].ts.Before(cutoff) {
		state.recent = state.recent[1:]
	}

	// Credit vehicles the person has stayed near for MinTimeNear.
	for _, v := range vehicles {
		if p.Box.CenterDistance(v.Box) > d.cfg.ProximityPx {
			continue
		}
		span := state.near[v.ID]
		if span == nil || ts.Sub(span.last) > d.cfg.NearGap {
			span = &nearSpan{first: ts}
			state.near[v.ID] = span
		}
		span.last = ts
		if span.last.Sub(span.first) >= d.cfg.MinTimeNear {
			state.visited[v.ID] = ts
		}
	}

	// Roll old visits out of the window.
	for id, when := range state.visited {
		if when.Before(cutoff) {
			delete(state.visited, id)
		}
	}

	if len(state.visited) < d.cfg.MinVehicles || state.debounce.InCooldown(ts) {
		return Event{}, false
	}

	vehicleIDs := make([]int64, 0, len(state.visited))
	for id := range state.visited {
		vehicleIDs = append(vehicleIDs, id)
	}
	sort.Slice(vehicleIDs, func(i, j int) bool { return vehicleIDs[i] < vehicleIDs[j] })

	state.debounce.MarkEmitted(ts, d.cfg.Cooldown)
	// Reset the visit set so an uninterrupted pattern does not re-fire
	// the moment the cooldown lapses.
	state.visited = make(map[int64]time.Time)
	state.near = make(map[int64]*nearSpan)

	ev := New(TypeInteraction, d.cameraID, ts, p.Box.Center(), append([]int64{p.ID}, vehicleIDs...)...)
	ev.Metadata["person_id"] = p.ID
	ev.Metadata["vehicle_ids"] = vehicleIDs
	ev.Metadata["circular_pattern"] = d.circularPattern(state.recent)
	monitoring.Logf("[%s] interaction: person %d visited %d vehicles", d.cameraID, p.ID, len(vehicleIDs))
	return ev, true
}

// circularPattern reports whether the person's recent path orbits a centre
// at a roughly constant radius: a low coefficient of variation of the
// distances from the path centroid within the configured radius band.
func (d *InteractionDetector) circularPattern(recent []timedPoint) bool {
	if len(recent) < 10 {
		return false
	}
	xs := make([]float64, len(recent))
	ys := make([]float64, len(recent))
	for i, tp := range recent {
		xs[i] = tp.p.X
		ys[i] = tp.p.Y
	}
	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)

	dists := make([]float64, len(recent))
	for i, tp := range recent {
		dists[i] = tp.p.Distance(vision.Point{X: cx, Y: cy})
	}
	mean := stat.Mean(dists, nil)
	if mean < d.cfg.CircularMinR || mean > d.cfg.CircularMaxR {
		return false
	}
	return stat.StdDev(dists, nil)/mean < d.cfg.CircularCV
}
