package events

import (
	"time"

	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// PersonSafetyConfig holds thresholds for the loitering and fall
// sub-detectors. Distances in pixels, speeds in pixels per second.
type PersonSafetyConfig struct {
	EnableLoitering bool
	EnableFall      bool

	LoiterDuration time.Duration // Dwell time before a loitering event
	LoiterRadiusPx float64       // Stationary radius: dwell resets when exceeded
	LoiterCooldown time.Duration // Re-arm delay per track after an emission

	FallProneAspect    float64       // Height/width at or below which a box is prone
	FallStandingAspect float64       // Height/width at or above which a box is standing
	FallDownSpeed      float64       // Minimum downward velocity during the transition
	FallWindow         time.Duration // Max standing→prone transition time
	FallRearm          time.Duration // Sustained standing time before re-arming
	FallMinBoxPx       float64       // Ignore boxes smaller than this on both axes
}

// DefaultPersonSafetyConfig returns the default person-safety thresholds.
func DefaultPersonSafetyConfig() PersonSafetyConfig {
	return PersonSafetyConfig{
		EnableLoitering:    true,
		EnableFall:         true,
		LoiterDuration:     20 * time.Second,
		LoiterRadiusPx:     120,
		LoiterCooldown:     60 * time.Second,
		FallProneAspect:    0.9,
		FallStandingAspect: 1.4,
		FallDownSpeed:      80,
		FallWindow:         1500 * time.Millisecond,
		FallRearm:          5 * time.Second,
		FallMinBoxPx:       40,
	}
}

type loiterState struct {
	anchor    vision.Point
	anchorTs  time.Time
	debounce  DebounceState
	wasInside bool
}

type fallState struct {
	armed         bool
	lastStanding  time.Time
	standingSince time.Time
}

// PersonSafetyDetector runs the loitering and fall sub-detectors. The two
// are independent; they share only the per-person track input.
type PersonSafetyDetector struct {
	cameraID string
	cfg      PersonSafetyConfig
	zones    vision.ZoneSet
	loiter   map[int64]*loiterState
	fall     map[int64]*fallState
}

// NewPersonSafetyDetector creates a person-safety detector for one camera.
func NewPersonSafetyDetector(cameraID string, cfg PersonSafetyConfig, zones vision.ZoneSet) *PersonSafetyDetector {
	return &PersonSafetyDetector{
		cameraID: cameraID,
		cfg:      cfg,
		zones:    zones,
		loiter:   make(map[int64]*loiterState),
		fall:     make(map[int64]*fallState),
	}
}

// Name implements Detector.
func (d *PersonSafetyDetector) Name() string { return "person_safety" }

// Evaluate implements Detector.
func (d *PersonSafetyDetector) Evaluate(tracks []*vision.Track, ts time.Time) []Event {
	persons, _ := splitClasses(tracks)
	live := liveByID(tracks)
	pruneByTrack(d.loiter, live)
	pruneByTrack(d.fall, live)

	var out []Event
	for _, p := range persons {
		if d.cfg.EnableLoitering {
			if ev, ok := d.evalLoiter(p, ts); ok {
				out = append(out, ev)
			}
		}
		if d.cfg.EnableFall {
			if ev, ok := d.evalFall(p, ts); ok {
				out = append(out, ev)
			}
		}
	}
	return out
}

// evalLoiter accumulates dwell time while the person stays inside the zones
// of interest and within the stationary radius of an anchor point. Leaving
// either resets the dwell; an emission starts the per-track cooldown.
func (d *PersonSafetyDetector) evalLoiter(p *vision.Track, ts time.Time) (Event, bool) {
	state := d.loiter[p.ID]
	if state == nil {
		state = &loiterState{}
		d.loiter[p.ID] = state
	}

	c := p.Box.Center()
	inside := d.zones.InInterest(c) && !d.zones.Excluded(c)
	if !inside {
		// Leaving the zone re-arms immediately: re-entry starts fresh.
		state.anchorTs = time.Time{}
		state.debounce.CooldownUntil = time.Time{}
		state.wasInside = false
		return Event{}, false
	}

	if state.anchorTs.IsZero() || c.Distance(state.anchor) > d.cfg.LoiterRadiusPx {
		state.anchor = c
		state.anchorTs = ts
		state.wasInside = true
		return Event{}, false
	}

	dwell := ts.Sub(state.anchorTs)
	if dwell < d.cfg.LoiterDuration || state.debounce.InCooldown(ts) {
		return Event{}, false
	}

	state.debounce.MarkEmitted(ts, d.cfg.LoiterCooldown)
	state.anchorTs = ts // dwell restarts; re-triggers only past the cooldown

	ev := New(TypeLoitering, d.cameraID, ts, c, p.ID)
	ev.Metadata["dwell_seconds"] = dwell.Seconds()
	monitoring.Logf("[%s] loitering: person %d dwelled %.1fs", d.cameraID, p.ID, dwell.Seconds())
	return ev, true
}

// evalFall looks for a standing→prone aspect-ratio transition inside the
// fall window combined with a downward velocity spike. Single-shot per
// track: it re-arms only after the aspect stays at standing level for the
// configured re-arm period, so a person on the ground emits once.
func (d *PersonSafetyDetector) evalFall(p *vision.Track, ts time.Time) (Event, bool) {
	state := d.fall[p.ID]
	if state == nil {
		state = &fallState{armed: true}
		d.fall[p.ID] = state
	}

	if p.Box.Width() < d.cfg.FallMinBoxPx && p.Box.Height() < d.cfg.FallMinBoxPx {
		return Event{}, false
	}

	aspect := p.Box.AspectRatio()
	if aspect >= d.cfg.FallStandingAspect {
		if state.standingSince.IsZero() {
			state.standingSince = ts
		}
		state.lastStanding = ts
		if !state.armed && ts.Sub(state.standingSince) >= d.cfg.FallRearm {
			state.armed = true
		}
		return Event{}, false
	}
	state.standingSince = time.Time{}

	if !state.armed || aspect > d.cfg.FallProneAspect {
		return Event{}, false
	}
	if state.lastStanding.IsZero() || ts.Sub(state.lastStanding) > d.cfg.FallWindow {
		return Event{}, false
	}
	if p.VY < d.cfg.FallDownSpeed { // image coordinates: +y is down
		return Event{}, false
	}

	state.armed = false
	ev := New(TypeFall, d.cameraID, ts, p.Box.Center(), p.ID)
	ev.Metadata["aspect_ratio"] = aspect
	ev.Metadata["down_speed"] = p.VY
	monitoring.Logf("[%s] fall: person %d aspect=%.2f vy=%.0f", d.cameraID, p.ID, aspect, p.VY)
	return ev, true
}
