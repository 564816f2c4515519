package vision

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateTrack indicates two live tracks share an ID. This is a tracker
// logic fault, never a consequence of bad input, so callers surface it loudly
// and restart the owning camera context with fresh state.
var ErrDuplicateTrack = errors.New("tracker: duplicate live track id")

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	IoUThreshold  float64 // Minimum box IoU to associate a detection with a track
	MaxMisses     int     // Consecutive missed frames before a track expires
	MaxTracks     int     // Cap on concurrent tracks (bounds memory under noise)
	MaxHistory    int     // Bounded per-track history of (box, timestamp)
	MinConfidence float64 // Detections below this confidence never spawn tracks
}

// DefaultTrackerConfig returns the default tracker configuration.
// MaxMisses defaults to roughly three seconds of 30 fps frames.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		IoUThreshold:  0.3,
		MaxMisses:     90,
		MaxTracks:     128,
		MaxHistory:    64,
		MinConfidence: 0.25,
	}
}

// TrackPoint is a single entry in a track's bounded history.
type TrackPoint struct {
	Box       Box
	Timestamp time.Time
}

// Track is a persistent identity for one physical object across frames.
// The tracker owns it; event detectors receive read references per
// invocation and must not retain them past the current call.
type Track struct {
	ID        int64
	Class     Class // fixed at creation, never changes
	Box       Box   // last matched box
	LastMask  *Mask // last matched segmentation mask, nil without segmentation
	VX, VY    float64
	FirstSeen time.Time
	LastSeen  time.Time
	Hits      int
	Misses    int
	History   []TrackPoint
}

// Speed returns the velocity magnitude in pixels per second.
func (t *Track) Speed() float64 {
	return math.Hypot(t.VX, t.VY)
}

// Age returns how long the track has been alive at ts.
func (t *Track) Age(ts time.Time) time.Duration {
	return ts.Sub(t.FirstSeen)
}

// TrackedDetection is a detection annotated with the stable track ID that
// claimed it.
type TrackedDetection struct {
	Detection
	TrackID int64
}

// Tracker maintains the identity table for one camera. It is safe for
// concurrent use, though the pipeline drives it from a single goroutine.
type Tracker struct {
	mu     sync.Mutex
	cfg    TrackerConfig
	tracks map[int64]*Track
	nextID int64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultTrackerConfig().IoUThreshold
	}
	if cfg.MaxMisses <= 0 {
		cfg.MaxMisses = DefaultTrackerConfig().MaxMisses
	}
	if cfg.MaxTracks <= 0 {
		cfg.MaxTracks = DefaultTrackerConfig().MaxTracks
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultTrackerConfig().MaxHistory
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Update associates one frame's detections with existing tracks and returns
// the detections annotated with track IDs.
//
// Association is greedy bipartite on box IoU, restricted to same class:
// tracks claim detections in ascending ID order (deterministic tie-break),
// each taking its best unmatched detection with IoU at or above the
// threshold. Unmatched detections spawn new tracks; tracks unmatched for
// MaxMisses consecutive frames expire. An empty detection list is a normal
// condition (occlusion, skip-frame): every track ages by one miss.
func (t *Tracker) Update(dets []Detection, ts time.Time) ([]TrackedDetection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Ascending ID order gives lower track IDs first claim.
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	claimed := make([]bool, len(dets))
	matched := make(map[int64]int, len(ids)) // track ID -> detection index

	for _, id := range ids {
		track := t.tracks[id]
		best := -1
		bestIoU := 0.0
		for di, det := range dets {
			if claimed[di] || det.Class != track.Class {
				continue
			}
			iou := track.Box.IoU(det.Box)
			if iou < t.cfg.IoUThreshold {
				continue
			}
			// Strict > keeps the earlier detection index on exact ties.
			if iou > bestIoU {
				best = di
				bestIoU = iou
			}
		}
		if best >= 0 {
			claimed[best] = true
			matched[id] = best
		}
	}

	// Update matched tracks.
	for id, di := range matched {
		t.updateTrack(t.tracks[id], dets[di], ts)
	}

	// Age unmatched tracks and expire the stale ones.
	for _, id := range ids {
		if _, ok := matched[id]; ok {
			continue
		}
		track := t.tracks[id]
		track.Misses++
		track.Hits = 0
		if track.Misses > t.cfg.MaxMisses {
			delete(t.tracks, id)
		}
	}

	// Spawn tracks for unmatched detections.
	out := make([]TrackedDetection, 0, len(dets))
	for di, det := range dets {
		if claimed[di] {
			continue
		}
		if det.Confidence < t.cfg.MinConfidence || len(t.tracks) >= t.cfg.MaxTracks {
			continue
		}
		track, err := t.spawnTrack(det, ts)
		if err != nil {
			return nil, err
		}
		matched[track.ID] = di
	}

	for id, di := range matched {
		out = append(out, TrackedDetection{Detection: dets[di], TrackID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out, nil
}

func (t *Tracker) updateTrack(track *Track, det Detection, ts time.Time) {
	// Velocity from centre displacement between the last two matched frames.
	prev := track.Box.Center()
	cur := det.Box.Center()
	if dt := ts.Sub(track.LastSeen).Seconds(); dt > 0 {
		track.VX = (cur.X - prev.X) / dt
		track.VY = (cur.Y - prev.Y) / dt
	}

	track.Box = det.Box
	track.LastMask = det.Mask
	track.LastSeen = ts
	track.Hits++
	track.Misses = 0

	track.History = append(track.History, TrackPoint{Box: det.Box, Timestamp: ts})
	if len(track.History) > t.cfg.MaxHistory {
		track.History = track.History[len(track.History)-t.cfg.MaxHistory:]
	}
}

func (t *Tracker) spawnTrack(det Detection, ts time.Time) (*Track, error) {
	id := t.nextID
	t.nextID++
	if _, exists := t.tracks[id]; exists {
		return nil, fmt.Errorf("spawning track %d: %w", id, ErrDuplicateTrack)
	}
	track := &Track{
		ID:        id,
		Class:     det.Class,
		Box:       det.Box,
		LastMask:  det.Mask,
		FirstSeen: ts,
		LastSeen:  ts,
		Hits:      1,
		History:   []TrackPoint{{Box: det.Box, Timestamp: ts}},
	}
	t.tracks[id] = track
	return track, nil
}

// ActiveTracks returns the live tracks in ascending ID order. Callers get
// the tracker-owned pointers and must treat them as read-only snapshots for
// the duration of the current processing step.
func (t *Tracker) ActiveTracks() []*Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, track)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrackCount returns the number of live tracks.
func (t *Tracker) TrackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Reset clears all tracker state. Used when a camera context restarts after
// an invariant violation; track IDs are NOT reused.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*Track)
}
