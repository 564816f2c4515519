package pipeline

import (
	"sync"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/timeutil"
)

// CameraStats tracks per-camera pipeline statistics with thread-safe
// operations. Cumulative counters never reset; the frame-rate window resets
// on each periodic log.
type CameraStats struct {
	mu              sync.Mutex
	clock           timeutil.Clock
	framesProcessed int64
	framesDropped   uint64
	inferErrors     int64
	liveTracks      int
	eventsByType    map[events.Type]int64
	windowFrames    int64
	windowStart     time.Time
}

func newCameraStats(clock timeutil.Clock) *CameraStats {
	return &CameraStats{
		clock:        clock,
		eventsByType: make(map[events.Type]int64),
		windowStart:  clock.Now(),
	}
}

// AddFrame counts one fully processed frame.
func (cs *CameraStats) AddFrame() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.framesProcessed++
	cs.windowFrames++
}

// SetDropped records the cumulative dropped-frame total from the buffer.
func (cs *CameraStats) SetDropped(total uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.framesDropped = total
}

// AddInferError counts a failed inference round trip.
func (cs *CameraStats) AddInferError() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.inferErrors++
}

// SetLiveTracks records the current live track count.
func (cs *CameraStats) SetLiveTracks(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.liveTracks = n
}

// AddEvent counts one emitted event.
func (cs *CameraStats) AddEvent(t events.Type) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.eventsByType[t]++
}

// CameraSnapshot is a point-in-time copy of one camera's statistics.
type CameraSnapshot struct {
	FramesProcessed int64            `json:"frames_processed"`
	FramesDropped   uint64           `json:"frames_dropped"`
	InferErrors     int64            `json:"infer_errors"`
	LiveTracks      int              `json:"live_tracks"`
	FPS             float64          `json:"fps"`
	EventsByType    map[string]int64 `json:"events_by_type"`
}

// Snapshot returns the current statistics without resetting anything.
func (cs *CameraStats) Snapshot() CameraSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	snap := CameraSnapshot{
		FramesProcessed: cs.framesProcessed,
		FramesDropped:   cs.framesDropped,
		InferErrors:     cs.inferErrors,
		LiveTracks:      cs.liveTracks,
		EventsByType:    make(map[string]int64, len(cs.eventsByType)),
	}
	if elapsed := cs.clock.Since(cs.windowStart).Seconds(); elapsed > 0 {
		snap.FPS = float64(cs.windowFrames) / elapsed
	}
	for t, n := range cs.eventsByType {
		snap.EventsByType[string(t)] = n
	}
	return snap
}

// LogStats logs the frame rate since the last call and resets the window.
// Quiet cameras log nothing.
func (cs *CameraStats) LogStats(cameraID string) {
	cs.mu.Lock()
	now := cs.clock.Now()
	elapsed := now.Sub(cs.windowStart)
	frames := cs.windowFrames
	dropped := cs.framesDropped
	tracks := cs.liveTracks
	cs.windowFrames = 0
	cs.windowStart = now
	cs.mu.Unlock()

	if frames == 0 || elapsed <= 0 {
		return
	}
	monitoring.Logf("[%s] pipeline stats: %.1f fps, %d tracks, %d dropped total",
		cameraID, float64(frames)/elapsed.Seconds(), tracks, dropped)
}

// Collector aggregates per-camera statistics for the whole pipeline.
type Collector struct {
	mu      sync.RWMutex
	clock   timeutil.Clock
	cameras map[string]*CameraStats
}

// NewCollector creates an empty collector.
func NewCollector(clock timeutil.Clock) *Collector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Collector{clock: clock, cameras: make(map[string]*CameraStats)}
}

// Camera returns the stats for one camera, creating them on first use.
func (c *Collector) Camera(id string) *CameraStats {
	c.mu.RLock()
	cs := c.cameras[id]
	c.mu.RUnlock()
	if cs != nil {
		return cs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cs = c.cameras[id]; cs == nil {
		cs = newCameraStats(c.clock)
		c.cameras[id] = cs
	}
	return cs
}

// Snapshot returns a point-in-time copy of every camera's statistics.
func (c *Collector) Snapshot() map[string]CameraSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CameraSnapshot, len(c.cameras))
	for id, cs := range c.cameras {
		out[id] = cs.Snapshot()
	}
	return out
}

// LogAll logs the frame rate of every active camera.
func (c *Collector) LogAll() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, cs := range c.cameras {
		cs.LogStats(id)
	}
}
