package pipeline

import (
	"context"
	"errors"

	"github.com/gatewatch-data/gatewatch/internal/detect"
	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// EventSink consumes confirmed events. Sinks must tolerate concurrent calls
// from different camera goroutines.
type EventSink interface {
	HandleEvent(ctx context.Context, ev events.Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, ev events.Event) error

// HandleEvent implements EventSink.
func (f EventSinkFunc) HandleEvent(ctx context.Context, ev events.Event) error {
	return f(ctx, ev)
}

// Camera is the processing context for one camera stream: frame buffer,
// tracker, detector set and statistics. Run drives it from a single
// goroutine; Submit may be called from any goroutine.
type Camera struct {
	id        string
	features  FeatureSet
	buffer    *vision.FrameBuffer
	tracker   *vision.Tracker
	model     detect.Detector
	detectors []events.Detector
	zones     vision.ZoneSet
	stats     *CameraStats
	sinks     []EventSink
	notify    chan struct{}

	// newDetectors rebuilds the detector set with fresh state after a
	// tracker invariant violation forces a context restart.
	newDetectors func() []events.Detector
}

// ID returns the camera identifier.
func (c *Camera) ID() string { return c.id }

// Features returns the camera's resolved feature set.
func (c *Camera) Features() FeatureSet { return c.features }

// Submit buffers a frame for processing. It never blocks: when the buffer is
// full the oldest frame is evicted and counted as dropped.
func (c *Camera) Submit(frame vision.Frame) {
	c.buffer.Push(frame)
	c.stats.SetDropped(c.buffer.Dropped())
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// MarkStale drains the buffer after a stream disconnect.
func (c *Camera) MarkStale() {
	c.buffer.MarkStale()
}

// Run processes buffered frames until ctx is cancelled.
func (c *Camera) Run(ctx context.Context) {
	monitoring.Debugf("[%s] camera context started", c.id)
	for {
		select {
		case <-ctx.Done():
			monitoring.Debugf("[%s] camera context stopped", c.id)
			return
		case <-c.notify:
		}

		for {
			frame, ok := c.buffer.Pop()
			if !ok {
				break
			}
			if err := c.process(ctx, frame); err != nil {
				if errors.Is(err, vision.ErrDuplicateTrack) {
					c.restart()
					continue
				}
				if ctx.Err() != nil {
					return
				}
				monitoring.Logf("[%s] frame %d: %v", c.id, frame.Seq, err)
			}
		}
	}
}

func (c *Camera) process(ctx context.Context, frame vision.Frame) error {
	dets, err := c.model.Infer(ctx, &frame)
	if err != nil {
		// The frame is lost but track identities survive: age every track
		// one miss so expiry still works through model outages.
		c.stats.AddInferError()
		if _, uerr := c.tracker.Update(nil, frame.Timestamp); uerr != nil {
			return uerr
		}
		return err
	}

	dets = c.filterExcluded(dets)
	if _, err := c.tracker.Update(dets, frame.Timestamp); err != nil {
		return err
	}

	tracks := c.tracker.ActiveTracks()
	c.stats.AddFrame()
	c.stats.SetLiveTracks(len(tracks))

	for _, det := range c.detectors {
		for _, ev := range det.Evaluate(tracks, frame.Timestamp) {
			c.stats.AddEvent(ev.Type)
			c.dispatch(ctx, ev)
		}
	}
	return nil
}

// filterExcluded drops detections centred inside an exclusion zone before
// they reach the tracker, so excluded areas generate neither tracks nor
// events.
func (c *Camera) filterExcluded(dets []vision.Detection) []vision.Detection {
	if len(c.zones) == 0 {
		return dets
	}
	out := dets[:0]
	for _, d := range dets {
		if c.zones.Excluded(d.Box.Center()) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Camera) dispatch(ctx context.Context, ev events.Event) {
	for _, sink := range c.sinks {
		if err := sink.HandleEvent(ctx, ev); err != nil {
			monitoring.Logf("[%s] event sink: %v", c.id, err)
		}
	}
}

// restart rebuilds the camera context with fresh tracker and detector state.
// Track IDs are not reused, so events emitted before the restart stay
// unambiguous.
func (c *Camera) restart() {
	monitoring.Logf("[%s] tracker invariant violation, restarting camera context", c.id)
	c.tracker.Reset()
	c.detectors = c.newDetectors()
}
