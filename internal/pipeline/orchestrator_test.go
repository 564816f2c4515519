package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/config"
	"github.com/gatewatch-data/gatewatch/internal/detect"
	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

func bptr(b bool) *bool { return &b }
func iptr(i int) *int   { return &i }

// recordingFactory builds stub detectors and records which variants the
// orchestrator asked for.
type recordingFactory struct {
	mu        sync.Mutex
	requested []detect.Variant
	models    []*detect.Stub
	forced    detect.Variant // when set, built models report this variant
	err       error
	detFn     func(frame *vision.Frame) []vision.Detection
}

func (f *recordingFactory) New(v detect.Variant) (detect.Detector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, v)
	if f.err != nil {
		return nil, f.err
	}
	if f.forced != "" {
		v = f.forced
	}
	s := detect.NewStub(v, f.detFn)
	f.models = append(f.models, s)
	return s, nil
}

func (f *recordingFactory) requestedVariants() []detect.Variant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]detect.Variant(nil), f.requested...)
}

func TestConfigure_OneModelPerVariant(t *testing.T) {
	f := &recordingFactory{}
	o := NewOrchestrator(f.New, nil)

	cfg := &config.Config{Cameras: []config.CameraConfig{
		{ID: "gate", Features: config.Features{Collision: bptr(true), Plates: bptr(true)}},
		{ID: "lot", Features: config.Features{Plates: bptr(true)}},
		{ID: "yard", Features: config.Features{Loitering: bptr(true)}},
		{ID: "ramp", Features: config.Features{Collision: bptr(true)}},
	}}
	if err := o.Configure(cfg); err != nil {
		t.Fatal(err)
	}
	defer o.Unload()

	got := f.requestedVariants()
	want := []detect.Variant{detect.VariantSegmentation, detect.VariantAccurate, detect.VariantFast}
	if len(got) != len(want) {
		t.Fatalf("loaded %d models (%v), want %d distinct variants", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("load %d = %s, want %s", i, got[i], want[i])
		}
	}

	// gate and ramp share the segmentation model.
	gate, err := o.Camera("gate")
	if err != nil {
		t.Fatal(err)
	}
	ramp, err := o.Camera("ramp")
	if err != nil {
		t.Fatal(err)
	}
	if gate.model != ramp.model {
		t.Error("cameras with the same variant should share one model")
	}
}

func TestConfigure_CapabilityMismatchFailsFast(t *testing.T) {
	// The factory degrades every request to the fast model, so a camera
	// that needs masks cannot be served.
	f := &recordingFactory{forced: detect.VariantFast}
	o := NewOrchestrator(f.New, nil)

	cfg := &config.Config{Cameras: []config.CameraConfig{
		{ID: "lot", Features: config.Features{Plates: bptr(true)}},
		{ID: "gate", Features: config.Features{Collision: bptr(true)}},
	}}
	err := o.Configure(cfg)
	if err == nil {
		t.Fatal("Configure should fail when collision cannot get masks")
	}
	if !errors.Is(err, detect.ErrNoMaskSupport) {
		t.Errorf("Configure error = %v, want ErrNoMaskSupport", err)
	}

	// All-or-nothing: nothing registered, loaded models released.
	if _, err := o.Camera("lot"); err == nil {
		t.Error("no camera should be registered after a failed Configure")
	}
	for i, m := range f.models {
		if !m.Closed() {
			t.Errorf("model %d not closed after failed Configure", i)
		}
	}
}

func TestConfigure_FactoryError(t *testing.T) {
	f := &recordingFactory{err: errors.New("model file missing")}
	o := NewOrchestrator(f.New, nil)

	cfg := &config.Config{Cameras: []config.CameraConfig{{ID: "gate"}}}
	if err := o.Configure(cfg); err == nil {
		t.Fatal("factory error should fail Configure")
	}
}

func TestConfigure_TwiceNeedsUnload(t *testing.T) {
	f := &recordingFactory{}
	o := NewOrchestrator(f.New, nil)
	cfg := &config.Config{Cameras: []config.CameraConfig{{ID: "gate"}}}

	if err := o.Configure(cfg); err != nil {
		t.Fatal(err)
	}
	if err := o.Configure(cfg); err == nil {
		t.Error("second Configure without Unload should fail")
	}
	if err := o.Unload(); err != nil {
		t.Fatal(err)
	}
	if err := o.Configure(cfg); err != nil {
		t.Errorf("Configure after Unload: %v", err)
	}
	o.Unload()
}

func TestSubmit_UnknownCamera(t *testing.T) {
	o := NewOrchestrator((&recordingFactory{}).New, nil)
	cfg := &config.Config{Cameras: []config.CameraConfig{{ID: "gate"}}}
	if err := o.Configure(cfg); err != nil {
		t.Fatal(err)
	}
	defer o.Unload()

	if err := o.Submit("backdoor", vision.Frame{}); err == nil {
		t.Error("Submit to an unknown camera should fail")
	}
}

func TestPipeline_EndToEnd_Loitering(t *testing.T) {
	// A stationary person in every frame; over 30 seconds of frame
	// timestamps that must produce exactly one loitering event.
	f := &recordingFactory{detFn: func(frame *vision.Frame) []vision.Detection {
		return []vision.Detection{{
			Box:        vision.Box{X1: 100, Y1: 100, X2: 140, Y2: 200},
			Class:      vision.ClassPerson,
			Confidence: 0.9,
		}}
	}}

	var mu sync.Mutex
	var got []events.Event
	sink := EventSinkFunc(func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})

	o := NewOrchestrator(f.New, nil, sink)
	cfg := &config.Config{
		Cameras: []config.CameraConfig{
			{ID: "yard", Features: config.Features{Loitering: bptr(true)}},
		},
		Tuning: config.Tuning{FrameBufferCapacity: iptr(64)},
	}
	if err := o.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}

	base := time.Unix(1000, 0)
	const frames = 31
	for i := 0; i < frames; i++ {
		err := o.Submit("yard", vision.Frame{
			CameraID:  "yard",
			Seq:       uint64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Width:     1280,
			Height:    720,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if o.Stats()["yard"].FramesProcessed == frames {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline stalled: %+v", o.Stats()["yard"])
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := o.Unload(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d events, want exactly 1 loitering event", len(got))
	}
	if got[0].Type != events.TypeLoitering || got[0].CameraID != "yard" {
		t.Errorf("event = %+v", got[0])
	}

	snap := o.Stats()["yard"]
	if snap.EventsByType["loitering"] != 1 {
		t.Errorf("stats events = %v", snap.EventsByType)
	}
	if snap.LiveTracks != 1 {
		t.Errorf("LiveTracks = %d, want 1", snap.LiveTracks)
	}
	for i, m := range f.models {
		if !m.Closed() {
			t.Errorf("model %d not closed after Unload", i)
		}
	}
}
