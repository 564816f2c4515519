package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/config"
	"github.com/gatewatch-data/gatewatch/internal/detect"
	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/timeutil"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// statsLogInterval is how often per-camera frame rates are logged.
const statsLogInterval = time.Minute

// Orchestrator owns the camera contexts and the shared detection models.
// Configure resolves which model variant each camera needs, loads each
// distinct variant exactly once, and fails fast when a camera's features
// cannot be served.
type Orchestrator struct {
	mu      sync.Mutex
	factory detect.Factory
	clock   timeutil.Clock
	stats   *Collector
	sinks   []EventSink
	cameras map[string]*Camera
	models  map[detect.Variant]detect.Detector
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates an unconfigured orchestrator. Events from every
// camera flow to the given sinks.
func NewOrchestrator(factory detect.Factory, clock timeutil.Clock, sinks ...EventSink) *Orchestrator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Orchestrator{
		factory: factory,
		clock:   clock,
		stats:   NewCollector(clock),
		sinks:   sinks,
	}
}

// Configure builds the camera contexts from the site configuration. It is
// all-or-nothing: on any error no camera is registered and any model loaded
// so far is closed.
func (o *Orchestrator) Configure(cfg *config.Config) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cameras != nil {
		return fmt.Errorf("orchestrator already configured; call Unload first")
	}

	cameras := make(map[string]*Camera, len(cfg.Cameras))
	models := make(map[detect.Variant]detect.Detector)
	fail := func(err error) error {
		for _, m := range models {
			m.Close()
		}
		return err
	}

	for _, camCfg := range cfg.Cameras {
		features := FeaturesFromConfig(camCfg.Features)
		variant := features.RequiredVariant()

		model, ok := models[variant]
		if !ok {
			loaded, err := o.factory(variant)
			if err != nil {
				return fail(fmt.Errorf("camera %s: load %s model: %w", camCfg.ID, variant, err))
			}
			if cfg.GetSerializeInference() {
				loaded = detect.NewSerialized(loaded)
			}
			models[variant] = loaded
			model = loaded
		}
		if features.NeedsMasks() && !model.Variant().Capabilities().Masks {
			return fail(fmt.Errorf("camera %s: collision detection with variant %s: %w",
				camCfg.ID, model.Variant(), detect.ErrNoMaskSupport))
		}

		zones, err := config.LoadZones(zonesPath(camCfg))
		if err != nil {
			return fail(fmt.Errorf("camera %s: %w", camCfg.ID, err))
		}

		camCfg := camCfg
		newDetectors := func() []events.Detector {
			return buildDetectors(camCfg.ID, features, zones, cfg.Tuning,
				camCfg.GetWidth(), camCfg.GetHeight())
		}
		cameras[camCfg.ID] = &Camera{
			id:           camCfg.ID,
			features:     features,
			buffer:       vision.NewFrameBuffer(cfg.Tuning.GetFrameBufferCapacity()),
			tracker:      vision.NewTracker(cfg.Tuning.TrackerConfig()),
			model:        model,
			detectors:    newDetectors(),
			zones:        zones,
			stats:        o.stats.Camera(camCfg.ID),
			sinks:        o.sinks,
			notify:       make(chan struct{}, 1),
			newDetectors: newDetectors,
		}
		monitoring.Logf("[%s] configured: variant=%s features=%+v", camCfg.ID, variant, features)
	}

	o.cameras = cameras
	o.models = models
	return nil
}

func zonesPath(cam config.CameraConfig) string {
	if cam.ZonesFile == nil {
		return ""
	}
	return *cam.ZonesFile
}

// buildDetectors constructs the enabled event detectors for one camera with
// tuning overrides applied. Only enabled modules are instantiated.
func buildDetectors(cameraID string, f FeatureSet, zones vision.ZoneSet, tn config.Tuning, width, height int) []events.Detector {
	var out []events.Detector

	if f.Collision {
		cc := events.DefaultCollisionConfig()
		if d, ok := tn.GetCollisionCooldown(); ok {
			cc.Cooldown = d
		}
		out = append(out, events.NewCollisionDetector(cameraID, cc))
	}
	if f.Loitering || f.Fall {
		pc := events.DefaultPersonSafetyConfig()
		pc.EnableLoitering = f.Loitering
		pc.EnableFall = f.Fall
		if d, ok := tn.GetLoiterDuration(); ok {
			pc.LoiterDuration = d
		}
		if tn.LoiterRadiusPx != nil {
			pc.LoiterRadiusPx = *tn.LoiterRadiusPx
		}
		out = append(out, events.NewPersonSafetyDetector(cameraID, pc, zones))
	}
	if f.Interaction {
		ic := events.DefaultInteractionConfig()
		if tn.InteractionVehicles != nil {
			ic.MinVehicles = *tn.InteractionVehicles
		}
		out = append(out, events.NewInteractionDetector(cameraID, ic))
	}
	if f.WallWriting {
		wc := events.DefaultWallWritingConfig()
		wc.FrameWidth = float64(width)
		wc.FrameHeight = float64(height)
		if tn.WallJitterStdDevPx != nil {
			wc.JitterStdDevPx = *tn.WallJitterStdDevPx
		}
		out = append(out, events.NewWallWritingDetector(cameraID, wc, zones))
	}
	return out
}

// Start launches the camera goroutines and the periodic stats logger.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cameras == nil {
		return fmt.Errorf("orchestrator not configured")
	}
	if o.cancel != nil {
		return fmt.Errorf("orchestrator already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for _, cam := range o.cameras {
		cam := cam
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			cam.Run(runCtx)
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := o.clock.NewTicker(statsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C():
				o.stats.LogAll()
			}
		}
	}()
	return nil
}

// Submit routes a frame to its camera context.
func (o *Orchestrator) Submit(cameraID string, frame vision.Frame) error {
	cam, err := o.Camera(cameraID)
	if err != nil {
		return err
	}
	cam.Submit(frame)
	return nil
}

// Camera returns a configured camera context.
func (o *Orchestrator) Camera(id string) (*Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cam, ok := o.cameras[id]
	if !ok {
		return nil, fmt.Errorf("unknown camera %q", id)
	}
	return cam, nil
}

// Stats returns a snapshot of every camera's statistics.
func (o *Orchestrator) Stats() map[string]CameraSnapshot {
	return o.stats.Snapshot()
}

// Unload stops the camera goroutines and releases the models. The
// orchestrator can be configured again afterwards.
func (o *Orchestrator) Unload() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	var firstErr error
	for variant, m := range o.models {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s model: %w", variant, err)
		}
	}
	o.cameras = nil
	o.models = nil
	return firstErr
}
