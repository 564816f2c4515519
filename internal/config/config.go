// Package config loads the site configuration: cameras, enabled analysis
// features, model endpoint and tuning overrides. Fields are pointers so a
// partial JSON file overrides only what it names; the Get* accessors supply
// the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/security"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// DefaultConfigPath is where the daemon looks for its configuration when no
// -config flag is given.
const DefaultConfigPath = "config/gatewatch.json"

// Config is the root site configuration.
type Config struct {
	ListenAddr         *string `json:"listen_addr,omitempty"`
	DatabasePath       *string `json:"database_path,omitempty"`
	InferenceURL       *string `json:"inference_url,omitempty"`
	SerializeInference *bool   `json:"serialize_inference,omitempty"`

	Tuning  Tuning         `json:"tuning,omitempty"`
	Cameras []CameraConfig `json:"cameras"`
}

// CameraConfig describes one camera stream and the features it runs.
type CameraConfig struct {
	ID        string   `json:"id"`
	Source    *string  `json:"source,omitempty"` // stream URL or device path
	Width     *int     `json:"width,omitempty"`
	Height    *int     `json:"height,omitempty"`
	ZonesFile *string  `json:"zones_file,omitempty"`
	Features  Features `json:"features,omitempty"`
}

// Features selects which analysis modules run for a camera. Unset fields
// fall back to the defaults: tracking-only, nothing else.
type Features struct {
	Collision   *bool `json:"collision,omitempty"`
	Loitering   *bool `json:"loitering,omitempty"`
	Fall        *bool `json:"fall,omitempty"`
	Interaction *bool `json:"interaction,omitempty"`
	WallWriting *bool `json:"wall_writing,omitempty"`
	Plates      *bool `json:"plates,omitempty"`
}

// Tuning carries the knobs that field deployments actually adjust. Detector
// thresholds not listed here keep their built-in defaults.
type Tuning struct {
	FrameBufferCapacity *int     `json:"frame_buffer_capacity,omitempty"`
	IoUThreshold        *float64 `json:"iou_threshold,omitempty"`
	MaxMisses           *int     `json:"max_misses,omitempty"`
	MinConfidence       *float64 `json:"min_confidence,omitempty"`
	LoiterDuration      *string  `json:"loiter_duration,omitempty"` // duration string like "20s"
	LoiterRadiusPx      *float64 `json:"loiter_radius_px,omitempty"`
	CollisionCooldown   *string  `json:"collision_cooldown,omitempty"`
	InteractionVehicles *int     `json:"interaction_vehicles,omitempty"`
	WallJitterStdDevPx  *float64 `json:"wall_jitter_stddev_px,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// Load reads and validates a Config from a JSON file. The path must have a
// .json extension and the file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Zone files are resolved relative to the config file and must stay
	// under its directory; the config is the trust boundary for every
	// file path it names.
	baseDir := filepath.Dir(cleanPath)
	for i := range cfg.Cameras {
		cam := &cfg.Cameras[i]
		if cam.ZonesFile == nil || *cam.ZonesFile == "" {
			continue
		}
		zf := *cam.ZonesFile
		if !filepath.IsAbs(zf) {
			zf = filepath.Join(baseDir, zf)
		}
		if err := security.ValidatePathWithinDirectory(zf, baseDir); err != nil {
			return nil, fmt.Errorf("camera %s zones file: %w", cam.ID, err)
		}
		cam.ZonesFile = &zf
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("at least one camera must be configured")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera %d has no id", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
	}

	if c.Tuning.IoUThreshold != nil {
		if v := *c.Tuning.IoUThreshold; v <= 0 || v >= 1 {
			return fmt.Errorf("iou_threshold must be in (0, 1), got %f", v)
		}
	}
	if c.Tuning.MinConfidence != nil {
		if v := *c.Tuning.MinConfidence; v < 0 || v > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", v)
		}
	}
	if c.Tuning.MaxMisses != nil && *c.Tuning.MaxMisses < 1 {
		return fmt.Errorf("max_misses must be positive, got %d", *c.Tuning.MaxMisses)
	}
	if c.Tuning.LoiterDuration != nil && *c.Tuning.LoiterDuration != "" {
		if _, err := time.ParseDuration(*c.Tuning.LoiterDuration); err != nil {
			return fmt.Errorf("invalid loiter_duration '%s': %w", *c.Tuning.LoiterDuration, err)
		}
	}
	if c.Tuning.CollisionCooldown != nil && *c.Tuning.CollisionCooldown != "" {
		if _, err := time.ParseDuration(*c.Tuning.CollisionCooldown); err != nil {
			return fmt.Errorf("invalid collision_cooldown '%s': %w", *c.Tuning.CollisionCooldown, err)
		}
	}
	return nil
}

// GetListenAddr returns the API listen address or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetDatabasePath returns the sqlite path or the default.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "gatewatch.db"
	}
	return *c.DatabasePath
}

// GetInferenceURL returns the model server base URL or the default.
func (c *Config) GetInferenceURL() string {
	if c.InferenceURL == nil || *c.InferenceURL == "" {
		return "http://127.0.0.1:9090"
	}
	return *c.InferenceURL
}

// GetSerializeInference reports whether shared model access is serialized.
func (c *Config) GetSerializeInference() bool {
	if c.SerializeInference == nil {
		return true
	}
	return *c.SerializeInference
}

// GetWidth returns the camera frame width or the default.
func (cam *CameraConfig) GetWidth() int {
	if cam.Width == nil || *cam.Width <= 0 {
		return 1280
	}
	return *cam.Width
}

// GetHeight returns the camera frame height or the default.
func (cam *CameraConfig) GetHeight() int {
	if cam.Height == nil || *cam.Height <= 0 {
		return 720
	}
	return *cam.Height
}

// GetSource returns the stream source or an empty string when the camera is
// fed externally (e.g. via the ingest API).
func (cam *CameraConfig) GetSource() string {
	if cam.Source == nil {
		return ""
	}
	return *cam.Source
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// GetCollision reports whether collision detection is enabled.
func (f Features) GetCollision() bool { return boolOr(f.Collision, false) }

// GetLoitering reports whether loitering detection is enabled.
func (f Features) GetLoitering() bool { return boolOr(f.Loitering, false) }

// GetFall reports whether fall detection is enabled.
func (f Features) GetFall() bool { return boolOr(f.Fall, false) }

// GetInteraction reports whether interaction detection is enabled.
func (f Features) GetInteraction() bool { return boolOr(f.Interaction, false) }

// GetWallWriting reports whether wall-writing detection is enabled.
func (f Features) GetWallWriting() bool { return boolOr(f.WallWriting, false) }

// GetPlates reports whether plate reading is requested.
func (f Features) GetPlates() bool { return boolOr(f.Plates, false) }

// GetFrameBufferCapacity returns the per-camera frame buffer capacity.
func (t Tuning) GetFrameBufferCapacity() int {
	if t.FrameBufferCapacity == nil || *t.FrameBufferCapacity < 1 {
		return vision.DefaultFrameBufferCapacity
	}
	return *t.FrameBufferCapacity
}

// TrackerConfig builds the tracker configuration with overrides applied.
func (t Tuning) TrackerConfig() vision.TrackerConfig {
	cfg := vision.DefaultTrackerConfig()
	if t.IoUThreshold != nil {
		cfg.IoUThreshold = *t.IoUThreshold
	}
	if t.MaxMisses != nil {
		cfg.MaxMisses = *t.MaxMisses
	}
	if t.MinConfidence != nil {
		cfg.MinConfidence = *t.MinConfidence
	}
	return cfg
}

// GetLoiterDuration parses the loiter duration override.
func (t Tuning) GetLoiterDuration() (time.Duration, bool) {
	if t.LoiterDuration == nil || *t.LoiterDuration == "" {
		return 0, false
	}
	d, err := time.ParseDuration(*t.LoiterDuration)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetCollisionCooldown parses the collision cooldown override.
func (t Tuning) GetCollisionCooldown() (time.Duration, bool) {
	if t.CollisionCooldown == nil || *t.CollisionCooldown == "" {
		return 0, false
	}
	d, err := time.ParseDuration(*t.CollisionCooldown)
	if err != nil {
		return 0, false
	}
	return d, true
}
