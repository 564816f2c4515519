// Package detect defines the object-detection model interface and the
// variants the pipeline can request.
package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// Variant identifies which detection model backs a Detector. Variants trade
// speed for capability: fast and accurate produce boxes only, segmentation
// additionally produces per-object masks.
type Variant string

const (
	VariantFast         Variant = "fast"
	VariantAccurate     Variant = "accurate"
	VariantSegmentation Variant = "segmentation"
)

// ParseVariant validates a variant name from configuration.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantFast, VariantAccurate, VariantSegmentation:
		return v, nil
	}
	return "", fmt.Errorf("unknown model variant %q", s)
}

// ErrNoMaskSupport is returned when a configuration requires segmentation
// masks but the supplied model variant cannot produce them.
var ErrNoMaskSupport = errors.New("model variant does not produce masks")

// Capabilities describes what a variant's output carries.
type Capabilities struct {
	Masks bool
}

// Capabilities reports the output capabilities of the variant.
func (v Variant) Capabilities() Capabilities {
	return Capabilities{Masks: v == VariantSegmentation}
}

// Detector runs object detection on single frames. Implementations are not
// required to be safe for concurrent use; wrap with Serialized when one
// instance is shared across cameras.
type Detector interface {
	// Infer returns the detections for one frame.
	Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error)
	// Variant reports which model backs this detector.
	Variant() Variant
	// Close releases the model.
	Close() error
}

// Factory constructs a detector for the requested variant. The orchestrator
// calls it once per distinct variant in use.
type Factory func(v Variant) (Detector, error)
