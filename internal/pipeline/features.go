// Package pipeline wires cameras to the detection model, the tracker and the
// event detectors, and exposes the per-camera statistics the API reports.
package pipeline

import (
	"github.com/gatewatch-data/gatewatch/internal/config"
	"github.com/gatewatch-data/gatewatch/internal/detect"
)

// FeatureSet is the resolved set of analysis features for one camera.
type FeatureSet struct {
	Collision   bool
	Loitering   bool
	Fall        bool
	Interaction bool
	WallWriting bool
	Plates      bool
}

// FeaturesFromConfig resolves a camera's configured features.
func FeaturesFromConfig(f config.Features) FeatureSet {
	return FeatureSet{
		Collision:   f.GetCollision(),
		Loitering:   f.GetLoitering(),
		Fall:        f.GetFall(),
		Interaction: f.GetInteraction(),
		WallWriting: f.GetWallWriting(),
		Plates:      f.GetPlates(),
	}
}

// RequiredVariant resolves which model variant the feature set needs.
// Collision outranks everything because it needs segmentation masks; plate
// reading needs the accurate model; tracking and the person detectors run
// fine on the fast one.
func (f FeatureSet) RequiredVariant() detect.Variant {
	switch {
	case f.Collision:
		return detect.VariantSegmentation
	case f.Plates:
		return detect.VariantAccurate
	default:
		return detect.VariantFast
	}
}

// NeedsMasks reports whether any enabled feature depends on segmentation
// masks being present in the model output.
func (f FeatureSet) NeedsMasks() bool { return f.Collision }
