package pipeline

import (
	"testing"

	"github.com/gatewatch-data/gatewatch/internal/detect"
)

func TestRequiredVariant(t *testing.T) {
	cases := []struct {
		name     string
		features FeatureSet
		want     detect.Variant
	}{
		{"nothing enabled", FeatureSet{}, detect.VariantFast},
		{"tracking-adjacent only", FeatureSet{Loitering: true, Fall: true, WallWriting: true}, detect.VariantFast},
		{"plates only", FeatureSet{Plates: true}, detect.VariantAccurate},
		{"plates with person features", FeatureSet{Plates: true, Interaction: true}, detect.VariantAccurate},
		{"collision only", FeatureSet{Collision: true}, detect.VariantSegmentation},
		{"collision outranks plates", FeatureSet{Collision: true, Plates: true}, detect.VariantSegmentation},
		{"everything", FeatureSet{Collision: true, Loitering: true, Fall: true, Interaction: true, WallWriting: true, Plates: true}, detect.VariantSegmentation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.features.RequiredVariant(); got != tc.want {
				t.Errorf("RequiredVariant() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNeedsMasks(t *testing.T) {
	if (FeatureSet{Plates: true}).NeedsMasks() {
		t.Error("plates alone should not need masks")
	}
	if !(FeatureSet{Collision: true}).NeedsMasks() {
		t.Error("collision needs masks")
	}
}
