package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// zoneFile is the on-disk JSON shape of a per-camera zone configuration.
type zoneFile struct {
	Zones []zoneEntry `json:"zones"`
}

type zoneEntry struct {
	Name    string       `json:"name"`
	Kind    string       `json:"kind"`
	Polygon [][2]float64 `json:"polygon"`
}

// LoadZones reads a camera's zone polygons from a JSON file. An empty path
// yields an empty set, which means the whole frame is of interest.
func LoadZones(path string) (vision.ZoneSet, error) {
	if path == "" {
		return nil, nil
	}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("zones file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	var zf zoneFile
	if err := json.Unmarshal(data, &zf); err != nil {
		return nil, fmt.Errorf("failed to parse zones JSON: %w", err)
	}

	zones := make(vision.ZoneSet, 0, len(zf.Zones))
	for i, e := range zf.Zones {
		kind, err := parseZoneKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("zone %d (%q): %w", i, e.Name, err)
		}
		if len(e.Polygon) < 3 {
			return nil, fmt.Errorf("zone %d (%q): polygon needs at least 3 points, got %d", i, e.Name, len(e.Polygon))
		}
		poly := make([]vision.Point, len(e.Polygon))
		for j, p := range e.Polygon {
			poly[j] = vision.Point{X: p[0], Y: p[1]}
		}
		zones = append(zones, vision.Zone{Name: e.Name, Kind: kind, Polygon: poly})
	}
	return zones, nil
}

func parseZoneKind(s string) (vision.ZoneKind, error) {
	switch k := vision.ZoneKind(s); k {
	case vision.ZoneInterest, vision.ZoneExclusion, vision.ZoneWall:
		return k, nil
	}
	return "", fmt.Errorf("unknown zone kind %q", s)
}
