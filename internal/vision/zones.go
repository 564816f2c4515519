package vision

// ZoneKind distinguishes how a configured polygon scopes detection logic.
type ZoneKind string

const (
	// ZoneInterest scopes loitering and interaction checks to an area.
	ZoneInterest ZoneKind = "interest"
	// ZoneExclusion suppresses events whose position falls inside it.
	ZoneExclusion ZoneKind = "exclusion"
	// ZoneWall marks a wall surface for wall-writing detection.
	ZoneWall ZoneKind = "wall"
)

// Zone is a named polygon in frame pixel coordinates.
type Zone struct {
	Name    string
	Kind    ZoneKind
	Polygon []Point
}

// Contains reports whether p lies inside the zone polygon (ray casting).
// Polygons with fewer than three vertices contain nothing.
func (z Zone) Contains(p Point) bool {
	n := len(z.Polygon)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := z.Polygon[i], z.Polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) && pj.Y != pi.Y &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// ZoneSet is the immutable zone configuration for one camera.
type ZoneSet []Zone

// OfKind returns the zones of the given kind.
func (zs ZoneSet) OfKind(kind ZoneKind) []Zone {
	var out []Zone
	for _, z := range zs {
		if z.Kind == kind {
			out = append(out, z)
		}
	}
	return out
}

// InInterest reports whether p falls inside any interest zone. When no
// interest zones are configured the whole frame is of interest.
func (zs ZoneSet) InInterest(p Point) bool {
	zones := zs.OfKind(ZoneInterest)
	if len(zones) == 0 {
		return true
	}
	for _, z := range zones {
		if z.Contains(p) {
			return true
		}
	}
	return false
}

// Excluded reports whether p falls inside any exclusion zone.
func (zs ZoneSet) Excluded(p Point) bool {
	for _, z := range zs.OfKind(ZoneExclusion) {
		if z.Contains(p) {
			return true
		}
	}
	return false
}

// NearWall reports whether p falls inside any wall zone.
func (zs ZoneSet) NearWall(p Point) bool {
	for _, z := range zs.OfKind(ZoneWall) {
		if z.Contains(p) {
			return true
		}
	}
	return false
}

// HasWalls reports whether any wall zones are configured.
func (zs ZoneSet) HasWalls() bool {
	return len(zs.OfKind(ZoneWall)) > 0
}
