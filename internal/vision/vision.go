// Package vision holds the core data model for the camera pipeline: frames,
// detections, bounding-box geometry, segmentation masks and configured zones,
// plus the frame buffer and multi-object tracker that operate on them.
package vision

import (
	"fmt"
	"math"
	"time"
)

// Class is the object class reported by the detector.
type Class string

const (
	ClassVehicle Class = "vehicle"
	ClassPerson  Class = "person"
)

// ParseClass maps a detector class label to a Class. Labels outside the
// tracked set return an error so callers can skip them.
func ParseClass(s string) (Class, error) {
	switch c := Class(s); c {
	case ClassVehicle, ClassPerson:
		return c, nil
	}
	return "", fmt.Errorf("unknown object class %q", s)
}

// Frame is a single image sample from a camera stream. The sequence number is
// monotonic per camera; Data is owned by the frame buffer slot until consumed.
type Frame struct {
	CameraID  string
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Point is a position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is an axis-aligned rectangle in frame pixel coordinates.
// X1,Y1 is the top-left corner; X2,Y2 the bottom-right.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the box width, never less than zero.
func (b Box) Width() float64 {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the box height, never less than zero.
func (b Box) Height() float64 {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box centre point.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// CenterDistance returns the distance between the centres of b and o.
func (b Box) CenterDistance(o Box) float64 {
	return b.Center().Distance(o.Center())
}

// AspectRatio returns height/width. Tall (standing person) boxes are > 1,
// wide (prone) boxes < 1. Returns 0 for degenerate boxes.
func (b Box) AspectRatio() float64 {
	w := b.Width()
	if w <= 0 {
		return 0
	}
	return b.Height() / w
}

// Intersection returns the overlapping area of b and o.
func (b Box) Intersection(o Box) float64 {
	x1 := math.Max(b.X1, o.X1)
	y1 := math.Max(b.Y1, o.Y1)
	x2 := math.Min(b.X2, o.X2)
	y2 := math.Min(b.Y2, o.Y2)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

// IoU returns the intersection-over-union ratio of b and o in [0, 1].
func (b Box) IoU(o Box) float64 {
	inter := b.Intersection(o)
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// OverlapMidpoint returns the centre of the intersection rectangle, or the
// midpoint between the two box centres when they do not intersect. Used as
// the reported position of a pairwise event.
func (b Box) OverlapMidpoint(o Box) Point {
	x1 := math.Max(b.X1, o.X1)
	y1 := math.Max(b.Y1, o.Y1)
	x2 := math.Min(b.X2, o.X2)
	y2 := math.Min(b.Y2, o.Y2)
	if x2 > x1 && y2 > y1 {
		return Point{X: (x1 + x2) / 2, Y: (y1 + y2) / 2}
	}
	c1 := b.Center()
	c2 := o.Center()
	return Point{X: (c1.X + c2.X) / 2, Y: (c1.Y + c2.Y) / 2}
}

// Detection is one detector output for a single frame. It is ephemeral:
// valid only within the frame that produced it.
type Detection struct {
	Box        Box
	Class      Class
	Confidence float64
	Mask       *Mask // nil when the detector variant has no segmentation
}
