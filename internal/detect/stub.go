package detect

import (
	"context"
	"sync/atomic"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// Stub is an in-process detector for development and tests. Fn maps a frame
// to its detections; a nil Fn returns no detections.
type Stub struct {
	ModelVariant Variant
	Fn           func(frame *vision.Frame) []vision.Detection
	Err          error

	calls  atomic.Int64
	closed atomic.Bool
}

// NewStub creates a stub detector for the given variant.
func NewStub(v Variant, fn func(frame *vision.Frame) []vision.Detection) *Stub {
	return &Stub{ModelVariant: v, Fn: fn}
}

// Infer implements Detector.
func (s *Stub) Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Fn == nil {
		return nil, nil
	}
	return s.Fn(frame), nil
}

// Variant implements Detector.
func (s *Stub) Variant() Variant { return s.ModelVariant }

// Close implements Detector.
func (s *Stub) Close() error {
	s.closed.Store(true)
	return nil
}

// Calls reports how many Infer calls the stub has served.
func (s *Stub) Calls() int64 { return s.calls.Load() }

// Closed reports whether Close has been called.
func (s *Stub) Closed() bool { return s.closed.Load() }
