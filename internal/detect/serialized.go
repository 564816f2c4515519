package detect

import (
	"context"
	"sync"

	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// Serialized wraps a Detector with a mutex so a single model instance can be
// shared across camera goroutines.
type Serialized struct {
	mu    sync.Mutex
	inner Detector
}

// NewSerialized wraps d. A nil d is returned as-is.
func NewSerialized(d Detector) Detector {
	if d == nil {
		return nil
	}
	return &Serialized{inner: d}
}

// Infer runs inference while holding the lock.
func (s *Serialized) Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Infer(ctx, frame)
}

// Variant reports the wrapped detector's variant.
func (s *Serialized) Variant() Variant { return s.inner.Variant() }

// Close closes the wrapped detector.
func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}
