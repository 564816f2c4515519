package vision

import "sync"

// DefaultFrameBufferCapacity keeps end-to-end latency low: a handful of
// frames absorbs source jitter without letting the consumer fall behind.
const DefaultFrameBufferCapacity = 4

// FrameBuffer is a bounded, thread-safe staging area between a camera stream
// source and the processing loop. When full, Push evicts the oldest buffered
// frame rather than blocking the producer: freshness wins over completeness.
//
// One FrameBuffer serves exactly one camera; it is never shared.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  []Frame
	head    int // index of the oldest frame
	count   int
	dropped uint64
	stale   bool
}

// NewFrameBuffer creates a buffer with the given capacity. Non-positive
// capacities fall back to DefaultFrameBufferCapacity.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultFrameBufferCapacity
	}
	return &FrameBuffer{frames: make([]Frame, capacity)}
}

// Push stores a frame, evicting the oldest one when the buffer is full.
// It returns true when the frame was stored without eviction and false when
// an older frame had to be dropped to make room. Push never blocks.
func (b *FrameBuffer) Push(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stale = false
	accepted := true
	if b.count == len(b.frames) {
		// Full: drop the oldest to bound latency.
		b.head = (b.head + 1) % len(b.frames)
		b.count--
		b.dropped++
		accepted = false
	}
	tail := (b.head + b.count) % len(b.frames)
	b.frames[tail] = f
	b.count++
	return accepted
}

// Pop returns the oldest buffered frame. The second return is false when the
// buffer is empty or stale; Pop never blocks.
func (b *FrameBuffer) Pop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 || b.stale {
		return Frame{}, false
	}
	f := b.frames[b.head]
	b.frames[b.head] = Frame{} // release the slot's data reference
	b.head = (b.head + 1) % len(b.frames)
	b.count--
	return f, true
}

// MarkStale drains the buffer after a stream disconnect. Pop returns empty
// until the next Push; reconnection itself belongs to the network layer.
func (b *FrameBuffer) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.frames {
		b.frames[i] = Frame{}
	}
	b.head = 0
	b.count = 0
	b.stale = true
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.frames)
}

// Dropped returns the total number of frames evicted since creation. The
// statistics collector reads this alongside the processed-frame counter.
func (b *FrameBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
