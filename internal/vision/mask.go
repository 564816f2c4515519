package vision

import "math/bits"

// Mask is a binary segmentation mask on a fixed-size pixel grid. Bits are
// packed row-major, 64 pixels per word.
type Mask struct {
	W, H int
	bits []uint64
}

// NewMask creates an empty w×h mask.
func NewMask(w, h int) *Mask {
	if w <= 0 || h <= 0 {
		return &Mask{}
	}
	return &Mask{W: w, H: h, bits: make([]uint64, (w*h+63)/64)}
}

// MaskFromBytes builds a mask from row-major bit-packed bytes, as produced by
// a segmentation-capable detector over the wire. Extra bytes are ignored;
// short input yields an all-clear tail.
func MaskFromBytes(w, h int, data []byte) *Mask {
	m := NewMask(w, h)
	n := w * h
	for i := 0; i < n && i/8 < len(data); i++ {
		if data[i/8]&(1<<(uint(i)%8)) != 0 {
			m.bits[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return m
}

// Set marks pixel (x, y). Out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	i := y*m.W + x
	m.bits[i/64] |= 1 << (uint(i) % 64)
}

// Get reports whether pixel (x, y) is set.
func (m *Mask) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	i := y*m.W + x
	return m.bits[i/64]&(1<<(uint(i)%64)) != 0
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// IoU returns the intersection-over-union of two masks on the same grid.
// Masks with mismatched dimensions or no set pixels yield 0.
func (m *Mask) IoU(o *Mask) float64 {
	if o == nil || m.W != o.W || m.H != o.H || len(m.bits) != len(o.bits) {
		return 0
	}
	inter, union := 0, 0
	for i := range m.bits {
		inter += bits.OnesCount64(m.bits[i] & o.bits[i])
		union += bits.OnesCount64(m.bits[i] | o.bits[i])
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
