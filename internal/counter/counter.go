// Package counter implements the local counting-array backend: a flat
// array of saturating c-bit counters, one per bit position.
package counter

import "fmt"

// Width is a permissible counter bit-width.
type Width uint8

const (
	Width4  Width = 4
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Valid reports whether w is one of the permissible counter widths.
func (w Width) Valid() bool {
	switch w {
	case Width4, Width8, Width16, Width32, Width64:
		return true
	default:
		return false
	}
}

// Max returns the saturation ceiling 2^c - 1 for width w.
func (w Width) Max() uint64 {
	if w == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

// Array is a flat array of non-negative, saturating counters.
type Array struct {
	counts   []uint64
	max      uint64
	width    Width
	saturate func()
}

// New allocates an Array of m counters at the given width. onSaturate, if
// non-nil, is invoked every time an increment is pinned at the ceiling
// instead of overflowing (§7 CounterSaturation is silent: pin-and-continue).
func New(m uint64, width Width, onSaturate func()) (*Array, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("counter: invalid counter width %d", width)
	}
	return &Array{
		counts:   make([]uint64, m),
		max:      width.Max(),
		width:    width,
		saturate: onSaturate,
	}, nil
}

// Width reports the configured counter bit-width.
func (a *Array) Width() Width { return a.width }

// Get returns the counter at position i (0 if never incremented).
func (a *Array) Get(i uint64) uint64 { return a.counts[i] }

// GetAll reads every position in positions.
func (a *Array) GetAll(positions []uint64) []uint64 {
	out := make([]uint64, len(positions))
	for idx, p := range positions {
		out[idx] = a.counts[p]
	}
	return out
}

// IncrementAll increments every position in positions by 1, saturating at
// the configured ceiling, and returns the resulting values.
func (a *Array) IncrementAll(positions []uint64) []uint64 {
	out := make([]uint64, len(positions))
	for idx, p := range positions {
		if a.counts[p] >= a.max {
			if a.saturate != nil {
				a.saturate()
			}
			out[idx] = a.counts[p]
			continue
		}
		a.counts[p]++
		out[idx] = a.counts[p]
	}
	return out
}

// DecrementAll decrements every position in positions by 1, floored at 0,
// and returns the resulting values.
func (a *Array) DecrementAll(positions []uint64) []uint64 {
	out := make([]uint64, len(positions))
	for idx, p := range positions {
		if a.counts[p] > 0 {
			a.counts[p]--
		}
		out[idx] = a.counts[p]
	}
	return out
}

// Min returns the minimum counter value among positions.
func Min(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Reset zeroes every counter.
func (a *Array) Reset() {
	for i := range a.counts {
		a.counts[i] = 0
	}
}

// IsEmpty reports whether every counter is zero.
func (a *Array) IsEmpty() bool {
	for _, v := range a.counts {
		if v != 0 {
			return false
		}
	}
	return true
}
