package bloomfilter

import (
	"fmt"
	"sync"

	"github.com/shaia/bloomfilter/internal/bitset"
	"github.com/shaia/bloomfilter/internal/counter"
	"github.com/shaia/bloomfilter/internal/hash"
)

// CountingFilter is the shared contract implemented by both the local and
// remote counting backends (§4.4/§9 "two backends, one contract").
type CountingFilter interface {
	Add(data []byte) uint64
	Remove(data []byte) bool
	RemoveAndEstimateCount(data []byte) uint64
	GetEstimatedCount(data []byte) uint64
	Contains(data []byte) bool
	IsEmpty() bool
}

// LocalCountingFilter is the in-process counting Bloom filter backend: a
// bit array plus a counter array guarded by one exclusive lock (§4.4
// "Local backend").
type LocalCountingFilter struct {
	cfg    *Config
	hasher hash.Hasher

	mu       sync.Mutex
	bits     *bitset.BitSet
	counters *counter.Array

	saturations uint64
}

// NewLocalCountingFilter builds a LocalCountingFilter from a completed
// configuration.
func NewLocalCountingFilter(cfg *Config) (*LocalCountingFilter, error) {
	hasher, ok := hash.Lookup(cfg.HashMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash method %q", ErrInvalidConfig, cfg.HashMethod)
	}
	f := &LocalCountingFilter{
		cfg:  cfg,
		bits: bitset.New(cfg.M),
	}
	counters, err := counter.New(cfg.M, cfg.CountingBits, func() { f.saturations++ })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	f.counters = counters
	f.hasher = hasher
	return f, nil
}

// Config returns the filter's configuration.
func (f *LocalCountingFilter) Config() *Config { return f.cfg }

// Saturations reports how many increments have been pinned at the counter
// ceiling since construction (§7 CounterSaturation is silent; this exposes
// it for callers who want to monitor it).
func (f *LocalCountingFilter) Saturations() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saturations
}

func (f *LocalCountingFilter) positions(data []byte) []uint64 {
	return f.hasher.Hash(data, f.cfg.M, f.cfg.K)
}

// Add sets all k bits and increments all k counters, returning the minimum
// post-increment counter (the element's multiplicity estimate).
func (f *LocalCountingFilter) Add(data []byte) uint64 {
	positions := f.positions(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.SetAll(positions)
	counts := f.counters.IncrementAll(positions)
	return counter.Min(counts)
}

// AddElement converts element via Config.ToBytes and adds it.
func (f *LocalCountingFilter) AddElement(element any) uint64 {
	return f.Add(f.cfg.ToBytes(element))
}

// Remove decrements all k counters and reports whether the minimum counter
// after decrement is <= 0 (this was the last occurrence); it clears any bit
// whose counter reached zero to preserve the bit/counter consistency
// invariant (§3).
func (f *LocalCountingFilter) Remove(data []byte) bool {
	return f.RemoveAndEstimateCount(data) == 0
}

// RemoveAndEstimateCount decrements all k counters and returns the minimum
// counter after decrement.
func (f *LocalCountingFilter) RemoveAndEstimateCount(data []byte) uint64 {
	positions := f.positions(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := f.counters.DecrementAll(positions)
	for i, p := range positions {
		if counts[i] == 0 {
			f.bits.Clear(p)
		}
	}
	return counter.Min(counts)
}

// RemoveElement converts element via Config.ToBytes and removes it.
func (f *LocalCountingFilter) RemoveElement(element any) bool {
	return f.Remove(f.cfg.ToBytes(element))
}

// GetEstimatedCount returns the minimum counter across the k positions.
func (f *LocalCountingFilter) GetEstimatedCount(data []byte) uint64 {
	positions := f.positions(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	return counter.Min(f.counters.GetAll(positions))
}

// Contains reports whether all k bits are set.
func (f *LocalCountingFilter) Contains(data []byte) bool {
	positions := f.positions(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, set := range f.bits.GetAll(positions) {
		if !set {
			return false
		}
	}
	return true
}

// ContainsElement converts element via Config.ToBytes and tests it.
func (f *LocalCountingFilter) ContainsElement(element any) bool {
	return f.Contains(f.cfg.ToBytes(element))
}

// IsEmpty reports whether every counter is zero.
func (f *LocalCountingFilter) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters.IsEmpty()
}

// Cardinality returns the number of set bits.
func (f *LocalCountingFilter) Cardinality() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.Cardinality()
}
