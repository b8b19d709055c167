// Package bloomfilter implements a family of Bloom filter data structures
// (plain, counting, and expiring/cache-sketch) with pluggable hash
// families, a parameter-derivation engine, and a Redis-backed remote
// counting filter for multi-writer cache invalidation.
package bloomfilter

import (
	"fmt"
	"math"

	"github.com/shaia/bloomfilter/internal/bitset"
	"github.com/shaia/bloomfilter/internal/hash"
)

// Filter is a plain (non-counting) Bloom filter: add, contains, union,
// intersect, population (§4.5/C5).
type Filter struct {
	cfg    *Config
	bits   *bitset.BitSet
	hasher hash.Hasher
}

// New builds a Filter from a completed configuration.
func New(cfg *Config) (*Filter, error) {
	hasher, ok := hash.Lookup(cfg.HashMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash method %q", ErrInvalidConfig, cfg.HashMethod)
	}
	return &Filter{
		cfg:    cfg,
		bits:   bitset.New(cfg.M),
		hasher: hasher,
	}, nil
}

// Config returns the filter's completed configuration.
func (f *Filter) Config() *Config { return f.cfg }

func (f *Filter) positions(data []byte) []uint64 {
	return f.hasher.Hash(data, f.cfg.M, f.cfg.K)
}

// Add inserts an element's raw bytes.
func (f *Filter) Add(data []byte) {
	f.bits.SetAll(f.positions(data))
}

// AddElement converts element via Config.ToBytes and inserts it.
func (f *Filter) AddElement(element any) {
	f.Add(f.cfg.ToBytes(element))
}

// Contains reports whether every bit for data's positions is set.
func (f *Filter) Contains(data []byte) bool {
	for _, set := range f.bits.GetAll(f.positions(data)) {
		if !set {
			return false
		}
	}
	return true
}

// ContainsElement converts element via Config.ToBytes and tests it.
func (f *Filter) ContainsElement(element any) bool {
	return f.Contains(f.cfg.ToBytes(element))
}

// Cardinality returns the number of set bits.
func (f *Filter) Cardinality() uint64 {
	return f.bits.Cardinality()
}

// EstimatedFalsePositiveRate estimates the current false-positive rate
// from the observed load factor: (bitsSet/m)^k.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	ratio := float64(f.bits.Cardinality()) / float64(f.cfg.M)
	return math.Pow(ratio, float64(f.cfg.K))
}

// Union ORs other into f in place. Requires compatible configurations.
func (f *Filter) Union(other *Filter) error {
	if !f.cfg.CompatibleWith(other.cfg) {
		return fmt.Errorf("%w: union requires identical m, k, hash family and charset", ErrIncompatibleFilters)
	}
	f.bits.Union(other.bits)
	return nil
}

// Intersect ANDs other into f in place. Requires compatible configurations.
func (f *Filter) Intersect(other *Filter) error {
	if !f.cfg.CompatibleWith(other.cfg) {
		return fmt.Errorf("%w: intersect requires identical m, k, hash family and charset", ErrIncompatibleFilters)
	}
	f.bits.Intersect(other.bits)
	return nil
}

// Equal reports whether two filters have identical bit contents.
func (f *Filter) Equal(other *Filter) bool {
	return f.bits.Equal(other.bits)
}

// Reset clears every bit.
func (f *Filter) Reset() {
	f.bits.Reset()
}
