// Package hash implements the pluggable hash-family dispatch layer: given
// an arbitrary byte string, produce k uniformly distributed bit positions
// in [0, m).
package hash

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash/adler32"
	"hash/crc32"

	"github.com/spaolacci/murmur3"
)

// Method identifies a hash family.
type Method string

const (
	MD5                Method = "MD5"
	SHA256             Method = "SHA256"
	SHA384             Method = "SHA384"
	SHA512             Method = "SHA512"
	CRC32              Method = "CRC32"
	Adler32            Method = "Adler32"
	Murmur3            Method = "Murmur3"
	Murmur2DoubleHash  Method = "Murmur2DoubleHash"
	FixedSeed          Method = "FixedSeed"
	DefaultMethod      = Murmur3
)

// Hasher maps a byte string to k positions in [0, m).
type Hasher interface {
	Hash(data []byte, m uint64, k uint32) []uint64
}

// ErrUnknownMethod-style sentinel kept in the owning package's errors; this
// package exposes a lookup that returns (nil, false) for unknown methods so
// callers can raise their own typed InvalidConfig error.

// Lookup returns the Hasher for the given method, or ok=false if the method
// is not recognized.
func Lookup(m Method) (Hasher, bool) {
	switch m {
	case MD5:
		return digestHasher{newDigest: func() resettableHash { return md5.New() }}, true
	case SHA256:
		return digestHasher{newDigest: func() resettableHash { return sha256.New() }}, true
	case SHA384:
		return digestHasher{newDigest: func() resettableHash { return sha512.New384() }}, true
	case SHA512:
		return digestHasher{newDigest: func() resettableHash { return sha512.New() }}, true
	case CRC32:
		return digestHasher{newDigest: func() resettableHash { return crc32.NewIEEE() }}, true
	case Adler32:
		return digestHasher{newDigest: func() resettableHash { return adler32.New() }}, true
	case Murmur3:
		return murmur3Hasher{}, true
	case Murmur2DoubleHash:
		return murmur2DoubleHasher{}, true
	case FixedSeed:
		return fixedSeedHasher{}, true
	default:
		return nil, false
	}
}

type resettableHash interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// digestHasher implements the generic "repeated hashing of seed‖bytes"
// construction for MD5/SHA*/CRC32/Adler32 described in §4.2: it produces
// sufficient output by hashing an increasing seed prefix with the data,
// splitting the digest into 32-bit little-endian words, each reduced
// modulo m.
type digestHasher struct {
	newDigest func() resettableHash
}

func (d digestHasher) Hash(data []byte, m uint64, k uint32) []uint64 {
	positions := make([]uint64, 0, k)
	var seed uint32
	for uint32(len(positions)) < k {
		h := d.newDigest()
		var seedBuf [4]byte
		binary.LittleEndian.PutUint32(seedBuf[:], seed)
		h.Write(seedBuf[:])
		h.Write(data)
		digest := h.Sum(nil)

		for i := 0; i+4 <= len(digest) && uint32(len(positions)) < k; i += 4 {
			word := binary.LittleEndian.Uint32(digest[i : i+4])
			positions = append(positions, uint64(word)%m)
		}
		seed++
	}
	return positions
}

// murmur3Hasher implements the canonical 32-bit MurmurHash3 (x86 variant).
type murmur3Hasher struct{}

func (murmur3Hasher) Hash(data []byte, m uint64, k uint32) []uint64 {
	positions := make([]uint64, k)
	var seed uint32
	for i := uint32(0); i < k; i++ {
		positions[i] = uint64(murmur3.Sum32WithSeed(data, seed)) % m
		seed++
	}
	return positions
}

// murmur2DoubleHasher implements the Kirsch–Mitzenmacher double-hashing
// combiner: g_i(x) = h1(x) + i*h2(x) mod m, with h1, h2 two Murmur3 values
// computed with distinct seeds.
type murmur2DoubleHasher struct{}

func (murmur2DoubleHasher) Hash(data []byte, m uint64, k uint32) []uint64 {
	h1 := uint64(murmur3.Sum32WithSeed(data, 0))
	h2 := uint64(murmur3.Sum32WithSeed(data, 1))
	positions := make([]uint64, k)
	for i := uint32(0); i < k; i++ {
		positions[i] = (h1 + uint64(i)*h2) % m
	}
	return positions
}

// fixedSeedHasher seeds a linear congruential generator from the element
// and returns its first k outputs (the upper 48 bits of the 64-bit state)
// modulo m.
type fixedSeedHasher struct{}

func (fixedSeedHasher) Hash(data []byte, m uint64, k uint32) []uint64 {
	const (
		lcgMultiplier = 6364136223846793005
		lcgIncrement  = 1442695040888963407
	)
	state := uint64(murmur3.Sum32WithSeed(data, 0xf1ed))
	positions := make([]uint64, k)
	for i := uint32(0); i < k; i++ {
		state = state*lcgMultiplier + lcgIncrement
		positions[i] = (state >> 16) % m
	}
	return positions
}
