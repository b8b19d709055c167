package hash

import (
	"math/rand"
	"testing"

	"github.com/spaolacci/murmur3"
)

var allMethods = []Method{MD5, SHA256, SHA384, SHA512, CRC32, Adler32, Murmur3, Murmur2DoubleHash, FixedSeed}

func TestLookupKnownMethods(t *testing.T) {
	for _, m := range allMethods {
		if _, ok := Lookup(m); !ok {
			t.Errorf("expected method %q to be known", m)
		}
	}
}

func TestLookupUnknownMethod(t *testing.T) {
	if _, ok := Lookup("not-a-method"); ok {
		t.Fatalf("expected unknown method to report ok=false")
	}
}

func TestHashDeterministic(t *testing.T) {
	for _, method := range allMethods {
		h, _ := Lookup(method)
		data := []byte("Käsebrot")
		first := h.Hash(data, 1<<16, 7)
		second := h.Hash(data, 1<<16, 7)
		if len(first) != len(second) {
			t.Fatalf("%s: length mismatch", method)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("%s: position %d differs across invocations: %d vs %d", method, i, first[i], second[i])
			}
		}
	}
}

func TestHashPositionsInRange(t *testing.T) {
	const m = 997
	for _, method := range allMethods {
		h, _ := Lookup(method)
		positions := h.Hash([]byte("gutes Brot"), m, 11)
		if len(positions) != 11 {
			t.Fatalf("%s: expected 11 positions, got %d", method, len(positions))
		}
		for _, p := range positions {
			if p >= m {
				t.Fatalf("%s: position %d out of range [0,%d)", method, p, m)
			}
		}
	}
}

func TestMurmur3VariesBySeed(t *testing.T) {
	h, _ := Lookup(Murmur3)
	positions := h.Hash([]byte("ist"), 1<<20, 4)
	seen := map[uint64]bool{}
	for _, p := range positions {
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected multiple seeds to spread across distinct positions, got %v", positions)
	}
}

func TestDoubleHashKirschMitzenmacherFormula(t *testing.T) {
	h := murmur2DoubleHasher{}
	data := []byte("ein")
	const m = 5000
	const k = 6
	got := h.Hash(data, m, k)

	h1 := uint64(mustMurmurSeed(data, 0))
	h2 := uint64(mustMurmurSeed(data, 1))
	for i := uint32(0); i < k; i++ {
		want := (h1 + uint64(i)*h2) % m
		if got[i] != want {
			t.Fatalf("position %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestFixedSeedDeterministicAcrossProcessesSameSeed(t *testing.T) {
	h := fixedSeedHasher{}
	a := h.Hash([]byte("repeatable"), 1<<16, 5)
	b := h.Hash([]byte("repeatable"), 1<<16, 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fixed-seed hash not stable: %v vs %v", a, b)
		}
	}
}

func TestDigestHashersProduceDistinctSequencesAcrossMethods(t *testing.T) {
	data := []byte("distinguishing input")
	results := map[Method][]uint64{}
	for _, method := range []Method{MD5, SHA256, SHA384, SHA512, CRC32, Adler32} {
		h, _ := Lookup(method)
		results[method] = h.Hash(data, 1<<24, 8)
	}
	// Not a strict mathematical guarantee, but with 24 bits of range and 8
	// positions, two distinct digest families producing identical sequences
	// would indicate a wiring bug (e.g. a family silently aliased).
	for a, posA := range results {
		for b, posB := range results {
			if a >= b {
				continue
			}
			same := true
			for i := range posA {
				if posA[i] != posB[i] {
					same = false
					break
				}
			}
			if same {
				t.Fatalf("%s and %s dispatch produced identical position sequences", a, b)
			}
		}
	}
}

func mustMurmurSeed(data []byte, seed uint32) uint32 {
	return murmur3.Sum32WithSeed(data, seed)
}

func TestRandomizedPositionsAlwaysInRange(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	h, _ := Lookup(Murmur2DoubleHash)
	for i := 0; i < 200; i++ {
		buf := make([]byte, rnd.Intn(64))
		rnd.Read(buf)
		m := uint64(1 + rnd.Intn(1<<20))
		k := uint32(1 + rnd.Intn(16))
		for _, p := range h.Hash(buf, m, k) {
			if p >= m {
				t.Fatalf("position %d out of range [0,%d)", p, m)
			}
		}
	}
}
