package bitset

import (
	"math/rand"
	"testing"
)

func TestSetGetClear(t *testing.T) {
	b := New(128)
	if b.Get(5) {
		t.Fatal("expected bit 5 initially clear")
	}
	if prev := b.Set(5); prev {
		t.Fatal("expected previous value false")
	}
	if !b.Get(5) {
		t.Fatal("expected bit 5 set")
	}
	if prev := b.Clear(5); !prev {
		t.Fatal("expected previous value true")
	}
	if b.Get(5) {
		t.Fatal("expected bit 5 clear again")
	}
}

func TestCardinality(t *testing.T) {
	b := New(100)
	for _, i := range []uint64{0, 1, 50, 99} {
		b.Set(i)
	}
	if got := b.Cardinality(); got != 4 {
		t.Fatalf("expected cardinality 4, got %d", got)
	}
}

func TestToBytesMSBFirst(t *testing.T) {
	b := New(8)
	b.Set(0) // bit 0 -> bit 7 of byte 0 (MSB)
	out := b.ToBytes()
	if out[0] != 0x80 {
		t.Fatalf("expected MSB-first byte 0x80, got 0x%02x", out[0])
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		nBits := uint64(1 + rnd.Intn(500))
		b := New(((nBits + 7) / 8) * 8)
		for i := uint64(0); i < b.Len(); i++ {
			if rnd.Intn(2) == 1 {
				b.Set(i)
			}
		}
		bytes := b.ToBytes()
		restored := FromBytes(bytes)
		if !b.Equal(restored) {
			t.Fatalf("trial %d: round trip mismatch", trial)
		}
	}
}

func TestUnionIntersect(t *testing.T) {
	a := New(64)
	b := New(64)
	a.Set(1)
	a.Set(2)
	b.Set(2)
	b.Set(3)

	union := New(64)
	union.Union(a)
	union.Union(b)
	for _, i := range []uint64{1, 2, 3} {
		if !union.Get(i) {
			t.Fatalf("expected bit %d set after union", i)
		}
	}

	inter := New(64)
	inter.Union(a)
	inter.Intersect(b)
	if !inter.Get(2) {
		t.Fatal("expected bit 2 set after intersect")
	}
	if inter.Get(1) || inter.Get(3) {
		t.Fatal("expected bits 1 and 3 clear after intersect")
	}
}

func TestOverwriteFromBytes(t *testing.T) {
	b := New(16)
	b.Set(0)
	b.Set(15)
	bytesOut := b.ToBytes()

	other := New(16)
	other.Set(3)
	other.OverwriteFromBytes(bytesOut)
	if !other.Equal(b) {
		t.Fatal("expected OverwriteFromBytes to replace prior contents")
	}
}

func TestGetAllSetAllClearAll(t *testing.T) {
	b := New(32)
	positions := []uint64{1, 2, 3}
	prev := b.SetAll(positions)
	for _, p := range prev {
		if p {
			t.Fatal("expected all previous values false")
		}
	}
	got := b.GetAll(positions)
	for _, v := range got {
		if !v {
			t.Fatal("expected all positions set")
		}
	}
	clearedPrev := b.ClearAll(positions)
	for _, p := range clearedPrev {
		if !p {
			t.Fatal("expected all previous values true before clear")
		}
	}
}
