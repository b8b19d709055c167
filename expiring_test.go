package bloomfilter

import (
	"testing"
	"time"
)

func newTestExpiringFilter(t *testing.T) *ExpiringFilter {
	t.Helper()
	cfg := mustConfig(t, WithSize(1000), WithHashes(4))
	counting, err := NewLocalCountingFilter(cfg)
	if err != nil {
		t.Fatal(err)
	}
	f := NewExpiringFilter(cfg, counting, nil)
	t.Cleanup(f.Close)
	return f
}

func TestExpiringFilterWriteDuringCacheWindowIsVisible(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("hot-key")

	f.ReportRead(data, 100*time.Millisecond)
	f.ReportWrite(data)
	if !f.Contains(data) {
		t.Fatal("expected contains true immediately after a write during the cache window")
	}
}

func TestExpiringFilterDecrementsAfterTTLElapses(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("hot-key")

	f.ReportRead(data, 40*time.Millisecond)
	f.ReportWrite(data)
	if !f.Contains(data) {
		t.Fatal("expected contains true right after write")
	}

	time.Sleep(120 * time.Millisecond)
	if f.Contains(data) {
		t.Fatal("expected contains false once the TTL horizon has elapsed")
	}
}

func TestExpiringFilterWriteOutsideCacheWindowDoesNotInvalidate(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("cold-key")

	f.ReportWrite(data)
	if f.Contains(data) {
		t.Fatal("expected write with no prior read to not register in the counting filter")
	}
}

func TestExpiringFilterReportReadIsMonotonicNondecreasing(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("k")

	base := time.Unix(1000, 0)
	f.nowFn = func() time.Time { return base }
	f.ReportRead(data, 10*time.Second)
	first := f.expiry[f.key(data)]

	f.nowFn = func() time.Time { return base.Add(time.Second) }
	f.ReportRead(data, time.Millisecond)
	second := f.expiry[f.key(data)]

	if second < first {
		t.Fatalf("expected expiry to be non-decreasing: first=%d second=%d", first, second)
	}
}

func TestExpiringFilterLateExtensionDoesNotDelayAlreadyEnqueuedDecrement(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("k")

	f.ReportRead(data, 40*time.Millisecond)
	f.ReportWrite(data)
	// Extending the read TTL after the write was already enqueued must not
	// push back the decrement scheduled at write time (§4.5).
	f.ReportRead(data, time.Hour)

	time.Sleep(120 * time.Millisecond)
	if f.Contains(data) {
		t.Fatal("expected the write-time horizon's decrement to fire regardless of a later read extension")
	}
}

func TestExpiringFilterMultipleWritesDuringWindowRequireMultipleDecrements(t *testing.T) {
	f := newTestExpiringFilter(t)
	data := f.cfg.ToBytes("k")

	f.ReportRead(data, 60*time.Millisecond)
	f.ReportWrite(data)
	f.ReportWrite(data)

	time.Sleep(20 * time.Millisecond)
	if !f.Contains(data) {
		t.Fatal("expected still contained before the 60ms horizon, when neither decrement has fired")
	}

	time.Sleep(120 * time.Millisecond)
	if f.Contains(data) {
		t.Fatal("expected absent once both scheduled decrements have fired")
	}
}

func TestExpiringFilterDecrementsMatchWhicheverItemActuallyExpiredFirst(t *testing.T) {
	// Two distinct keys enqueued with a very close but different TTLs: the
	// worker must decrement whichever item container/heap actually pops,
	// not whatever the last peek happened to observe (a stale peek would
	// misapply key B's decrement to key A's data, leaking A forever and
	// dropping B's).
	f := newTestExpiringFilter(t)
	dataA := f.cfg.ToBytes("key-a")
	dataB := f.cfg.ToBytes("key-b")

	f.ReportRead(dataA, 30*time.Millisecond)
	f.ReportRead(dataB, 35*time.Millisecond)
	f.ReportWrite(dataA)
	f.ReportWrite(dataB)

	time.Sleep(80 * time.Millisecond)
	if f.Contains(dataA) {
		t.Fatal("expected key-a's own decrement to have fired, not leaked onto key-b")
	}
	if f.Contains(dataB) {
		t.Fatal("expected key-b's own decrement to have fired independently")
	}
}

func TestExpiringFilterCloseStopsWorker(t *testing.T) {
	cfg := mustConfig(t, WithSize(100), WithHashes(3))
	counting, err := NewLocalCountingFilter(cfg)
	if err != nil {
		t.Fatal(err)
	}
	f := NewExpiringFilter(cfg, counting, nil)
	f.Close()

	select {
	case <-f.done:
	default:
		t.Fatal("expected worker goroutine to have exited after Close")
	}
}
