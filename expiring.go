package bloomfilter

import (
	"sync"
	"time"

	"github.com/shaia/bloomfilter/internal/expiry"
	"github.com/sirupsen/logrus"
)

// ExpiringFilter layers a TTL-indexed cache sketch over a CountingFilter
// (§4.5/C7): reads register how long a downstream cache copy may live,
// writes invalidate into the counting filter only while a cached copy may
// still be live, and a background worker decrements counters once the
// write-time horizon elapses.
type ExpiringFilter struct {
	cfg      *Config
	counting CountingFilter

	mu     sync.Mutex
	expiry map[string]int64
	queue  *expiry.DelayQueue

	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}
	nowFn func() time.Time
	log   *logrus.Logger
}

// NewExpiringFilter wraps an already-constructed CountingFilter (local or
// remote) with a TTL index and starts its background expiry worker. logger
// may be nil, in which case logrus.StandardLogger() is used.
func NewExpiringFilter(cfg *Config, counting CountingFilter, logger *logrus.Logger) *ExpiringFilter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f := &ExpiringFilter{
		cfg:      cfg,
		counting: counting,
		expiry:   make(map[string]int64),
		queue:    expiry.New(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		nowFn:    time.Now,
		log:      logger,
	}
	go f.run()
	return f
}

// Config returns the filter's configuration.
func (f *ExpiringFilter) Config() *Config { return f.cfg }

func (f *ExpiringFilter) key(data []byte) string { return string(data) }

// ReportRead records that element was served from the cache with the given
// TTL: its expiry becomes max(existing, now+ttl), so concurrent or repeated
// reads only ever extend the window, never shorten it (§4.5 invariant:
// "absolute-expiry timestamps are monotonic nondecreasing").
func (f *ExpiringFilter) ReportRead(data []byte, ttl time.Duration) {
	deadline := f.nowFn().Add(ttl).UnixNano()
	k := f.key(data)

	f.mu.Lock()
	if existing, ok := f.expiry[k]; !ok || deadline > existing {
		f.expiry[k] = deadline
	}
	f.mu.Unlock()
}

// ReportReadElement converts element via Config.ToBytes and reports a read.
func (f *ExpiringFilter) ReportReadElement(element any, ttl time.Duration) {
	f.ReportRead(f.cfg.ToBytes(element), ttl)
}

// IsCached reports whether element's expiry exists and lies in the future.
func (f *ExpiringFilter) IsCached(data []byte) bool {
	k := f.key(data)
	now := f.nowFn().UnixNano()

	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, ok := f.expiry[k]
	return ok && deadline > now
}

// IsCachedElement converts element via Config.ToBytes and tests IsCached.
func (f *ExpiringFilter) IsCachedElement(element any) bool {
	return f.IsCached(f.cfg.ToBytes(element))
}

// ReportWrite, if a cached copy of element may still be live, registers the
// write into the underlying counting filter and schedules exactly one
// matching decrement at the write-time horizon — a later ReportRead
// extending the TTL does not retroactively change this scheduled decrement
// (§4.5: "their expiry captures the write-time horizon").
func (f *ExpiringFilter) ReportWrite(data []byte) {
	k := f.key(data)
	now := f.nowFn().UnixNano()

	f.mu.Lock()
	deadline, cached := f.expiry[k]
	cached = cached && deadline > now
	if cached {
		f.queue.Push(&expiry.Item{Key: k, Data: data, ExpiresAt: deadline})
	}
	f.mu.Unlock()

	if !cached {
		return
	}
	f.counting.Add(data)
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// ReportWriteElement converts element via Config.ToBytes and reports a
// write.
func (f *ExpiringFilter) ReportWriteElement(element any) {
	f.ReportWrite(f.cfg.ToBytes(element))
}

// Contains reports whether the underlying counting filter currently
// believes element has at least one live write invalidation pending.
func (f *ExpiringFilter) Contains(data []byte) bool {
	return f.counting.Contains(data)
}

// ContainsElement converts element via Config.ToBytes and tests Contains.
func (f *ExpiringFilter) ContainsElement(element any) bool {
	return f.Contains(f.cfg.ToBytes(element))
}

// Close stops the background expiry worker. Pending enqueued expirations
// are lost; the filter is not persisted locally (§5 cancellation policy).
func (f *ExpiringFilter) Close() {
	close(f.stop)
	<-f.done
	f.log.WithField("dataset", f.cfg.Name).Debug("expiring filter worker stopped")
}

// run is the filter's one dedicated long-lived worker: it blocks until the
// delay queue's head expires, applies one decrement, and repeats.
func (f *ExpiringFilter) run() {
	defer close(f.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait, item := f.nextDeadline()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		if item == nil {
			select {
			case <-f.stop:
				return
			case <-f.wake:
				continue
			case <-timer.C:
				continue
			}
		}

		select {
		case <-f.stop:
			return
		case <-f.wake:
			continue
		case <-timer.C:
			f.mu.Lock()
			popped := f.queue.Pop()
			f.mu.Unlock()
			if popped != nil {
				f.counting.Remove(popped.Data)
			}
		}
	}
}

func (f *ExpiringFilter) nextDeadline() (time.Duration, *expiry.Item) {
	f.mu.Lock()
	item := f.queue.Peek()
	f.mu.Unlock()
	if item == nil {
		return time.Hour, nil
	}
	wait := time.Duration(item.ExpiresAt-f.nowFn().UnixNano()) * time.Nanosecond
	if wait < 0 {
		wait = 0
	}
	return wait, item
}
