package bloomfilter

import (
	"context"
	"fmt"

	"github.com/shaia/bloomfilter/internal/hash"
	"github.com/shaia/bloomfilter/internal/remote"
)

// RemoteCountingFilter is the Redis-backed counting Bloom filter backend:
// bits and counters live in a remote store, coordinated across writers by
// the optimistic-transaction protocol in internal/remote (§4.4 "Remote
// backend"). Union and Intersect are unsupported against a remote counting
// filter (§7).
type RemoteCountingFilter struct {
	cfg    *Config
	hasher hash.Hasher
	store  *remote.Store
	ctx    context.Context
}

// NewRemoteCountingFilter builds a RemoteCountingFilter from a configuration
// carrying Remote connection options.
func NewRemoteCountingFilter(ctx context.Context, cfg *Config) (*RemoteCountingFilter, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("%w: remote counting filter requires WithRemote configuration", ErrInvalidConfig)
	}
	hasher, ok := hash.Lookup(cfg.HashMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash method %q", ErrInvalidConfig, cfg.HashMethod)
	}
	store, err := remote.New(*cfg.Remote)
	if err != nil {
		return nil, wrapRemoteErr(err)
	}
	if err := store.WriteConfigSnapshot(ctx, cfg.snapshot(), cfg.OverwriteIfExists); err != nil {
		return nil, wrapRemoteErr(err)
	}
	return &RemoteCountingFilter{cfg: cfg, hasher: hasher, store: store, ctx: ctx}, nil
}

// Config returns the filter's configuration.
func (f *RemoteCountingFilter) Config() *Config { return f.cfg }

// Close releases the underlying store connections.
func (f *RemoteCountingFilter) Close() error { return f.store.Close() }

func (f *RemoteCountingFilter) positions(data []byte) []uint64 {
	return f.hasher.Hash(data, f.cfg.M, f.cfg.K)
}

// wrapRemoteErr normalizes a remote.Store error into the package's
// ErrRemoteUnavailable sentinel so callers of the *Ctx methods can
// errors.Is against one consistent error kind (§7).
func wrapRemoteErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}

// AddCtx sets all k bits and increments all k counters in one optimistic
// transaction, returning the minimum post-increment counter. Unlike Add,
// it propagates a broken connection as ErrRemoteUnavailable instead of
// returning an indistinguishable zero (§7: "remote errors propagate").
func (f *RemoteCountingFilter) AddCtx(ctx context.Context, data []byte) (uint64, error) {
	count, err := f.store.CountingAdd(ctx, f.positions(data))
	if err != nil {
		return 0, wrapRemoteErr(err)
	}
	return count, nil
}

// Add is AddCtx using the filter's background context, discarding the
// error for callers going through the CountingFilter interface.
func (f *RemoteCountingFilter) Add(data []byte) uint64 {
	count, _ := f.AddCtx(f.ctx, data)
	return count
}

// AddElement converts element via Config.ToBytes and adds it.
func (f *RemoteCountingFilter) AddElement(element any) uint64 {
	return f.Add(f.cfg.ToBytes(element))
}

// RemoveAndEstimateCountCtx runs the §4.4 two-phase remove protocol and
// returns the minimum post-decrement counter, propagating a broken
// connection as ErrRemoteUnavailable.
func (f *RemoteCountingFilter) RemoveAndEstimateCountCtx(ctx context.Context, data []byte) (uint64, error) {
	count, err := f.store.CountingRemove(ctx, f.positions(data))
	if err != nil {
		return 0, wrapRemoteErr(err)
	}
	return count, nil
}

// RemoveAndEstimateCount is RemoveAndEstimateCountCtx using the filter's
// background context, discarding the error.
func (f *RemoteCountingFilter) RemoveAndEstimateCount(data []byte) uint64 {
	count, _ := f.RemoveAndEstimateCountCtx(f.ctx, data)
	return count
}

// RemoveCtx decrements all k counters and clears any bit whose counter
// reached zero, reporting whether the minimum post-decrement counter is
// zero.
func (f *RemoteCountingFilter) RemoveCtx(ctx context.Context, data []byte) (bool, error) {
	count, err := f.RemoveAndEstimateCountCtx(ctx, data)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Remove is RemoveCtx using the filter's background context, discarding
// the error.
func (f *RemoteCountingFilter) Remove(data []byte) bool {
	removed, _ := f.RemoveCtx(f.ctx, data)
	return removed
}

// RemoveElement converts element via Config.ToBytes and removes it.
func (f *RemoteCountingFilter) RemoveElement(element any) bool {
	return f.Remove(f.cfg.ToBytes(element))
}

// GetEstimatedCountCtx returns the minimum counter across the k positions,
// propagating a broken connection as ErrRemoteUnavailable.
func (f *RemoteCountingFilter) GetEstimatedCountCtx(ctx context.Context, data []byte) (uint64, error) {
	count, err := f.store.CountingEstimate(ctx, f.positions(data))
	if err != nil {
		return 0, wrapRemoteErr(err)
	}
	return count, nil
}

// GetEstimatedCount is GetEstimatedCountCtx using the filter's background
// context, discarding the error.
func (f *RemoteCountingFilter) GetEstimatedCount(data []byte) uint64 {
	count, _ := f.GetEstimatedCountCtx(f.ctx, data)
	return count
}

// ContainsCtx reports whether all k bits are set, reading a consistent
// snapshot across positions and propagating a broken connection as
// ErrRemoteUnavailable instead of an indistinguishable false.
func (f *RemoteCountingFilter) ContainsCtx(ctx context.Context, data []byte) (bool, error) {
	ok, err := f.store.CountingContains(ctx, f.positions(data))
	if err != nil {
		return false, wrapRemoteErr(err)
	}
	return ok, nil
}

// Contains is ContainsCtx using the filter's background context,
// discarding the error.
func (f *RemoteCountingFilter) Contains(data []byte) bool {
	ok, _ := f.ContainsCtx(f.ctx, data)
	return ok
}

// ContainsElement converts element via Config.ToBytes and tests it.
func (f *RemoteCountingFilter) ContainsElement(element any) bool {
	return f.Contains(f.cfg.ToBytes(element))
}

// Cardinality returns the remote BITCOUNT of the bit vector.
func (f *RemoteCountingFilter) Cardinality() (uint64, error) {
	n, err := f.store.Cardinality(f.ctx)
	if err != nil {
		return 0, wrapRemoteErr(err)
	}
	return n, nil
}

// IsEmpty reports whether the remote bit vector has no set bits.
func (f *RemoteCountingFilter) IsEmpty() bool {
	n, err := f.Cardinality()
	return err == nil && n == 0
}

// Union is unsupported against a remote counting filter (§7).
func (f *RemoteCountingFilter) Union(*RemoteCountingFilter) error {
	return fmt.Errorf("%w: union of remote counting filters", ErrUnsupported)
}

// Intersect is unsupported against a remote counting filter (§7).
func (f *RemoteCountingFilter) Intersect(*RemoteCountingFilter) error {
	return fmt.Errorf("%w: intersect of remote counting filters", ErrUnsupported)
}

// Destroy deletes every remote key belonging to this filter's dataset.
func (f *RemoteCountingFilter) Destroy() error {
	return wrapRemoteErr(f.store.Destroy(f.ctx))
}

// snapshot renders the configuration fields the §6 remote config key
// records, for WriteConfigSnapshot.
func (c *Config) snapshot() map[string]string {
	return map[string]string{
		"n":            fmt.Sprint(c.N),
		"m":            fmt.Sprint(c.M),
		"k":            fmt.Sprint(c.K),
		"p":            fmt.Sprint(c.P),
		"hashMethod":   string(c.HashMethod),
		"countingBits": fmt.Sprint(c.CountingBits),
		"charset":      c.Charset,
	}
}
