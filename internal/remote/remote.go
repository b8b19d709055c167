// Package remote implements the Redis-backed bit vector and counter array
// used by the remote counting-filter backend, including the optimistic
// transaction protocol described in spec §4.4.
package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable wraps any transport-level failure talking to the remote
// store (connection pool exhaustion, broken connection, timeout).
var ErrUnavailable = errors.New("remote: store unavailable")

// Options configures a Store.
type Options struct {
	Host        string
	Port        int
	Connections int // pool size
	ReadSlaves  []string
	Dataset     string
	ExpireAt    *time.Time
	Logger      *logrus.Logger
}

// Store is a Redis-backed key-value capability for one dataset's bit
// vector (key "<dataset>:bits") and counter map (key "<dataset>:counts"),
// plus a configuration snapshot key ("<dataset>").
type Store struct {
	client   *redis.Client
	replicas []*redis.Client
	dataset  string
	expireAt *time.Time
	log      *logrus.Logger
}

// New creates clients for the primary and any read replicas. Connections
// are opened lazily by go-redis; New only validates configuration shape.
func New(opts Options) (*Store, error) {
	if opts.Dataset == "" {
		return nil, fmt.Errorf("remote: dataset name is required")
	}
	poolSize := opts.Connections
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		PoolSize: poolSize,
	})

	replicas := make([]*redis.Client, 0, len(opts.ReadSlaves))
	for _, addr := range opts.ReadSlaves {
		replicas = append(replicas, redis.NewClient(&redis.Options{
			Addr:     addr,
			PoolSize: poolSize,
		}))
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Store{
		client:   client,
		replicas: replicas,
		dataset:  opts.Dataset,
		expireAt: opts.ExpireAt,
		log:      log,
	}, nil
}

// Close releases the primary and replica connections.
func (s *Store) Close() error {
	var firstErr error
	if err := s.client.Close(); err != nil {
		firstErr = err
	}
	for _, r := range s.replicas {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) bitsKey() string   { return s.dataset + ":bits" }
func (s *Store) countsKey() string { return s.dataset + ":counts" }
func (s *Store) configKey() string { return s.dataset }

// readClient picks a random read replica when any are configured,
// otherwise the primary, for read-only operations (§5 "may optionally be
// routed to a randomly-selected read replica").
func (s *Store) readClient() *redis.Client {
	if len(s.replicas) == 0 {
		return s.client
	}
	return s.replicas[rand.Intn(len(s.replicas))]
}

func wrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// GetBit reports whether bit i is set, optionally via a read replica.
func (s *Store) GetBit(ctx context.Context, i uint64) (bool, error) {
	v, err := s.readClient().GetBit(ctx, s.bitsKey(), int64(i)).Result()
	if err != nil {
		return false, wrapTransportErr(err)
	}
	return v == 1, nil
}

// Cardinality returns the remote BITCOUNT of the bit vector.
func (s *Store) Cardinality(ctx context.Context) (uint64, error) {
	n, err := s.readClient().BitCount(ctx, s.bitsKey(), nil).Result()
	if err != nil {
		return 0, wrapTransportErr(err)
	}
	return uint64(n), nil
}

// SnapshotBytes returns the raw byte-string value of the bit vector key.
func (s *Store) SnapshotBytes(ctx context.Context) ([]byte, error) {
	b, err := s.readClient().Get(ctx, s.bitsKey()).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapTransportErr(err)
	}
	return b, nil
}

// OverwriteBytes replaces the bit vector key's contents wholesale.
func (s *Store) OverwriteBytes(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.bitsKey(), data, 0).Err(); err != nil {
		return wrapTransportErr(err)
	}
	return nil
}

// GetAllConsistent reads every position in positions. With no read replicas
// configured it reads inside one Watch snapshot on the primary so all k
// positions reflect one coherent state, per §4.3's "bulk reads must
// execute inside a single snapshot transaction". With read replicas
// configured, a watch against the primary cannot cover a replica's
// connection, so reads are routed to a randomly-selected replica via
// readClient() as an unguarded pipeline, per §5's "read-only operations
// may optionally be routed to a randomly-selected read replica" — callers
// accept ordinary replica-lag consistency in exchange for read scaling.
func (s *Store) GetAllConsistent(ctx context.Context, positions []uint64) ([]bool, error) {
	if len(s.replicas) > 0 {
		return s.getAllFrom(ctx, s.readClient(), positions)
	}

	var result []bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cmds, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, p := range positions {
				pipe.GetBit(ctx, s.bitsKey(), int64(p))
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		result = make([]bool, len(cmds))
		for i, cmd := range cmds {
			v, _ := cmd.(*redis.IntCmd).Result()
			result[i] = v == 1
		}
		return nil
	}, s.bitsKey())
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return result, nil
}

func (s *Store) getAllFrom(ctx context.Context, client *redis.Client, positions []uint64) ([]bool, error) {
	cmds, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range positions {
			pipe.GetBit(ctx, s.bitsKey(), int64(p))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapTransportErr(err)
	}
	result := make([]bool, len(cmds))
	for i, cmd := range cmds {
		v, _ := cmd.(*redis.IntCmd).Result()
		result[i] = v == 1
	}
	return result, nil
}

// CountingAdd implements the §4.4 "Add" remote counting-filter protocol:
// inside one transaction watching the bit key and the counter key, set all
// k bits, increment all k counters by 1, and optionally re-assert an
// absolute expiry on the counter key. On a concurrent-modification abort
// it retries from the top.
func (s *Store) CountingAdd(ctx context.Context, positions []uint64) (uint64, error) {
	var newCounts []uint64
	for {
		var incrCmds []*redis.IntCmd
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, p := range positions {
					pipe.SetBit(ctx, s.bitsKey(), int64(p), 1)
				}
				incrCmds = make([]*redis.IntCmd, len(positions))
				for i, p := range positions {
					incrCmds[i] = pipe.HIncrBy(ctx, s.countsKey(), positionField(p), 1)
				}
				if s.expireAt != nil {
					pipe.ExpireAt(ctx, s.countsKey(), *s.expireAt)
				}
				return nil
			})
			if txErr != nil {
				return txErr
			}
			// Results are only populated once the pipeline has executed.
			newCounts = make([]uint64, len(positions))
			for i, cmd := range incrCmds {
				if v, err := cmd.Result(); err == nil {
					newCounts[i] = uint64(v)
				}
			}
			return nil
		}, s.bitsKey(), s.countsKey())

		if errors.Is(err, redis.TxFailedErr) {
			s.log.WithField("dataset", s.dataset).Debug("remote add: optimistic transaction aborted, retrying")
			continue
		}
		if err != nil {
			return 0, wrapTransportErr(err)
		}
		return minUint64(newCounts), nil
	}
}

// CountingRemove implements the §4.4 "Remove" two-phase protocol:
//  1. decrement all k counters by 1 in a pipeline (no transaction),
//  2. in a watched transaction, clear the bit at every position whose new
//     counter is <= 0, retrying the clear phase with freshly-read counters
//     if the transaction aborts.
func (s *Store) CountingRemove(ctx context.Context, positions []uint64) (uint64, error) {
	newCounts, err := s.decrementAll(ctx, positions)
	if err != nil {
		return 0, err
	}

	for {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, p := range positions {
					if newCounts[i] == 0 {
						pipe.SetBit(ctx, s.bitsKey(), int64(p), 0)
					}
				}
				return nil
			})
			return txErr
		}, s.bitsKey())

		if errors.Is(err, redis.TxFailedErr) {
			s.log.WithField("dataset", s.dataset).Debug("remote remove: bit-clear transaction aborted, re-reading counters")
			refreshed, rerr := s.readCounters(ctx, positions)
			if rerr != nil {
				return 0, rerr
			}
			newCounts = refreshed
			continue
		}
		if err != nil {
			return 0, wrapTransportErr(err)
		}
		return minUint64(newCounts), nil
	}
}

func (s *Store) decrementAll(ctx context.Context, positions []uint64) ([]uint64, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(positions))
	for i, p := range positions {
		cmds[i] = pipe.HIncrBy(ctx, s.countsKey(), positionField(p), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapTransportErr(err)
	}
	out := make([]uint64, len(positions))
	for i, cmd := range cmds {
		v, _ := cmd.Result()
		if v < 0 {
			// Clamp at zero: a counter must never be negative, so a
			// decrement that went past zero is reset to 0 here.
			s.client.HSet(ctx, s.countsKey(), positionField(positions[i]), 0)
			v = 0
		}
		out[i] = uint64(v)
	}
	return out, nil
}

// readCounters reads positions' counters from the primary inside a Watch
// snapshot. Used by CountingRemove's retry loop, which needs the freshest
// primary-consistent counts to decide the bit-clear transaction — never
// routed to a replica.
func (s *Store) readCounters(ctx context.Context, positions []uint64) ([]uint64, error) {
	var result []uint64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cmds, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, p := range positions {
				pipe.HGet(ctx, s.countsKey(), positionField(p))
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		result = parseCounters(cmds)
		return nil
	}, s.countsKey())
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return result, nil
}

// readCountersRouted reads positions' counters for a read-only caller
// (CountingEstimate): with read replicas configured, routed to a randomly
// selected replica via readClient() as an unguarded pipeline, per §5's
// read-replica routing; otherwise falls back to the primary-watched
// readCounters.
func (s *Store) readCountersRouted(ctx context.Context, positions []uint64) ([]uint64, error) {
	if len(s.replicas) == 0 {
		return s.readCounters(ctx, positions)
	}
	client := s.readClient()
	cmds, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range positions {
			pipe.HGet(ctx, s.countsKey(), positionField(p))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapTransportErr(err)
	}
	return parseCounters(cmds), nil
}

func parseCounters(cmds []redis.Cmder) []uint64 {
	result := make([]uint64, len(cmds))
	for i, cmd := range cmds {
		str, serr := cmd.(*redis.StringCmd).Result()
		if serr != nil {
			result[i] = 0
			continue
		}
		v, _ := strconv.ParseUint(str, 10, 64)
		result[i] = v
	}
	return result
}

// CountingContains reports whether every bit at positions is set.
func (s *Store) CountingContains(ctx context.Context, positions []uint64) (bool, error) {
	bits, err := s.GetAllConsistent(ctx, positions)
	if err != nil {
		return false, err
	}
	for _, b := range bits {
		if !b {
			return false, nil
		}
	}
	return true, nil
}

// CountingEstimate returns the minimum counter across positions, routed to
// a read replica when any are configured.
func (s *Store) CountingEstimate(ctx context.Context, positions []uint64) (uint64, error) {
	counts, err := s.readCountersRouted(ctx, positions)
	if err != nil {
		return 0, err
	}
	return minUint64(counts), nil
}

// WriteConfigSnapshot writes the dataset's parameter snapshot, honoring
// overwriteIfExists.
func (s *Store) WriteConfigSnapshot(ctx context.Context, values map[string]string, overwrite bool) error {
	if !overwrite {
		exists, err := s.client.Exists(ctx, s.configKey()).Result()
		if err != nil {
			return wrapTransportErr(err)
		}
		if exists == 1 {
			return nil
		}
	}
	pipe := s.client.Pipeline()
	for k, v := range values {
		pipe.HSet(ctx, s.configKey(), k, v)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapTransportErr(err)
	}
	return nil
}

// ReadConfigSnapshot reads back the dataset's parameter snapshot.
func (s *Store) ReadConfigSnapshot(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.configKey()).Result()
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return values, nil
}

// Destroy deletes every key belonging to this dataset.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.client.Del(ctx, s.bitsKey(), s.countsKey(), s.configKey()).Err(); err != nil {
		return wrapTransportErr(err)
	}
	return nil
}

func positionField(p uint64) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(p))
	return string(buf[:])
}

func minUint64(values []uint64) uint64 {
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
