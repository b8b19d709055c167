package bloomfilter

import (
	"fmt"
	"time"

	"github.com/shaia/bloomfilter/internal/counter"
	"github.com/shaia/bloomfilter/internal/hash"
	"github.com/shaia/bloomfilter/internal/params"
	"github.com/shaia/bloomfilter/internal/remote"
	"github.com/spf13/viper"
)

// Config carries a completed, mutually-consistent set of Bloom filter
// parameters plus the peripheral settings from §3/§6: hash family, counter
// width, character encoding, and (for remote-backed filters) the dataset
// name and connection options.
type Config struct {
	N uint64
	M uint64
	K uint32
	P float64

	HashMethod        hash.Method
	CountingBits      counter.Width
	Charset           string
	Name              string
	OverwriteIfExists bool

	Remote *remote.Options
}

// Option configures a Config via NewConfig.
type Option func(*configBuilder)

type configBuilder struct {
	n *uint64
	m *uint64
	k *uint32
	p *float64

	hashMethod        hash.Method
	countingBits      counter.Width
	charset           string
	name              string
	overwriteIfExists bool
	remote            *remote.Options
}

// WithExpectedElements supplies n.
func WithExpectedElements(n uint64) Option {
	return func(b *configBuilder) { b.n = &n }
}

// WithSize supplies m.
func WithSize(m uint64) Option {
	return func(b *configBuilder) { b.m = &m }
}

// WithHashes supplies k.
func WithHashes(k uint32) Option {
	return func(b *configBuilder) { b.k = &k }
}

// WithFalsePositiveProbability supplies p.
func WithFalsePositiveProbability(p float64) Option {
	return func(b *configBuilder) { b.p = &p }
}

// WithHashMethod selects the hash family; default is hash.DefaultMethod.
func WithHashMethod(m hash.Method) Option {
	return func(b *configBuilder) { b.hashMethod = m }
}

// WithCountingBits selects the counter width; default is 16.
func WithCountingBits(w counter.Width) Option {
	return func(b *configBuilder) { b.countingBits = w }
}

// WithCharset sets the string encoding used by ToBytes; default UTF-8.
func WithCharset(charset string) Option {
	return func(b *configBuilder) { b.charset = charset }
}

// WithName sets the dataset identifier used by remote backends.
func WithName(name string) Option {
	return func(b *configBuilder) { b.name = name }
}

// WithOverwriteIfExists controls whether a remote backend's configuration
// snapshot is replaced on reattachment.
func WithOverwriteIfExists(overwrite bool) Option {
	return func(b *configBuilder) { b.overwriteIfExists = overwrite }
}

// WithRemote attaches remote-store connection options for the remote
// counting-filter backend.
func WithRemote(opts remote.Options) Option {
	return func(b *configBuilder) { b.remote = &opts }
}

// NewConfig completes a configuration from the supplied options, applying
// the §4.1 completion rules to whichever two or more of {n, m, k, p} were
// given.
func NewConfig(opts ...Option) (*Config, error) {
	b := &configBuilder{
		hashMethod:   hash.DefaultMethod,
		countingBits: counter.Width16,
		charset:      "UTF-8",
	}
	for _, opt := range opts {
		opt(b)
	}

	if _, ok := hash.Lookup(b.hashMethod); !ok {
		return nil, fmt.Errorf("%w: unknown hash method %q", ErrInvalidConfig, b.hashMethod)
	}
	if !b.countingBits.Valid() {
		return nil, fmt.Errorf("%w: invalid counter width %d", ErrInvalidConfig, b.countingBits)
	}

	tuple, err := params.Complete(params.Input{N: b.n, M: b.m, K: b.k, P: b.p})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := &Config{
		N:                 tuple.N,
		M:                 tuple.M,
		K:                 tuple.K,
		P:                 tuple.P,
		HashMethod:        b.hashMethod,
		CountingBits:      b.countingBits,
		Charset:           b.charset,
		Name:              b.name,
		OverwriteIfExists: b.overwriteIfExists,
		Remote:            b.remote,
	}
	return cfg, nil
}

// CompatibleWith reports whether two configurations may be combined by
// Union/Intersect: identical m, k, hash family, and charset (§4.1).
func (c *Config) CompatibleWith(other *Config) bool {
	return c.M == other.M && c.K == other.K && c.HashMethod == other.HashMethod && c.Charset == other.Charset
}

// ToBytes converts an arbitrary element to its hashing input per §6:
// element.toString().getBytes(charset) for generic types. Go's strings are
// already UTF-8, so non-UTF-8 charsets are accepted as configuration but
// bytes are produced via fmt.Sprint + UTF-8 encoding; charset is plumbed
// through for compatibility comparisons and for remote config snapshots.
func (c *Config) ToBytes(element any) []byte {
	if b, ok := element.([]byte); ok {
		return b
	}
	if s, ok := element.(string); ok {
		return []byte(s)
	}
	return []byte(fmt.Sprint(element))
}

// RemoteConfigFromViper builds remote.Options from a viper configuration
// tree carrying the redisHost/redisPort/redisConnections/readSlaves/
// redisExpireAt keys from §6, for callers that keep Redis settings under
// viper rather than passing remote.Options directly.
func RemoteConfigFromViper(v *viper.Viper, dataset string) remote.Options {
	opts := remote.Options{
		Host:        v.GetString("redisHost"),
		Port:        v.GetInt("redisPort"),
		Connections: v.GetInt("redisConnections"),
		ReadSlaves:  v.GetStringSlice("readSlaves"),
		Dataset:     dataset,
	}
	if epoch := v.GetInt64("redisExpireAt"); epoch > 0 {
		t := time.Unix(epoch, 0)
		opts.ExpireAt = &t
	}
	return opts
}
