package bloomfilter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/shaia/bloomfilter/internal/bitset"
	"github.com/shaia/bloomfilter/internal/hash"
)

// jsonEnvelope is the §4.6/§6 interchange record:
// {"size", "hashes", "HashMethod", "bits"}, bits base64-encoding the
// MSB-first byte packing from §3.
type jsonEnvelope struct {
	Size       uint64 `json:"size"`
	Hashes     uint32 `json:"hashes"`
	HashMethod string `json:"HashMethod"`
	Bits       string `json:"bits"`
}

// ToJSON serializes f to the §4.6 envelope. Counters, if any, are
// discarded; deserialization always reconstructs a non-counting filter.
func (f *Filter) ToJSON() ([]byte, error) {
	env := jsonEnvelope{
		Size:       f.cfg.M,
		Hashes:     f.cfg.K,
		HashMethod: string(f.cfg.HashMethod),
		Bits:       base64.StdEncoding.EncodeToString(f.bits.ToBytes()),
	}
	return json.Marshal(env)
}

// FromJSON reconstructs a non-counting Filter from the §4.6 envelope.
func FromJSON(data []byte) (*Filter, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bloomfilter: decoding json envelope: %w", err)
	}
	method := hash.Method(env.HashMethod)
	hasher, ok := hash.Lookup(method)
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash method %q in json envelope", ErrInvalidConfig, env.HashMethod)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Bits)
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: decoding base64 bits: %w", err)
	}

	cfg := &Config{
		M:          env.Size,
		K:          env.Hashes,
		HashMethod: method,
		Charset:    "UTF-8",
	}
	bits := bitset.New(env.Size)
	bits.OverwriteFromBytes(raw)

	return &Filter{cfg: cfg, bits: bits, hasher: hasher}, nil
}
