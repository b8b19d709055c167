package bloomfilter

import "errors"

// Error kinds per §7. Wrap these with fmt.Errorf("...: %w", ErrXxx) and
// inspect with errors.Is.
var (
	// ErrInvalidConfig covers contradictory or insufficient (n,m,k,p),
	// an unknown hash method, or an invalid counter width.
	ErrInvalidConfig = errors.New("bloomfilter: invalid configuration")

	// ErrIncompatibleFilters is returned by Union/Intersect when the
	// operand filters differ in m, k, hash family, or charset.
	ErrIncompatibleFilters = errors.New("bloomfilter: incompatible filters")

	// ErrRemoteUnavailable covers connection pool exhaustion or transport
	// failure on the remote backend.
	ErrRemoteUnavailable = errors.New("bloomfilter: remote store unavailable")

	// ErrUnsupported is returned by operations the remote counting filter
	// does not support (union, intersect).
	ErrUnsupported = errors.New("bloomfilter: unsupported operation")
)
