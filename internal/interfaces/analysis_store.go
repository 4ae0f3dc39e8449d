package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the durable store.
// An expired key is indistinguishable from an absent one.
var ErrKeyNotFound = errors.New("key not found")

// AnalysisStore defines the durable key/value operations the analysis cache
// depends on. Implementations must be safe for concurrent use from multiple
// processes; no transactional guarantees are assumed.
type AnalysisStore interface {
	// Get retrieves the value for a key, or ErrKeyNotFound when the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes a value under a key, overwriting any existing value and
	// resetting its TTL. A zero ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// ListKeys returns all live keys with the given prefix. Enumeration may
	// be eventually consistent; callers must tolerate missing keys.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Delete removes keys best-effort. A missing key is not an error.
	Delete(ctx context.Context, keys ...string) error
}
