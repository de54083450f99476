package core

import (
	"context"
	"time"
)

// KVStore is the minimal key-value capability the registry is built on:
// string values with expiry, unordered string sets, existence checks and
// prefix scans. It is assumed non-transactional across keys; derived indexes
// can therefore desynchronize from canonical records and are repaired lazily
// by the registry, never by the store.
//
// Absence is reported as (zero value, false, nil); errors are reserved for
// store failures. Implementations must be safe for concurrent use and must
// not assume a single persistent connection.
type KVStore interface {
	// Get returns the value at key, or ok=false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key with the given TTL, overwriting any previous
	// value and resetting expiry. A zero TTL stores the key already expired.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether key currently exists.
	Exists(ctx context.Context, key string) (bool, error)

	// SetAdd adds member to the set at key, creating the set when absent.
	SetAdd(ctx context.Context, key, member string) error

	// SetRemove removes member from the set at key, if present.
	SetRemove(ctx context.Context, key, member string) error

	// SetMembers returns all members of the set at key; an absent set yields
	// an empty slice.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SetLen returns the cardinality of the set at key (0 when absent).
	SetLen(ctx context.Context, key string) (int64, error)

	// Expire resets the TTL of key, reporting whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ScanPrefix returns every key currently starting with prefix. Order is
	// unspecified.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}
