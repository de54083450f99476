package core

import "fmt"

var (
	// ErrStoreUnavailable wraps connectivity failures to the underlying
	// key-value store. Fatal for the in-flight operation; retry policy
	// belongs to the caller.
	ErrStoreUnavailable = fmt.Errorf("key-value store unavailable")
)
