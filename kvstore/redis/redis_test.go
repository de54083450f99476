package redis

import (
	"github.com/hupe1980/taskmesh/core"
)

// Behavior against a live server is covered by the registry suite running on
// the in-memory store; this assertion keeps the contract checked at compile
// time.
var _ core.KVStore = (*Store)(nil)
