// Package kvstore houses concrete implementations of core.KVStore, the
// minimal key-value capability the registry is built on.
//
// The in-memory store here is volatile and best suited for tests or
// single-process demos. The Redis backend lives in the redis sub-package so
// minimal builds do not pull the client dependency. Additional backends
// (Valkey, Memcached, etc.) belong in further sub-packages; only the wiring
// layer decides which implementation to instantiate.
package kvstore
