// Package registry implements the session/task registry: the canonical
// record store, the derived per-user and per-session indexes, the coarse
// task status tracker and the aggregate query surface, all on top of a
// non-transactional core.KVStore.
//
// Because the store offers no multi-key transactions, the derived indexes
// can silently desynchronize from canonical records whenever a record
// expires or is deleted. The registry repairs this lazily: every read that
// depends on an index first reconciles it against the canonical records
// (repair-on-read). This makes reads O(index size) in the worst case, an
// explicit throughput/simplicity tradeoff favoring correctness; per-user
// session counts stay small through TTL-driven attrition.
//
// Concurrency contract: updates are read-modify-write cycles without an
// optimistic-concurrency token, so two concurrent updates of the same
// triple interleave and the last writer wins per field group. Reconciliation
// is advisory cleanup, not a barrier; the record status and the task status
// channel are eventually consistent with each other.
package registry
