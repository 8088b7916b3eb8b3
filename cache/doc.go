// Package cache provides a two-tier response cache for the prompt client.
//
// Features:
//
//   - Authoritative bounded in-process map with an optional best-effort
//     external store (Redis) in front of it.
//   - External store failures are absorbed, logged and counted, they never
//     reach the caller.
//   - Per-entry TTL with override through context.
//   - Deterministic two-phase eviction: expired entries first, then oldest
//     writes until the size bound is met.
//   - Logical keys are digested before reaching either tier, stores never
//     observe plaintext keys.
//   - Hit/miss/size counters and stats collection, contextualized logging.
//   - Optional load coalescing for concurrent misses of one key.
package cache
