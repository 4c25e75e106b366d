// Package guard implements the per-client admission checks that run before any handler.
//
// Everything is built on a sliding-window [Counter]: for each key it keeps the timestamps of
// recent events, discards those at or before now-window, and admits a new event only while
// fewer than max remain. A denied event is not recorded, so a client that keeps hammering a
// closed window does not extend its own lockout.
//
// Two counters are provided:
//   - [MemoryCounter] : keys sharded by FNV-1a hash, one mutex per shard
//   - [SQLCounter] : events in the guard_events table so several gateway instances share limits
//
// On top of the counter sit the [RateLimiter] (requests per window per client) and the
// [BruteForceGuard] (failed authentications per window per client). Both report violations as
// typed errors, [*RateLimitExceeded] and [*TooManyAttempts], that match [ErrRateLimited] and
// [ErrTooManyAttempts] with [errors.Is].
package guard
