// Package engine drains a user's offline action queue.
//
// A drain claims up to ClaimLimit pending records in priority desc,
// enqueuedAt asc order, dispatches them one at a time, and commits every
// resulting transition in a single batch:
//
//	success                       -> completed
//	failure, retryCount < max     -> pending, retryCount+1
//	failure, retryCount >= max    -> failed (terminal)
//
// There is no backoff timer. A record returned to pending is retried by the
// next drain.
//
// CONCURRENCY:
//
// Drains take no locks. Two drains of the same user may claim and dispatch
// the same record; handlers are idempotent per action id, and each
// transition is committed only if the record is still pending with the
// retryCount it was claimed at. The losing drain reports the status the
// winner stored.
//
// Per-action failures are data in DrainResult, never a call-level error.
// Drain returns an error only for a missing caller identity or a store
// failure during the claim or the final commit.
package engine
