// Package queue implements the per-user offline mutation queue: the
// ActionRecord model and the Repository that stores it.
//
// Records live in the sync_queue collection, one document per action. The
// per-user counters (UserSyncCounters) live on the user's own document under
// syncStatus and are a cache: they can always be recomputed from the
// records (see status.Aggregator.Reconcile).
//
// Status lifecycle:
//
//	pending -> processing -> completed
//	                      -> pending   (retry, retryCount+1)
//	                      -> failed    (retries exhausted)
//
// completed and failed are terminal. The processing step is advisory: it
// is held in memory during a drain and persisted only as
// processingStartedAt together with the final transition.
package queue
