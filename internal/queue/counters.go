package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/store"
)

// syncStatus sub-fields on the user document.
const (
	syncStatusField         = "syncStatus"
	counterQueuedActions    = "queuedActions"
	counterSuccessfulSyncs  = "successfulSyncs"
	counterFailedSyncs      = "failedSyncs"
	counterLastQueuedAt     = "lastQueuedAt"
	counterLastSyncAt       = "lastSyncAt"
	counterUpdatedAt        = "updatedAt"
	counterLastReconciledAt = "lastReconciledAt"
)

func counterField(name string) string {
	return syncStatusField + "." + name
}

// UserSyncCounters are the cached per-user sync statistics. They are a
// convenience cache; the records are the source of truth.
type UserSyncCounters struct {
	QueuedActions   int
	SuccessfulSyncs int
	FailedSyncs     int
	LastQueuedAt    time.Time
	LastSyncAt      time.Time
}

// CounterDelta is the effect of one drain on the counters.
type CounterDelta struct {
	Completed int
	Failed    int
}

// Counters reads the user's cached counters. A missing user document
// yields zero counters.
func (r *Repository) Counters(ctx context.Context, userID string) (UserSyncCounters, error) {
	doc, ok, err := store.Lookup(ctx, r.store, CollectionUsers, userID)
	if err != nil {
		return UserSyncCounters{}, fmt.Errorf("read sync counters: %w", err)
	}
	if !ok {
		return UserSyncCounters{}, nil
	}
	var c UserSyncCounters
	if n, ok := doc.Int64(counterField(counterQueuedActions)); ok {
		c.QueuedActions = int(n)
	}
	if n, ok := doc.Int64(counterField(counterSuccessfulSyncs)); ok {
		c.SuccessfulSyncs = int(n)
	}
	if n, ok := doc.Int64(counterField(counterFailedSyncs)); ok {
		c.FailedSyncs = int(n)
	}
	c.LastQueuedAt, _ = doc.Time(counterField(counterLastQueuedAt))
	c.LastSyncAt, _ = doc.Time(counterField(counterLastSyncAt))
	return c, nil
}

// ApplyDrain records a finished drain on the user's counters:
// queuedActions -= completed+failed, successfulSyncs += completed,
// failedSyncs += failed, lastSyncAt = at.
func (r *Repository) ApplyDrain(ctx context.Context, userID string, d CounterDelta, at time.Time) error {
	fields := ir.Document{
		counterField(counterLastSyncAt): ir.Time(at),
		counterField(counterUpdatedAt):  ir.Time(at),
	}
	if n := d.Completed + d.Failed; n > 0 {
		fields[counterField(counterQueuedActions)] = ir.Increment(-n)
	}
	if d.Completed > 0 {
		fields[counterField(counterSuccessfulSyncs)] = ir.Increment(d.Completed)
	}
	if d.Failed > 0 {
		fields[counterField(counterFailedSyncs)] = ir.Increment(d.Failed)
	}
	if err := store.Merge(ctx, r.store, CollectionUsers, userID, fields); err != nil {
		return fmt.Errorf("update sync counters: %w", err)
	}
	return nil
}

// SetQueuedActions overwrites the cached queuedActions counter.
func (r *Repository) SetQueuedActions(ctx context.Context, userID string, n int, at time.Time) error {
	err := store.Merge(ctx, r.store, CollectionUsers, userID, ir.Document{
		counterField(counterQueuedActions):    int64(n),
		counterField(counterLastReconciledAt): ir.Time(at),
		counterField(counterUpdatedAt):        ir.Time(at),
	})
	if err != nil {
		return fmt.Errorf("reconcile sync counters: %w", err)
	}
	return nil
}
