// Package status answers sync status queries and repairs the cached
// per-user counters.
package status

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/syncerr"
)

// SyncStatus is the per-user view returned to clients. QueuedActions and
// FailedActions are live counts; the rest comes from the cached counters.
type SyncStatus struct {
	QueuedActions   int
	FailedActions   int
	LastSyncAt      time.Time
	LastQueuedAt    time.Time
	SuccessfulSyncs int
	FailedSyncs     int
}

// LastSync is the answer to a last-sync-timestamp query.
type LastSync struct {
	LastSyncAt      time.Time
	ServerTimestamp time.Time
}

// Aggregator reads sync status for a user.
type Aggregator struct {
	repo   *queue.Repository
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the source of server timestamps.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) {
		a.clock = clock.OrSystem(c)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator over repo.
func New(repo *queue.Repository, opts ...Option) *Aggregator {
	a := &Aggregator{repo: repo, clock: clock.System{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetSyncStatus returns the user's sync status. The queued and failed
// counts never trust the cached counters.
func (a *Aggregator) GetSyncStatus(ctx context.Context, userID string) (SyncStatus, error) {
	if strings.TrimSpace(userID) == "" {
		return SyncStatus{}, syncerr.Unauthenticated("caller identity required")
	}

	counters, err := a.repo.Counters(ctx, userID)
	if err != nil {
		return SyncStatus{}, a.internal(userID, err, "failed to get sync status")
	}
	pending, err := a.repo.CountByStatus(ctx, userID, queue.StatusPending)
	if err != nil {
		return SyncStatus{}, a.internal(userID, err, "failed to get sync status")
	}
	failed, err := a.repo.CountByStatus(ctx, userID, queue.StatusFailed)
	if err != nil {
		return SyncStatus{}, a.internal(userID, err, "failed to get sync status")
	}

	if counters.QueuedActions != pending {
		a.logger.Debug("cached queue counter drifted",
			"user_id", userID, "cached", counters.QueuedActions, "live", pending)
	}
	return SyncStatus{
		QueuedActions:   pending,
		FailedActions:   failed,
		LastSyncAt:      counters.LastSyncAt,
		LastQueuedAt:    counters.LastQueuedAt,
		SuccessfulSyncs: counters.SuccessfulSyncs,
		FailedSyncs:     counters.FailedSyncs,
	}, nil
}

// LastSync returns the user's last drain time with the server's clock.
func (a *Aggregator) LastSync(ctx context.Context, userID string) (LastSync, error) {
	if strings.TrimSpace(userID) == "" {
		return LastSync{}, syncerr.Unauthenticated("caller identity required")
	}
	counters, err := a.repo.Counters(ctx, userID)
	if err != nil {
		return LastSync{}, a.internal(userID, err, "failed to get last sync timestamp")
	}
	return LastSync{LastSyncAt: counters.LastSyncAt, ServerTimestamp: a.clock.Now()}, nil
}

// Reconcile rewrites the cached queuedActions counter from the live pending
// count and returns that count.
func (a *Aggregator) Reconcile(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, syncerr.Unauthenticated("caller identity required")
	}
	pending, err := a.repo.CountByStatus(ctx, userID, queue.StatusPending)
	if err != nil {
		return 0, a.internal(userID, err, "failed to reconcile sync status")
	}
	if err := a.repo.SetQueuedActions(ctx, userID, pending, a.clock.Now()); err != nil {
		return 0, a.internal(userID, err, "failed to reconcile sync status")
	}
	a.logger.Info("sync counters reconciled", "user_id", userID, "queued_actions", pending)
	return pending, nil
}

func (a *Aggregator) internal(userID string, err error, msg string) error {
	a.logger.Error(msg, "user_id", userID, "error", err)
	return syncerr.Internal(err, msg)
}
