package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/ids"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queryir"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/syncerr"
)

const (
	// DefaultBatchCap is the maximum number of actions per EnqueueBatch.
	DefaultBatchCap = 100

	// DefaultClaimLimit is the number of records claimed per drain.
	DefaultClaimLimit = 50
)

// Repository stores ActionRecords and the per-user sync counters.
//
// Thread-safety: Repository is safe for concurrent use; all coordination
// happens in the store.
type Repository struct {
	store    store.Adapter
	clock    clock.Clock
	ids      ids.Generator
	logger   *slog.Logger
	batchCap int
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithClock sets the time source for enqueue timestamps.
func WithClock(c clock.Clock) RepositoryOption {
	return func(r *Repository) {
		r.clock = clock.OrSystem(c)
	}
}

// WithIDGenerator sets the action id source.
func WithIDGenerator(g ids.Generator) RepositoryOption {
	return func(r *Repository) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RepositoryOption {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBatchCap sets the EnqueueBatch limit.
func WithBatchCap(n int) RepositoryOption {
	return func(r *Repository) {
		if n > 0 {
			r.batchCap = n
		}
	}
}

// NewRepository creates a Repository over s.
func NewRepository(s store.Adapter, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:    s,
		clock:    clock.System{},
		ids:      ids.UUIDv7Generator{},
		logger:   slog.Default(),
		batchCap: DefaultBatchCap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying adapter.
func (r *Repository) Store() store.Adapter {
	return r.store
}

// Enqueue creates one pending record and bumps the user's queuedActions
// counter in the same commit.
func (r *Repository) Enqueue(ctx context.Context, userID string, action NewAction) (string, error) {
	out, err := r.EnqueueBatch(ctx, userID, []NewAction{action})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// EnqueueBatch creates up to the batch cap records atomically. An empty or
// oversized list fails the whole call with invalid-argument.
func (r *Repository) EnqueueBatch(ctx context.Context, userID string, actions []NewAction) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, syncerr.Unauthenticated("caller identity required")
	}
	if len(actions) == 0 {
		return nil, syncerr.InvalidArgument("actions must not be empty")
	}
	if len(actions) > r.batchCap {
		return nil, syncerr.InvalidArgument("batch of %d actions exceeds limit of %d", len(actions), r.batchCap)
	}
	for i, a := range actions {
		if err := validateNewAction(a); err != nil {
			if len(actions) == 1 {
				return nil, err
			}
			return nil, syncerr.InvalidArgument("action %d: %s", i, syncerr.MessageOf(err))
		}
	}

	now := r.clock.Now()
	b := store.NewBatch()
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		rec := ActionRecord{
			ID:            r.ids.Generate(),
			UserID:        userID,
			ActionType:    a.ActionType,
			Payload:       a.Payload,
			DeviceID:      a.DeviceID,
			Priority:      a.Priority,
			Status:        StatusPending,
			EnqueuedAt:    now,
			SchemaVersion: ir.SchemaVersion,
		}
		if rec.Priority == 0 {
			rec.Priority = DefaultPriority
		}
		b.Set(CollectionQueue, rec.ID, rec.Document())
		out = append(out, rec.ID)
	}
	b.Merge(CollectionUsers, userID, ir.Document{
		counterField(counterQueuedActions): ir.Increment(len(actions)),
		counterField(counterLastQueuedAt):  ir.Time(now),
		counterField(counterUpdatedAt):     ir.Time(now),
	})

	if _, err := r.store.Commit(ctx, b); err != nil {
		return nil, syncerr.Internal(err, "enqueue actions")
	}

	r.logger.Debug("actions enqueued", "user_id", userID, "count", len(out))
	return out, nil
}

func validateNewAction(a NewAction) error {
	if strings.TrimSpace(string(a.ActionType)) == "" {
		return syncerr.InvalidArgument("action type is required")
	}
	if a.Payload == nil {
		return syncerr.InvalidArgument("payload is required")
	}
	return nil
}

// ClaimPending returns up to limit pending records for the user, ordered
// priority desc, enqueuedAt asc. It is a plain read; the caller commits
// the resulting transitions.
func (r *Repository) ClaimPending(ctx context.Context, userID string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = DefaultClaimLimit
	}
	snaps, err := r.store.Query(ctx, queryir.Query{
		Collection: CollectionQueue,
		Filter: queryir.All(
			queryir.Eq(FieldUserID, userID),
			queryir.Eq(FieldStatus, string(StatusPending)),
		),
		OrderBy: []queryir.Order{queryir.Desc(FieldPriority), queryir.Asc(FieldEnqueuedAt)},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	return r.records(snaps)
}

// Get returns one record. Missing records yield a not-found error.
func (r *Repository) Get(ctx context.Context, id string) (ActionRecord, error) {
	doc, err := r.store.Get(ctx, CollectionQueue, id)
	if errors.Is(err, store.ErrNotFound) {
		return ActionRecord{}, &syncerr.Error{Code: syncerr.CodeNotFound, Message: "action " + id + " not found", Err: err}
	}
	if err != nil {
		return ActionRecord{}, fmt.Errorf("get action %s: %w", id, err)
	}
	return RecordFromDocument(id, doc)
}

// CountByStatus counts the user's records in the given status.
func (r *Repository) CountByStatus(ctx context.Context, userID string, status Status) (int, error) {
	n, err := r.store.Count(ctx, queryir.Query{
		Collection: CollectionQueue,
		Filter: queryir.All(
			queryir.Eq(FieldUserID, userID),
			queryir.Eq(FieldStatus, string(status)),
		),
	})
	if err != nil {
		return 0, fmt.Errorf("count %s actions: %w", status, err)
	}
	return n, nil
}

// ExpiredCompleted returns up to limit completed records (any user) whose
// completedAt is before cutoff, oldest first.
func (r *Repository) ExpiredCompleted(ctx context.Context, cutoff time.Time, limit int) ([]ActionRecord, error) {
	snaps, err := r.store.Query(ctx, queryir.Query{
		Collection: CollectionQueue,
		Filter: queryir.All(
			queryir.Eq(FieldStatus, string(StatusCompleted)),
			queryir.Compare{Field: FieldCompletedAt, Op: queryir.OpLt, Value: ir.Time(cutoff)},
		),
		OrderBy: []queryir.Order{queryir.Asc(FieldCompletedAt)},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query expired actions: %w", err)
	}
	return r.records(snaps)
}

// DeleteCompleted removes the given records in one batch, skipping any that
// are no longer completed. Returns the number deleted.
func (r *Repository) DeleteCompleted(ctx context.Context, actionIDs []string) (int, error) {
	if len(actionIDs) == 0 {
		return 0, nil
	}
	b := store.NewBatch()
	for _, id := range actionIDs {
		b.DeleteIf(CollectionQueue, id, ir.Document{FieldStatus: string(StatusCompleted)})
	}
	res, err := r.store.Commit(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("delete completed actions: %w", err)
	}
	return len(actionIDs) - len(res.Skipped), nil
}

func (r *Repository) records(snaps []store.Snapshot) ([]ActionRecord, error) {
	out := make([]ActionRecord, 0, len(snaps))
	for _, s := range snaps {
		rec, err := RecordFromDocument(s.ID, s.Data)
		if err != nil {
			// A malformed record must not block the rest of the queue.
			r.logger.Error("skipping malformed action record", "action_id", s.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
