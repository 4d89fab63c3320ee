package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/syncerr"
	"github.com/roach88/syncq/internal/testutil"
)

type fixture struct {
	repo  *Repository
	store store.Adapter
	clock *testutil.FakeClock
}

func newFixture(t *testing.T, opts ...RepositoryOption) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	c := testutil.NewFakeClock(time.Time{})
	base := []RepositoryOption{
		WithClock(c),
		WithIDGenerator(testutil.NewSequenceGenerator("act")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return &fixture{
		repo:  NewRepository(s, append(base, opts...)...),
		store: s,
		clock: c,
	}
}

func reading(priority int) NewAction {
	return NewAction{
		ActionType: ActionDeviceReading,
		Payload:    ir.Document{"deviceId": "d1", "temperature": 4.5},
		DeviceID:   "d1",
		Priority:   priority,
	}
}

func TestEnqueue_CreatesPendingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.repo.Enqueue(ctx, "user-1", reading(0))
	require.NoError(t, err)
	assert.Equal(t, "act-0001", id)

	rec, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, ActionDeviceReading, rec.ActionType)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, DefaultPriority, rec.Priority, "priority 0 becomes the default")
	assert.Equal(t, "d1", rec.DeviceID)
	assert.True(t, rec.EnqueuedAt.Equal(testutil.DefaultStart))
	assert.Equal(t, ir.SchemaVersion, rec.SchemaVersion)
	assert.Empty(t, rec.LastError)
	assert.True(t, rec.CompletedAt.IsZero())

	counters, err := f.repo.Counters(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counters.QueuedActions)
	assert.True(t, counters.LastQueuedAt.Equal(testutil.DefaultStart))
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.Enqueue(ctx, "", reading(1))
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))

	_, err = f.repo.Enqueue(ctx, "user-1", NewAction{Payload: ir.Document{}})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))

	_, err = f.repo.Enqueue(ctx, "user-1", NewAction{ActionType: ActionActivityLog})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))
}

func TestEnqueue_UnknownTypeAccepted(t *testing.T) {
	f := newFixture(t)

	id, err := f.repo.Enqueue(context.Background(), "user-1", NewAction{ActionType: "bogus", Payload: ir.Document{}})
	require.NoError(t, err)

	rec, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ActionType("bogus"), rec.ActionType)
	assert.False(t, rec.ActionType.Known())
}

func TestEnqueueBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.repo.EnqueueBatch(ctx, "user-1", []NewAction{reading(1), reading(2), reading(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"act-0001", "act-0002", "act-0003"}, got)

	n, err := f.repo.CountByStatus(ctx, "user-1", StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	counters, err := f.repo.Counters(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, counters.QueuedActions)
}

func TestEnqueueBatch_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.EnqueueBatch(ctx, "user-1", nil)
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))

	tooMany := make([]NewAction, DefaultBatchCap+1)
	for i := range tooMany {
		tooMany[i] = reading(1)
	}
	_, err = f.repo.EnqueueBatch(ctx, "user-1", tooMany)
	require.Error(t, err)
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))
	assert.Contains(t, err.Error(), "exceeds limit of 100")

	n, err := f.repo.CountByStatus(ctx, "user-1", StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing written when the call fails")

	exactly := tooMany[:DefaultBatchCap]
	got, err := f.repo.EnqueueBatch(ctx, "user-1", exactly)
	require.NoError(t, err)
	assert.Len(t, got, DefaultBatchCap)
}

func TestEnqueueBatch_InvalidEntryFailsWholeCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.EnqueueBatch(ctx, "user-1", []NewAction{reading(1), {ActionType: ActionActivityLog}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1: payload is required")

	n, err := f.repo.CountByStatus(ctx, "user-1", StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithBatchCap(t *testing.T) {
	f := newFixture(t, WithBatchCap(2))
	_, err := f.repo.EnqueueBatch(context.Background(), "user-1", []NewAction{reading(1), reading(1), reading(1)})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))
}

func TestClaimPending_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Priorities [1, 5, 1] enqueued in that order.
	first, err := f.repo.Enqueue(ctx, "user-1", reading(1))
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	high, err := f.repo.Enqueue(ctx, "user-1", reading(5))
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	last, err := f.repo.Enqueue(ctx, "user-1", reading(1))
	require.NoError(t, err)

	claimed, err := f.repo.ClaimPending(ctx, "user-1", 50)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, []string{high, first, last}, recordIDs(claimed))
}

func TestClaimPending_ScopedAndLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.repo.Enqueue(ctx, "user-1", reading(1))
		require.NoError(t, err)
		f.clock.Advance(time.Millisecond)
	}
	_, err := f.repo.Enqueue(ctx, "user-2", reading(9))
	require.NoError(t, err)

	claimed, err := f.repo.ClaimPending(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-0001", "act-0002"}, recordIDs(claimed))

	for _, r := range claimed {
		assert.Equal(t, "user-1", r.UserID)
	}

	again, err := f.repo.ClaimPending(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, recordIDs(claimed), recordIDs(again), "claiming does not mutate state")
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Get(context.Background(), "missing")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeNotFound))
}

func recordIDs(recs []ActionRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestExpiredCompletedAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := testutil.DefaultStart.Add(30 * 24 * time.Hour)

	put := func(id string, status Status, completedAgo time.Duration) {
		rec := ActionRecord{
			ID: id, UserID: "user-1", ActionType: ActionActivityLog, Payload: ir.Document{},
			Priority: 1, Status: status, EnqueuedAt: testutil.DefaultStart,
		}
		if status == StatusCompleted {
			rec.CompletedAt = now.Add(-completedAgo)
		}
		require.NoError(t, store.Set(ctx, f.store, CollectionQueue, id, rec.Document()))
	}
	put("old", StatusCompleted, 8*24*time.Hour)
	put("older", StatusCompleted, 9*24*time.Hour)
	put("fresh", StatusCompleted, 24*time.Hour)
	put("pending", StatusPending, 0)

	cutoff := now.Add(-7 * 24 * time.Hour)
	expired, err := f.repo.ExpiredCompleted(ctx, cutoff, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"older", "old"}, recordIDs(expired))

	limited, err := f.repo.ExpiredCompleted(ctx, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, recordIDs(limited))

	deleted, err := f.repo.DeleteCompleted(ctx, []string{"old", "older", "pending"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted, "non-completed records are never deleted")

	_, err = f.repo.Get(ctx, "pending")
	assert.NoError(t, err)
	_, err = f.repo.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRecordFromDocument_Errors(t *testing.T) {
	_, err := RecordFromDocument("x", ir.Document{FieldStatus: "pending"})
	require.Error(t, err)

	_, err = RecordFromDocument("x", ir.Document{FieldUserID: "u", FieldStatus: "queued"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid status "queued"`)
}

func TestActionRecord_DocumentRoundTrip(t *testing.T) {
	at := testutil.DefaultStart.Add(time.Hour)
	rec := ActionRecord{
		ID:                  "a1",
		UserID:              "u",
		ActionType:          ActionZoneUpdate,
		Payload:             ir.Document{"name": "Home"},
		Priority:            3,
		Status:              StatusCompleted,
		RetryCount:          2,
		EnqueuedAt:          testutil.DefaultStart,
		CompletedAt:         at,
		ProcessingStartedAt: at,
		LastRetryAt:         at.Add(-time.Minute),
		Result:              ir.Document{"zoneId": "z1"},
		SchemaVersion:       ir.SchemaVersion,
	}

	data, err := ir.MarshalCanonical(rec.Document())
	require.NoError(t, err)
	doc, err := ir.Decode(data)
	require.NoError(t, err)

	got, err := RecordFromDocument("a1", doc)
	require.NoError(t, err)
	assert.Equal(t, "z1", got.Result.String("zoneId"))
	assert.Equal(t, "Home", got.Payload.String("name"))
	assert.Equal(t, rec, got)
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	valid := map[string]bool{
		"pending->processing":   true,
		"processing->completed": true,
		"processing->pending":   true,
		"processing->failed":    true,
	}
	for _, from := range all {
		for _, to := range all {
			key := fmt.Sprintf("%s->%s", from, to)
			assert.Equal(t, valid[key], CanTransition(from, to), key)
		}
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestKnownActionTypes(t *testing.T) {
	assert.Len(t, KnownActionTypes(), 5)
	for _, at := range KnownActionTypes() {
		assert.True(t, at.Known())
	}
	assert.False(t, ActionType("bogus").Known())
}
