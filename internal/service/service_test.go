package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncq/internal/engine"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/syncerr"
	"github.com/roach88/syncq/internal/testutil"
)

type fixture struct {
	svc   *Service
	store store.Adapter
	clock *testutil.FakeClock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "syncq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := testutil.NewFakeClock(time.Time{})
	opts.Clock = c
	opts.IDs = testutil.NewSequenceGenerator("act")
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s, opts)
	require.NoError(t, err)
	return &fixture{svc: svc, store: s, clock: c}
}

func TestService_Unauthenticated(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	req := ActionRequest{Action: "activity_log", Payload: ir.Document{"event": "x"}}

	_, err := f.svc.EnqueueAction(ctx, "", req)
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
	_, err = f.svc.EnqueueBatch(ctx, "", []ActionRequest{req})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
	_, err = f.svc.DrainQueue(ctx, "")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
	_, err = f.svc.GetSyncStatus(ctx, "")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
	_, err = f.svc.GetLastSyncTimestamp(ctx, "")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
	_, err = f.svc.Record(ctx, "", "act-0001")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeUnauthenticated))
}

func TestService_EnqueueValidation(t *testing.T) {
	f := newFixture(t, Options{BatchCap: 2})
	ctx := context.Background()

	_, err := f.svc.EnqueueAction(ctx, "user-1", ActionRequest{Payload: ir.Document{}})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))
	_, err = f.svc.EnqueueAction(ctx, "user-1", ActionRequest{Action: "activity_log"})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))

	_, err = f.svc.EnqueueBatch(ctx, "user-1", nil)
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))

	req := ActionRequest{Action: "activity_log", Payload: ir.Document{"event": "x"}}
	_, err = f.svc.EnqueueBatch(ctx, "user-1", []ActionRequest{req, req, req})
	assert.True(t, syncerr.IsCode(err, syncerr.CodeInvalidArgument))

	st, err := f.svc.GetSyncStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.QueuedActions, "rejected calls mutate nothing")
}

func TestService_EndToEnd(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, f.store, queue.CollectionDevices, "dev-1", ir.Document{"userId": "user-1"}))

	one, err := f.svc.EnqueueAction(ctx, "user-1", ActionRequest{
		Action:   "device_reading",
		Payload:  ir.Document{"deviceId": "dev-1", "reading": ir.Document{"bpm": int64(72)}},
		DeviceID: "dev-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "act-0001", one.ActionID)

	batch, err := f.svc.EnqueueBatch(ctx, "user-1", []ActionRequest{
		{Action: "user_preference_update", Payload: ir.Document{"preferences": ir.Document{"theme": "dark"}}, Priority: 5},
		{Action: "bogus", Payload: ir.Document{}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.QueuedActions)
	assert.Equal(t, []string{"act-0002", "act-0003"}, batch.ActionIDs)

	st, err := f.svc.GetSyncStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.QueuedActions)
	assert.True(t, st.LastQueuedAt.Equal(testutil.DefaultStart))

	syncAt := f.clock.Advance(time.Minute)
	res, err := f.svc.DrainQueue(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProcessedActions)
	require.Len(t, res.Results, 3)
	assert.Equal(t, engine.ActionResult{ActionID: "act-0002", Status: engine.ResultCompleted}, res.Results[0])
	assert.Equal(t, engine.ActionResult{ActionID: "act-0001", Status: engine.ResultCompleted}, res.Results[1])
	assert.Equal(t, engine.ActionResult{ActionID: "act-0003", Status: engine.ResultRetry, Error: "Unknown action type: bogus"}, res.Results[2])

	st, err = f.svc.GetSyncStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.QueuedActions)
	assert.Equal(t, 0, st.FailedActions)
	assert.Equal(t, 2, st.SuccessfulSyncs)
	assert.True(t, st.LastSyncAt.Equal(syncAt))

	last, err := f.svc.GetLastSyncTimestamp(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, last.LastSyncAt.Equal(syncAt))
	assert.True(t, last.ServerTimestamp.Equal(syncAt))

	for i := 0; i < 3; i++ {
		_, err = f.svc.DrainQueue(ctx, "user-1")
		require.NoError(t, err)
	}
	st, err = f.svc.GetSyncStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.QueuedActions)
	assert.Equal(t, 1, st.FailedActions)
	assert.Equal(t, 1, st.FailedSyncs)

	rec, err := f.svc.Record(ctx, "user-1", "act-0003")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.RetryCount)

	_, err = f.svc.Record(ctx, "user-2", "act-0003")
	assert.True(t, syncerr.IsCode(err, syncerr.CodeNotFound), "other users' records are hidden")
}

func TestService_SweepAfterRetention(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	old, err := f.svc.EnqueueAction(ctx, "user-1", ActionRequest{Action: "activity_log", Payload: ir.Document{"event": "old"}})
	require.NoError(t, err)
	_, err = f.svc.DrainQueue(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	recent, err := f.svc.EnqueueAction(ctx, "user-1", ActionRequest{Action: "activity_log", Payload: ir.Document{"event": "new"}})
	require.NoError(t, err)
	_, err = f.svc.DrainQueue(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	res, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	_, err = f.svc.Record(ctx, "user-1", old.ActionID)
	assert.True(t, syncerr.IsCode(err, syncerr.CodeNotFound))
	_, err = f.svc.Record(ctx, "user-1", recent.ActionID)
	assert.NoError(t, err)
}

func TestService_ReconcileAndOptions(t *testing.T) {
	zero := 0
	f := newFixture(t, Options{MaxRetries: &zero})
	ctx := context.Background()

	_, err := f.svc.EnqueueAction(ctx, "user-1", ActionRequest{Action: "bogus", Payload: ir.Document{}})
	require.NoError(t, err)
	res, err := f.svc.DrainQueue(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ResultFailed, res.Results[0].Status, "no retries allowed")

	n, err := f.svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
