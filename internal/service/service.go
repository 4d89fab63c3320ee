// Package service exposes the offline sync queue operations to callers.
//
// Every operation takes the caller's user id; an empty id fails with
// unauthenticated. Returned errors are *syncerr.Error values.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/dispatch"
	"github.com/roach88/syncq/internal/engine"
	"github.com/roach88/syncq/internal/ids"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/status"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/sweeper"
	"github.com/roach88/syncq/internal/syncerr"
)

// Options tunes a Service. Zero values select the package defaults.
type Options struct {
	MaxRetries      *int
	ClaimLimit      int
	BatchCap        int
	RetentionWindow time.Duration
	SweepInterval   time.Duration
	SweepLimit      int

	Clock  clock.Clock
	IDs    ids.Generator
	Logger *slog.Logger

	// Handlers replace the built-in handler for an action type.
	Handlers map[queue.ActionType]dispatch.Handler
}

// Service wires the queue, dispatcher, engine, status aggregator and
// retention sweeper over one store.
type Service struct {
	repo    *queue.Repository
	engine  *engine.Engine
	status  *status.Aggregator
	sweeper *sweeper.Sweeper
	logger  *slog.Logger
}

// New builds a Service over s.
func New(s store.Adapter, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.OrSystem(opts.Clock)

	repo := queue.NewRepository(s,
		queue.WithClock(clk),
		queue.WithIDGenerator(opts.IDs),
		queue.WithLogger(logger),
		queue.WithBatchCap(opts.BatchCap))

	dopts := []dispatch.Option{dispatch.WithClock(clk), dispatch.WithLogger(logger)}
	for t, h := range opts.Handlers {
		dopts = append(dopts, dispatch.WithHandler(t, h))
	}
	d, err := dispatch.New(s, dopts...)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	eopts := []engine.EngineOption{
		engine.WithClock(clk),
		engine.WithLogger(logger),
		engine.WithClaimLimit(opts.ClaimLimit),
	}
	if opts.MaxRetries != nil {
		eopts = append(eopts, engine.WithMaxRetries(*opts.MaxRetries))
	}

	return &Service{
		repo:   repo,
		engine: engine.New(repo, d, eopts...),
		status: status.New(repo, status.WithClock(clk), status.WithLogger(logger)),
		sweeper: sweeper.New(repo,
			sweeper.WithClock(clk),
			sweeper.WithLogger(logger),
			sweeper.WithWindow(opts.RetentionWindow),
			sweeper.WithInterval(opts.SweepInterval),
			sweeper.WithLimit(opts.SweepLimit)),
		logger: logger,
	}, nil
}

// ActionRequest is one action submitted by a client.
type ActionRequest struct {
	Action   string      `json:"action" yaml:"action"`
	Payload  ir.Document `json:"payload" yaml:"payload"`
	DeviceID string      `json:"deviceId,omitempty" yaml:"deviceId"`
	Priority int         `json:"priority,omitempty" yaml:"priority"`
}

func (r ActionRequest) newAction() queue.NewAction {
	return queue.NewAction{
		ActionType: queue.ActionType(r.Action),
		Payload:    r.Payload,
		DeviceID:   r.DeviceID,
		Priority:   r.Priority,
	}
}

// EnqueueResult is returned by EnqueueAction.
type EnqueueResult struct {
	ActionID string `json:"actionId"`
}

// BatchResult is returned by EnqueueBatch.
type BatchResult struct {
	QueuedActions int      `json:"queuedActions"`
	ActionIDs     []string `json:"actionIds"`
}

// EnqueueAction queues one action.
func (s *Service) EnqueueAction(ctx context.Context, userID string, req ActionRequest) (EnqueueResult, error) {
	id, err := s.repo.Enqueue(ctx, userID, req.newAction())
	if err != nil {
		return EnqueueResult{}, err
	}
	return EnqueueResult{ActionID: id}, nil
}

// EnqueueBatch queues between one and the batch cap actions atomically.
func (s *Service) EnqueueBatch(ctx context.Context, userID string, reqs []ActionRequest) (BatchResult, error) {
	actions := make([]queue.NewAction, len(reqs))
	for i, r := range reqs {
		actions[i] = r.newAction()
	}
	out, err := s.repo.EnqueueBatch(ctx, userID, actions)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{QueuedActions: len(out), ActionIDs: out}, nil
}

// DrainQueue processes one batch of the caller's pending actions.
func (s *Service) DrainQueue(ctx context.Context, userID string) (engine.DrainResult, error) {
	return s.engine.Drain(ctx, userID)
}

// GetSyncStatus returns the caller's sync status.
func (s *Service) GetSyncStatus(ctx context.Context, userID string) (status.SyncStatus, error) {
	return s.status.GetSyncStatus(ctx, userID)
}

// GetLastSyncTimestamp returns the caller's last drain time and the server
// time.
func (s *Service) GetLastSyncTimestamp(ctx context.Context, userID string) (status.LastSync, error) {
	return s.status.LastSync(ctx, userID)
}

// Reconcile repairs the caller's cached queue counter.
func (s *Service) Reconcile(ctx context.Context, userID string) (int, error) {
	return s.status.Reconcile(ctx, userID)
}

// Sweep runs one retention sweep immediately.
func (s *Service) Sweep(ctx context.Context) (sweeper.Result, error) {
	return s.sweeper.RunOnce(ctx)
}

// StartSweeper schedules retention sweeps until StopSweeper or ctx ends.
func (s *Service) StartSweeper(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// StopSweeper stops scheduled sweeps.
func (s *Service) StopSweeper() {
	s.sweeper.Stop()
}

// Record returns one of the caller's ActionRecords. Records owned by other
// users are reported as not found.
func (s *Service) Record(ctx context.Context, userID, actionID string) (queue.ActionRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return queue.ActionRecord{}, syncerr.Unauthenticated("caller identity required")
	}
	rec, err := s.repo.Get(ctx, actionID)
	if err != nil {
		return queue.ActionRecord{}, err
	}
	if rec.UserID != userID {
		return queue.ActionRecord{}, syncerr.New(syncerr.CodeNotFound, "action %s not found", actionID)
	}
	return rec, nil
}
