package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/dispatch"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/syncerr"
)

// Dispatcher applies a single action. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec queue.ActionRecord) dispatch.Outcome
}

// ActionResult is the reported outcome for one claimed record.
type ActionResult struct {
	ActionID string       `json:"actionId"`
	Status   ResultStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// DrainResult is returned by Drain. Results follow claim order.
type DrainResult struct {
	ProcessedActions int            `json:"processedActions"`
	Results          []ActionResult `json:"results"`
}

// Engine runs drains. It has no goroutine of its own; each Drain runs to
// completion on the caller's goroutine.
//
// Thread-safety: Drain may be called concurrently, including for the same
// user (see package doc).
type Engine struct {
	repo       *queue.Repository
	dispatcher Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	maxRetries int
	claimLimit int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxRetries sets how many failed attempts return a record to pending.
//
// Default: 3 (DefaultMaxRetries)
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithClaimLimit sets the number of records claimed per drain.
//
// Default: 50 (queue.DefaultClaimLimit)
func WithClaimLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.claimLimit = n
		}
	}
}

// WithClock sets the time source for transition timestamps.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock.OrSystem(c)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine over repo that dispatches through d.
func New(repo *queue.Repository, d Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:       repo,
		dispatcher: d,
		clock:      clock.System{},
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
		claimLimit: queue.DefaultClaimLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drain claims and processes one batch of the user's pending actions.
//
// Individual action failures are reported in the result. The returned error
// is a *syncerr.Error: unauthenticated for an empty userID, internal when
// the claim or the commit fails.
func (e *Engine) Drain(ctx context.Context, userID string) (DrainResult, error) {
	if strings.TrimSpace(userID) == "" {
		return DrainResult{}, syncerr.Unauthenticated("caller identity required")
	}

	claimed, err := e.repo.ClaimPending(ctx, userID, e.claimLimit)
	if err != nil {
		e.logger.Error("claim failed", "user_id", userID, "error", err)
		return DrainResult{}, syncerr.Internal(err, "failed to process sync queue")
	}
	if len(claimed) == 0 {
		return DrainResult{Results: []ActionResult{}}, nil
	}

	// Once dispatch begins the batch runs to completion; cancelling the
	// caller must not turn half the batch into spurious failures.
	ctx = context.WithoutCancel(ctx)

	transitions := make([]queue.Transition, 0, len(claimed))
	for _, rec := range claimed {
		started := e.clock.Now()
		out := e.dispatch(ctx, rec)
		t := nextTransition(rec, out, started, e.clock.Now(), e.maxRetries)
		if t.To != queue.StatusCompleted {
			e.logger.Warn("action failed",
				"action_id", rec.ID,
				"user_id", rec.UserID,
				"action_type", rec.ActionType,
				"retry_count", t.RetryCount,
				"status", t.To,
				"error", t.LastError)
		}
		transitions = append(transitions, t)
	}

	committed, err := e.repo.CommitResults(ctx, transitions)
	if err != nil {
		e.logger.Error("commit failed", "user_id", userID, "actions", len(transitions), "error", err)
		return DrainResult{}, syncerr.Internal(err, "failed to process sync queue")
	}

	result := DrainResult{
		ProcessedActions: len(transitions),
		Results:          make([]ActionResult, 0, len(transitions)),
	}
	var delta queue.CounterDelta
	for _, t := range transitions {
		if !committed.Applied(t.ID) {
			result.Results = append(result.Results, e.superseded(ctx, t))
			continue
		}
		switch t.To {
		case queue.StatusCompleted:
			delta.Completed++
		case queue.StatusFailed:
			delta.Failed++
		}
		result.Results = append(result.Results, ActionResult{
			ActionID: t.ID,
			Status:   resultStatusOf(t.To),
			Error:    t.LastError,
		})
	}

	// Counters are a cache; losing this write is repaired by reconcile.
	if err := e.repo.ApplyDrain(ctx, userID, delta, e.clock.Now()); err != nil {
		e.logger.Warn("sync counters not updated", "user_id", userID, "error", err)
	}

	e.logger.Info("drain complete",
		"user_id", userID,
		"processed", result.ProcessedActions,
		"completed", delta.Completed,
		"failed", delta.Failed)
	return result, nil
}

// dispatch calls the dispatcher, converting a panic into a failed outcome.
func (e *Engine) dispatch(ctx context.Context, rec queue.ActionRecord) (out dispatch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = dispatch.Outcome{Error: fmt.Sprintf("dispatch panic: %v", r)}
		}
	}()
	out = e.dispatcher.Dispatch(ctx, rec)
	if !out.Success && out.Error == "" {
		out.Error = "action failed"
	}
	return out
}

// superseded reports a transition that lost to a concurrent drain using the
// status that drain stored.
func (e *Engine) superseded(ctx context.Context, t queue.Transition) ActionResult {
	e.logger.Info("transition superseded by concurrent drain", "action_id", t.ID, "planned", t.To)
	stored, err := e.repo.Get(ctx, t.ID)
	if err != nil {
		e.logger.Warn("superseded record unreadable", "action_id", t.ID, "error", err)
		return ActionResult{ActionID: t.ID, Status: resultStatusOf(t.To), Error: t.LastError}
	}
	return ActionResult{
		ActionID: t.ID,
		Status:   resultStatusOf(stored.Status),
		Error:    stored.LastError,
	}
}
