package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/service"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/syncerr"
	"github.com/roach88/syncq/internal/testutil"
)

// Harness runs one scenario against an isolated store.
type Harness struct {
	store  store.Adapter
	svc    *service.Service
	repo   *queue.Repository
	clock  *testutil.FakeClock
	logger *slog.Logger
}

// Run executes a scenario in a fresh in-memory SQLite database with a fake
// clock and sequential action ids ("act-0001", ...), so the trace is
// identical on every run.
//
// A step whose service call fails is traced with the error and the run
// continues; only infrastructure failures abort with an error.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := testutil.DefaultStart
	if scenario.Start != "" {
		start, err = time.Parse(time.RFC3339, scenario.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid start: %w", err)
		}
	}
	clk := testutil.NewFakeClock(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.New(st, service.Options{
		Clock:  clk,
		IDs:    testutil.NewSequenceGenerator("act"),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:  st,
		svc:    svc,
		repo:   queue.NewRepository(st, queue.WithClock(clk), queue.WithLogger(logger)),
		clock:  clk,
		logger: logger,
	}

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, seed Seed) error {
	b := store.NewBatch()
	for _, d := range seed.Devices {
		doc, err := ownedDoc(d)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		b.Set(queue.CollectionDevices, d.ID, doc)
	}
	for _, z := range seed.Zones {
		doc, err := ownedDoc(z)
		if err != nil {
			return fmt.Errorf("zone %s: %w", z.ID, err)
		}
		b.Set(queue.CollectionZones, z.ID, doc)
	}
	for _, u := range seed.Users {
		doc := ir.Document{}
		if u.Preferences != nil {
			prefs, err := toDocument(u.Preferences)
			if err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
			doc["preferences"] = prefs
		}
		b.Set(queue.CollectionUsers, u.ID, doc)
	}
	if b.Len() == 0 {
		return nil
	}
	_, err := h.store.Commit(ctx, b)
	return err
}

func ownedDoc(o OwnedDoc) (ir.Document, error) {
	doc, err := toDocument(o.Fields)
	if err != nil {
		return nil, err
	}
	doc["userId"] = o.User
	return doc, nil
}

// toDocument converts decoded YAML into the stored value space.
func toDocument(m map[string]any) (ir.Document, error) {
	if m == nil {
		return ir.Document{}, nil
	}
	v, err := ir.Normalize(m)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return doc, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	now := h.clock.Now()
	switch {
	case step.Enqueue != nil:
		req, err := normalizeRequest(step.Enqueue.ActionRequest)
		if err != nil {
			return err
		}
		res, err := h.svc.EnqueueAction(ctx, step.Enqueue.User, req)
		if err != nil {
			result.AddTrace(now, "enqueue", fmt.Sprintf("%s %s error=%q", step.Enqueue.User, req.Action, serviceError(err)))
			return nil
		}
		result.AddTrace(now, "enqueue", fmt.Sprintf("%s %s %s", step.Enqueue.User, res.ActionID, req.Action))

	case step.Batch != nil:
		reqs := make([]service.ActionRequest, 0, len(step.Batch.Actions))
		for _, r := range step.Batch.Actions {
			req, err := normalizeRequest(r)
			if err != nil {
				return err
			}
			reqs = append(reqs, req)
		}
		res, err := h.svc.EnqueueBatch(ctx, step.Batch.User, reqs)
		if err != nil {
			result.AddTrace(now, "batch", fmt.Sprintf("%s error=%q", step.Batch.User, serviceError(err)))
			return nil
		}
		result.AddTrace(now, "batch", fmt.Sprintf("%s queued=%d %s", step.Batch.User, res.QueuedActions, strings.Join(res.ActionIDs, ",")))

	case step.Drain != "":
		res, err := h.svc.DrainQueue(ctx, step.Drain)
		if err != nil {
			result.AddTrace(now, "drain", fmt.Sprintf("%s error=%q", step.Drain, serviceError(err)))
			return nil
		}
		lines := make([]string, 0, len(res.Results))
		for _, ar := range res.Results {
			line := fmt.Sprintf("%s %s", ar.ActionID, ar.Status)
			if ar.Error != "" {
				line += fmt.Sprintf(" error=%q", ar.Error)
			}
			lines = append(lines, line)
		}
		result.AddTrace(now, "drain", fmt.Sprintf("%s processed=%d", step.Drain, res.ProcessedActions), lines...)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.AddTrace(now, "advance", d.String())

	case step.Sweep:
		res, err := h.svc.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		result.AddTrace(now, "sweep", fmt.Sprintf("cutoff=%s deleted=%d", formatTime(res.Cutoff), res.Deleted))

	case step.Preferences != "":
		doc, _, err := store.Lookup(ctx, h.store, queue.CollectionUsers, step.Preferences)
		if err != nil {
			return fmt.Errorf("preferences: %w", err)
		}
		prefs := doc.Doc("preferences")
		if prefs == nil {
			prefs = ir.Document{}
		}
		data, err := ir.MarshalCanonical(prefs)
		if err != nil {
			return fmt.Errorf("preferences: %w", err)
		}
		result.AddTrace(now, "preferences", fmt.Sprintf("%s %s", step.Preferences, data))
	}
	return nil
}

func normalizeRequest(r service.ActionRequest) (service.ActionRequest, error) {
	if r.Payload == nil {
		return r, nil
	}
	doc, err := toDocument(r.Payload)
	if err != nil {
		return r, fmt.Errorf("payload: %w", err)
	}
	r.Payload = doc
	return r, nil
}

func serviceError(err error) string {
	return fmt.Sprintf("%s: %s", syncerr.CodeOf(err), syncerr.MessageOf(err))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
