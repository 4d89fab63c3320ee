package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/store"
)

// Outcome is the result of dispatching one action. Failures are data:
// Dispatch never returns an error or panics.
type Outcome struct {
	Success bool
	Data    ir.Document
	Error   string
}

func succeeded(data ir.Document) Outcome {
	return Outcome{Success: true, Data: data}
}

func failed(err error) Outcome {
	return Outcome{Error: err.Error()}
}

// Handler applies one action to the store. A returned error becomes a
// failed Outcome.
type Handler func(ctx context.Context, rec queue.ActionRecord) (ir.Document, error)

// UnknownActionTypeError is reported for action types without a handler.
type UnknownActionTypeError struct {
	ActionType queue.ActionType
}

func (e *UnknownActionTypeError) Error() string {
	return "Unknown action type: " + string(e.ActionType)
}

// Dispatcher routes ActionRecords to their handlers.
//
// Thread-safety: Dispatcher is safe for concurrent use once constructed.
type Dispatcher struct {
	store     store.Adapter
	clock     clock.Clock
	logger    *slog.Logger
	schemas   payloadSchemas
	overrides map[queue.ActionType]Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the time source for handler timestamps.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = clock.OrSystem(c)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithHandler replaces the handler for t. Overridden types skip payload
// schema validation.
func WithHandler(t queue.ActionType, h Handler) Option {
	return func(d *Dispatcher) {
		if d.overrides == nil {
			d.overrides = make(map[queue.ActionType]Handler)
		}
		d.overrides[t] = h
	}
}

// New creates a Dispatcher that applies actions to s.
func New(s store.Adapter, opts ...Option) (*Dispatcher, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	d := &Dispatcher{
		store:   s,
		clock:   clock.System{},
		logger:  slog.Default(),
		schemas: schemas,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch applies rec and reports the outcome. Handler errors, payload
// validation errors, unknown action types and panics all become a failed
// Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, rec queue.ActionRecord) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action handler panicked",
				"action_id", rec.ID,
				"action_type", rec.ActionType,
				"panic", r,
				"stack", string(debug.Stack()))
			out = Outcome{Error: fmt.Sprintf("handler panic: %v", r)}
		}
	}()

	h, err := d.handler(rec.ActionType)
	if err != nil {
		return failed(err)
	}
	if _, overridden := d.overrides[rec.ActionType]; !overridden {
		if err := d.schemas.validate(rec.ActionType, rec.Payload); err != nil {
			return failed(err)
		}
	}

	data, err := h(ctx, rec)
	if err != nil {
		return failed(err)
	}
	return succeeded(data)
}

// handler resolves the handler for t. The switch covers every
// queue.KnownActionTypes entry; the default branch serves records written
// by older or foreign clients.
func (d *Dispatcher) handler(t queue.ActionType) (Handler, error) {
	if h, ok := d.overrides[t]; ok {
		return h, nil
	}
	switch t {
	case queue.ActionDeviceReading:
		return d.deviceReading, nil
	case queue.ActionUserPreferenceUpdate:
		return d.userPreferenceUpdate, nil
	case queue.ActionDeviceStatusUpdate:
		return d.deviceStatusUpdate, nil
	case queue.ActionZoneUpdate:
		return d.zoneUpdate, nil
	case queue.ActionActivityLog:
		return d.activityLog, nil
	default:
		return nil, &UnknownActionTypeError{ActionType: t}
	}
}
