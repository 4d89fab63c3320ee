package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/store"
)

// Transition is the outcome of one processing attempt for a claimed record.
type Transition struct {
	ID string
	// FromRetryCount is the retryCount the record had when claimed. The
	// transition only applies if the record is still pending with this
	// count, which makes concurrent drains of the same record converge on
	// one outcome.
	FromRetryCount int

	To                  Status // completed, pending (retry) or failed
	RetryCount          int
	LastError           string
	At                  time.Time
	ProcessingStartedAt time.Time
	Result              ir.Document
}

// CommitResult lists the transitions that were superseded (the record was
// no longer pending with the claimed retryCount when the commit ran).
type CommitResult struct {
	Superseded map[string]bool
}

// Applied reports whether the transition for id was written.
func (c CommitResult) Applied(id string) bool {
	return !c.Superseded[id]
}

// CommitResults writes every transition in one atomic batch. Each record's
// status, retryCount and error fields change together.
func (r *Repository) CommitResults(ctx context.Context, transitions []Transition) (CommitResult, error) {
	result := CommitResult{Superseded: map[string]bool{}}
	if len(transitions) == 0 {
		return result, nil
	}

	b := store.NewBatch()
	for _, t := range transitions {
		if !CanTransition(StatusProcessing, t.To) {
			return result, fmt.Errorf("commit results: invalid transition processing -> %s for %s", t.To, t.ID)
		}
		b.UpdateIf(CollectionQueue, t.ID,
			ir.Document{
				FieldStatus:     string(StatusPending),
				FieldRetryCount: int64(t.FromRetryCount),
			},
			transitionFields(t),
		)
	}

	res, err := r.store.Commit(ctx, b)
	if err != nil {
		return result, fmt.Errorf("commit results: %w", err)
	}
	for _, ref := range res.Skipped {
		result.Superseded[ref.ID] = true
	}
	return result, nil
}

func transitionFields(t Transition) ir.Document {
	fields := ir.Document{
		FieldStatus:     string(t.To),
		FieldRetryCount: int64(t.RetryCount),
	}
	if !t.ProcessingStartedAt.IsZero() {
		fields[FieldProcessingStartedAt] = ir.Time(t.ProcessingStartedAt)
	}

	switch t.To {
	case StatusCompleted:
		fields[FieldCompletedAt] = ir.Time(t.At)
		fields[FieldLastError] = ir.DeleteField
		if t.Result != nil {
			fields[FieldResult] = t.Result
		}
	case StatusPending:
		fields[FieldLastError] = t.LastError
		fields[FieldLastRetryAt] = ir.Time(t.At)
	case StatusFailed:
		fields[FieldFailedAt] = ir.Time(t.At)
		fields[FieldLastError] = t.LastError
	}
	return fields
}
