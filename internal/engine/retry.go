package engine

import (
	"time"

	"github.com/roach88/syncq/internal/dispatch"
	"github.com/roach88/syncq/internal/queue"
)

// DefaultMaxRetries is the number of failed attempts a record is returned
// to pending before it becomes failed.
const DefaultMaxRetries = 3

// ResultStatus is the per-action outcome reported by a drain.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultRetry     ResultStatus = "retry"
	ResultFailed    ResultStatus = "failed"
)

// resultStatusOf maps a stored record status onto the drain result
// vocabulary. Pending means the record went back for another attempt.
func resultStatusOf(s queue.Status) ResultStatus {
	switch s {
	case queue.StatusCompleted:
		return ResultCompleted
	case queue.StatusFailed:
		return ResultFailed
	default:
		return ResultRetry
	}
}

// nextTransition applies the retry policy to one dispatch outcome.
func nextTransition(rec queue.ActionRecord, out dispatch.Outcome, started, now time.Time, maxRetries int) queue.Transition {
	t := queue.Transition{
		ID:                  rec.ID,
		FromRetryCount:      rec.RetryCount,
		RetryCount:          rec.RetryCount,
		At:                  now,
		ProcessingStartedAt: started,
	}
	switch {
	case out.Success:
		t.To = queue.StatusCompleted
		t.Result = out.Data
	case rec.RetryCount < maxRetries:
		t.To = queue.StatusPending
		t.RetryCount = rec.RetryCount + 1
		t.LastError = out.Error
	default:
		t.To = queue.StatusFailed
		t.LastError = out.Error
	}
	return t
}
