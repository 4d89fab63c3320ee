package harness

import "time"

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq    int
	At     time.Time
	Step   string
	Detail string

	// Lines holds per-action detail, e.g. drain results.
	Lines []string
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	Trace []TraceEvent

	// Errors holds one message per failed assertion.
	Errors []string
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(at time.Time, step, detail string, lines ...string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		At:     at,
		Step:   step,
		Detail: detail,
		Lines:  lines,
	})
}
