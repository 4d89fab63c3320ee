package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/store"
	"github.com/roach88/syncq/internal/syncerr"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s %s: expected %s, got %s", e.Type, e.Subject, e.Expected, e.Actual)
}

func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var out []string
	for _, a := range assertions {
		var errs []error
		switch a.Kind() {
		case AssertRecord:
			errs = h.assertRecord(ctx, a)
		case AssertSyncStatus:
			errs = h.assertSyncStatus(ctx, a)
		case AssertPreferences:
			errs = h.assertPreferences(ctx, a)
		case AssertDeleted:
			errs = h.assertDeleted(ctx, a)
		default:
			errs = []error{fmt.Errorf("unknown assertion")}
		}
		for _, err := range errs {
			out = append(out, err.Error())
		}
	}
	return out
}

func (h *Harness) assertRecord(ctx context.Context, a Assertion) []error {
	rec, err := h.repo.Get(ctx, a.Record)
	if err != nil {
		return []error{&AssertionError{Type: AssertRecord, Subject: a.Record, Expected: "record to exist", Actual: err.Error()}}
	}

	var errs []error
	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		switch key {
		case "status":
			if fmt.Sprint(want) != string(rec.Status) {
				errs = append(errs, mismatch(AssertRecord, a.Record, key, want, rec.Status))
			}
		case "retry_count":
			if !equalInt(want, rec.RetryCount) {
				errs = append(errs, mismatch(AssertRecord, a.Record, key, want, rec.RetryCount))
			}
		case "error":
			if !strings.Contains(rec.LastError, fmt.Sprint(want)) {
				errs = append(errs, mismatch(AssertRecord, a.Record, key, want, rec.LastError))
			}
		default:
			errs = append(errs, fmt.Errorf("%s %s: unknown expect key %q", AssertRecord, a.Record, key))
		}
	}
	return errs
}

func (h *Harness) assertSyncStatus(ctx context.Context, a Assertion) []error {
	st, err := h.svc.GetSyncStatus(ctx, a.SyncStatus)
	if err != nil {
		return []error{&AssertionError{Type: AssertSyncStatus, Subject: a.SyncStatus, Expected: "status", Actual: err.Error()}}
	}
	got := map[string]int{
		"queued_actions":   st.QueuedActions,
		"failed_actions":   st.FailedActions,
		"successful_syncs": st.SuccessfulSyncs,
		"failed_syncs":     st.FailedSyncs,
	}

	var errs []error
	for _, key := range sortedKeys(a.Expect) {
		actual, ok := got[key]
		if !ok {
			errs = append(errs, fmt.Errorf("%s %s: unknown expect key %q", AssertSyncStatus, a.SyncStatus, key))
			continue
		}
		if !equalInt(a.Expect[key], actual) {
			errs = append(errs, mismatch(AssertSyncStatus, a.SyncStatus, key, a.Expect[key], actual))
		}
	}
	return errs
}

// assertPreferences is a subset match: keys absent from Expect are ignored.
func (h *Harness) assertPreferences(ctx context.Context, a Assertion) []error {
	doc, _, err := store.Lookup(ctx, h.store, queue.CollectionUsers, a.Preferences)
	if err != nil {
		return []error{&AssertionError{Type: AssertPreferences, Subject: a.Preferences, Expected: "user document", Actual: err.Error()}}
	}
	prefs := doc.Doc("preferences")

	var errs []error
	for _, key := range sortedKeys(a.Expect) {
		actual, ok := prefs[key]
		if !ok {
			errs = append(errs, mismatch(AssertPreferences, a.Preferences, key, a.Expect[key], "<missing>"))
			continue
		}
		if !equalValue(a.Expect[key], actual) {
			errs = append(errs, mismatch(AssertPreferences, a.Preferences, key, a.Expect[key], actual))
		}
	}
	return errs
}

func (h *Harness) assertDeleted(ctx context.Context, a Assertion) []error {
	var errs []error
	for _, id := range a.Deleted {
		_, err := h.repo.Get(ctx, id)
		switch {
		case syncerr.IsCode(err, syncerr.CodeNotFound):
		case err != nil:
			errs = append(errs, &AssertionError{Type: AssertDeleted, Subject: id, Expected: "record deleted", Actual: err.Error()})
		default:
			errs = append(errs, &AssertionError{Type: AssertDeleted, Subject: id, Expected: "record deleted", Actual: "record exists"})
		}
	}
	return errs
}

func mismatch(typ, subject, key string, want, got any) error {
	return &AssertionError{
		Type:     typ,
		Subject:  subject,
		Expected: fmt.Sprintf("%s=%v", key, want),
		Actual:   fmt.Sprintf("%s=%v", key, got),
	}
}

func equalInt(want any, got int) bool {
	n, ok := ir.ToInt64(want)
	return ok && n == int64(got)
}

// equalValue compares a YAML-decoded value with a stored one by their
// canonical encodings.
func equalValue(want, got any) bool {
	w, err := ir.MarshalCanonical(want)
	if err != nil {
		return false
	}
	g, err := ir.MarshalCanonical(got)
	if err != nil {
		return false
	}
	return string(w) == string(g)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
