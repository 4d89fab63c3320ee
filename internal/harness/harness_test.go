package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncq/internal/service"
	"github.com/roach88/syncq/internal/testutil"
)

func activity(user, event string) Step {
	return Step{Enqueue: &EnqueueStep{
		User:          user,
		ActionRequest: service.ActionRequest{Action: "activity_log", Payload: map[string]any{"event": event}},
	}}
}

func TestRun_TracesSteps(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace",
		Description: "d",
		Steps: []Step{
			activity("user-1", "a"),
			{Advance: "90m"},
			{Drain: "user-1"},
		},
		Assertions: []Assertion{{Record: "act-0001", Expect: map[string]any{"status": "completed"}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 3)

	assert.Equal(t, TraceEvent{Seq: 1, At: testutil.DefaultStart, Step: "enqueue", Detail: "user-1 act-0001 activity_log"}, result.Trace[0])
	assert.Equal(t, "1h30m0s", result.Trace[1].Detail)
	assert.Equal(t, testutil.DefaultStart.Add(90*time.Minute), result.Trace[2].At)
	assert.Equal(t, []string{"act-0001 completed"}, result.Trace[2].Lines)
}

func TestRun_CustomStart(t *testing.T) {
	scenario := &Scenario{
		Name:        "start",
		Description: "d",
		Start:       "2030-06-01T08:00:00Z",
		Steps:       []Step{activity("user-1", "a")},
		Assertions:  []Assertion{{SyncStatus: "user-1", Expect: map[string]any{"queued_actions": 1}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC), result.Trace[0].At)
}

func TestRun_IsolatedPerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "isolated",
		Description: "d",
		Steps:       []Step{activity("user-1", "a")},
		Assertions:  []Assertion{{SyncStatus: "user-1", Expect: map[string]any{"queued_actions": 1}}},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
		assert.Equal(t, "user-1 act-0001 activity_log", result.Trace[0].Detail)
	}
}

func TestRun_ServiceErrorsAreTraced(t *testing.T) {
	scenario := &Scenario{
		Name:        "errors",
		Description: "d",
		Steps: []Step{
			{Drain: " "},
			{Batch: &BatchStep{User: "user-1"}},
		},
		Assertions: []Assertion{{SyncStatus: "user-1", Expect: map[string]any{"queued_actions": 0}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, `  error="unauthenticated: caller identity required"`, result.Trace[0].Detail)
	assert.Equal(t, `user-1 error="invalid-argument: actions must not be empty"`, result.Trace[1].Detail)
}

func TestRun_SeedsOwnership(t *testing.T) {
	scenario := &Scenario{
		Name:        "zones",
		Description: "d",
		Seed: Seed{
			Zones: []OwnedDoc{{ID: "zone-1", User: "user-1", Fields: map[string]any{"name": "home"}}},
		},
		Steps: []Step{
			{Enqueue: &EnqueueStep{User: "user-1", ActionRequest: service.ActionRequest{
				Action:  "zone_update",
				Payload: map[string]any{"zoneId": "zone-1", "updates": map[string]any{"radius": 150}},
			}}},
			{Enqueue: &EnqueueStep{User: "user-2", ActionRequest: service.ActionRequest{
				Action:  "zone_update",
				Payload: map[string]any{"zoneId": "zone-1", "updates": map[string]any{"radius": 1}},
			}}},
			{Drain: "user-1"},
			{Drain: "user-2"},
		},
		Assertions: []Assertion{
			{Record: "act-0001", Expect: map[string]any{"status": "completed"}},
			{Record: "act-0002", Expect: map[string]any{"status": "pending", "retry_count": 1, "error": "zone not found or access denied"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}
