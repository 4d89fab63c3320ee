package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
start: "2026-03-01T12:00:00Z"
seed:
  devices:
    - { id: dev-1, user: user-1, fields: { model: band } }
  users:
    - { id: user-1, preferences: { theme: light } }
steps:
  - enqueue:
      user: user-1
      action: device_reading
      deviceId: dev-1
      priority: 3
      payload: { deviceId: dev-1, reading: { bpm: 70 } }
  - drain: user-1
  - advance: 1h
  - sweep: true
assertions:
  - record: act-0001
    expect: { status: completed }
  - deleted: [act-0009]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "2026-03-01T12:00:00Z", scenario.Start)
	require.Len(t, scenario.Seed.Devices, 1)
	assert.Equal(t, "band", scenario.Seed.Devices[0].Fields["model"])
	require.Len(t, scenario.Steps, 4)

	enq := scenario.Steps[0].Enqueue
	require.NotNil(t, enq)
	assert.Equal(t, "user-1", enq.User)
	assert.Equal(t, "device_reading", enq.Action)
	assert.Equal(t, "dev-1", enq.DeviceID)
	assert.Equal(t, 3, enq.Priority)
	assert.Equal(t, "dev-1", enq.Payload["deviceId"])

	assert.Equal(t, "user-1", scenario.Steps[1].Drain)
	assert.Equal(t, "1h", scenario.Steps[2].Advance)
	assert.True(t, scenario.Steps[3].Sweep)

	assert.Equal(t, AssertRecord, scenario.Assertions[0].Kind())
	assert.Equal(t, AssertDeleted, scenario.Assertions[1].Kind())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown field",
			content: `
name: x
description: d
steps: [{drain: user-1}]
assertion: []
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "missing name",
			content: `
description: d
steps: [{drain: user-1}]
assertions: [{deleted: [a]}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
steps: [{drain: user-1}]
assertions: [{deleted: [a]}]
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			content: `
name: x
description: d
assertions: [{deleted: [a]}]
`,
			wantErr: "steps list is required",
		},
		{
			name: "no assertions",
			content: `
name: x
description: d
steps: [{drain: user-1}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "bad start",
			content: `
name: x
description: d
start: yesterday
steps: [{drain: user-1}]
assertions: [{deleted: [a]}]
`,
			wantErr: "start",
		},
		{
			name: "two kinds in one step",
			content: `
name: x
description: d
steps: [{drain: user-1, sweep: true}]
assertions: [{deleted: [a]}]
`,
			wantErr: "steps[0]: exactly one of",
		},
		{
			name: "empty step",
			content: `
name: x
description: d
steps: [{}]
assertions: [{deleted: [a]}]
`,
			wantErr: "steps[0]: exactly one of",
		},
		{
			name: "enqueue without user",
			content: `
name: x
description: d
steps: [{enqueue: {action: activity_log, payload: {event: e}}}]
assertions: [{deleted: [a]}]
`,
			wantErr: "enqueue: user is required",
		},
		{
			name: "negative advance",
			content: `
name: x
description: d
steps: [{advance: -1h}]
assertions: [{deleted: [a]}]
`,
			wantErr: "clock cannot move backwards",
		},
		{
			name: "bad advance",
			content: `
name: x
description: d
steps: [{advance: soon}]
assertions: [{deleted: [a]}]
`,
			wantErr: "advance",
		},
		{
			name: "record without expect",
			content: `
name: x
description: d
steps: [{drain: user-1}]
assertions: [{record: act-0001}]
`,
			wantErr: "expect is required for record",
		},
		{
			name: "seed device without user",
			content: `
name: x
description: d
seed:
  devices: [{id: dev-1}]
steps: [{drain: user-1}]
assertions: [{deleted: [a]}]
`,
			wantErr: "seed.devices[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
