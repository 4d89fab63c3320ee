package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncq/internal/service"
)

// Scenario is one offline-sync script: seed state, a list of steps run
// against a fresh store, and assertions on the final state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Start is the RFC 3339 wall-clock time the scenario begins at.
	// Empty means testutil.DefaultStart.
	Start string `yaml:"start,omitempty"`

	Seed Seed `yaml:"seed,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Seed is the state written to the store before the first step.
type Seed struct {
	Devices []OwnedDoc `yaml:"devices,omitempty"`
	Zones   []OwnedDoc `yaml:"zones,omitempty"`
	Users   []SeedUser `yaml:"users,omitempty"`
}

// OwnedDoc is a device or safe zone belonging to a user.
type OwnedDoc struct {
	ID     string         `yaml:"id"`
	User   string         `yaml:"user"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

type SeedUser struct {
	ID          string         `yaml:"id"`
	Preferences map[string]any `yaml:"preferences,omitempty"`
}

// Step is exactly one of its fields.
type Step struct {
	// Enqueue queues one action.
	Enqueue *EnqueueStep `yaml:"enqueue,omitempty"`

	// Batch queues several actions in one call.
	Batch *BatchStep `yaml:"batch,omitempty"`

	// Drain runs one drain for the named user.
	Drain string `yaml:"drain,omitempty"`

	// Advance moves the clock forward by a Go duration ("24h").
	Advance string `yaml:"advance,omitempty"`

	// Sweep runs one retention pass.
	Sweep bool `yaml:"sweep,omitempty"`

	// Preferences records the named user's stored preferences in the trace.
	Preferences string `yaml:"preferences,omitempty"`
}

type EnqueueStep struct {
	User                  string `yaml:"user"`
	service.ActionRequest `yaml:",inline"`
}

type BatchStep struct {
	User    string                  `yaml:"user"`
	Actions []service.ActionRequest `yaml:"actions"`
}

// Assertion checks final state. Exactly one of Record, SyncStatus,
// Preferences or Deleted is set.
type Assertion struct {
	// Record names an action id; Expect keys: status, retry_count,
	// error (substring of lastError).
	Record string `yaml:"record,omitempty"`

	// SyncStatus names a user; Expect keys: queued_actions,
	// failed_actions, successful_syncs, failed_syncs.
	SyncStatus string `yaml:"sync_status,omitempty"`

	// Preferences names a user; Expect is matched against the stored
	// preferences document.
	Preferences string `yaml:"preferences,omitempty"`

	// Deleted lists action ids that must no longer exist.
	Deleted []string `yaml:"deleted,omitempty"`

	Expect map[string]any `yaml:"expect,omitempty"`
}

// Kind names which assertion is set.
func (a Assertion) Kind() string {
	switch {
	case a.Record != "":
		return AssertRecord
	case a.SyncStatus != "":
		return AssertSyncStatus
	case a.Preferences != "":
		return AssertPreferences
	case len(a.Deleted) > 0:
		return AssertDeleted
	default:
		return ""
	}
}

const (
	AssertRecord      = "record"
	AssertSyncStatus  = "sync_status"
	AssertPreferences = "preferences"
	AssertDeleted     = "deleted"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so a
// typo ("assertion:") fails loudly instead of being ignored.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, d := range s.Seed.Devices {
		if d.ID == "" || d.User == "" {
			return fmt.Errorf("seed.devices[%d]: id and user are required", i)
		}
	}
	for i, z := range s.Seed.Zones {
		if z.ID == "" || z.User == "" {
			return fmt.Errorf("seed.zones[%d]: id and user are required", i)
		}
	}
	for i, u := range s.Seed.Users {
		if u.ID == "" {
			return fmt.Errorf("seed.users[%d]: id is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Enqueue != nil {
		set++
		if step.Enqueue.User == "" {
			return fmt.Errorf("enqueue: user is required")
		}
	}
	if step.Batch != nil {
		set++
		if step.Batch.User == "" {
			return fmt.Errorf("batch: user is required")
		}
	}
	if step.Drain != "" {
		set++
	}
	if step.Advance != "" {
		set++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("advance: clock cannot move backwards")
		}
	}
	if step.Sweep {
		set++
	}
	if step.Preferences != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of enqueue, batch, drain, advance, sweep, preferences is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	set := 0
	for _, ok := range []bool{a.Record != "", a.SyncStatus != "", a.Preferences != "", len(a.Deleted) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of record, sync_status, preferences, deleted is required")
	}
	if a.Kind() != AssertDeleted && len(a.Expect) == 0 {
		return fmt.Errorf("expect is required for %s", a.Kind())
	}
	return nil
}
