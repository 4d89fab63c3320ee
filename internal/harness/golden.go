package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as the text stored in golden files:
//
//	scenario: retry_then_fail
//	[01] 2026-01-01T00:00:00Z enqueue user-1 act-0001 bogus
//	[02] 2026-01-01T00:00:00Z drain user-1 processed=1
//	     act-0001 retry error="Unknown action type: bogus"
//	result: pass
func FormatTrace(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	for _, ev := range result.Trace {
		fmt.Fprintf(&buf, "[%02d] %s %s %s\n", ev.Seq, formatTime(ev.At), ev.Step, ev.Detail)
		for _, line := range ev.Lines {
			fmt.Fprintf(&buf, "     %s\n", line)
		}
	}
	if result.Pass {
		buf.WriteString("result: pass\n")
	} else {
		buf.WriteString("result: fail\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&buf, "  %s\n", e)
		}
	}
	return []byte(buf.String())
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, FormatTrace(name, result))
}
