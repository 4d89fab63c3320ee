// Package harness runs scripted offline-sync scenarios end to end.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: device_reading_denied
//	description: "A reading for another user's device is retried"
//	start: "2026-01-01T00:00:00Z"
//	seed:
//	  devices:
//	    - { id: dev-1, user: user-2 }
//	  users:
//	    - { id: user-1, preferences: { theme: light } }
//	steps:
//	  - enqueue:
//	      user: user-1
//	      action: device_reading
//	      payload: { deviceId: dev-1, reading: { bpm: 72 } }
//	  - drain: user-1
//	  - advance: 24h
//	  - sweep: true
//	assertions:
//	  - record: act-0001
//	    expect: { status: pending, retry_count: 1, error: "access denied" }
//	  - sync_status: user-1
//	    expect: { queued_actions: 1, failed_actions: 0 }
//
// A step is exactly one of enqueue, batch, drain, advance, sweep or
// preferences. An assertion is exactly one of record, sync_status,
// preferences or deleted.
//
// # Determinism
//
// Every run uses a fresh in-memory SQLite store, a fake clock starting at
// the scenario's start time and action ids "act-0001", "act-0002", ... in
// enqueue order, so traces can be compared against golden files with
// RunWithGolden.
package harness
