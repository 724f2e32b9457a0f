// Package harness runs YAML checkout scenarios against a real engine.
//
// Each scenario gets a fresh store in a temp directory, a seeded catalog,
// a scripted classifier keyed by image name, a fixed clock that advances
// one second per step, and sequential session and invoice ids. The same
// scenario therefore always produces the same trace, which RunWithGolden
// compares against testdata/golden/<name>.golden.
//
// Scenario format:
//
//	name: water_checkout
//	description: two Water frames, one replay, confirm and pay
//	catalog:
//	  - {name: Water, price: 10000}
//	classifier:
//	  water: {label: Water, confidence: 0.97, runner_up: Coke, runner_up_confidence: 0.02}
//	flow:
//	  - op: create
//	    as: S
//	    args: {device_id: kiosk-1}
//	  - op: ingest
//	    args: {session: $S, frame_id: f1, image: water}
//	    expect:
//	      result: {added: true, current_total: 10000}
//	assertions:
//	  - type: totals_invariant
//
// Args and where-values of the form "$S" resolve to the id of the session
// created with "as: S".
package harness
