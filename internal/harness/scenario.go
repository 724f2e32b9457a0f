package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/selfcheckout/internal/catalog"
)

// Scenario defines a checkout scenario: catalog, classifier script, a flow
// of engine operations with expectations, and final assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Threshold overrides the engine's confidence threshold when set.
	Threshold float64 `yaml:"threshold,omitempty"`

	// Catalog lists the products seeded before the flow.
	Catalog []catalog.Entry `yaml:"catalog"`

	// Classifier maps image names to scripted classifications.
	Classifier map[string]Guess `yaml:"classifier"`

	// Flow contains the operations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Guess is a scripted classifier answer. Error, when set, makes the
// classifier fail instead: "malformed" or "unavailable".
type Guess struct {
	Label              string  `yaml:"label"`
	Confidence         float64 `yaml:"confidence"`
	RunnerUp           string  `yaml:"runner_up"`
	RunnerUpConfidence float64 `yaml:"runner_up_confidence"`
	Error              string  `yaml:"error,omitempty"`
}

// FlowStep is one engine operation.
type FlowStep struct {
	// Op is one of create, ingest, cart, confirm, pay, cancel, vote.
	Op string `yaml:"op"`

	// Args contains the operation arguments.
	Args map[string]interface{} `yaml:"args"`

	// As names the session created by a create step.
	As string `yaml:"as,omitempty"`

	// Expect specifies the expected outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Error is the expected engine error code; empty expects success.
	Error string `yaml:"error,omitempty"`

	// Result contains expected result field values (subset match).
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an op appears in the trace with args
	// - "trace_order": ops appear in order
	// - "trace_count": an op appears exactly N times
	// - "final_state": one table row matches expected values
	// - "totals_invariant": every session total equals its line sum
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are the expected op arguments (trace_contains, subset match).
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is the table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies row filters (final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state, subset match).
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected op order (trace_order).
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertFinalState      = "final_state"
	AssertTotalsInvariant = "totals_invariant"
)

// Operation names.
const (
	OpCreate  = "create"
	OpIngest  = "ingest"
	OpCart    = "cart"
	OpConfirm = "confirm"
	OpPay     = "pay"
	OpCancel  = "cancel"
	OpVote    = "vote"
)

var knownOps = map[string]bool{
	OpCreate: true, OpIngest: true, OpCart: true, OpConfirm: true,
	OpPay: true, OpCancel: true, OpVote: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if err := catalog.Validate(s.Catalog); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	for image, g := range s.Classifier {
		switch g.Error {
		case "", "malformed", "unavailable":
		default:
			return fmt.Errorf("classifier[%s]: unknown error kind %q", image, g.Error)
		}
	}

	aliases := make(map[string]bool)
	for i, step := range s.Flow {
		if !knownOps[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.As != "" {
			if step.Op != OpCreate {
				return fmt.Errorf("flow[%d]: as is only valid on create", i)
			}
			if aliases[step.As] {
				return fmt.Errorf("flow[%d]: alias %q already defined", i, step.As)
			}
			aliases[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires op", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 ops", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires op", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: final_state requires table", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires expect", index)
		}
	case AssertTotalsInvariant:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
