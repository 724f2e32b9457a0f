package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/engine"
	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
	"github.com/roach88/selfcheckout/internal/testutil"
)

// Epoch is the fixed start time of every scenario run.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Harness is the scenario execution context.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.FixedClock
	aliases map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store in a temp directory for
// isolation. Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create store and blob directory
// 2. Seed the catalog and script the classifier
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "checkout-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	cat := catalog.New(st)
	if _, err := cat.Seed(ctx, scenario.Catalog); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	clock := testutil.NewFixedClock(Epoch)
	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithSessionIDs(sequence("session-%d")),
		engine.WithInvoiceIDs(sequence("INV-%04d")),
	}
	if scenario.Threshold > 0 {
		opts = append(opts, engine.WithThreshold(scenario.Threshold))
	}
	eng := engine.New(st, scriptClassifier(scenario.Classifier), cat,
		blob.NewFS(filepath.Join(dir, "blobs"), clock.Now), opts...)

	h := &Harness{
		store:   st,
		engine:  eng,
		clock:   clock,
		aliases: make(map[string]string),
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)
	for alias, id := range h.aliases {
		result.Sessions[alias] = id
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Aliases: h.aliases}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// sequence returns an id generator producing format with 1, 2, 3, ...
func sequence(format string) engine.IDGenerator {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = fmt.Sprintf(format, i+1)
	}
	return engine.NewFixedGenerator(ids...)
}

func scriptClassifier(script map[string]Guess) *testutil.ScriptedClassifier {
	c := testutil.NewScriptedClassifier()
	for image, g := range script {
		switch g.Error {
		case "malformed":
			c.Fail(image, classify.ErrMalformedImage)
		case "unavailable":
			c.Fail(image, errors.New("model server unavailable"))
		default:
			c.On(image, testutil.Guess(g.Label, g.Confidence, g.RunnerUp, g.RunnerUpConfidence))
		}
	}
	return c
}

// executeFlow runs the steps in order. A step whose outcome differs from
// its expect clause records an error and the flow continues.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		h.clock.Advance(time.Second)
		args := h.resolveArgs(step.Args)

		out, err := h.execute(ctx, step, args)
		ev := TraceEvent{Seq: int64(i + 1), Op: step.Op, Args: step.Args}
		if err != nil {
			code := string(engine.CodeOf(err))
			if code == "" {
				code = "ERROR"
			}
			ev.Error = code
		} else {
			ev.Result = out
		}
		result.AddTrace(ev)

		if err == nil && step.As != "" {
			if id, ok := out["session_id"].(string); ok {
				h.aliases[step.As] = id
			}
		}

		for _, msg := range checkExpect(i, step, ev, err) {
			result.AddError(msg)
		}
	}
}

func checkExpect(i int, step FlowStep, ev TraceEvent, err error) []string {
	var want ExpectClause
	if step.Expect != nil {
		want = *step.Expect
	}

	if want.Error != ev.Error {
		if ev.Error != "" {
			return []string{fmt.Sprintf("flow[%d] %s: expected %s, got error %v", i, step.Op, describeExpectedError(want.Error), err)}
		}
		return []string{fmt.Sprintf("flow[%d] %s: expected error %s, got success", i, step.Op, want.Error)}
	}

	var msgs []string
	for key, expected := range want.Result {
		actual, ok := ev.Result[key]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("flow[%d] %s: result field %q missing", i, step.Op, key))
			continue
		}
		if !valuesEqual(actual, expected) {
			msgs = append(msgs, fmt.Sprintf("flow[%d] %s: result field %q = %v, expected %v", i, step.Op, key, actual, expected))
		}
	}
	return msgs
}

func describeExpectedError(code string) string {
	if code == "" {
		return "success"
	}
	return "error " + code
}

func (h *Harness) execute(ctx context.Context, step FlowStep, args map[string]interface{}) (map[string]interface{}, error) {
	str := func(key string) string {
		s, _ := args[key].(string)
		return s
	}

	switch step.Op {
	case OpCreate:
		sess, err := h.engine.Create(ctx, str("device_id"))
		if err != nil {
			return nil, err
		}
		return toMap(map[string]interface{}{
			"session_id": sess.ID,
			"state":      sess.State,
			"created_at": model.FormatTime(sess.CreatedAt),
		})

	case OpIngest:
		device := str("device_id")
		if device == "" {
			device = "kiosk-1"
		}
		res, err := h.engine.Ingest(ctx, engine.FrameInput{
			SessionID: str("session"),
			FrameID:   str("frame_id"),
			DeviceID:  device,
			Image:     []byte(str("image")),
			ClientTS:  str("ts"),
		})
		if err != nil {
			return nil, err
		}
		out, err := toMap(res.Result)
		if err != nil {
			return nil, err
		}
		out["current_total"] = res.CurrentTotal
		out["replayed"] = res.Replayed
		return toMap(out)

	case OpCart:
		cart, err := h.engine.Cart(ctx, str("session"))
		if err != nil {
			return nil, err
		}
		return toMap(cart)

	case OpConfirm:
		out, err := h.engine.Confirm(ctx, str("session"))
		if err != nil {
			return nil, err
		}
		return toMap(map[string]interface{}{
			"invoice_id": out.Invoice.ID,
			"items":      out.Cart.Items,
			"total":      out.Cart.Total,
			"state":      out.State,
		})

	case OpPay:
		out, err := h.engine.Pay(ctx, str("session"))
		if err != nil {
			return nil, err
		}
		return toMap(map[string]interface{}{
			"invoice_id":  out.InvoiceID,
			"paid_at":     model.FormatTime(out.PaidAt),
			"amount_paid": out.AmountPaid,
			"state":       out.State,
		})

	case OpCancel:
		sess, err := h.engine.Cancel(ctx, str("session"))
		if err != nil {
			return nil, err
		}
		return toMap(map[string]interface{}{"state": sess.State})

	case OpVote:
		raw, _ := args["images"].([]interface{})
		images := make([][]byte, 0, len(raw))
		for _, img := range raw {
			images = append(images, []byte(fmt.Sprint(img)))
		}
		res, err := h.engine.Vote(ctx, images)
		if err != nil {
			return nil, err
		}
		return toMap(res)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// resolveArgs replaces "$alias" string values with session ids.
func (h *Harness) resolveArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = h.resolve(v)
	}
	return out
}

func (h *Harness) resolve(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return v
	}
	if id, ok := h.aliases[strings.TrimPrefix(s, "$")]; ok {
		return id
	}
	return s
}

// toMap round-trips v through JSON so results compare the way the HTTP
// API renders them.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
