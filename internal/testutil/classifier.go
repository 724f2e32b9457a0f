package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/model"
)

// ScriptedClassifier answers Classify from a table keyed by image content.
// Unscripted images fail with classify.ErrMalformedImage.
//
// Thread-safety: safe for concurrent use.
type ScriptedClassifier struct {
	mu      sync.RWMutex
	results map[string]classify.Result
	errs    map[string]error
	calls   atomic.Int64
}

// NewScriptedClassifier creates an empty script.
func NewScriptedClassifier() *ScriptedClassifier {
	return &ScriptedClassifier{
		results: make(map[string]classify.Result),
		errs:    make(map[string]error),
	}
}

// On scripts image to classify as r.
func (c *ScriptedClassifier) On(image string, r classify.Result) *ScriptedClassifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[image] = r
	return c
}

// Fail scripts image to fail with err.
func (c *ScriptedClassifier) Fail(image string, err error) *ScriptedClassifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[image] = err
	return c
}

// Calls returns how many times Classify ran.
func (c *ScriptedClassifier) Calls() int64 {
	return c.calls.Load()
}

// Classify implements classify.Classifier.
func (c *ScriptedClassifier) Classify(ctx context.Context, image []byte) (classify.Result, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return classify.Result{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err, ok := c.errs[string(image)]; ok {
		return classify.Result{}, err
	}
	if r, ok := c.results[string(image)]; ok {
		return r, nil
	}
	return classify.Result{}, fmt.Errorf("unscripted image %q: %w", image, classify.ErrMalformedImage)
}

// Guess builds a Result whose top-1 is label at conf and top-2 is
// runnerUp at conf2.
func Guess(label string, conf float64, runnerUp string, conf2 float64) classify.Result {
	return classify.Result{
		Label:      label,
		Confidence: conf,
		Top1:       model.Candidate{Label: label, Confidence: conf},
		Top2:       model.Candidate{Label: runnerUp, Confidence: conf2},
	}
}
