// Package classify defines the image classifier contract consumed by the
// checkout engine and the stateless scan endpoints.
package classify

import (
	"context"
	"errors"

	"github.com/roach88/selfcheckout/internal/model"
)

// MaxVoteImages caps how many images a single vote considers.
const MaxVoteImages = 3

// ErrMalformedImage marks an image the classifier could not read. Callers
// degrade it to an unknown result instead of failing the request.
var ErrMalformedImage = errors.New("classify: malformed image")

// Result is a raw classification. Label is the top-1 label regardless of
// confidence; thresholding is the caller's decision (see Decide).
type Result struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Top1       model.Candidate `json:"top1"`
	Top2       model.Candidate `json:"top2"`
}

// Alternatives returns the top two candidates, best first.
func (r Result) Alternatives() []model.Candidate {
	return []model.Candidate{r.Top1, r.Top2}
}

// Classifier turns an image buffer into a Result.
//
// Implementations return an error wrapping ErrMalformedImage for unreadable
// images. Any other error (including context cancellation) means no
// classification happened and the caller must not record one.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Result, error)
}

// Unknown is the sentinel result used when an image cannot be classified.
func Unknown() Result {
	errCandidate := model.Candidate{Label: "error", Confidence: 0}
	return Result{
		Label:      model.UnknownLabel,
		Confidence: 0,
		Top1:       errCandidate,
		Top2:       errCandidate,
	}
}

// Decide applies the confidence threshold: it returns the recognized label,
// or model.UnknownLabel when the result does not clear threshold.
func Decide(r Result, threshold float64) string {
	if r.Label == "" || r.Label == model.UnknownLabel || r.Confidence < threshold {
		return model.UnknownLabel
	}
	return r.Label
}

// FromProbabilities ranks a probability vector aligned with labels.
func FromProbabilities(labels []string, probs []float64) (Result, error) {
	if len(probs) == 0 {
		return Result{}, errors.New("classify: empty probability vector")
	}
	if len(probs) != len(labels) {
		return Result{}, errors.New("classify: probability vector does not match label count")
	}

	top, second := 0, -1
	for i := 1; i < len(probs); i++ {
		switch {
		case probs[i] > probs[top]:
			second, top = top, i
		case second < 0 || probs[i] > probs[second]:
			second = i
		}
	}
	if second < 0 {
		second = top
	}

	return Result{
		Label:      labels[top],
		Confidence: probs[top],
		Top1:       model.Candidate{Label: labels[top], Confidence: probs[top]},
		Top2:       model.Candidate{Label: labels[second], Confidence: probs[second]},
	}, nil
}
