package classify

import (
	"context"
	"errors"

	"github.com/roach88/selfcheckout/internal/model"
)

// ScanResult is a thresholded single-image classification.
type ScanResult struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Top1       model.Candidate `json:"top1"`
	Top2       model.Candidate `json:"top2"`
	Threshold  float64         `json:"threshold"`
}

// VoteResult is the plurality decision over several images of one item.
type VoteResult struct {
	FinalLabel      string         `json:"final_label"`
	FinalConfidence float64        `json:"final_confidence"`
	Votes           map[string]int `json:"votes"`
	Results         []ScanResult   `json:"results"`
	Threshold       float64        `json:"threshold"`
}

// Scan classifies one image without touching any session. Malformed images
// degrade to the unknown result.
func Scan(ctx context.Context, c Classifier, img []byte, threshold float64) (ScanResult, error) {
	r, err := c.Classify(ctx, img)
	if err != nil {
		if !errors.Is(err, ErrMalformedImage) {
			return ScanResult{}, err
		}
		r = Unknown()
	}
	return ScanResult{
		Label:      Decide(r, threshold),
		Confidence: r.Confidence,
		Top1:       r.Top1,
		Top2:       r.Top2,
		Threshold:  threshold,
	}, nil
}

// Vote classifies up to MaxVoteImages images independently and picks the
// label with the most votes. Ties go to the label seen first. The reported
// confidence is the highest top-1 confidence among the winning votes.
func Vote(ctx context.Context, c Classifier, images [][]byte, threshold float64) (VoteResult, error) {
	if len(images) == 0 {
		return VoteResult{}, errors.New("classify: no images to vote on")
	}
	if len(images) > MaxVoteImages {
		images = images[:MaxVoteImages]
	}

	res := VoteResult{
		Votes:     make(map[string]int),
		Results:   make([]ScanResult, 0, len(images)),
		Threshold: threshold,
	}
	var order []string
	for _, img := range images {
		sr, err := Scan(ctx, c, img, threshold)
		if err != nil {
			return VoteResult{}, err
		}
		if _, seen := res.Votes[sr.Label]; !seen {
			order = append(order, sr.Label)
		}
		res.Votes[sr.Label]++
		res.Results = append(res.Results, sr)
	}

	for _, label := range order {
		if res.FinalLabel == "" || res.Votes[label] > res.Votes[res.FinalLabel] {
			res.FinalLabel = label
		}
	}
	for _, sr := range res.Results {
		if sr.Label == res.FinalLabel && sr.Top1.Confidence > res.FinalConfidence {
			res.FinalConfidence = sr.Top1.Confidence
		}
	}
	return res, nil
}
