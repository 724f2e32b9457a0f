package model

import (
	"encoding/json"
	"fmt"
)

// UnknownLabel is the label reported when no product is recognized.
const UnknownLabel = "unknown"

// Candidate is one ranked classifier guess.
type Candidate struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Proposal is the tagged payload of a frame result: either an
// ItemProposal (a line was added) or an UnknownProposal (nothing added).
type Proposal interface {
	isProposal()
}

// ItemProposal describes the product added to the cart by a frame.
type ItemProposal struct {
	ProductID  int64   `json:"product_id"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	Quantity   int64   `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// UnknownProposal is returned when confidence is under the threshold.
// Alternatives carries the classifier's top two guesses.
type UnknownProposal struct {
	Label        string      `json:"label"`
	Confidence   float64     `json:"confidence"`
	Alternatives []Candidate `json:"alternatives"`
}

func (ItemProposal) isProposal()    {}
func (UnknownProposal) isProposal() {}

// FrameResult is the outcome of ingesting one frame. It is stored verbatim
// in the frame record and replayed for duplicate submissions.
type FrameResult struct {
	FrameID   string   `json:"frame_id"`
	Added     bool     `json:"added"`
	Proposal  Proposal `json:"proposal"`
	Threshold float64  `json:"threshold"`
	Timestamp string   `json:"ts"`
}

// UnmarshalJSON decodes the proposal variant selected by Added.
func (r *FrameResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		FrameID   string          `json:"frame_id"`
		Added     bool            `json:"added"`
		Proposal  json.RawMessage `json:"proposal"`
		Threshold float64         `json:"threshold"`
		Timestamp string          `json:"ts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.FrameID = raw.FrameID
	r.Added = raw.Added
	r.Threshold = raw.Threshold
	r.Timestamp = raw.Timestamp

	if raw.Added {
		var p ItemProposal
		if err := json.Unmarshal(raw.Proposal, &p); err != nil {
			return fmt.Errorf("item proposal: %w", err)
		}
		r.Proposal = p
		return nil
	}

	var p UnknownProposal
	if len(raw.Proposal) > 0 {
		if err := json.Unmarshal(raw.Proposal, &p); err != nil {
			return fmt.Errorf("unknown proposal: %w", err)
		}
	}
	if p.Label == "" {
		p.Label = UnknownLabel
	}
	r.Proposal = p
	return nil
}
