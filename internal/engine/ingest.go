package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/metrics"
	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// FrameInput is one captured image submitted to a session.
// ClientTS, when set, is echoed as the result timestamp.
type FrameInput struct {
	SessionID string
	FrameID   string
	DeviceID  string
	Image     []byte
	ClientTS  string
}

// IngestResult is the outcome of Ingest.
//
// CurrentTotal is the session total after this call. Replayed is true when
// frame_id was already recorded and Result is the stored original. Line is
// the ledger line touched by an added item.
type IngestResult struct {
	Result       model.FrameResult
	CurrentTotal int64
	Replayed     bool
	Line         *model.CartLine
}

// Ingest turns one frame into at most one ledger mutation.
//
// The session must be ACTIVE. A frame_id that is already recorded replays
// the stored result without side effects, including under concurrent
// submission: the frame insert and the ledger mutation share one
// transaction, and only the insert that wins the frame_id UNIQUE constraint
// mutates the ledger and moves its staged image into place. Classification
// runs before the transaction opens, so a failed or timed-out classifier
// call leaves nothing behind.
func (e *Engine) Ingest(ctx context.Context, in FrameInput) (IngestResult, error) {
	if err := validateFrame(in); err != nil {
		return IngestResult{}, err
	}

	replay, ok, err := e.precheck(ctx, in)
	if err != nil {
		e.metrics.Frame(metrics.OutcomeRejected)
		return IngestResult{}, err
	}
	if ok {
		e.metrics.Frame(metrics.OutcomeReplayed)
		return replay, nil
	}

	img, err := e.blobs.Stage(ctx, in.DeviceID, in.FrameID, in.Image)
	if err != nil {
		e.metrics.Frame(metrics.OutcomeRejected)
		return IngestResult{}, &Error{
			Code:      ErrCodeStorageFailure,
			Message:   "store frame image",
			SessionID: in.SessionID,
			FrameID:   in.FrameID,
			Err:       err,
		}
	}
	defer img.Discard()

	result, product, err := e.decide(ctx, in)
	if err != nil {
		e.metrics.Frame(metrics.OutcomeRejected)
		return IngestResult{}, err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return IngestResult{}, err
	}

	out := IngestResult{Result: result}
	err = e.inTx(ctx, in.SessionID, func(tx *store.Tx) error {
		sess, err := loadSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		if sess.State != model.StateActive {
			return newInvalidTransition(in.SessionID, "ingest into", sess.State)
		}

		inserted, err := tx.InsertFrame(ctx, model.FrameRecord{
			SessionID: in.SessionID,
			FrameID:   in.FrameID,
			ImageRef:  img.Ref(),
			Result:    encoded,
			CreatedAt: e.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			rec, err := tx.Frame(ctx, in.FrameID)
			if err != nil {
				return err
			}
			out, err = replayFrame(rec, in, sess.TotalAmount)
			return err
		}

		out.CurrentTotal = sess.TotalAmount
		if product != nil {
			line, total, err := e.addOrMerge(ctx, tx, in.SessionID, *product)
			if err != nil {
				return err
			}
			out.CurrentTotal = total
			out.Line = &line
		}
		return img.Commit()
	})
	if err != nil {
		e.metrics.Frame(metrics.OutcomeRejected)
		return IngestResult{}, err
	}

	switch {
	case out.Replayed:
		e.metrics.Frame(metrics.OutcomeReplayed)
		slog.Info("frame replayed after lost insert race",
			"session_id", in.SessionID,
			"frame_id", in.FrameID,
		)
	case out.Result.Added:
		e.metrics.Frame(metrics.OutcomeAdded)
		slog.Info("frame added item",
			"session_id", in.SessionID,
			"frame_id", in.FrameID,
			"product_id", product.ID,
			"total", out.CurrentTotal,
		)
	default:
		e.metrics.Frame(metrics.OutcomeUnknown)
		slog.Debug("frame not recognized",
			"session_id", in.SessionID,
			"frame_id", in.FrameID,
		)
	}
	return out, nil
}

func validateFrame(in FrameInput) error {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return newInvalidArgument("session_id is required")
	case strings.TrimSpace(in.FrameID) == "":
		return newInvalidArgument("frame_id is required")
	case strings.TrimSpace(in.DeviceID) == "":
		return newInvalidArgument("device_id is required")
	case len(in.Image) == 0:
		return newInvalidArgument("image is empty")
	}
	if err := blob.ValidComponent(in.FrameID); err != nil {
		return newInvalidArgument("frame_id: %v", err)
	}
	if err := blob.ValidComponent(in.DeviceID); err != nil {
		return newInvalidArgument("device_id: %v", err)
	}
	return nil
}

// precheck gates the session and replays a recorded frame without opening
// a write transaction. ok reports a replay.
func (e *Engine) precheck(ctx context.Context, in FrameInput) (IngestResult, bool, error) {
	sess, err := e.Session(ctx, in.SessionID)
	if err != nil {
		return IngestResult{}, false, err
	}
	if sess.State != model.StateActive {
		return IngestResult{}, false, newInvalidTransition(in.SessionID, "ingest into", sess.State)
	}

	rec, err := e.store.Frame(ctx, in.FrameID)
	if errors.Is(err, store.ErrNotFound) {
		return IngestResult{}, false, nil
	}
	if err != nil {
		return IngestResult{}, false, newStorageFailure(in.SessionID, err)
	}
	out, err := replayFrame(rec, in, sess.TotalAmount)
	if err != nil {
		return IngestResult{}, false, err
	}
	return out, true, nil
}

// decide classifies the image and resolves a confident label. product is
// nil when the result is unknown.
func (e *Engine) decide(ctx context.Context, in FrameInput) (model.FrameResult, *model.Product, error) {
	start := time.Now()
	r, err := e.classifier.Classify(ctx, in.Image)
	e.metrics.Classified(time.Since(start))
	if err != nil {
		if !errors.Is(err, classify.ErrMalformedImage) {
			return model.FrameResult{}, nil, &Error{
				Code:      ErrCodeClassifierUnavailable,
				Message:   "classify frame",
				SessionID: in.SessionID,
				FrameID:   in.FrameID,
				Err:       err,
			}
		}
		slog.Warn("malformed frame image, treating as unknown",
			"session_id", in.SessionID,
			"frame_id", in.FrameID,
			"error", err,
		)
		r = classify.Unknown()
	}

	ts := in.ClientTS
	if ts == "" {
		ts = model.FormatTime(e.clock.Now())
	}
	result := model.FrameResult{
		FrameID:   in.FrameID,
		Threshold: e.threshold,
		Timestamp: ts,
	}

	label := classify.Decide(r, e.threshold)
	if label == model.UnknownLabel {
		result.Proposal = model.UnknownProposal{
			Label:        model.UnknownLabel,
			Confidence:   r.Confidence,
			Alternatives: r.Alternatives(),
		}
		return result, nil, nil
	}

	p, ok, err := e.catalog.Lookup(ctx, label)
	if err != nil {
		return model.FrameResult{}, nil, newStorageFailure(in.SessionID, err)
	}
	if !ok {
		slog.Error("classifier label has no catalog product",
			"session_id", in.SessionID,
			"frame_id", in.FrameID,
			"label", label,
			"confidence", r.Confidence,
		)
		return model.FrameResult{}, nil, &Error{
			Code:      ErrCodeUnresolvedProduct,
			Message:   "no product for label " + label,
			SessionID: in.SessionID,
			FrameID:   in.FrameID,
		}
	}

	result.Added = true
	result.Proposal = model.ItemProposal{
		ProductID:  p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Quantity:   1,
		Confidence: r.Confidence,
	}
	return result, &p, nil
}

// replayFrame rebuilds the stored response of a recorded frame.
func replayFrame(rec model.FrameRecord, in FrameInput, total int64) (IngestResult, error) {
	if rec.SessionID != in.SessionID {
		return IngestResult{}, &Error{
			Code:      ErrCodeFrameConflict,
			Message:   "frame_id already recorded for another session",
			SessionID: in.SessionID,
			FrameID:   in.FrameID,
		}
	}

	var stored model.FrameResult
	if err := json.Unmarshal(rec.Result, &stored); err != nil {
		return IngestResult{}, &Error{
			Code:      ErrCodeInternalInconsistency,
			Message:   "stored frame result is unreadable",
			SessionID: in.SessionID,
			FrameID:   in.FrameID,
			Err:       err,
		}
	}
	return IngestResult{Result: stored, CurrentTotal: total, Replayed: true}, nil
}

// Scan classifies one image without touching any session.
func (e *Engine) Scan(ctx context.Context, image []byte) (classify.ScanResult, error) {
	res, err := classify.Scan(ctx, e.classifier, image, e.threshold)
	if err != nil {
		return classify.ScanResult{}, classifierUnavailable(err)
	}
	return res, nil
}

// Vote runs a plurality vote over up to classify.MaxVoteImages images of
// one item. It is a read-only decision aid.
func (e *Engine) Vote(ctx context.Context, images [][]byte) (classify.VoteResult, error) {
	if len(images) == 0 {
		return classify.VoteResult{}, newInvalidArgument("at least one image is required")
	}
	res, err := classify.Vote(ctx, e.classifier, images, e.threshold)
	if err != nil {
		return classify.VoteResult{}, classifierUnavailable(err)
	}
	return res, nil
}

func classifierUnavailable(err error) *Error {
	return &Error{
		Code:    ErrCodeClassifierUnavailable,
		Message: "classify image",
		Err:     err,
	}
}
