package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/metrics"
	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// DefaultThreshold is the minimum classifier confidence for adding an item.
const DefaultThreshold = 0.90

// Catalog resolves a recognized label to a product.
// ok is false when no product matches.
type Catalog interface {
	Lookup(ctx context.Context, label string) (p model.Product, ok bool, err error)
}

// BlobStore persists raw frame images. A staged image becomes visible only
// once committed.
type BlobStore interface {
	Stage(ctx context.Context, deviceID, frameID string, data []byte) (*blob.Pending, error)
}

// Engine runs checkout operations against the store.
//
// Thread-safety: Engine is safe for concurrent use. It holds no mutable
// state; all coordination happens in store transactions.
type Engine struct {
	store      *store.Store
	classifier classify.Classifier
	catalog    Catalog
	blobs      BlobStore
	threshold  float64
	clock      Clock
	sessionIDs IDGenerator
	invoiceIDs IDGenerator
	metrics    *metrics.Registry
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithThreshold sets the confidence threshold. A result whose confidence
// equals the threshold is accepted.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.sessionIDs = g
	}
}

// WithInvoiceIDs replaces the invoice id generator.
func WithInvoiceIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.invoiceIDs = g
	}
}

// WithMetrics records operation outcomes in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// New creates an Engine over its collaborators.
//
// Defaults: threshold 0.90, system clock, UUIDv4 session ids, "INV-"
// prefixed UUIDv7 invoice ids, no metrics.
func New(s *store.Store, c classify.Classifier, cat Catalog, blobs BlobStore, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		classifier: c,
		catalog:    cat,
		blobs:      blobs,
		threshold:  DefaultThreshold,
		clock:      SystemClock{},
		sessionIDs: RandomGenerator{},
		invoiceIDs: UUIDv7Generator{Prefix: "INV-"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured confidence threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Classifier returns the classifier used for ingestion, for the stateless
// scan endpoints.
func (e *Engine) Classifier() classify.Classifier {
	return e.classifier
}

// inTx runs fn in one store transaction. Errors that are not already
// engine errors become STORAGE_FAILURE.
func (e *Engine) inTx(ctx context.Context, sessionID string, fn func(tx *store.Tx) error) error {
	err := e.store.InTx(ctx, fn)
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	slog.Error("store transaction failed",
		"session_id", sessionID,
		"error", err,
	)
	return newStorageFailure(sessionID, err)
}

// loadSession reads a session inside tx, mapping a missing row to NOT_FOUND.
func loadSession(ctx context.Context, tx *store.Tx, id string) (model.Session, error) {
	sess, err := tx.Session(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, newNotFound(id)
	}
	return sess, err
}
