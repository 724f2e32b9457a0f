package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/selfcheckout/internal/model"
)

// Tx is a store transaction handed to InTx callbacks. It exposes the
// reads and writes an engine operation composes atomically.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a single transaction.
//
// If fn returns an error the transaction is rolled back and that error is
// returned unchanged, so callers can match their own error types. Commit
// failures are wrapped.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Session reads a session inside the transaction.
// Returns ErrNotFound if it does not exist.
func (t *Tx) Session(ctx context.Context, id string) (model.Session, error) {
	return readSession(ctx, t.tx, id)
}

// Lines returns the session's cart lines in insertion order.
func (t *Tx) Lines(ctx context.Context, sessionID string) ([]model.CartLine, error) {
	return readLines(ctx, t.tx, sessionID)
}

// Frame reads a frame record by frame_id.
// Returns ErrNotFound if it does not exist.
func (t *Tx) Frame(ctx context.Context, frameID string) (model.FrameRecord, error) {
	return readFrame(ctx, t.tx, frameID)
}

// InvoiceForSession reads the session's invoice.
// Returns ErrNotFound if none has been issued.
func (t *Tx) InvoiceForSession(ctx context.Context, sessionID string) (model.Invoice, error) {
	return readInvoice(ctx, t.tx, sessionID)
}
