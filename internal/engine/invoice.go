package engine

import (
	"context"
	"errors"

	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// issue snapshots the session's ledger into its one invoice. Only Confirm
// calls it, but a second invoice is still refused explicitly, and the
// UNIQUE(session_id) constraint backs that check.
func (e *Engine) issue(ctx context.Context, tx *store.Tx, sessionID string) (model.Invoice, []model.CartLine, error) {
	_, err := tx.InvoiceForSession(ctx, sessionID)
	switch {
	case err == nil:
		return model.Invoice{}, nil, newAlreadyInvoiced(sessionID, nil)
	case !errors.Is(err, store.ErrNotFound):
		return model.Invoice{}, nil, err
	}

	lines, err := tx.Lines(ctx, sessionID)
	if err != nil {
		return model.Invoice{}, nil, err
	}

	inv := model.Invoice{
		ID:          e.invoiceIDs.Generate(),
		SessionID:   sessionID,
		IssuedAt:    e.clock.Now(),
		TotalAmount: model.SumLines(lines),
	}
	if err := tx.InsertInvoice(ctx, inv); err != nil {
		if store.IsUniqueViolation(err) {
			return model.Invoice{}, nil, newAlreadyInvoiced(sessionID, err)
		}
		return model.Invoice{}, nil, err
	}
	return inv, lines, nil
}

// Invoice returns the session's invoice. NOT_FOUND covers both an unknown
// session and a session that was never confirmed.
func (e *Engine) Invoice(ctx context.Context, sessionID string) (model.Invoice, error) {
	inv, err := e.store.InvoiceForSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Invoice{}, &Error{
			Code:      ErrCodeNotFound,
			Message:   "invoice not found",
			SessionID: sessionID,
		}
	}
	if err != nil {
		return model.Invoice{}, newStorageFailure(sessionID, err)
	}
	return inv, nil
}

func newAlreadyInvoiced(sessionID string, err error) *Error {
	return &Error{
		Code:      ErrCodeAlreadyInvoiced,
		Message:   "session already has an invoice",
		SessionID: sessionID,
		Err:       err,
	}
}
