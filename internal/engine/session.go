package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// transition is one edge set of the session state machine.
type transition struct {
	op   string
	from []model.State
	to   model.State
}

var (
	confirmEdge = transition{
		op:   "confirm",
		from: []model.State{model.StateActive},
		to:   model.StatePendingCheckout,
	}
	payEdge = transition{
		op:   "pay",
		from: []model.State{model.StatePendingCheckout},
		to:   model.StatePaid,
	}
	cancelEdge = transition{
		op:   "cancel",
		from: []model.State{model.StateActive, model.StatePendingCheckout},
		to:   model.StateCancelled,
	}
)

func (t transition) allows(s model.State) bool {
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

// apply moves sess along t inside tx. The UPDATE is guarded by the state
// read in the same transaction.
func (e *Engine) apply(ctx context.Context, tx *store.Tx, sess model.Session, t transition, closing bool) (model.Session, error) {
	if !t.allows(sess.State) {
		return model.Session{}, newInvalidTransition(sess.ID, t.op, sess.State)
	}

	var closedAt *time.Time
	if closing {
		now := e.clock.Now()
		closedAt = &now
	}
	ok, err := tx.CompareAndSetState(ctx, sess.ID, sess.State, t.to, closedAt)
	if err != nil {
		return model.Session{}, err
	}
	if !ok {
		return model.Session{}, newInvalidTransition(sess.ID, t.op, sess.State)
	}

	sess.State = t.to
	if closedAt != nil {
		sess.ClosedAt = closedAt
	}
	return sess, nil
}

// Checkout is the result of confirming a session.
type Checkout struct {
	Invoice model.Invoice
	Cart    model.Cart
	State   model.State
}

// Payment is the result of paying a session.
type Payment struct {
	InvoiceID  string
	PaidAt     time.Time
	AmountPaid int64
	State      model.State
}

// Create opens a new ACTIVE session with a zero total.
func (e *Engine) Create(ctx context.Context, deviceID string) (model.Session, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return model.Session{}, newInvalidArgument("device_id is required")
	}

	sess := model.Session{
		ID:        e.sessionIDs.Generate(),
		DeviceID:  deviceID,
		State:     model.StateActive,
		CreatedAt: e.clock.Now(),
	}
	err := e.inTx(ctx, sess.ID, func(tx *store.Tx) error {
		return tx.InsertSession(ctx, sess)
	})
	if err != nil {
		return model.Session{}, err
	}

	slog.Info("session created",
		"session_id", sess.ID,
		"device_id", sess.DeviceID,
	)
	e.metrics.Transition(string(model.StateActive))
	return sess, nil
}

// Confirm freezes an ACTIVE session: it recomputes the cached total from
// the lines, moves the session to PENDING_CHECKOUT and issues its invoice,
// all in one transaction.
func (e *Engine) Confirm(ctx context.Context, sessionID string) (Checkout, error) {
	var out Checkout
	err := e.inTx(ctx, sessionID, func(tx *store.Tx) error {
		sess, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !confirmEdge.allows(sess.State) {
			return newInvalidTransition(sessionID, confirmEdge.op, sess.State)
		}

		cached := sess.TotalAmount
		total, err := tx.RecomputeTotal(ctx, sessionID)
		if err != nil {
			return err
		}
		if total != cached {
			slog.Warn("total drift closed at confirm",
				"session_id", sessionID,
				"cached", cached,
				"recomputed", total,
			)
			e.metrics.Drift()
		}

		sess, err = e.apply(ctx, tx, sess, confirmEdge, false)
		if err != nil {
			return err
		}

		inv, lines, err := e.issue(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		out = Checkout{
			Invoice: inv,
			Cart:    model.Cart{Items: lines, Total: inv.TotalAmount},
			State:   sess.State,
		}
		return nil
	})
	if err != nil {
		return Checkout{}, err
	}

	slog.Info("session confirmed",
		"session_id", sessionID,
		"invoice_id", out.Invoice.ID,
		"total", out.Invoice.TotalAmount,
	)
	e.metrics.Transition(string(out.State))
	e.metrics.InvoiceIssued()
	return out, nil
}

// Pay acknowledges payment of a PENDING_CHECKOUT session. The amount paid
// is the invoice total; the ledger is not re-read.
func (e *Engine) Pay(ctx context.Context, sessionID string) (Payment, error) {
	var out Payment
	err := e.inTx(ctx, sessionID, func(tx *store.Tx) error {
		sess, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !payEdge.allows(sess.State) {
			return newInvalidTransition(sessionID, payEdge.op, sess.State)
		}

		inv, err := tx.InvoiceForSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return &Error{
				Code:      ErrCodeInternalInconsistency,
				Message:   "pending session has no invoice",
				SessionID: sessionID,
			}
		}
		if err != nil {
			return err
		}

		sess, err = e.apply(ctx, tx, sess, payEdge, true)
		if err != nil {
			return err
		}
		out = Payment{
			InvoiceID:  inv.ID,
			PaidAt:     *sess.ClosedAt,
			AmountPaid: inv.TotalAmount,
			State:      sess.State,
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	slog.Info("session paid",
		"session_id", sessionID,
		"invoice_id", out.InvoiceID,
		"amount", out.AmountPaid,
	)
	e.metrics.Transition(string(out.State))
	return out, nil
}

// Cancel closes an ACTIVE or PENDING_CHECKOUT session. An invoice issued
// at confirm is kept for audit.
func (e *Engine) Cancel(ctx context.Context, sessionID string) (model.Session, error) {
	var out model.Session
	err := e.inTx(ctx, sessionID, func(tx *store.Tx) error {
		sess, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		out, err = e.apply(ctx, tx, sess, cancelEdge, true)
		return err
	})
	if err != nil {
		return model.Session{}, err
	}

	slog.Info("session cancelled", "session_id", sessionID)
	e.metrics.Transition(string(out.State))
	return out, nil
}

// Session returns the session as currently stored.
func (e *Engine) Session(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := e.store.Session(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, newNotFound(sessionID)
	}
	if err != nil {
		return model.Session{}, newStorageFailure(sessionID, err)
	}
	return sess, nil
}
