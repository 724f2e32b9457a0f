package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/selfcheckout/internal/model"
)

// InsertProduct seeds a catalog product.
// Uses ON CONFLICT(name) DO NOTHING: products are immutable once seeded, so
// re-seeding an existing name keeps its original price.
// Returns whether a new row was inserted.
func (s *Store) InsertProduct(ctx context.Context, name string, price int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO products (name, price)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, price)
	if err != nil {
		return false, fmt.Errorf("insert product: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert product: rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertSession writes a new session row.
func (t *Tx) InsertSession(ctx context.Context, sess model.Session) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sessions (id, device_id, state, created_at, total_amount)
		VALUES (?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.DeviceID,
		string(sess.State),
		model.FormatTime(sess.CreatedAt),
		sess.TotalAmount,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CompareAndSetState moves a session from one state to another.
// The UPDATE is guarded by the expected current state; it reports false
// when the session was not in from. closedAt, when non-nil, is recorded.
func (t *Tx) CompareAndSetState(ctx context.Context, id string, from, to model.State, closedAt *time.Time) (bool, error) {
	var closed any
	if closedAt != nil {
		closed = model.FormatTime(*closedAt)
	}
	result, err := t.tx.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, closed_at = COALESCE(?, closed_at)
		WHERE id = ? AND state = ?
	`, string(to), closed, id, string(from))
	if err != nil {
		return false, fmt.Errorf("set session state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set session state: rows affected: %w", err)
	}
	return n == 1, nil
}

// InsertFrame claims frame.FrameID via the UNIQUE constraint.
// Uses ON CONFLICT(frame_id) DO NOTHING; returns inserted=false when the
// frame_id is already recorded, in which case nothing is written.
func (t *Tx) InsertFrame(ctx context.Context, frame model.FrameRecord) (inserted bool, err error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO frames (session_id, frame_id, image_ref, result_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(frame_id) DO NOTHING
	`,
		frame.SessionID,
		frame.FrameID,
		frame.ImageRef,
		string(frame.Result),
		model.FormatTime(frame.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert frame: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert frame: rows affected: %w", err)
	}
	return n > 0, nil
}

// UpsertLine adds one unit of a product to a session's cart.
//
// A new (session_id, product_id) pair starts at quantity 1. An existing line
// has its quantity incremented and its amount recomputed at unitPrice, which
// also replaces the stored unit price. Returns the line as stored.
func (t *Tx) UpsertLine(ctx context.Context, sessionID string, productID, unitPrice int64, now time.Time) (model.CartLine, error) {
	line := model.CartLine{SessionID: sessionID, ProductID: productID}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO cart_lines (session_id, product_id, qty, unit_price, amount, created_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(session_id, product_id) DO UPDATE SET
			qty        = qty + 1,
			unit_price = excluded.unit_price,
			amount     = (qty + 1) * excluded.unit_price
		RETURNING id, qty, unit_price, amount
	`,
		sessionID,
		productID,
		unitPrice,
		unitPrice,
		model.FormatTime(now),
	).Scan(&line.ID, &line.Quantity, &line.UnitPrice, &line.Amount)
	if err != nil {
		return model.CartLine{}, fmt.Errorf("upsert cart line: %w", err)
	}

	err = t.tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = ?`, productID).Scan(&line.Name)
	if err != nil {
		return model.CartLine{}, fmt.Errorf("upsert cart line: product name: %w", err)
	}
	return line, nil
}

// AddToTotal applies a relative update to the session's cached total and
// returns the new value.
func (t *Tx) AddToTotal(ctx context.Context, sessionID string, delta int64) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE sessions
		SET total_amount = total_amount + ?
		WHERE id = ?
		RETURNING total_amount
	`, delta, sessionID).Scan(&total)
	if err != nil {
		return 0, notFound(err, "add to total")
	}
	return total, nil
}

// RecomputeTotal rewrites the session's cached total from its cart lines
// and returns the authoritative value.
func (t *Tx) RecomputeTotal(ctx context.Context, sessionID string) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE sessions
		SET total_amount = (
			SELECT COALESCE(SUM(amount), 0) FROM cart_lines WHERE session_id = ?
		)
		WHERE id = ?
		RETURNING total_amount
	`, sessionID, sessionID).Scan(&total)
	if err != nil {
		return 0, notFound(err, "recompute total")
	}
	return total, nil
}

// InsertInvoice writes the session's invoice.
// A second invoice for the same session violates UNIQUE(session_id); use
// IsUniqueViolation to detect it.
func (t *Tx) InsertInvoice(ctx context.Context, inv model.Invoice) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO invoices (id, session_id, issued_at, total_amount)
		VALUES (?, ?, ?, ?)
	`,
		inv.ID,
		inv.SessionID,
		model.FormatTime(inv.IssuedAt),
		inv.TotalAmount,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}
