package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/selfcheckout/internal/model"
)

// Session retrieves a single session by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) Session(ctx context.Context, id string) (model.Session, error) {
	return readSession(ctx, s.db, id)
}

// Lines returns the session's cart lines ordered by insertion.
// Returns an empty slice (not nil) if the cart is empty.
func (s *Store) Lines(ctx context.Context, sessionID string) ([]model.CartLine, error) {
	return readLines(ctx, s.db, sessionID)
}

// Frame retrieves a frame record by its client-supplied frame_id.
// Returns ErrNotFound if it does not exist.
func (s *Store) Frame(ctx context.Context, frameID string) (model.FrameRecord, error) {
	return readFrame(ctx, s.db, frameID)
}

// Frames returns every frame recorded for a session, oldest first.
func (s *Store) Frames(ctx context.Context, sessionID string) ([]model.FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, frame_id, image_ref, result_json, created_at
		FROM frames
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []model.FrameRecord{}
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// InvoiceForSession retrieves the invoice issued for a session.
// Returns ErrNotFound if none has been issued.
func (s *Store) InvoiceForSession(ctx context.Context, sessionID string) (model.Invoice, error) {
	return readInvoice(ctx, s.db, sessionID)
}

// ProductByName looks up a catalog product by exact name.
// Returns ErrNotFound if no product has that name.
func (s *Store) ProductByName(ctx context.Context, name string) (model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price FROM products WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		return model.Product{}, notFound(err, "product by name")
	}
	return p, nil
}

// Products returns the whole catalog ordered by id.
func (s *Store) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price FROM products ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func readSession(ctx context.Context, q querier, id string) (model.Session, error) {
	var (
		sess      model.Session
		state     string
		createdAt string
		closedAt  sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, device_id, state, created_at, closed_at, total_amount
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.DeviceID, &state, &createdAt, &closedAt, &sess.TotalAmount)
	if err != nil {
		return model.Session{}, notFound(err, "read session")
	}

	sess.State = model.State(state)
	if sess.CreatedAt, err = model.ParseTime(createdAt); err != nil {
		return model.Session{}, fmt.Errorf("read session: created_at: %w", err)
	}
	if closedAt.Valid {
		t, err := model.ParseTime(closedAt.String)
		if err != nil {
			return model.Session{}, fmt.Errorf("read session: closed_at: %w", err)
		}
		sess.ClosedAt = &t
	}
	return sess, nil
}

func readLines(ctx context.Context, q querier, sessionID string) ([]model.CartLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.session_id, l.product_id, p.name, l.qty, l.unit_price, l.amount
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.session_id = ?
		ORDER BY l.id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []model.CartLine{}
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.ID, &l.SessionID, &l.ProductID, &l.Name, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func readFrame(ctx context.Context, q querier, frameID string) (model.FrameRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT session_id, frame_id, image_ref, result_json, created_at
		FROM frames
		WHERE frame_id = ?
	`, frameID)
	f, err := scanFrame(row)
	if err != nil {
		return model.FrameRecord{}, notFound(err, "read frame")
	}
	return f, nil
}

func readInvoice(ctx context.Context, q querier, sessionID string) (model.Invoice, error) {
	var (
		inv      model.Invoice
		issuedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, session_id, issued_at, total_amount
		FROM invoices
		WHERE session_id = ?
	`, sessionID).Scan(&inv.ID, &inv.SessionID, &issuedAt, &inv.TotalAmount)
	if err != nil {
		return model.Invoice{}, notFound(err, "read invoice")
	}
	if inv.IssuedAt, err = model.ParseTime(issuedAt); err != nil {
		return model.Invoice{}, fmt.Errorf("read invoice: issued_at: %w", err)
	}
	return inv, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(r rowScanner) (model.FrameRecord, error) {
	var (
		f         model.FrameRecord
		result    string
		createdAt string
	)
	if err := r.Scan(&f.SessionID, &f.FrameID, &f.ImageRef, &result, &createdAt); err != nil {
		return model.FrameRecord{}, err
	}
	f.Result = []byte(result)

	t, err := model.ParseTime(createdAt)
	if err != nil {
		return model.FrameRecord{}, fmt.Errorf("frame created_at: %w", err)
	}
	f.CreatedAt = t
	return f, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
