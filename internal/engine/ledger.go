package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// addOrMerge adds one unit of p to the session's ledger and bumps the
// cached total by p.Price in the same transaction. Returns the stored line
// and the new total.
func (e *Engine) addOrMerge(ctx context.Context, tx *store.Tx, sessionID string, p model.Product) (model.CartLine, int64, error) {
	line, err := tx.UpsertLine(ctx, sessionID, p.ID, p.Price, e.clock.Now())
	if err != nil {
		return model.CartLine{}, 0, err
	}
	total, err := tx.AddToTotal(ctx, sessionID, p.Price)
	if err != nil {
		return model.CartLine{}, 0, err
	}
	return line, total, nil
}

// Cart returns the session's lines in insertion order and their sum.
//
// A cached total that disagrees with the sum is a missed synchronization:
// it is logged and counted, and the line sum is reported.
func (e *Engine) Cart(ctx context.Context, sessionID string) (model.Cart, error) {
	var (
		sess  model.Session
		lines []model.CartLine
	)
	err := e.inTx(ctx, sessionID, func(tx *store.Tx) error {
		var err error
		if sess, err = loadSession(ctx, tx, sessionID); err != nil {
			return err
		}
		lines, err = tx.Lines(ctx, sessionID)
		return err
	})
	if err != nil {
		return model.Cart{}, err
	}

	sum := model.SumLines(lines)
	if sum != sess.TotalAmount {
		slog.Error("ledger total drift",
			"session_id", sessionID,
			"cached", sess.TotalAmount,
			"line_sum", sum,
		)
		e.metrics.Drift()
	}
	return model.Cart{Items: lines, Total: sum}, nil
}
