package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roach88/selfcheckout/internal/model"
)

func TestInsertProduct_IgnoresDuplicateName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertProduct(ctx, "Water", 10000)
	if err != nil || !inserted {
		t.Fatalf("first InsertProduct() = %v, %v; want true, nil", inserted, err)
	}

	inserted, err = s.InsertProduct(ctx, "Water", 99999)
	if err != nil {
		t.Fatalf("second InsertProduct() failed: %v", err)
	}
	if inserted {
		t.Error("second InsertProduct() inserted a duplicate name")
	}

	p, err := s.ProductByName(ctx, "Water")
	if err != nil {
		t.Fatalf("ProductByName() failed: %v", err)
	}
	if p.Price != 10000 {
		t.Errorf("price = %d, want 10000 (seeded products are immutable)", p.Price)
	}
}

func TestUpsertLine_MergesSameProduct(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	water := createTestProduct(t, s, "Water", 10000)

	var first, second model.CartLine
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		if first, err = tx.UpsertLine(ctx, "s1", water.ID, water.Price, testNow); err != nil {
			return err
		}
		second, err = tx.UpsertLine(ctx, "s1", water.ID, water.Price, testNow)
		return err
	})
	if err != nil {
		t.Fatalf("UpsertLine() failed: %v", err)
	}

	if first.Quantity != 1 || first.Amount != 10000 {
		t.Errorf("first line = qty %d amount %d, want 1/10000", first.Quantity, first.Amount)
	}
	if second.ID != first.ID {
		t.Errorf("second upsert created line %d, want merge into %d", second.ID, first.ID)
	}
	if second.Quantity != 2 || second.Amount != 20000 {
		t.Errorf("second line = qty %d amount %d, want 2/20000", second.Quantity, second.Amount)
	}
	if second.Name != "Water" {
		t.Errorf("name = %q, want Water", second.Name)
	}

	lines, err := s.Lines(ctx, "s1")
	if err != nil {
		t.Fatalf("Lines() failed: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
}

func TestUpsertLine_LatestPriceWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	water := createTestProduct(t, s, "Water", 10000)

	var line model.CartLine
	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertLine(ctx, "s1", water.ID, 10000, testNow); err != nil {
			return err
		}
		var err error
		line, err = tx.UpsertLine(ctx, "s1", water.ID, 12000, testNow)
		return err
	})
	if err != nil {
		t.Fatalf("UpsertLine() failed: %v", err)
	}
	if line.UnitPrice != 12000 || line.Amount != 24000 {
		t.Errorf("line = unit %d amount %d, want 12000/24000", line.UnitPrice, line.Amount)
	}
}

func TestAddToTotal_Relative(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	var total int64
	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.AddToTotal(ctx, "s1", 10000); err != nil {
			return err
		}
		var err error
		total, err = tx.AddToTotal(ctx, "s1", 5000)
		return err
	})
	if err != nil {
		t.Fatalf("AddToTotal() failed: %v", err)
	}
	if total != 15000 {
		t.Errorf("total = %d, want 15000", total)
	}
}

func TestAddToTotal_UnknownSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.AddToTotal(ctx, "missing", 1)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AddToTotal() error = %v, want ErrNotFound", err)
	}
}

func TestRecomputeTotal_ClosesDrift(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	water := createTestProduct(t, s, "Water", 10000)

	var total int64
	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertLine(ctx, "s1", water.ID, water.Price, testNow); err != nil {
			return err
		}
		// Deliberately skip AddToTotal so the cache drifts.
		var err error
		total, err = tx.RecomputeTotal(ctx, "s1")
		return err
	})
	if err != nil {
		t.Fatalf("RecomputeTotal() failed: %v", err)
	}
	if total != 10000 {
		t.Errorf("total = %d, want 10000", total)
	}

	sess, err := s.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if sess.TotalAmount != 10000 {
		t.Errorf("cached total = %d, want 10000", sess.TotalAmount)
	}
}

func TestInsertFrame_UniqueFrameID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	frame := model.FrameRecord{
		SessionID: "s1",
		FrameID:   "f1",
		ImageRef:  "storage/f1.jpg",
		Result:    []byte(`{"frame_id":"f1"}`),
		CreatedAt: testNow,
	}

	insert := func(f model.FrameRecord) bool {
		var inserted bool
		err := s.InTx(ctx, func(tx *Tx) error {
			var err error
			inserted, err = tx.InsertFrame(ctx, f)
			return err
		})
		if err != nil {
			t.Fatalf("InsertFrame() failed: %v", err)
		}
		return inserted
	}

	if !insert(frame) {
		t.Fatal("first InsertFrame() did not insert")
	}

	dup := frame
	dup.Result = []byte(`{"frame_id":"other"}`)
	if insert(dup) {
		t.Error("second InsertFrame() inserted a duplicate frame_id")
	}

	got, err := s.Frame(ctx, "f1")
	if err != nil {
		t.Fatalf("Frame() failed: %v", err)
	}
	if string(got.Result) != `{"frame_id":"f1"}` {
		t.Errorf("result = %s, want the first write to be kept", got.Result)
	}
}

func TestInsertFrame_ConcurrentDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx *Tx) error {
				ok, err := tx.InsertFrame(ctx, model.FrameRecord{
					SessionID: "s1",
					FrameID:   "f-race",
					ImageRef:  "ref",
					Result:    []byte(`{}`),
					CreatedAt: testNow,
				})
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
				return err
			})
			if err != nil {
				t.Errorf("InTx() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("inserted = %d, want exactly 1", inserted)
	}
}

func TestCompareAndSetState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	closed := testNow.Add(time.Minute)

	var ok bool
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.CompareAndSetState(ctx, "s1", model.StatePendingCheckout, model.StatePaid, &closed)
		return err
	})
	if err != nil {
		t.Fatalf("CompareAndSetState() failed: %v", err)
	}
	if ok {
		t.Fatal("CompareAndSetState() succeeded from the wrong state")
	}

	err = s.InTx(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.CompareAndSetState(ctx, "s1", model.StateActive, model.StateCancelled, &closed)
		return err
	})
	if err != nil || !ok {
		t.Fatalf("CompareAndSetState() = %v, %v; want true, nil", ok, err)
	}

	sess, err := s.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if sess.State != model.StateCancelled {
		t.Errorf("state = %s, want CANCELLED", sess.State)
	}
	if sess.ClosedAt == nil || !sess.ClosedAt.Equal(closed) {
		t.Errorf("closed_at = %v, want %v", sess.ClosedAt, closed)
	}
}

func TestInsertInvoice_OnePerSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	write := func(id string) error {
		return s.InTx(ctx, func(tx *Tx) error {
			return tx.InsertInvoice(ctx, model.Invoice{
				ID:          id,
				SessionID:   "s1",
				IssuedAt:    testNow,
				TotalAmount: 20000,
			})
		})
	}

	if err := write("INV-1"); err != nil {
		t.Fatalf("first InsertInvoice() failed: %v", err)
	}
	err := write("INV-2")
	if err == nil {
		t.Fatal("second InsertInvoice() succeeded, want UNIQUE(session_id) violation")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	inv, err := s.InvoiceForSession(ctx, "s1")
	if err != nil {
		t.Fatalf("InvoiceForSession() failed: %v", err)
	}
	if inv.ID != "INV-1" || inv.TotalAmount != 20000 {
		t.Errorf("invoice = %+v, want INV-1 / 20000", inv)
	}
}
