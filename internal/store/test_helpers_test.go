package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/selfcheckout/internal/model"
)

var testNow = time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testSession returns an ACTIVE session row with the given id.
func testSession(id string) model.Session {
	return model.Session{
		ID:        id,
		DeviceID:  "kiosk-1",
		State:     model.StateActive,
		CreatedAt: testNow,
	}
}

// createTestSession inserts an ACTIVE session with the given id.
func createTestSession(t *testing.T, s *Store, id string) model.Session {
	t.Helper()
	sess := testSession(id)
	err := s.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertSession(context.Background(), sess)
	})
	if err != nil {
		t.Fatalf("InsertSession() failed: %v", err)
	}
	return sess
}

// createTestProduct seeds a product and returns it as stored.
func createTestProduct(t *testing.T, s *Store, name string, price int64) model.Product {
	t.Helper()
	if _, err := s.InsertProduct(context.Background(), name, price); err != nil {
		t.Fatalf("InsertProduct() failed: %v", err)
	}
	p, err := s.ProductByName(context.Background(), name)
	if err != nil {
		t.Fatalf("ProductByName() failed: %v", err)
	}
	return p
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
