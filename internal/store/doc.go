// Package store provides SQLite-backed durable storage for checkout sessions.
//
// The store holds five tables:
//   - products: the catalog (name UNIQUE)
//   - sessions: lifecycle state and the cached total_amount
//   - cart_lines: one row per (session_id, product_id)
//   - frames: write-once frame records, frame_id UNIQUE
//   - invoices: one row per session, session_id UNIQUE
//
// # Critical Patterns
//
// Insert-First Idempotency
//   - frames.frame_id carries a UNIQUE constraint
//   - InsertFrame uses ON CONFLICT DO NOTHING and reports whether it inserted
//   - Callers never rely on read-then-check to detect duplicates
//
// Relative Totals
//   - AddToTotal issues total_amount = total_amount + ? in the caller's transaction
//   - RecomputeTotal rewrites the cache from SUM(amount)
//
// Transactions
//   - InTx runs one engine operation; the callback sees a *Tx
//   - Errors returned by the callback are passed through unchanged after rollback
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Writers take the write lock at BEGIN
package store
