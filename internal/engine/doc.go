// Package engine implements the checkout core: the session state machine,
// the cart ledger, idempotent frame ingestion and invoice issuing.
//
// ARCHITECTURE:
//
// Store-backed, lock-free:
// The engine holds no per-session state in memory. Every operation opens
// one store transaction, reads the session fresh, and commits all of its
// writes together or none of them. Concurrent callers are serialized by the
// store's write lock, not by the engine.
//
// Frame Ingestion Flow:
//  1. Session is looked up and gated on ACTIVE
//  2. A recorded frame_id short-circuits to replay
//  3. The image is persisted and classified outside any transaction
//  4. A confident label is resolved against the catalog
//  5. One transaction re-checks the gate, claims frame_id, and mutates the ledger
//
// CRITICAL PATTERNS:
//
// Insert-first idempotency:
// The frame record insert uses ON CONFLICT(frame_id) DO NOTHING. A lost race
// sees zero rows affected, rolls back, and replays the winner's stored result.
// Reading before inserting is only an optimization.
//
// Relative totals:
// Ledger mutations apply total_amount = total_amount + delta in the same
// transaction as the line upsert. Confirm recomputes the total from the lines.
package engine
