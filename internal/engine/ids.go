package engine

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator allocates opaque identifiers.
// Implemented by RandomGenerator and UUIDv7Generator (production) and
// FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// RandomGenerator generates random UUIDv4 identifiers. Session ids are
// handed to devices, so they carry no timestamp and cannot be guessed.
//
// Thread-safety: RandomGenerator is stateless and safe for concurrent use.
type RandomGenerator struct{}

// Generate creates a new UUIDv4 as a hyphenated string.
func (RandomGenerator) Generate() string {
	return uuid.NewString()
}

// UUIDv7Generator generates time-sortable identifiers with a fixed prefix.
// Invoice numbers use it so that they sort by issue time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct {
	Prefix string
}

// Generate creates a new prefixed UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return g.Prefix + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch a test creating more
// sessions or invoices than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
