// Package catalog maps recognized labels to products and seeds the
// product table from label files and price files.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// Catalog resolves classifier labels against the products table.
type Catalog struct {
	st *store.Store
}

// New creates a Catalog backed by st.
func New(st *store.Store) *Catalog {
	return &Catalog{st: st}
}

// Normalize returns the lookup key for a label: trimmed and NFC-normalized,
// so labels with decomposed diacritics match their seeded names.
func Normalize(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Lookup returns the product named label. ok is false when no product
// matches; err is reserved for store failures.
func (c *Catalog) Lookup(ctx context.Context, label string) (p model.Product, ok bool, err error) {
	p, err = c.st.ProductByName(ctx, Normalize(label))
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, false, nil
	}
	if err != nil {
		return model.Product{}, false, fmt.Errorf("catalog lookup %q: %w", label, err)
	}
	return p, true, nil
}

// Seed inserts entries that are not already present. Existing products
// keep their price. Returns the number of rows inserted.
func (c *Catalog) Seed(ctx context.Context, entries []Entry) (int, error) {
	inserted := 0
	for _, e := range entries {
		ok, err := c.st.InsertProduct(ctx, Normalize(e.Name), e.Price)
		if err != nil {
			return inserted, fmt.Errorf("seed %q: %w", e.Name, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// SeedLabels inserts one product per label at defaultPrice.
func (c *Catalog) SeedLabels(ctx context.Context, labels []string, defaultPrice int64) (int, error) {
	entries := make([]Entry, 0, len(labels))
	for _, l := range labels {
		entries = append(entries, Entry{Name: l, Price: defaultPrice})
	}
	if err := Validate(entries); err != nil {
		return 0, err
	}

	n, err := c.Seed(ctx, entries)
	if err != nil {
		return n, err
	}
	slog.Info("catalog seeded from labels",
		"inserted", n,
		"labels", len(labels),
		"default_price", defaultPrice,
	)
	return n, nil
}
