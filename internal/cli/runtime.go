package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/config"
	"github.com/roach88/selfcheckout/internal/store"
)

// openStore opens the database at path, creating its directory.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return store.Open(path)
}

// seedReport counts the products inserted by seedCatalog.
type seedReport struct {
	Labels  int `json:"labels_inserted"`
	Catalog int `json:"catalog_inserted"`
}

// seedCatalog inserts one product per classifier label at the default
// price, then the priced entries of the catalog file when one is set.
// Existing products are left untouched.
func seedCatalog(ctx context.Context, cat *catalog.Catalog, cfg config.Config) (seedReport, error) {
	var rep seedReport

	labels, err := classify.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return rep, err
	}

	// Catalog file prices take precedence over the label default, so they
	// are inserted first.
	if cfg.CatalogPath != "" {
		entries, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return rep, err
		}
		if rep.Catalog, err = cat.Seed(ctx, entries); err != nil {
			return rep, err
		}
	}

	rep.Labels, err = cat.SeedLabels(ctx, labels, cfg.DefaultPrice)
	return rep, err
}

// newClassifier builds the remote classifier client from configuration.
func newClassifier(cfg config.Config) (*classify.Remote, error) {
	if err := cfg.RequireClassifier(); err != nil {
		return nil, err
	}
	labels, err := classify.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}
	return classify.NewRemote(cfg.ClassifierURL, labels, cfg.ClassifierTimeout), nil
}
