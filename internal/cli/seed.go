package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/model"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	seedReport
	Products []model.Product `json:"products"`
}

func (r SeedResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Seeded %d label product(s), %d catalog product(s)\n", r.Labels, r.Catalog)
	for _, p := range r.Products {
		fmt.Fprintf(w, "  %4d  %-32s %10d\n", p.ID, p.Name, p.Price)
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the product catalog",
		Long: `Seed the product catalog.

Inserts one product per line of LABELS_PATH at DEFAULT_PRICE, plus the
priced products of CATALOG_PATH when set. Products that already exist
keep their price. Prints the resulting catalog.

Examples:
  checkoutd seed
  LABELS_PATH=models/labels.txt CATALOG_PATH=prices.yaml checkoutd seed --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, rootOpts)
		},
	}
	return cmd
}

func runSeed(cmd *cobra.Command, opts *RootOptions) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts)
	if err != nil {
		return out.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return out.fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out.VerboseLog("Seeding %s from %s", cfg.DBPath, cfg.LabelsPath)

	rep, err := seedCatalog(ctx, catalog.New(st), cfg)
	if err != nil {
		return out.fail(ExitCommandError, CodeConfig, "failed to seed catalog", err)
	}
	products, err := st.Products(ctx)
	if err != nil {
		return out.fail(ExitFailure, CodeStore, "failed to list products", err)
	}
	return out.Success(SeedResult{seedReport: rep, Products: products})
}
