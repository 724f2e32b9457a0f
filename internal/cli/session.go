package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/selfcheckout/internal/model"
	"github.com/roach88/selfcheckout/internal/store"
)

// SessionReport is the output of the session command.
type SessionReport struct {
	Session model.Session  `json:"session"`
	Cart    model.Cart     `json:"cart"`
	Frames  []FrameSummary `json:"frames"`
	Invoice *model.Invoice `json:"invoice,omitempty"`
}

// FrameSummary is one provenance record with its decoded result.
type FrameSummary struct {
	FrameID   string            `json:"frame_id"`
	ImageRef  string            `json:"image_ref"`
	CreatedAt string            `json:"created_at"`
	Result    model.FrameResult `json:"result"`
}

func (r SessionReport) renderText(w io.Writer) {
	s := r.Session
	fmt.Fprintf(w, "Session %s (%s)\n", s.ID, s.State)
	fmt.Fprintf(w, "  device:  %s\n", s.DeviceID)
	fmt.Fprintf(w, "  created: %s\n", model.FormatTime(s.CreatedAt))
	if s.ClosedAt != nil {
		fmt.Fprintf(w, "  closed:  %s\n", model.FormatTime(*s.ClosedAt))
	}

	fmt.Fprintf(w, "\nCart (%d line(s), total %d)\n", len(r.Cart.Items), r.Cart.Total)
	for _, l := range r.Cart.Items {
		fmt.Fprintf(w, "  %-32s %4d x %8d = %10d\n", l.Name, l.Quantity, l.UnitPrice, l.Amount)
	}

	fmt.Fprintf(w, "\nFrames (%d)\n", len(r.Frames))
	for _, f := range r.Frames {
		outcome := model.UnknownLabel
		if p, ok := f.Result.Proposal.(model.ItemProposal); ok {
			outcome = p.Name
		}
		fmt.Fprintf(w, "  %s  %-20s %s\n", f.CreatedAt, f.FrameID, outcome)
	}

	if r.Invoice != nil {
		fmt.Fprintf(w, "\nInvoice %s issued %s total %d\n",
			r.Invoice.ID, model.FormatTime(r.Invoice.IssuedAt), r.Invoice.TotalAmount)
	}
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session <session-id>",
		Short: "Inspect a checkout session",
		Long: `Inspect a checkout session.

Prints the session state, its cart lines and total, every recorded frame
with its stored result, and the invoice when one was issued. Reads the
database only.

Examples:
  checkoutd session 3f2b9c1e-...
  checkoutd session 3f2b9c1e-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runSession(cmd *cobra.Command, opts *RootOptions, id string) error {
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
	report, err := inspectSession(ctx, st, id)
	if errors.Is(err, store.ErrNotFound) {
		return out.fail(ExitCommandError, CodeNotFound, fmt.Sprintf("session %s not found", id), nil)
	}
	if err != nil {
		return out.fail(ExitFailure, CodeStore, "failed to read session", err)
	}
	return out.Success(report)
}

func inspectSession(ctx context.Context, st *store.Store, id string) (SessionReport, error) {
	sess, err := st.Session(ctx, id)
	if err != nil {
		return SessionReport{}, err
	}
	lines, err := st.Lines(ctx, id)
	if err != nil {
		return SessionReport{}, err
	}
	records, err := st.Frames(ctx, id)
	if err != nil {
		return SessionReport{}, err
	}

	report := SessionReport{
		Session: sess,
		Cart:    model.Cart{Items: lines, Total: sess.TotalAmount},
		Frames:  make([]FrameSummary, 0, len(records)),
	}
	if report.Cart.Items == nil {
		report.Cart.Items = []model.CartLine{}
	}
	for _, rec := range records {
		var res model.FrameResult
		if err := json.Unmarshal(rec.Result, &res); err != nil {
			return SessionReport{}, fmt.Errorf("frame %s: %w", rec.FrameID, err)
		}
		report.Frames = append(report.Frames, FrameSummary{
			FrameID:   rec.FrameID,
			ImageRef:  rec.ImageRef,
			CreatedAt: model.FormatTime(rec.CreatedAt),
			Result:    res,
		})
	}

	inv, err := st.InvoiceForSession(ctx, id)
	switch {
	case err == nil:
		report.Invoice = &inv
	case !errors.Is(err, store.ErrNotFound):
		return SessionReport{}, err
	}
	return report, nil
}
