package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/selfcheckout/internal/classify"
)

// ScanReport wraps a single scan or a vote for text rendering.
type ScanReport struct {
	Scan *classify.ScanResult `json:"scan,omitempty"`
	Vote *classify.VoteResult `json:"vote,omitempty"`
}

func (r ScanReport) renderText(w io.Writer) {
	if r.Scan != nil {
		fmt.Fprintf(w, "%s (%.3f)  top1=%s %.3f  top2=%s %.3f  threshold=%.2f\n",
			r.Scan.Label, r.Scan.Confidence,
			r.Scan.Top1.Label, r.Scan.Top1.Confidence,
			r.Scan.Top2.Label, r.Scan.Top2.Confidence,
			r.Scan.Threshold)
		return
	}
	if r.Vote != nil {
		for i, sr := range r.Vote.Results {
			fmt.Fprintf(w, "  [%d] %s (%.3f)\n", i+1, sr.Label, sr.Confidence)
		}
		fmt.Fprintf(w, "%s (%.3f)  votes=%v\n", r.Vote.FinalLabel, r.Vote.FinalConfidence, r.Vote.Votes)
	}
}

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Threshold float64 // overrides THRESHOLD when > 0
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <image> [image...]",
		Short: "Classify images without a session",
		Long: `Classify images without a session.

One image prints its label, confidence and top-two guesses. Two or three
images run a plurality vote; extra images are ignored. Requires
CLASSIFIER_URL.

Examples:
  checkoutd scan frame.jpg
  checkoutd scan a.jpg b.jpg c.jpg --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args)
		},
	}

	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "confidence threshold (overrides THRESHOLD)")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions, paths []string) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}
	if opts.Threshold > 0 {
		cfg.Threshold = opts.Threshold
	}
	cls, err := newClassifier(cfg)
	if err != nil {
		return out.fail(ExitCommandError, CodeConfig, "classifier not configured", err)
	}

	if len(paths) > classify.MaxVoteImages {
		out.VerboseLog("Ignoring %d image(s) past the first %d", len(paths)-classify.MaxVoteImages, classify.MaxVoteImages)
		paths = paths[:classify.MaxVoteImages]
	}
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return out.fail(ExitCommandError, CodeConfig, "failed to read image", err)
		}
		images = append(images, data)
	}

	return scanImages(cmd.Context(), out, cls, images, cfg.Threshold)
}

func scanImages(ctx context.Context, out *OutputFormatter, cls classify.Classifier, images [][]byte, threshold float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(images) == 1 {
		res, err := classify.Scan(ctx, cls, images[0], threshold)
		if err != nil {
			return out.fail(ExitFailure, CodeClassifier, "classification failed", err)
		}
		return out.Success(ScanReport{Scan: &res})
	}

	res, err := classify.Vote(ctx, cls, images, threshold)
	if err != nil {
		return out.fail(ExitFailure, CodeClassifier, "classification failed", err)
	}
	return out.Success(ScanReport{Vote: &res})
}
