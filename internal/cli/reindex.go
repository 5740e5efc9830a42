package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the fingerprint index from the archive",
		Long: `Discard the fingerprint index and rebuild it from every created item in
the run archive. Runs automatically when the index is missing or older than
the archive; use this after editing state by hand.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.Reindex(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "reindex failed", err)
			}
			text := fmt.Sprintf("replayed=%d unreadable=%d skipped=%d\n", res.Replayed, res.Unreadable, res.Skips)
			return rootOpts.formatter(cmd).Success(map[string]int{
				"replayed":   res.Replayed,
				"unreadable": res.Unreadable,
				"skipped":    res.Skips,
			}, text)
		},
	}
}
