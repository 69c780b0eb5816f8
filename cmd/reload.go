package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long: `Ask the running bridge to re-read its configuration file (SIGHUP).

Log settings apply immediately; input, packetizer, output, metrics and
queue changes are reported and take effect on the next start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runReload(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reload requested")
	return nil
}
