package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bridge",
	Long: `Stop the running bridge gracefully.

This command sends SIGTERM to the process recorded in the PID file. The
bridge stops its input, closes its output and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop bridge: %w", err)
	}
	fmt.Fprintln(out, "✓ Stop signal sent")
	return nil
}
