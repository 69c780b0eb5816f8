package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the bridge is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer) error {
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	if !st.Running {
		fmt.Fprintf(out, "vrtbridge is not running (pid file %s)\n", st.PIDFile)
		return nil
	}
	fmt.Fprintf(out, "vrtbridge is running, pid %d\n", st.PID)
	return nil
}
