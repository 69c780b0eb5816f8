package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/vrtbridge/internal/bridge"
	"firestige.xyz/vrtbridge/internal/config"
	"firestige.xyz/vrtbridge/internal/log"
)

var timeout time.Duration

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge",
	Long: `
Start the bridge in the foreground. It runs until SIGINT or SIGTERM, or until
a non-looping file input has been fully converted.

Examples:
  vrtbridge start                              # config.yml, shutdown timeout 5s
  vrtbridge start -c bridge.yml                # explicit configuration
  vrtbridge start -c bridge.yml -t 1m          # allow one minute for shutdown
  vrtbridge start -c bridge.yml -p run/vb.pid  # custom PID file
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context(), configFile, pidFile, timeout)
	},
}

func init() {
	startCmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "shutdown timeout")
}

func runStart(ctx context.Context, configPath, pidPath string, shutdownTimeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := log.Init(&cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Close()

	b, err := bridge.New(cfg, bridge.WithConfigPath(configPath), bridge.WithShutdownTimeout(shutdownTimeout))
	if err != nil {
		return err
	}

	if err := bridge.WritePIDFile(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := bridge.RemovePIDFile(pidPath); err != nil {
			log.GetLogger().WithError(err).Error("error removing PID file")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.HandleSignals(ctx, cancel)

	return b.Run(ctx)
}
