// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vrtbridge",
	Short: "vrtbridge - I/Q to VITA-49 packet bridge",
	Long: `vrtbridge converts a stream of complex I/Q samples into VITA-49 (VRT)
packets and sends them to a network or file output at the nominal sample rate.

Inputs:  UDP/TCP endpoint (raw interleaved samples), stereo WAV recording
Outputs: UDP (unicast or multicast), TCP, raw packet file, pcap capture, Kafka topic

Context packets describing frequency, bandwidth and sample rate are
interleaved with the data packets at a configurable rate.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pid-file", "p", "/tmp/vrt-bridge.pid",
		"PID file of the running bridge")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(inspectCmd)
}
