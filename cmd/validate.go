package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/vrtbridge/internal/bridge"
	"firestige.xyz/vrtbridge/internal/config"
)

var printEffective bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the bridge.

The input, packetizer and output are constructed, so unknown options,
unsupported bit resolutions and invalid framing are reported; nothing is
opened or bound.

Examples:
  vrtbridge validate -c bridge.yml
  vrtbridge validate -c bridge.yml --print`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, printEffective, cmd.OutOrStdout())
	},
}

func init() {
	validateCmd.Flags().BoolVar(&printEffective, "print", false,
		"print the effective configuration with defaults applied")
}

func runValidate(path string, printCfg bool, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	if _, err := bridge.New(cfg); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	p := cfg.Packetizer
	fmt.Fprintf(out, "VALID: %s input -> %s output, %d pairs/packet at %d samples/s\n",
		cfg.IQInput.Type, cfg.VRTOutput.Type, p.SampleCount, p.SampleRate)

	if printCfg {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]*config.BridgeConfig{"vrt-bridge": cfg}); err != nil {
			return fmt.Errorf("failed to format config: %w", err)
		}
		return enc.Close()
	}
	return nil
}
