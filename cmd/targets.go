package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var targetsConfigPath string

// targetsCmd lists the device presets --target can name. Output is YAML in
// the same format --target-config accepts, so it doubles as a template.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the device presets available to --target",
	Long:  "Print the device presets (resource units per device and memory budget per unit) as YAML. Output is written to stdout for piping into a --target-config file.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := DefaultTargetConfig()
		if targetsConfigPath != "" {
			loaded, err := LoadTargetConfig(targetsConfigPath)
			if err != nil {
				logrus.Fatalf("Loading target config: %v", err)
			}
			cfg = loaded
		}
		writeTargetsToStdout(cfg)
	},
}

// writeTargetsToStdout marshals the presets to YAML and writes to stdout.
func writeTargetsToStdout(cfg *TargetConfig) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		logrus.Fatalf("YAML marshal failed: %v", err)
	}
	fmt.Print(string(data))
}

func init() {
	targetsCmd.Flags().StringVar(&targetsConfigPath, "target-config", "", "YAML file with device presets (default: built-in presets)")

	rootCmd.AddCommand(targetsCmd)
}
