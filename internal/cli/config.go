package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/complykit/audittrail/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Inspect trail configuration",
	Long: `Inspect trail configuration stored in <home>/config.yaml.

Configuration options:
  data_dir          - Ledger and snapshot directory, relative to home
  default_category  - Data category for entries that name none
  signing           - algorithm (hmac-sha256, ed25519), key_env, key_id
  logging           - level (debug, info, warn, error), format (json, text)
  metrics           - enabled, namespace
  webhooks          - notification endpoints

Available commands:
  show              - Show the effective configuration`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := resolveHome()
		if err != nil {
			return err
		}
		cfg, err := config.Load(home)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if jsonOutput {
			return outputJSON(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# Location: %s\n", filepath.Join(home, config.FileName))
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
