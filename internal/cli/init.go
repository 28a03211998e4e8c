package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/internal/store"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new audit trail",
	Long: `Initialize a new audit trail.

Without --home this creates .audittrail/ in the current directory holding:
  - config.yaml with default settings
  - data/ with the ledger journal and policy/report snapshots
  - format_version file (version 1)

An existing config.yaml is left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		home := homeDir
		if home == "" {
			if env := os.Getenv(HomeEnv); env != "" {
				home = env
			} else {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				home = filepath.Join(cwd, store.HomeDirName)
			}
		}
		home, err := filepath.Abs(home)
		if err != nil {
			return err
		}

		if _, err := os.Stat(filepath.Join(home, config.FileName)); errors.Is(err, fs.ErrNotExist) {
			if err := config.Save(home, config.Default()); err != nil {
				return fmt.Errorf("init: %w", err)
			}
		}
		cfg, err := config.Load(home)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		st, err := store.Open(cfg.ResolveDataDir(home))
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"home":           home,
				"data_dir":       st.Dir,
				"format_version": st.FormatVersion,
				"store_id":       st.StoreID,
			})
		}
		fmt.Printf("Initialized audit trail in %s\n", color.Success(home))
		fmt.Printf("  Data directory: %s\n", st.Dir)
		fmt.Printf("  Next: %s, then set %s\n", code("audittrail keygen"), cfg.Signing.KeyEnv)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
