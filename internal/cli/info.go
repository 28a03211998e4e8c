package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show trail information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		gaps := trail.ChainGaps()
		removed := 0
		for _, g := range gaps {
			removed += g.RemovedCount
		}
		info := map[string]any{
			"home":               trail.Home(),
			"data_dir":           trail.DataDir(),
			"entry_count":        trail.Len(),
			"last_hash":          trail.LastHash(),
			"gap_count":          len(gaps),
			"removed_count":      removed,
			"active_policies":    len(trail.GetRetentionPolicies(true)),
			"deletion_reports":   len(trail.GetDeletionReports(nil)),
			"signing_algorithm":  trail.Signer().Algorithm(),
			"signing_key_id":     trail.Signer().KeyID(),
			"default_category":   trail.Config().DefaultCategory,
			"metrics_registered": trail.Metrics() != nil,
		}

		if jsonOutput {
			return outputJSON(info)
		}

		fmt.Printf("Trail: %s\n", trail.Home())
		fmt.Printf("  Data directory:   %s\n", trail.DataDir())
		fmt.Printf("  Entries:          %d\n", info["entry_count"])
		fmt.Printf("  Last hash:        %s\n", info["last_hash"])
		fmt.Printf("  Retention gaps:   %d (%d entries removed)\n", len(gaps), removed)
		fmt.Printf("  Active policies:  %d\n", info["active_policies"])
		fmt.Printf("  Deletion reports: %d\n", info["deletion_reports"])
		fmt.Printf("  Signing:          %s %s\n", info["signing_algorithm"], info["signing_key_id"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
