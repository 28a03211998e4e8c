package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/progress"
)

var (
	cleanupDryRun bool
	cleanupTenant string
	cleanupBy     string
	cleanupByName string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply retention policies",
	Long: `Apply retention policies.

Entries older than their policy's retention period are deleted when the
policy allows deletion. Each deleted group gets a signed deletion report
that is written before anything is removed, and the deletion itself is
recorded in the ledger. Use --dry-run to see what would be deleted.

Examples:
  audittrail cleanup --dry-run
  audittrail cleanup --tenant acme --by scheduler`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bar := progress.NewTerminal("cleanup", 0, !jsonOutput)
		trail, err := openTrail(audittrail.Options{Progress: bar.Callback()})
		if err != nil {
			return err
		}
		defer trail.Close()

		res, err := trail.RunCleanup(context.Background(), audittrail.CleanupRequest{
			DryRun:          cleanupDryRun,
			TenantID:        optional(cleanupTenant),
			InitiatedBy:     cleanupBy,
			InitiatedByName: cleanupByName,
		})
		bar.Done("")
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}

		if jsonOutput {
			return outputJSON(res)
		}
		if res.ErrorMessage != "" {
			fmt.Println(color.Warning(res.ErrorMessage))
			return nil
		}

		verb := "Deleted"
		if res.WasDryRun {
			verb = "Would delete"
		}
		fmt.Printf("Cleanup run %s\n", color.ID(res.RunID))
		for _, c := range res.Categories {
			line := fmt.Sprintf("  %s tenant=%s: %d identified", c.DataCategory, tenantLabel(optional(c.TenantID)), c.RecordsIdentified)
			switch {
			case c.SkipReason != "" && c.RecordsIdentified > 0:
				line += fmt.Sprintf(", skipped (%s)", c.SkipReason)
			case c.RecordsDeleted > 0:
				line += fmt.Sprintf(", %d deleted, report %s", c.RecordsDeleted, color.ID(c.DeletionReportID))
			case c.SkipReason != "":
				line += fmt.Sprintf(" (%s)", c.SkipReason)
			}
			fmt.Println(line)
		}
		fmt.Printf("%s %d of %d identified record(s)\n", verb, deletedOrIdentified(res.WasDryRun, res.RecordsDeleted, res.RecordsIdentified), res.RecordsIdentified)
		return nil
	},
}

func deletedOrIdentified(dryRun bool, deleted, identified int) int {
	if dryRun {
		return identified
	}
	return deleted
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "evaluate without deleting")
	cleanupCmd.Flags().StringVar(&cleanupTenant, "tenant", "", "limit the run to one tenant")
	cleanupCmd.Flags().StringVar(&cleanupBy, "by", currentUser(), "acting user id")
	cleanupCmd.Flags().StringVar(&cleanupByName, "by-name", "", "acting user display name")
	rootCmd.AddCommand(cleanupCmd)
}
