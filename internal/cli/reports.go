package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/model"
)

var (
	reportsTenant string
	reportsVerify bool
)

type reportView struct {
	model.DeletionReport
	Verified    *bool  `json:"verified,omitempty"`
	VerifyError string `json:"verifyError,omitempty"`
}

var reportsCmd = &cobra.Command{
	Use:   "reports [<report-id>]",
	Short: "List signed deletion reports",
	Long: `List signed deletion reports, newest first.

Reports describe what cleanup removed (category, tenant, count and date
range) without revealing the removed content. Use --verify to recheck each
report's content hash and signature.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		var reports []model.DeletionReport
		if len(args) == 1 {
			r, err := trail.GetDeletionReport(args[0])
			if err != nil {
				return err
			}
			reports = []model.DeletionReport{r}
		} else {
			reports = trail.GetDeletionReports(optional(reportsTenant))
		}

		views := make([]reportView, len(reports))
		failed := 0
		for i, r := range reports {
			views[i] = reportView{DeletionReport: r}
			if !reportsVerify {
				continue
			}
			ok := true
			if err := trail.VerifyDeletionReport(r); err != nil {
				ok = false
				failed++
				views[i].VerifyError = err.Error()
			}
			views[i].Verified = &ok
		}

		if jsonOutput {
			if err := outputJSON(views); err != nil {
				return err
			}
		} else if len(views) == 0 {
			fmt.Println("No deletion reports.")
		} else {
			for _, v := range views {
				printReport(v)
			}
		}

		if failed > 0 {
			return errclass.ErrSignatureInvalid.WithMessagef("%d deletion report(s) failed verification", failed)
		}
		return nil
	},
}

func printReport(v reportView) {
	fmt.Printf("%s  %s\n", color.ID(v.ID), v.DeletedAt.Format(time.RFC3339))
	fmt.Printf("  %s\n", v.DeletionSummary)
	fmt.Printf("  Tenant: %s  Category: %s  Run: %s\n", tenantLabel(v.TenantID), v.DataCategory, v.CleanupRunID)
	fmt.Printf("  Content hash: %s  Signature: %s %s\n", color.Hash(v.ContentHash), v.SignatureAlgorithm, color.Hash(v.Signature))
	switch {
	case v.Verified == nil:
	case *v.Verified:
		fmt.Printf("  %s\n", color.Success("verified"))
	default:
		fmt.Printf("  %s\n", color.Error("FAILED: "+v.VerifyError))
	}
}

func init() {
	reportsCmd.Flags().StringVar(&reportsTenant, "tenant", "", "only reports for this tenant")
	reportsCmd.Flags().BoolVar(&reportsVerify, "verify", false, "verify content hash and signature")
	rootCmd.AddCommand(reportsCmd)
}
