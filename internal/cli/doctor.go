package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/internal/doctor"
	"github.com/complykit/audittrail/pkg/color"
)

var (
	doctorStrict bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check trail health",
	Long: `Check trail health.

Checks the config, the data format version, that the ledger journal replays
and its hash chain verifies, that a signing key is configured, and that the
policy and report snapshots are readable. Use --strict to also verify every
deletion report signature.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := resolveHome()
		if err != nil {
			return err
		}

		result, err := doctor.NewDoctor(home).Check(doctorStrict)
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Println(color.Success("Trail is healthy."))
		} else {
			fmt.Printf("Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				fmt.Printf("  [%s] %s: %s\n", severity(f.Severity), f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return fmt.Errorf("trail is unhealthy")
		}
		return nil
	},
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return s
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "also verify deletion report signatures")
	rootCmd.AddCommand(doctorCmd)
}
