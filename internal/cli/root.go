package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/color"
)

var (
	jsonOutput bool
	homeDir    string
	noColor    bool
	rootCmd    = &cobra.Command{
		Use:   "audittrail",
		Short: "audittrail - tamper-evident audit trail with retention",
		Long: `audittrail records who changed what in a hash-chained ledger, enforces
retention policies with signed deletion reports, and produces signed
exports that auditors can verify offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "trail home directory (default: $AUDITTRAIL_HOME or nearest .audittrail)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, color.Dimf("  "+hint))
		}
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "audittrail: "
	if color.Enabled() {
		prefix = color.Error("audittrail:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
