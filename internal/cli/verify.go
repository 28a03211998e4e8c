package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/errclass"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain",
	Long: `Verify the hash chain.

Recomputes every entry hash and checks that each entry links to the one
before it. Breaks left by retention cleanup are accepted only where a gap
record documents them. Exits non-zero when the chain is broken.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		ok, msg := trail.VerifyChain()
		if jsonOutput {
			if err := outputJSON(map[string]any{
				"valid":   ok,
				"message": msg,
				"gaps":    trail.ChainGaps(),
			}); err != nil {
				return err
			}
		} else if ok {
			fmt.Println(color.Success(msg))
		} else {
			fmt.Println(color.Error(msg))
		}

		if !ok {
			return errclass.ErrChainBroken.WithMessage(msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
