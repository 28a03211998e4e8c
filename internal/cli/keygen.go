package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/pkg/errclass"
)

var keygenAlgorithm string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate signing key material",
	Long: `Generate signing key material.

Prints a fresh hex key for the environment variable named by signing.key_env
in config.yaml. For ed25519 the public key is printed too; hand it to
auditors so they can verify exports without the private key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := signing.GenerateKey()
		if err != nil {
			return err
		}

		out := map[string]string{"algorithm": strings.ToLower(keygenAlgorithm), "key": key}
		switch out["algorithm"] {
		case signing.ConfigHMAC:
		case signing.ConfigEd25519:
			seed, _ := hex.DecodeString(key)
			kp, err := signing.NewEd25519(seed, "")
			if err != nil {
				return err
			}
			pub, _ := signing.PublicKeyHex(kp)
			out["public_key"] = pub
		default:
			return errclass.ErrValidation.WithMessagef("unsupported algorithm %q", keygenAlgorithm)
		}

		if jsonOutput {
			return outputJSON(out)
		}
		fmt.Printf("AUDITTRAIL_SIGNING_KEY=%s\n", key)
		if pub, ok := out["public_key"]; ok {
			fmt.Printf("# public key: %s\n", pub)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenAlgorithm, "algorithm", signing.ConfigHMAC, "hmac-sha256 or ed25519")
	rootCmd.AddCommand(keygenCmd)
}
