package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/internal/compression"
	"github.com/complykit/audittrail/internal/export"
	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/model"
)

var (
	exportOutput     string
	exportCompress   string
	exportBy         string
	exportByName     string
	exportEntityType string
	exportEntityID   string
	exportAction     string
	exportUser       string
	verifyPublicKey  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Generate a signed tamper-evident export",
	Long: `Generate a signed tamper-evident export.

The bundle holds the matching entries in ascending timestamp order, the
result of verifying the whole chain, and a signature over its content hash.
Auditors check it with 'audittrail verify-export'.

Examples:
  audittrail export -o audit-2026q3.json --by auditor-1
  audittrail export --entity-type user --entity-id u-42 -o u-42.json
  audittrail export -o audit-2026q3.json.gz --compress max`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		bundle, err := trail.GenerateTamperEvidentExport(context.Background(), audittrail.ExportRequest{
			RequestedBy:     exportBy,
			RequestedByName: exportByName,
			Filter: audittrail.ExportFilter{
				EntityType: exportEntityType,
				EntityID:   exportEntityID,
				Action:     exportAction,
				UserID:     exportUser,
			},
		})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		if exportOutput == "" || exportOutput == "-" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		}
		comp, err := compression.ForPath(exportOutput, exportCompress)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := comp.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("export: %w", err)
		}

		meta := bundle.Metadata
		if jsonOutput {
			return outputJSON(meta)
		}
		fmt.Printf("Exported %d entries to %s\n", meta.EntryCount, color.Success(exportOutput))
		fmt.Printf("  Export:       %s\n", color.ID(meta.ExportID))
		fmt.Printf("  Content hash: %s\n", meta.ContentHash)
		if meta.HashChainValid {
			fmt.Printf("  Chain:        %s\n", color.Success(meta.ValidationMessage))
		} else {
			fmt.Printf("  Chain:        %s\n", color.Error(meta.ValidationMessage))
		}
		return nil
	},
}

var verifyExportCmd = &cobra.Command{
	Use:   "verify-export <file>",
	Short: "Verify an export bundle offline",
	Long: `Verify an export bundle offline.

Recomputes every entry hash, the chain links visible in the bundle, the
content hash and the signature. Ed25519 bundles can be checked with only the
public key (--public-key); HMAC bundles need the trail's signing key.
Gzipped bundles are detected and read transparently.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := compression.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("verify-export: %w", err)
		}
		var bundle model.TamperEvidentExport
		if err := json.Unmarshal(data, &bundle); err != nil {
			return errclass.ErrFormatUnsupported.WithMessagef("%s is not an export bundle: %v", args[0], err)
		}

		var res audittrail.BundleVerification
		if verifyPublicKey != "" {
			v, err := signing.ParsePublicKey(verifyPublicKey)
			if err != nil {
				return err
			}
			res = export.VerifyBundle(bundle, v)
		} else {
			trail, err := openTrail(audittrail.Options{})
			if err != nil {
				return err
			}
			defer trail.Close()
			res = trail.VerifyExport(bundle)
		}

		if jsonOutput {
			if err := outputJSON(res); err != nil {
				return err
			}
		} else {
			printCheck("entry hashes", res.EntryHashesValid)
			printCheck("chain links", res.ChainValid)
			printCheck("content hash", res.ContentHashValid)
			printCheck("signature", res.SignatureValid)
			if res.ChainMessage != "" {
				fmt.Printf("  %s\n", res.ChainMessage)
			}
			for _, p := range res.Problems {
				fmt.Printf("  %s\n", color.Error(p))
			}
		}
		return res.Err()
	},
}

func printCheck(name string, ok bool) {
	status := color.Success("OK")
	if !ok {
		status = color.Error("FAILED")
	}
	fmt.Printf("%-14s %s\n", name, status)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the bundle to this file (default: stdout)")
	exportCmd.Flags().StringVar(&exportCompress, "compress", "", "gzip level for -o: none, fast, default, max (default: by .gz suffix)")
	exportCmd.Flags().StringVar(&exportBy, "by", currentUser(), "requesting user id")
	exportCmd.Flags().StringVar(&exportByName, "by-name", "", "requesting user display name")
	exportCmd.Flags().StringVar(&exportEntityType, "entity-type", "", "filter by entity type")
	exportCmd.Flags().StringVar(&exportEntityID, "entity-id", "", "filter by entity id")
	exportCmd.Flags().StringVar(&exportAction, "action", "", "filter by action")
	exportCmd.Flags().StringVar(&exportUser, "user", "", "filter by acting user id")
	verifyExportCmd.Flags().StringVar(&verifyPublicKey, "public-key", "", "hex Ed25519 public key to verify against")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(verifyExportCmd)
}
