package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/model"
)

var (
	appendAction     string
	appendEntityType string
	appendEntityID   string
	appendUser       string
	appendUserName   string
	appendChanges    []string
	appendNote       string
	appendTenant     string
	appendCategory   string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Record an audit entry",
	Long: `Record an audit entry and link it into the hash chain.

Changes are given as field=old->new; either side may be empty.

Examples:
  audittrail append --action assign-user-roles --entity-type user --entity-id u-42 \
      --user admin-1 --change roles=viewer->editor
  audittrail append --action delete-invoice --entity-type invoice --entity-id inv-7 \
      --user ops --tenant acme --category billing --note "duplicate"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		draft := model.DraftEntry{
			Action:       appendAction,
			EntityType:   appendEntityType,
			EntityID:     appendEntityID,
			UserID:       appendUser,
			UserName:     appendUserName,
			ChangeNote:   optional(appendNote),
			TenantID:     appendTenant,
			DataCategory: appendCategory,
		}
		for _, c := range appendChanges {
			field, oldValue, newValue, err := parseChange(c)
			if err != nil {
				return err
			}
			draft.Changes = append(draft.Changes, model.NewChange(field, oldValue, newValue))
		}

		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		entry, err := trail.Append(draft)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}

		if jsonOutput {
			return outputJSON(entry)
		}
		fmt.Printf("Recorded %s %s\n", color.ID(entry.ID), color.Hash(entry.EntryHash))
		return nil
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendAction, "action", "", "action performed (required)")
	appendCmd.Flags().StringVar(&appendEntityType, "entity-type", "", "type of the affected entity (required)")
	appendCmd.Flags().StringVar(&appendEntityID, "entity-id", "", "id of the affected entity (required)")
	appendCmd.Flags().StringVar(&appendUser, "user", currentUser(), "acting user id")
	appendCmd.Flags().StringVar(&appendUserName, "user-name", "", "acting user display name")
	appendCmd.Flags().StringArrayVar(&appendChanges, "change", nil, "field change as field=old->new (repeatable)")
	appendCmd.Flags().StringVar(&appendNote, "note", "", "free-text change note")
	appendCmd.Flags().StringVar(&appendTenant, "tenant", "", "tenant the entry belongs to")
	appendCmd.Flags().StringVar(&appendCategory, "category", "", "data category (default from config)")
	rootCmd.AddCommand(appendCmd)
}
