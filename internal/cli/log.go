package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/model"
)

var (
	logEntityType  string
	logEntityID    string
	logAction      string
	logUser        string
	logTenant      string
	logCategory    string
	logSince       string
	logUntil       string
	logLimit       int
	logOldestFirst bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show audit entries",
	Long: `Show audit entries, newest first.

Examples:
  audittrail log --entity-type user --entity-id u-42
  audittrail log --since 2026-01-01 --until 2026-02-01 --oldest-first
  audittrail log --limit 20 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseTime(logSince)
		if err != nil {
			return err
		}
		until, err := parseTime(logUntil)
		if err != nil {
			return err
		}
		f := audittrail.QueryFilter{
			EntityType:   logEntityType,
			EntityID:     logEntityID,
			Action:       logAction,
			UserID:       logUser,
			TenantID:     logTenant,
			DataCategory: logCategory,
			Since:        since,
			Until:        until,
			Limit:        logLimit,
		}
		if logOldestFirst {
			f.Order = audittrail.Chronological
		}

		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		entries := trail.Query(f)
		if jsonOutput {
			return outputJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No entries.")
			return nil
		}
		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

func printEntry(e model.AuditLogEntry) {
	who := e.UserID
	if e.UserName != "" {
		who = fmt.Sprintf("%s (%s)", e.UserName, e.UserID)
	}
	fmt.Printf("%s  %s  %s  %s %s/%s\n",
		color.ID(e.ID), e.Timestamp.Format(time.RFC3339), who, e.Action, e.EntityType, e.EntityID)
	for _, c := range e.Changes {
		fmt.Printf("    %s: %s -> %s\n", c.Field, deref(c.OldValue), deref(c.NewValue))
	}
	if e.ChangeNote != nil && strings.TrimSpace(*e.ChangeNote) != "" {
		fmt.Printf("    note: %s\n", *e.ChangeNote)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	logCmd.Flags().StringVar(&logEntityType, "entity-type", "", "filter by entity type")
	logCmd.Flags().StringVar(&logEntityID, "entity-id", "", "filter by entity id")
	logCmd.Flags().StringVar(&logAction, "action", "", "filter by action")
	logCmd.Flags().StringVar(&logUser, "user", "", "filter by acting user id")
	logCmd.Flags().StringVar(&logTenant, "tenant", "", "filter by tenant")
	logCmd.Flags().StringVar(&logCategory, "category", "", "filter by data category")
	logCmd.Flags().StringVar(&logSince, "since", "", "only entries at or after this time")
	logCmd.Flags().StringVar(&logUntil, "until", "", "only entries before this time")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "maximum number of entries")
	logCmd.Flags().BoolVar(&logOldestFirst, "oldest-first", false, "list in ascending timestamp order")
	rootCmd.AddCommand(logCmd)
}
