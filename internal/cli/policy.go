package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/color"
	"github.com/complykit/audittrail/pkg/model"
)

var (
	policyTenant        string
	policyCategory      string
	policyReportType    string
	policyDays          int
	policyAllowDeletion bool
	policyBy            string
	policyByName        string
	policyListAll       bool
)

var policyCmd = &cobra.Command{
	Use:   "policy <command>",
	Short: "Manage retention policies",
	Long: `Manage retention policies.

A policy keeps a data category for a number of days, for one tenant or
globally. The category "all" covers every category. When several policies
match, the most specific wins: tenant and category, then category, then
tenant default, then global default.

Available commands:
  create      - Create a policy
  update      - Change a policy's retention period and deletion flag
  deactivate  - Retire a policy
  resolve     - Show the policy that applies to a category and tenant
  list        - List policies`,
	DisableFlagsInUseLine: true,
}

var policyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a retention policy",
	Long: `Create a retention policy.

Examples:
  audittrail policy create --category audit-log --days 365 --allow-deletion
  audittrail policy create --category all --days 730 --tenant acme`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		p, err := trail.CreateRetentionPolicy(audittrail.PolicyRequest{
			TenantID:      optional(policyTenant),
			ReportType:    optional(policyReportType),
			DataCategory:  policyCategory,
			RetentionDays: policyDays,
			AllowDeletion: policyAllowDeletion,
			CreatedBy:     policyBy,
			CreatedByName: policyByName,
		})
		if err != nil {
			return fmt.Errorf("policy create: %w", err)
		}
		if jsonOutput {
			return outputJSON(p)
		}
		fmt.Printf("Created policy %s\n", color.ID(p.ID))
		printPolicy(p)
		return nil
	},
}

var policyUpdateCmd = &cobra.Command{
	Use:   "update <policy-id>",
	Short: "Update a retention policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		days := policyDays
		allow := policyAllowDeletion
		if !cmd.Flags().Changed("days") || !cmd.Flags().Changed("allow-deletion") {
			for _, p := range trail.GetRetentionPolicies(false) {
				if p.ID != args[0] {
					continue
				}
				if !cmd.Flags().Changed("days") {
					days = p.RetentionDays
				}
				if !cmd.Flags().Changed("allow-deletion") {
					allow = p.AllowDeletion
				}
			}
		}

		p, err := trail.UpdateRetentionPolicy(args[0], days, allow, policyBy)
		if err != nil {
			return fmt.Errorf("policy update: %w", err)
		}
		if jsonOutput {
			return outputJSON(p)
		}
		fmt.Printf("Updated policy %s\n", color.ID(p.ID))
		printPolicy(p)
		return nil
	},
}

var policyDeactivateCmd = &cobra.Command{
	Use:   "deactivate <policy-id>",
	Short: "Deactivate a retention policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		if err := trail.DeactivateRetentionPolicy(args[0], policyBy); err != nil {
			return fmt.Errorf("policy deactivate: %w", err)
		}
		if jsonOutput {
			return outputJSON(map[string]any{"id": args[0], "isActive": false})
		}
		fmt.Printf("Deactivated policy %s\n", color.ID(args[0]))
		return nil
	},
}

var policyResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the policy that applies to a category and tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		p := trail.GetApplicableRetentionPolicy(policyCategory, optional(policyTenant))
		if jsonOutput {
			return outputJSON(p)
		}
		if p == nil {
			fmt.Println("No applicable policy: entries are kept indefinitely.")
			return nil
		}
		fmt.Printf("Policy %s\n", color.ID(p.ID))
		printPolicy(*p)
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retention policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		policies := trail.GetRetentionPolicies(!policyListAll)
		if jsonOutput {
			return outputJSON(policies)
		}
		if len(policies) == 0 {
			fmt.Println("No policies.")
			return nil
		}
		for _, p := range policies {
			state := color.Success("active")
			if !p.IsActive {
				state = color.Dimf("inactive")
			}
			fmt.Printf("%s  %s  %s  tenant=%s  %d days  deletion=%t\n",
				color.ID(p.ID), state, p.DataCategory, tenantLabel(p.TenantID), p.RetentionDays, p.AllowDeletion)
		}
		return nil
	},
}

func printPolicy(p model.RetentionPolicy) {
	fmt.Printf("  Category:       %s\n", p.DataCategory)
	fmt.Printf("  Tenant:         %s\n", tenantLabel(p.TenantID))
	fmt.Printf("  Retention:      %d days\n", p.RetentionDays)
	fmt.Printf("  Allow deletion: %t\n", p.AllowDeletion)
	fmt.Printf("  Priority:       %d\n", p.Priority)
	fmt.Printf("  Active:         %t\n", p.IsActive)
}

func tenantLabel(t *string) string {
	if t == nil || *t == "" {
		return "(global)"
	}
	return *t
}

func init() {
	for _, c := range []*cobra.Command{policyCreateCmd, policyUpdateCmd, policyDeactivateCmd} {
		c.Flags().StringVar(&policyBy, "by", currentUser(), "acting user id")
	}
	policyCreateCmd.Flags().StringVar(&policyByName, "by-name", "", "acting user display name")
	for _, c := range []*cobra.Command{policyCreateCmd, policyResolveCmd} {
		c.Flags().StringVar(&policyTenant, "tenant", "", "tenant id (default: global)")
		c.Flags().StringVar(&policyCategory, "category", model.CategoryAuditLog, "data category, or \"all\"")
	}
	policyCreateCmd.Flags().StringVar(&policyReportType, "report-type", "", "report type label")
	for _, c := range []*cobra.Command{policyCreateCmd, policyUpdateCmd} {
		c.Flags().IntVar(&policyDays, "days", 0, "retention period in days")
		c.Flags().BoolVar(&policyAllowDeletion, "allow-deletion", false, "allow cleanup to delete expired entries")
	}
	policyListCmd.Flags().BoolVar(&policyListAll, "all", false, "include inactive policies")

	policyCmd.AddCommand(policyCreateCmd)
	policyCmd.AddCommand(policyUpdateCmd)
	policyCmd.AddCommand(policyDeactivateCmd)
	policyCmd.AddCommand(policyResolveCmd)
	policyCmd.AddCommand(policyListCmd)
	rootCmd.AddCommand(policyCmd)
}
