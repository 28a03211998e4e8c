package model

// Reasons a category was not deleted during cleanup.
const (
	SkipNoPolicy           = "no-policy"
	SkipDeletionNotAllowed = "deletion-not-allowed"
	SkipDryRun             = "dry-run"
)

// CategoryOutcome is the cleanup breakdown for one (category, tenant) group.
type CategoryOutcome struct {
	DataCategory      string `json:"dataCategory"`
	TenantID          string `json:"tenantId,omitempty"`
	PolicyID          string `json:"policyId,omitempty"`
	RetentionDays     int    `json:"retentionDays,omitempty"`
	AllowDeletion     bool   `json:"allowDeletion"`
	RecordsIdentified int    `json:"recordsIdentified"`
	RecordsDeleted    int    `json:"recordsDeleted"`
	DeletionReportID  string `json:"deletionReportId,omitempty"`
	SkipReason        string `json:"skipReason,omitempty"`
}

// CleanupResult summarizes one retention cleanup run.
// ErrorMessage is informational; Success stays true for a no-policy run.
type CleanupResult struct {
	RunID             string            `json:"runId"`
	Success           bool              `json:"success"`
	WasDryRun         bool              `json:"wasDryRun"`
	RecordsIdentified int               `json:"recordsIdentified"`
	RecordsDeleted    int               `json:"recordsDeleted"`
	DeletionReportIDs []string          `json:"deletionReportIds"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Categories        []CategoryOutcome `json:"categories,omitempty"`
}
