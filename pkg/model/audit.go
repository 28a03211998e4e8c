package model

import "time"

// Well-known data categories.
const (
	CategoryAuditLog = "audit-log"
	CategoryAll      = "all"
)

// Actions the trail records about itself.
const (
	ActionCreateRetentionPolicy     = "create-retention-policy"
	ActionUpdateRetentionPolicy     = "update-retention-policy"
	ActionDeactivateRetentionPolicy = "deactivate-retention-policy"
	ActionCreateDeletionReport      = "create-deletion-report"
)

// Entity types the trail records about itself.
const (
	EntityRetentionPolicy = "retention-policy"
	EntityDeletionReport  = "deletion-report"
)

// Change is a single field diff recorded with an entry.
// Nil values render as empty strings in the canonical form.
type Change struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue,omitempty"`
	NewValue *string `json:"newValue,omitempty"`
}

// NewChange builds a Change with both values set.
func NewChange(field, oldValue, newValue string) Change {
	return Change{Field: field, OldValue: &oldValue, NewValue: &newValue}
}

// AuditLogEntry is one link of the ledger's hash chain. Immutable once appended.
type AuditLogEntry struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"userId"`
	UserName          string    `json:"userName"`
	Action            string    `json:"action"`
	EntityType        string    `json:"entityType"`
	EntityID          string    `json:"entityId"`
	Changes           []Change  `json:"changes"`
	ChangeNote        *string   `json:"changeNote,omitempty"`
	TenantID          string    `json:"tenantId,omitempty"`
	DataCategory      string    `json:"dataCategory"`
	EntryHash         string    `json:"entryHash"`
	PreviousEntryHash string    `json:"previousEntryHash,omitempty"`
}

// Clone returns a deep copy so callers cannot reach ledger-owned memory.
func (e AuditLogEntry) Clone() AuditLogEntry {
	out := e
	if e.Changes != nil {
		out.Changes = make([]Change, len(e.Changes))
		for i, c := range e.Changes {
			out.Changes[i] = Change{Field: c.Field, OldValue: cloneString(c.OldValue), NewValue: cloneString(c.NewValue)}
		}
	}
	out.ChangeNote = cloneString(e.ChangeNote)
	return out
}

// DraftEntry is what domain callers hand to the ledger.
type DraftEntry struct {
	Action       string
	EntityType   string
	EntityID     string
	UserID       string
	UserName     string
	Changes      []Change
	ChangeNote   *string
	TenantID     string
	DataCategory string
}

// ChainGap documents a run of entries removed by retention cleanup.
// PrecedingHash is empty when the run started at the first entry ever appended.
type ChainGap struct {
	PrecedingHash string   `json:"precedingHash"`
	TerminalHash  string   `json:"terminalHash"`
	RemovedCount  int      `json:"removedCount"`
	CleanupRunIDs []string `json:"cleanupRunIds,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
