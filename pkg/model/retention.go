package model

import "time"

// Policy priorities, highest wins during resolution.
const (
	PriorityTenantCategory = 40
	PriorityCategory       = 30
	PriorityTenantDefault  = 20
	PriorityDefault        = 10
)

// RetentionPolicy states how long a data category is kept and whether
// expired records may be deleted.
type RetentionPolicy struct {
	ID            string     `json:"id"`
	TenantID      *string    `json:"tenantId,omitempty"`
	ReportType    *string    `json:"reportType,omitempty"`
	DataCategory  string     `json:"dataCategory"`
	RetentionDays int        `json:"retentionDays"`
	AllowDeletion bool       `json:"allowDeletion"`
	IsActive      bool       `json:"isActive"`
	Priority      int        `json:"priority"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedBy     string     `json:"updatedBy,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// PolicyPriority derives the priority of a (tenant, category) pair.
func PolicyPriority(tenantID *string, dataCategory string) int {
	tenant := tenantID != nil && *tenantID != ""
	switch {
	case dataCategory != CategoryAll && tenant:
		return PriorityTenantCategory
	case dataCategory != CategoryAll:
		return PriorityCategory
	case tenant:
		return PriorityTenantDefault
	default:
		return PriorityDefault
	}
}

// Tenant returns the tenant id or "" for global policies.
func (p RetentionPolicy) Tenant() string {
	if p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}

// Cutoff returns the instant before which records are eligible for deletion.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}
