package model

import "time"

// DeletionReport is metadata-only evidence that a retention cleanup removed
// records. It never carries the removed entries' content.
type DeletionReport struct {
	ID                 string    `json:"id"`
	CleanupRunID       string    `json:"cleanupRunId"`
	DataCategory       string    `json:"dataCategory"`
	TenantID           *string   `json:"tenantId,omitempty"`
	PolicyID           string    `json:"policyId"`
	RetentionDays      int       `json:"retentionDays"`
	DateRangeStart     time.Time `json:"dateRangeStart"`
	DateRangeEnd       time.Time `json:"dateRangeEnd"`
	RecordCount        int       `json:"recordCount"`
	DeletionSummary    string    `json:"deletionSummary"`
	ContentHash        string    `json:"contentHash"`
	Signature          string    `json:"signature"`
	SignatureAlgorithm string    `json:"signatureAlgorithm"`
	KeyID              string    `json:"keyId,omitempty"`
	DeletedAt          time.Time `json:"deletedAt"`
	DeletedBy          string    `json:"deletedBy"`
}

// DeletionReportContent is the exact set of fields covered by a report's
// content hash.
type DeletionReportContent struct {
	DataCategory   string    `json:"dataCategory"`
	TenantID       string    `json:"tenantId"`
	RecordCount    int       `json:"recordCount"`
	DateRangeStart time.Time `json:"dateRangeStart"`
	DateRangeEnd   time.Time `json:"dateRangeEnd"`
	DeletedAt      time.Time `json:"deletedAt"`
}

// Content returns the hashed portion of the report.
func (r DeletionReport) Content() DeletionReportContent {
	tenant := ""
	if r.TenantID != nil {
		tenant = *r.TenantID
	}
	return DeletionReportContent{
		DataCategory:   r.DataCategory,
		TenantID:       tenant,
		RecordCount:    r.RecordCount,
		DateRangeStart: r.DateRangeStart.UTC(),
		DateRangeEnd:   r.DateRangeEnd.UTC(),
		DeletedAt:      r.DeletedAt.UTC(),
	}
}
