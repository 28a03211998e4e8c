package model_test

import (
	"testing"
	"time"

	"github.com/complykit/audittrail/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestPolicyPriority_Ordering(t *testing.T) {
	tenantCategory := model.PolicyPriority(strPtr("tenant-1"), model.CategoryAuditLog)
	category := model.PolicyPriority(nil, model.CategoryAuditLog)
	tenantDefault := model.PolicyPriority(strPtr("tenant-1"), model.CategoryAll)
	global := model.PolicyPriority(nil, model.CategoryAll)

	assert.Greater(t, tenantCategory, category)
	assert.Greater(t, category, tenantDefault)
	assert.Greater(t, tenantDefault, global)
}

func TestPolicyPriority_EmptyTenantIsGlobal(t *testing.T) {
	assert.Equal(t, model.PriorityCategory, model.PolicyPriority(strPtr(""), model.CategoryAuditLog))
}

func TestRetentionPolicy_Cutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := model.RetentionPolicy{RetentionDays: 365}
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), p.Cutoff(now))
}

func TestAuditLogEntry_CloneIsDeep(t *testing.T) {
	orig := model.AuditLogEntry{
		ID:         "e1",
		Changes:    []model.Change{model.NewChange("role", "viewer", "admin")},
		ChangeNote: strPtr("promoted"),
	}
	clone := orig.Clone()
	*clone.Changes[0].NewValue = "owner"
	*clone.ChangeNote = "edited"
	clone.Changes[0].Field = "other"

	assert.Equal(t, "admin", *orig.Changes[0].NewValue)
	assert.Equal(t, "promoted", *orig.ChangeNote)
	assert.Equal(t, "role", orig.Changes[0].Field)
}

func TestDeletionReport_ContentOmitsSignature(t *testing.T) {
	deleted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := model.DeletionReport{
		DataCategory: model.CategoryAuditLog,
		TenantID:     strPtr("tenant-1"),
		RecordCount:  5,
		DeletedAt:    deleted,
		Signature:    "sig",
		ContentHash:  "hash",
	}
	c := r.Content()
	require.Equal(t, "tenant-1", c.TenantID)
	assert.Equal(t, 5, c.RecordCount)
	assert.Equal(t, deleted, c.DeletedAt)
}
