package audit_test

import (
	"testing"
	"time"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func vectorEntry() model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:         "e-1",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UserID:     "user-1",
		UserName:   "Ada",
		Action:     "assign-user-roles",
		EntityType: "role",
		EntityID:   "r-1",
		Changes:    []model.Change{{Field: "roles", NewValue: strp("admin")}},
	}
}

func TestHash_KnownVector(t *testing.T) {
	e := vectorEntry()
	assert.Equal(t, "e-1\x012026-01-02T03:04:05Z\x01user-1\x01role\x01r-1\x01assign-user-roles\x01roles=→admin\x01\x01",
		string(audit.Canonical(e)))
	assert.Equal(t, "400b6c006113e4d7ae58970e661c82ee5f80b41e525400e8206241d1da031777", audit.Hash(e))
}

func TestHash_KnownVectorWithNoteAndPrevious(t *testing.T) {
	e := model.AuditLogEntry{
		ID:                "e-2",
		Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC),
		UserID:            "user-1",
		Action:            "assign-user-roles",
		EntityType:        "role",
		EntityID:          "r-1",
		Changes:           []model.Change{model.NewChange("a", "x", "y"), {Field: "b"}},
		ChangeNote:        strp("note"),
		PreviousEntryHash: "abc",
	}
	assert.Equal(t, "fb616315f7a832d34f6f1466297ab2be0b2e5fb37169d07cb73861efe5bba674", audit.Hash(e))
}

func TestHash_Deterministic(t *testing.T) {
	a, b := vectorEntry(), vectorEntry()
	assert.Equal(t, audit.Hash(a), audit.Hash(b))
}

func TestHash_IgnoresUnhashedFields(t *testing.T) {
	base := audit.Hash(vectorEntry())

	e := vectorEntry()
	e.EntryHash = "anything"
	e.UserName = "Someone Else"
	e.TenantID = "tenant-9"
	e.DataCategory = "evidence"
	assert.Equal(t, base, audit.Hash(e))
}

func TestHash_TimezoneNormalized(t *testing.T) {
	e := vectorEntry()
	e.Timestamp = e.Timestamp.In(time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, audit.Hash(vectorEntry()), audit.Hash(e))
}

func TestHash_SensitiveToContent(t *testing.T) {
	base := audit.Hash(vectorEntry())
	mutations := map[string]func(*model.AuditLogEntry){
		"id":       func(e *model.AuditLogEntry) { e.ID = "e-x" },
		"time":     func(e *model.AuditLogEntry) { e.Timestamp = e.Timestamp.Add(time.Nanosecond) },
		"user":     func(e *model.AuditLogEntry) { e.UserID = "user-2" },
		"action":   func(e *model.AuditLogEntry) { e.Action = "revoke" },
		"changes":  func(e *model.AuditLogEntry) { e.Changes[0].NewValue = strp("viewer") },
		"note":     func(e *model.AuditLogEntry) { e.ChangeNote = strp("n") },
		"previous": func(e *model.AuditLogEntry) { e.PreviousEntryHash = "ff" },
	}
	for name, mutate := range mutations {
		e := vectorEntry()
		mutate(&e)
		assert.NotEqual(t, base, audit.Hash(e), name)
	}
}

func TestHash_ChangeOrderMatters(t *testing.T) {
	a := vectorEntry()
	a.Changes = []model.Change{model.NewChange("x", "1", "2"), model.NewChange("y", "3", "4")}
	b := vectorEntry()
	b.Changes = []model.Change{model.NewChange("y", "3", "4"), model.NewChange("x", "1", "2")}
	assert.NotEqual(t, audit.Hash(a), audit.Hash(b))
}
