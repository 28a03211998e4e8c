// Package audit implements the hash-chained audit ledger.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/complykit/audittrail/pkg/model"
)

const fieldSep = "\x01"

// Canonical returns the exact bytes that are hashed for an entry. EntryHash,
// TenantID and DataCategory are not part of it.
func Canonical(e model.AuditLogEntry) []byte {
	note := ""
	if e.ChangeNote != nil {
		note = *e.ChangeNote
	}
	fields := []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.UserID,
		e.EntityType,
		e.EntityID,
		e.Action,
		renderChanges(e.Changes),
		note,
		e.PreviousEntryHash,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// Hash returns the lowercase hex SHA-256 of the entry's canonical form.
func Hash(e model.AuditLogEntry) string {
	sum := sha256.Sum256(Canonical(e))
	return hex.EncodeToString(sum[:])
}

// renderChanges keeps insertion order; it is part of the hash.
func renderChanges(changes []model.Change) string {
	if len(changes) == 0 {
		return ""
	}
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.Field + "=" + deref(c.OldValue) + "→" + deref(c.NewValue)
	}
	return strings.Join(parts, ";")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
