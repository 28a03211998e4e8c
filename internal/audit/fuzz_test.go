package audit_test

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/pkg/model"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FuzzAppendVerify appends arbitrary drafts and checks that the chain always
// verifies and that hashes are stable.
//
//	go test -fuzz=FuzzAppendVerify -fuzztime=30s ./internal/audit/
func FuzzAppendVerify(f *testing.F) {
	f.Add("login", "session", "s-1", "u-1", "roles", "viewer", "editor", "")
	f.Add("update", "user", "u-9", "admin", "email", "", "b@x.test", "note")
	f.Add("a\x01b", "\x00", "→", ";", "=", "→", "", "\n")
	f.Add("", "", "", "", "", "", "", "")

	f.Fuzz(func(t *testing.T, action, entityType, entityID, userID, field, oldValue, newValue, note string) {
		l := audit.New()
		draft := model.DraftEntry{
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			UserID:     userID,
			ChangeNote: &note,
		}
		if field != "" {
			draft.Changes = []model.Change{model.NewChange(field, oldValue, newValue)}
		}
		first, err := l.Append(draft)
		if err != nil {
			return
		}
		second, err := l.Append(draft)
		if err != nil {
			t.Fatalf("second append of an accepted draft failed: %v", err)
		}

		if !hexDigest.MatchString(first.EntryHash) {
			t.Fatalf("entry hash %q is not hex SHA-256", first.EntryHash)
		}
		if audit.Hash(first) != first.EntryHash {
			t.Fatal("hash is not reproducible")
		}
		if second.PreviousEntryHash != first.EntryHash {
			t.Fatal("second entry does not link to the first")
		}
		if ok, msg := l.VerifyChain(); !ok {
			t.Fatalf("fresh chain does not verify: %s", msg)
		}
	})
}

// FuzzJournalLoad feeds arbitrary bytes to the journal replay.
func FuzzJournalLoad(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("{}\n"))
	f.Add([]byte(`{"kind":"entry","entry":{"id":"x"}}` + "\n"))
	f.Add([]byte(`{"kind":"gap","gap":{"removedCount":2}}` + "\n" + "not json\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		path := filepath.Join(t.TempDir(), "ledger.jsonl")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		l, err := audit.Open(audit.NewFileJournal(path))
		if err != nil {
			return
		}
		// whatever replayed must answer without panicking
		l.VerifyChain()
		l.Entries()
		l.Gaps()
	})
}
