package audit_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func draft(action, entityID, userID string) model.DraftEntry {
	return model.DraftEntry{
		Action:     action,
		EntityType: "user",
		EntityID:   entityID,
		UserID:     userID,
		UserName:   "Test User",
	}
}

func appendN(t *testing.T, l *audit.Ledger, n int, d model.DraftEntry) []model.AuditLogEntry {
	t.Helper()
	out := make([]model.AuditLogEntry, n)
	for i := range out {
		e, err := l.Append(d)
		require.NoError(t, err)
		out[i] = e
	}
	return out
}

func TestAppend_FirstEntryHasNoPrevious(t *testing.T) {
	l := audit.New()
	e, err := l.Append(draft("login", "u-1", "user-1"))
	require.NoError(t, err)

	assert.Empty(t, e.PreviousEntryHash)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, audit.Hash(e), e.EntryHash)
	assert.Equal(t, model.CategoryAuditLog, e.DataCategory)
}

func TestAppend_AssignUserRolesScenario(t *testing.T) {
	l := audit.New(audit.WithClock(stepClock(epoch)))
	appendN(t, l, 5, draft("assign-user-roles", "u-2", "user-1"))
	l.Append(draft("login", "u-3", "user-2"))

	got := l.Query(audit.Filter{Action: "assign-user-roles", Order: audit.Chronological})
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, "user-1", e.UserID)
		assert.Equal(t, audit.Hash(e), e.EntryHash)
		if i > 0 {
			assert.Equal(t, got[i-1].EntryHash, e.PreviousEntryHash)
		}
	}
	assert.Empty(t, got[0].PreviousEntryHash)

	valid, _ := audit.VerifyChain(got)
	assert.True(t, valid)
}

func TestAppend_Validation(t *testing.T) {
	l := audit.New()
	cases := []model.DraftEntry{
		{EntityType: "x", EntityID: "1", UserID: "u"},
		{Action: "a", EntityID: "1", UserID: "u"},
		{Action: "a", EntityType: "x", UserID: "u"},
		{Action: "a", EntityType: "x", EntityID: "1"},
		{Action: "a", EntityType: "x", EntityID: "1", UserID: "u", DataCategory: "bad category"},
		{Action: "a", EntityType: "x", EntityID: "1", UserID: "u", TenantID: "bad/tenant"},
	}
	for _, d := range cases {
		_, err := l.Append(d)
		assert.True(t, errors.Is(err, errclass.ErrValidation), "%+v", d)
	}
	assert.Zero(t, l.Len())
}

func TestAppend_TimestampNeverDecreases(t *testing.T) {
	times := []time.Time{epoch, epoch.Add(-time.Hour), epoch.Add(time.Minute)}
	i := 0
	l := audit.New(audit.WithClock(func() time.Time { t := times[i]; i++; return t }))

	entries := appendN(t, l, 3, draft("a", "e", "u"))
	assert.Equal(t, epoch, entries[0].Timestamp)
	assert.Equal(t, epoch, entries[1].Timestamp)
	assert.Equal(t, epoch.Add(time.Minute), entries[2].Timestamp)
}

func TestAppend_ReturnsCopy(t *testing.T) {
	l := audit.New()
	d := draft("update", "e-1", "u")
	d.Changes = []model.Change{model.NewChange("name", "a", "b")}
	e, err := l.Append(d)
	require.NoError(t, err)

	*d.Changes[0].NewValue = "mutated"
	e.Changes[0].Field = "mutated"
	e.EntryHash = "forged"

	stored, err := l.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "name", stored.Changes[0].Field)
	assert.Equal(t, "b", *stored.Changes[0].NewValue)
	assert.Equal(t, audit.Hash(stored), stored.EntryHash)
}

func TestAppend_ConcurrentNeverForks(t *testing.T) {
	l := audit.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := l.Append(draft("concurrent", "e", "u"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	entries := l.Entries()
	require.Len(t, entries, 200)
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.False(t, seen[e.PreviousEntryHash], "two entries link to %q", e.PreviousEntryHash)
		seen[e.PreviousEntryHash] = true
	}
	valid, msg := l.VerifyChain()
	assert.True(t, valid, msg)
}

func TestQuery_FiltersAndOrder(t *testing.T) {
	l := audit.New(audit.WithClock(stepClock(epoch)))
	l.Append(draft("create", "doc-1", "alice"))
	l.Append(draft("update", "doc-1", "bob"))
	l.Append(draft("update", "doc-2", "alice"))
	tenanted := draft("update", "doc-3", "alice")
	tenanted.TenantID = "tenant-1"
	tenanted.DataCategory = "evidence"
	l.Append(tenanted)

	newest := l.Query(audit.Filter{})
	require.Len(t, newest, 4)
	assert.Equal(t, "doc-3", newest[0].EntityID)
	assert.Equal(t, "doc-1", newest[3].EntityID)

	assert.Len(t, l.Query(audit.Filter{Action: "update", UserID: "alice"}), 2)
	assert.Len(t, l.Query(audit.Filter{EntityID: "doc-1"}), 2)
	assert.Len(t, l.Query(audit.Filter{TenantID: "tenant-1"}), 1)
	assert.Len(t, l.Query(audit.Filter{DataCategory: "evidence"}), 1)
	assert.Len(t, l.Query(audit.Filter{Since: epoch.Add(time.Second), Until: epoch.Add(3 * time.Second)}), 2)
	assert.Len(t, l.Query(audit.Filter{Limit: 3}), 3)
	assert.Empty(t, l.Query(audit.Filter{EntityType: "nothing"}))

	chrono := l.Query(audit.Filter{Order: audit.Chronological})
	assert.Equal(t, "doc-1", chrono[0].EntityID)
}

func TestGet_NotFound(t *testing.T) {
	_, err := audit.New().Get("missing")
	assert.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	l := audit.New()
	entries := appendN(t, l, 4, draft("a", "e", "u"))

	tampered := append([]model.AuditLogEntry(nil), entries...)
	tampered[2].UserID = "mallory"
	valid, msg := audit.VerifyChain(tampered)
	assert.False(t, valid)
	assert.Contains(t, msg, entries[2].ID)

	relinked := append([]model.AuditLogEntry(nil), entries...)
	relinked[2].PreviousEntryHash = entries[0].EntryHash
	relinked[2].EntryHash = audit.Hash(relinked[2])
	valid, msg = audit.VerifyChain(relinked)
	assert.False(t, valid)
	assert.Contains(t, msg, "previous entry hash")

	valid, _ = audit.VerifyChain(nil)
	assert.True(t, valid)
}

func TestVerifyChain_UndocumentedRemovalIsBroken(t *testing.T) {
	l := audit.New()
	entries := appendN(t, l, 4, draft("a", "e", "u"))

	withoutSecond := []model.AuditLogEntry{entries[0], entries[2], entries[3]}
	valid, _ := audit.VerifyChain(withoutSecond)
	assert.False(t, valid)
}

func TestDelete_RecordsGapAndStaysValid(t *testing.T) {
	l := audit.New()
	entries := appendN(t, l, 5, draft("a", "e", "u"))

	n, err := l.Delete([]string{entries[1].ID, entries[2].ID}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, l.Len())

	gaps := l.Gaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, entries[0].EntryHash, gaps[0].PrecedingHash)
	assert.Equal(t, entries[2].EntryHash, gaps[0].TerminalHash)
	assert.Equal(t, 2, gaps[0].RemovedCount)
	assert.Equal(t, []string{"run-1"}, gaps[0].CleanupRunIDs)

	valid, msg := l.VerifyChain()
	assert.True(t, valid, msg)
	assert.Contains(t, msg, "1 documented gap")
}

func TestDelete_AdjacentGapsMerge(t *testing.T) {
	l := audit.New()
	entries := appendN(t, l, 6, draft("a", "e", "u"))

	_, err := l.Delete([]string{entries[0].ID, entries[1].ID}, "run-1")
	require.NoError(t, err)
	_, err = l.Delete([]string{entries[2].ID}, "run-2")
	require.NoError(t, err)
	_, err = l.Delete([]string{entries[4].ID}, "run-2")
	require.NoError(t, err)

	gaps := l.Gaps()
	require.Len(t, gaps, 2)
	assert.Empty(t, gaps[0].PrecedingHash)
	assert.Equal(t, entries[2].EntryHash, gaps[0].TerminalHash)
	assert.Equal(t, 3, gaps[0].RemovedCount)
	assert.Equal(t, []string{"run-1", "run-2"}, gaps[0].CleanupRunIDs)
	assert.Equal(t, entries[3].EntryHash, gaps[1].PrecedingHash)

	valid, msg := l.VerifyChain()
	assert.True(t, valid, msg)
}

func TestDelete_TailPointerSurvives(t *testing.T) {
	l := audit.New()
	entries := appendN(t, l, 3, draft("a", "e", "u"))

	_, err := l.Delete([]string{entries[2].ID}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, entries[2].EntryHash, l.LastHash())

	next, err := l.Append(draft("a", "e", "u"))
	require.NoError(t, err)
	assert.Equal(t, entries[2].EntryHash, next.PreviousEntryHash)

	valid, msg := l.VerifyChain()
	assert.True(t, valid, msg)
}

func TestDelete_UnknownIDsIgnored(t *testing.T) {
	l := audit.New()
	appendN(t, l, 2, draft("a", "e", "u"))

	n, err := l.Delete([]string{"nope"}, "run-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, l.Gaps())
}

func TestAppendOnly_EntriesReturnCopies(t *testing.T) {
	l := audit.New()
	appendN(t, l, 2, draft("a", "e", "u"))

	entries := l.Entries()
	entries[0].EntryHash = "x"
	entries[1].PreviousEntryHash = "y"

	valid, msg := l.VerifyChain()
	assert.True(t, valid, msg)
}

func TestSnapshot_MatchesLedgerState(t *testing.T) {
	l := audit.New(audit.WithClock(stepClock(epoch)))
	entries := appendN(t, l, 4, draft("update", "doc-1", "alice"))
	_, err := l.Append(draft("create", "doc-2", "bob"))
	require.NoError(t, err)
	_, err = l.Delete([]string{entries[0].ID}, "run-1")
	require.NoError(t, err)

	snap := l.Snapshot(audit.Filter{Action: "update", Order: audit.Chronological, Limit: 2})
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, entries[1].ID, snap.Entries[0].ID)
	assert.Equal(t, l.Gaps(), snap.Gaps)
	valid, msg := l.VerifyChain()
	assert.Equal(t, valid, snap.Valid)
	assert.Equal(t, msg, snap.Message)
	assert.True(t, snap.Valid, snap.Message)

	snap.Entries[0].UserID = "mallory"
	got, err := l.Get(entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}
