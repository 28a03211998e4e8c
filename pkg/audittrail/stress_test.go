package audittrail_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/model"
)

// TestStress_ConcurrentAppendsSurviveCleanupAndReopen runs concurrent writers
// against a persistent trail while readers verify and export, then expires
// everything and checks the journal replays to the same chain.
//
// Run with: go test -run Stress -v ./pkg/audittrail/
func TestStress_ConcurrentAppendsSurviveCleanupAndReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}
	const writers, perWriter = 8, 250

	home := t.TempDir()
	t.Setenv("AUDITTRAIL_SIGNING_KEY", testKey())
	c := &clock{t: now.Add(-400 * day)}
	opts := audittrail.Options{Clock: c.Now, Logger: logging.Discard()}

	trail, err := audittrail.Open(home, opts)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, writers+2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := trail.Append(roleChange(fmt.Sprintf("u-%d-%d", w, i))); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if ok, msg := trail.VerifyChain(); !ok {
					errs <- fmt.Errorf("chain broken mid-run: %s", msg)
					return
				}
				if _, err := trail.GenerateTamperEvidentExport(context.Background(), audittrail.ExportRequest{RequestedBy: "auditor"}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, writers*perWriter, len(trail.Query(audittrail.QueryFilter{Action: "assign-user-roles"})))

	_, err = trail.CreateRetentionPolicy(audittrail.PolicyRequest{
		DataCategory:  model.CategoryAll,
		RetentionDays: 30,
		AllowDeletion: true,
		CreatedBy:     "admin-1",
	})
	require.NoError(t, err)

	c.Set(now)
	res, err := trail.RunCleanup(context.Background(), audittrail.CleanupRequest{InitiatedBy: "ops"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.RecordsDeleted, writers*perWriter)
	assert.Empty(t, trail.Query(audittrail.QueryFilter{Action: "assign-user-roles"}))

	ok, msg := trail.VerifyChain()
	require.True(t, ok, msg)
	wantLen, wantHash := trail.Len(), trail.LastHash()
	require.NoError(t, trail.Close())

	reopened, err := audittrail.Open(home, opts)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, wantLen, reopened.Len())
	assert.Equal(t, wantHash, reopened.LastHash())
	ok, msg = reopened.VerifyChain()
	assert.True(t, ok, msg)
	assert.Contains(t, msg, "documented gap")
	for _, r := range reopened.GetDeletionReports(nil) {
		assert.NoError(t, reopened.VerifyDeletionReport(r))
	}
}
