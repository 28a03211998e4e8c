package metrics_test

import (
	"testing"
	"time"

	"github.com/complykit/audittrail/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func familyNames(t *testing.T, r *metrics.Registry) map[string]bool {
	t.Helper()
	families, err := r.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestRegistryRecords(t *testing.T) {
	r := metrics.NewRegistry("test")

	r.RecordAppend()
	r.RecordAppend()
	r.RecordVerification(true)
	r.RecordVerification(false)
	r.RecordCleanupRun(false, true, 20*time.Millisecond)
	r.RecordCleanupCategory("audit-log", 5, 5)
	r.RecordDeletionReport("audit-log")
	r.RecordExport(true, time.Millisecond)

	names := familyNames(t, r)
	assert.True(t, names["test_ledger_appends_total"])
	assert.True(t, names["test_cleanup_records_deleted_total"])
	assert.True(t, names["test_export_duration_seconds"])

	n, err := testutil.GatherAndCount(r.Registerer(), "test_ledger_verifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.RecordAppend()
		r.RecordVerification(true)
		r.RecordCleanupRun(true, true, time.Second)
		r.RecordCleanupCategory("x", 1, 0)
		r.RecordDeletionReport("x")
		r.RecordExport(false, time.Second)
	})
	families, err := r.Gather()
	assert.NoError(t, err)
	assert.Nil(t, families)
}

func TestDefault(t *testing.T) {
	r := metrics.Default()
	require.NotNil(t, r)
	assert.True(t, metrics.Enabled())
	assert.Same(t, r, metrics.Default())
}
