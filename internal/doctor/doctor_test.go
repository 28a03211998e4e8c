package doctor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/audittrail/internal/doctor"
	"github.com/complykit/audittrail/internal/store"
	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/config"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/model"
)

func setupTrail(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("AUDITTRAIL_SIGNING_KEY", strings.Repeat("cd", 32))

	now := time.Now()
	clock := func() time.Time { return now }
	trail, err := audittrail.Open(home, audittrail.Options{Clock: clock, Logger: logging.Discard()})
	require.NoError(t, err)
	for _, u := range []string{"u-1", "u-2"} {
		_, err := trail.Append(model.DraftEntry{Action: "assign-user-roles", EntityType: "user", EntityID: u, UserID: "admin"})
		require.NoError(t, err)
	}
	now = now.Add(48 * time.Hour)
	_, err = trail.CreateRetentionPolicy(audittrail.PolicyRequest{
		DataCategory:  model.CategoryAuditLog,
		RetentionDays: 1,
		AllowDeletion: true,
		CreatedBy:     "admin",
	})
	require.NoError(t, err)
	res, err := trail.RunCleanup(context.Background(), audittrail.CleanupRequest{InitiatedBy: "ops"})
	require.NoError(t, err)
	require.Equal(t, 2, res.RecordsDeleted)
	_, err = trail.Append(model.DraftEntry{Action: "assign-user-roles", EntityType: "user", EntityID: "u-3", UserID: "admin"})
	require.NoError(t, err)
	require.NoError(t, trail.Close())
	return home
}

func dataDir(home string) string {
	return filepath.Join(home, config.Default().DataDir)
}

func rewrite(t *testing.T, path, old, new string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), old)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), old, new, 1)), 0o644))
}

func TestDoctor_Check_Healthy(t *testing.T) {
	home := setupTrail(t)

	result, err := doctor.NewDoctor(home).Check(true)
	require.NoError(t, err)
	assert.True(t, result.Healthy, result.Findings)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_Uninitialized(t *testing.T) {
	result, err := doctor.NewDoctor(t.TempDir()).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "format", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityWarning, result.Findings[0].Severity)
}

func TestDoctor_Check_BadConfig(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte("logging:\n  format: xml\n"), 0o644))

	result, err := doctor.NewDoctor(home).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, "config", result.Findings[0].Category)
}

func TestDoctor_Check_MissingKey(t *testing.T) {
	home := setupTrail(t)
	t.Setenv("AUDITTRAIL_SIGNING_KEY", "")

	result, err := doctor.NewDoctor(home).Check(true)
	require.NoError(t, err)
	assert.True(t, result.Healthy)

	categories := map[string]string{}
	for _, f := range result.Findings {
		categories[f.Category] = f.Severity
	}
	assert.Equal(t, doctor.SeverityWarning, categories["signing"])
	assert.Equal(t, doctor.SeverityInfo, categories["reports"])
}

func TestDoctor_Check_TamperedEntry(t *testing.T) {
	home := setupTrail(t)
	rewrite(t, filepath.Join(dataDir(home), store.LedgerFile), `"entityId":"u-3"`, `"entityId":"u-4"`)

	result, err := doctor.NewDoctor(home).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.NotEmpty(t, result.Findings)
	assert.Equal(t, "integrity", result.Findings[0].Category)
	assert.Contains(t, result.Findings[0].Description, "entry hash does not match its content")
}

func TestDoctor_Check_CorruptJournal(t *testing.T) {
	home := setupTrail(t)
	f, err := os.OpenFile(filepath.Join(dataDir(home), store.LedgerFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result, err := doctor.NewDoctor(home).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, "ledger", result.Findings[0].Category)
}

func TestDoctor_Check_TamperedReport(t *testing.T) {
	home := setupTrail(t)
	rewrite(t, filepath.Join(dataDir(home), store.ReportsFile), `"recordCount": 2`, `"recordCount": 1`)

	lenient, err := doctor.NewDoctor(home).Check(false)
	require.NoError(t, err)
	assert.True(t, lenient.Healthy)

	strict, err := doctor.NewDoctor(home).Check(true)
	require.NoError(t, err)
	assert.False(t, strict.Healthy)
	require.Len(t, strict.Findings, 1)
	assert.Equal(t, "reports", strict.Findings[0].Category)
	assert.Equal(t, doctor.SeverityCritical, strict.Findings[0].Severity)
}

func TestDoctor_Check_OrphanTmp(t *testing.T) {
	home := setupTrail(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir(home), ".audittrail-tmp-123"), []byte("x"), 0o644))

	result, err := doctor.NewDoctor(home).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "tmp", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityInfo, result.Findings[0].Severity)
}
