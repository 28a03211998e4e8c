package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/audittrail/pkg/model"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, model.CategoryAuditLog, cfg.DefaultCategory)
	assert.Equal(t, "hmac-sha256", cfg.Signing.Algorithm)
	assert.Equal(t, "AUDITTRAIL_SIGNING_KEY", cfg.Signing.KeyEnv)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Nil(t, cfg.Webhooks)
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Exists(t *testing.T) {
	home := t.TempDir()
	content := `
data_dir: /var/lib/audittrail
signing:
  algorithm: ed25519
  key_env: REPORT_KEY
  key_id: k-2026
logging:
  level: debug
  format: json
webhooks:
  enabled: true
  max_retries: 2
  retry_delay: 250ms
  hooks:
    - url: https://hooks.example.test/audit
      events: ["deletion_report.created"]
      enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(content), 0o644))

	cfg, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/audittrail", cfg.DataDir)
	assert.Equal(t, "ed25519", cfg.Signing.Algorithm)
	assert.Equal(t, "REPORT_KEY", cfg.Signing.KeyEnv)
	assert.Equal(t, "k-2026", cfg.Signing.KeyID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep defaults
	assert.Equal(t, model.CategoryAuditLog, cfg.DefaultCategory)

	require.NotNil(t, cfg.Webhooks)
	assert.Equal(t, 2, cfg.Webhooks.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Webhooks.RetryDelay)
	require.Len(t, cfg.Webhooks.Hooks, 1)
	assert.Equal(t, "https://hooks.example.test/audit", cfg.Webhooks.Hooks[0].URL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("signing: [unclosed"), 0o644))

	_, err := Load(home)
	assert.Error(t, err)
}

func TestLoad_UnsupportedAlgorithm(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("signing:\n  algorithm: rsa\n"), 0o644))

	_, err := Load(home)
	assert.ErrorContains(t, err, "unsupported signing algorithm")
}

func TestSaveThenLoad(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested")
	cfg := Default()
	cfg.DataDir = "ledger"
	cfg.Logging.Level = "warn"

	require.NoError(t, Save(home, cfg))

	loaded, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, "ledger", loaded.DataDir)
	assert.Equal(t, "warn", loaded.Logging.Level)
}

func TestResolveDataDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/home/x", "data"), cfg.ResolveDataDir("/home/x"))

	cfg.DataDir = "/abs"
	assert.Equal(t, "/abs", cfg.ResolveDataDir("/home/x"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("AUDITTRAIL_TEST_ONLY_KEY=abc123\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AUDITTRAIL_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "abc123", os.Getenv("AUDITTRAIL_TEST_ONLY_KEY"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}
