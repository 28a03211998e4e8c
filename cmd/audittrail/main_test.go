package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getProjectRoot returns the absolute path to the project root.
func getProjectRoot(t *testing.T) string {
	dir, err := os.Getwd()
	require.NoError(t, err)
	// Walk up to find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatal("go.mod not found")
	return ""
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}
	binPath := filepath.Join(t.TempDir(), "audittrail")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	buildCmd.Dir = filepath.Join(getProjectRoot(t), "cmd", "audittrail")
	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(output))
	return binPath
}

// runBinary runs the built binary with a clean trail environment.
func runBinary(t *testing.T, bin, dir string, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "AUDITTRAIL_HOME=", "AUDITTRAIL_USER=tester")
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestMainEntryPoints(t *testing.T) {
	_ = main
}

func TestMainHelpFlag(t *testing.T) {
	bin := buildBinary(t)

	out, err := runBinary(t, bin, t.TempDir(), nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "hash-chained ledger")
	assert.Contains(t, out, "verify-export")
}

func TestMainUnknownCommand(t *testing.T) {
	bin := buildBinary(t)

	out, err := runBinary(t, bin, t.TempDir(), nil, "unknown-command-xyz")
	assert.Error(t, err)
	assert.Contains(t, strings.ToLower(out), "unknown")
}

func TestMainNoTrailHint(t *testing.T) {
	bin := buildBinary(t)

	out, err := runBinary(t, bin, t.TempDir(), nil, "log")
	assert.Error(t, err)
	assert.Contains(t, out, "audittrail init")
}

func TestBinaryExecutionIntegration(t *testing.T) {
	bin := buildBinary(t)
	dir := t.TempDir()
	env := []string{"AUDITTRAIL_SIGNING_KEY=" + strings.Repeat("3c", 32)}

	out, err := runBinary(t, bin, dir, env, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Initialized")
	assert.DirExists(t, filepath.Join(dir, ".audittrail"))

	out, err = runBinary(t, bin, dir, env, "append",
		"--action", "update-user", "--entity-type", "user", "--entity-id", "u-1", "--change", "email=a@x.test->b@x.test")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Recorded")

	out, err = runBinary(t, bin, dir, env, "verify")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Hash chain verified: 1 entries intact")

	out, err = runBinary(t, bin, dir, env, "--json", "info")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"entry_count": 1`)

	bundle := filepath.Join(dir, "export.json")
	out, err = runBinary(t, bin, dir, env, "export", "-o", bundle)
	require.NoError(t, err, out)

	out, err = runBinary(t, bin, dir, env, "verify-export", bundle)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "FAILED")
}
