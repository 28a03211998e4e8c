// Package doctor runs health checks against a trail home without opening it.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/internal/cleanup"
	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/internal/store"
	"github.com/complykit/audittrail/pkg/config"
	"github.com/complykit/audittrail/pkg/fsutil"
	"github.com/complykit/audittrail/pkg/logging"
)

const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
}

// Doctor performs trail health checks.
type Doctor struct {
	home string
}

// NewDoctor creates a doctor for the trail rooted at home.
func NewDoctor(home string) *Doctor {
	return &Doctor{home: home}
}

// Check runs all diagnostic checks. Strict mode also verifies every
// deletion report signature.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	cfg, err := config.Load(d.home)
	if err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        filepath.Join(d.home, config.FileName),
		})
		return result, nil
	}
	dataDir := cfg.ResolveDataDir(d.home)

	if !d.checkFormatVersion(result, dataDir) {
		return result, nil
	}
	d.checkLedger(result, dataDir)
	kp := d.checkSigning(result, cfg)
	d.checkSnapshots(result, dataDir, kp, strict)
	d.checkOrphanTmp(result, dataDir)

	return result, nil
}

// checkFormatVersion reports whether the data directory is usable.
func (d *Doctor) checkFormatVersion(result *Result, dataDir string) bool {
	versionPath := filepath.Join(dataDir, store.FormatVersionFile)
	data, err := os.ReadFile(versionPath)
	if errors.Is(err, os.ErrNotExist) {
		result.add(Finding{
			Category:    "format",
			Description: "data directory not initialized",
			Severity:    SeverityWarning,
			Path:        dataDir,
		})
		return false
	}
	if err != nil {
		result.add(Finding{
			Category:    "format",
			Description: "format_version file unreadable",
			Severity:    SeverityCritical,
			Path:        versionPath,
		})
		return false
	}

	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil || version > store.FormatVersion {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %q not supported (max %d)", strings.TrimSpace(string(data)), store.FormatVersion),
			Severity:    SeverityCritical,
			Path:        versionPath,
		})
		return false
	}
	return true
}

func (d *Doctor) checkLedger(result *Result, dataDir string) {
	path := filepath.Join(dataDir, store.LedgerFile)
	l, err := audit.Open(audit.NewFileJournal(path), audit.WithLogger(logging.Discard()))
	if err != nil {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("journal cannot be replayed: %v", err),
			Severity:    SeverityCritical,
			Path:        path,
		})
		return
	}

	if ok, msg := l.VerifyChain(); !ok {
		result.add(Finding{
			Category:    "integrity",
			Description: msg,
			Severity:    SeverityCritical,
			Path:        path,
		})
	}
}

func (d *Doctor) checkSigning(result *Result, cfg *config.Config) signing.KeyPair {
	kp, err := signing.FromConfig(cfg.Signing)
	if err != nil {
		result.add(Finding{
			Category:    "signing",
			Description: err.Error(),
			Severity:    SeverityError,
		})
		return nil
	}
	if u, ok := kp.(signing.Unavailable); ok {
		result.add(Finding{
			Category:    "signing",
			Description: u.Reason,
			Severity:    SeverityWarning,
		})
		return nil
	}
	return kp
}

func (d *Doctor) checkSnapshots(result *Result, dataDir string, kp signing.KeyPair, strict bool) {
	st, err := store.Open(dataDir)
	if err != nil {
		result.add(Finding{Category: "store", Description: err.Error(), Severity: SeverityCritical, Path: dataDir})
		return
	}
	if _, err := st.LoadPolicies(); err != nil {
		result.add(Finding{
			Category:    "policies",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        filepath.Join(dataDir, store.PoliciesFile),
		})
	}
	reports, err := st.LoadReports()
	if err != nil {
		result.add(Finding{
			Category:    "reports",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        filepath.Join(dataDir, store.ReportsFile),
		})
		return
	}

	if !strict {
		return
	}
	if kp == nil {
		if len(reports) > 0 {
			result.add(Finding{
				Category:    "reports",
				Description: fmt.Sprintf("%d deletion report(s) not verified: no signing key", len(reports)),
				Severity:    SeverityInfo,
			})
		}
		return
	}
	for _, r := range reports {
		if err := cleanup.VerifyReport(r, kp); err != nil {
			result.add(Finding{
				Category:    "reports",
				Description: fmt.Sprintf("deletion report %s: %v", r.ID, err),
				Severity:    SeverityCritical,
			})
		}
	}
}

func (d *Doctor) checkOrphanTmp(result *Result, dataDir string) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), fsutil.TempPrefix) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", e.Name()),
				Severity:    SeverityInfo,
				Path:        filepath.Join(dataDir, e.Name()),
			})
		}
	}
}
