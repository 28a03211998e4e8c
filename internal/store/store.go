// Package store is the durable file backend for a trail: a JSONL ledger
// journal plus atomic JSON snapshots of policies and deletion reports.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/fsutil"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/uuidutil"
)

const (
	FormatVersion     = 1
	HomeDirName       = ".audittrail"
	FormatVersionFile = "format_version"
	StoreIDFile       = "store_id"
	LedgerFile        = "ledger.jsonl"
	PoliciesFile      = "policies.json"
	ReportsFile       = "reports.json"
)

// Store is an opened data directory.
type Store struct {
	Dir           string
	FormatVersion int
	StoreID       string

	journal *audit.FileJournal
}

type policySnapshot struct {
	FormatVersion int                     `json:"formatVersion"`
	Policies      []model.RetentionPolicy `json:"policies"`
}

type reportSnapshot struct {
	FormatVersion int                    `json:"formatVersion"`
	Reports       []model.DeletionReport `json:"reports"`
}

// Open opens the data directory at dir, initializing it on first use.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	version, err := readFormatVersion(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := initialize(dir); err != nil {
			return nil, err
		}
		version = FormatVersion
	case err != nil:
		return nil, err
	case version > FormatVersion:
		return nil, errclass.ErrFormatUnsupported.WithMessagef(
			"data format version %d > supported %d", version, FormatVersion)
	}

	id, err := os.ReadFile(filepath.Join(dir, StoreIDFile))
	if err != nil {
		return nil, fmt.Errorf("read store_id: %w", err)
	}

	return &Store{
		Dir:           dir,
		FormatVersion: version,
		StoreID:       strings.TrimSpace(string(id)),
		journal:       audit.NewFileJournal(filepath.Join(dir, LedgerFile)),
	}, nil
}

func initialize(dir string) error {
	if err := fsutil.AtomicWrite(filepath.Join(dir, StoreIDFile), []byte(uuidutil.NewV4()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write store_id: %w", err)
	}
	// format_version goes last; its presence marks a complete init
	if err := fsutil.AtomicWrite(filepath.Join(dir, FormatVersionFile), []byte(fmt.Sprintf("%d\n", FormatVersion)), 0o644); err != nil {
		return fmt.Errorf("write format_version: %w", err)
	}
	return nil
}

func readFormatVersion(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, FormatVersionFile))
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, errclass.ErrFormatUnsupported.WithMessagef("parse format_version: %v", err)
	}
	return version, nil
}

// Journal returns the ledger journal.
func (s *Store) Journal() *audit.FileJournal {
	return s.journal
}

// SavePolicies replaces the policy snapshot.
func (s *Store) SavePolicies(policies []model.RetentionPolicy) error {
	if policies == nil {
		policies = []model.RetentionPolicy{}
	}
	return fsutil.WriteJSON(filepath.Join(s.Dir, PoliciesFile), policySnapshot{
		FormatVersion: FormatVersion,
		Policies:      policies,
	}, 0o644)
}

// LoadPolicies reads the policy snapshot. A missing snapshot is empty.
func (s *Store) LoadPolicies() ([]model.RetentionPolicy, error) {
	var snap policySnapshot
	found, err := fsutil.ReadJSON(filepath.Join(s.Dir, PoliciesFile), &snap)
	if err != nil || !found {
		return nil, err
	}
	if snap.FormatVersion > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("%s version %d", PoliciesFile, snap.FormatVersion)
	}
	return snap.Policies, nil
}

// SaveReports replaces the deletion report snapshot.
func (s *Store) SaveReports(reports []model.DeletionReport) error {
	if reports == nil {
		reports = []model.DeletionReport{}
	}
	return fsutil.WriteJSON(filepath.Join(s.Dir, ReportsFile), reportSnapshot{
		FormatVersion: FormatVersion,
		Reports:       reports,
	}, 0o644)
}

// LoadReports reads the deletion report snapshot. A missing snapshot is empty.
func (s *Store) LoadReports() ([]model.DeletionReport, error) {
	var snap reportSnapshot
	found, err := fsutil.ReadJSON(filepath.Join(s.Dir, ReportsFile), &snap)
	if err != nil || !found {
		return nil, err
	}
	if snap.FormatVersion > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("%s version %d", ReportsFile, snap.FormatVersion)
	}
	return snap.Reports, nil
}

// Discover walks up from cwd to the nearest directory holding a
// .audittrail home and returns that home's path.
func Discover(cwd string) (string, error) {
	path := cwd
	for {
		home := filepath.Join(path, HomeDirName)
		if info, err := os.Stat(home); err == nil && info.IsDir() {
			return home, nil
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", errclass.ErrNotFound.WithMessagef("no %s directory in %s or its parents", HomeDirName, cwd)
		}
		path = parent
	}
}
