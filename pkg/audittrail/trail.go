package audittrail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/internal/cleanup"
	"github.com/complykit/audittrail/internal/export"
	"github.com/complykit/audittrail/internal/retention"
	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/internal/store"
	"github.com/complykit/audittrail/pkg/config"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/metrics"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/progress"
	"github.com/complykit/audittrail/pkg/webhook"
)

type (
	// QueryFilter selects ledger entries. Zero fields match everything.
	QueryFilter = audit.Filter
	// PolicyRequest describes a new retention policy.
	PolicyRequest = retention.CreateRequest
	// CleanupRequest parameterizes a cleanup run.
	CleanupRequest = cleanup.Request
	// ExportRequest parameterizes a tamper-evident export.
	ExportRequest = export.Request
	// ExportFilter narrows the entries in an export.
	ExportFilter = export.Filter
	// BundleVerification is the result of checking an export offline.
	BundleVerification = export.BundleVerification
)

// Query orderings.
const (
	NewestFirst   = audit.NewestFirst
	Chronological = audit.Chronological
)

// Options configures a Trail beyond what the config file covers.
type Options struct {
	// Clock overrides time.Now for every component.
	Clock func() time.Time
	// Logger overrides the logger built from the config.
	Logger *logging.Logger
	// Signer overrides the key pair built from the signing config.
	Signer signing.KeyPair
	// Progress receives cleanup progress.
	Progress progress.Callback
	// Metrics overrides the registry built from the metrics config.
	Metrics *metrics.Registry
}

// Trail is an audit trail with retention.
type Trail struct {
	home string
	cfg  *config.Config

	log      *logging.Logger
	metrics  *metrics.Registry
	signer   signing.KeyPair
	store    *store.Store
	hooks    *webhook.Client
	ledger   *audit.Ledger
	policies *retention.Store
	cleanup  *cleanup.Engine
	exporter *export.Exporter
}

// Open opens the trail rooted at home, creating its data directory on
// first use. Settings come from <home>/config.yaml; .env files in home and
// the working directory are loaded first so the signing key can be
// supplied there.
func Open(home string, opts Options) (*Trail, error) {
	if err := config.LoadEnv(filepath.Join(home, ".env"), ".env"); err != nil {
		return nil, fmt.Errorf("audittrail open: %w", err)
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, fmt.Errorf("audittrail open: %w", err)
	}
	st, err := store.Open(cfg.ResolveDataDir(home))
	if err != nil {
		return nil, fmt.Errorf("audittrail open: %w", err)
	}
	t, err := build(home, cfg, st, opts)
	if err != nil {
		return nil, fmt.Errorf("audittrail open: %w", err)
	}
	return t, nil
}

// New creates an in-memory trail. Nothing is persisted.
func New(cfg *config.Config, opts Options) (*Trail, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build("", cfg, nil, opts)
}

func build(home string, cfg *config.Config, st *store.Store, opts Options) (*Trail, error) {
	t := &Trail{home: home, cfg: cfg, store: st}

	t.log = opts.Logger
	if t.log == nil {
		t.log = logging.New(logging.ParseLevel(cfg.Logging.Level), logging.Format(cfg.Logging.Format), os.Stderr)
	}
	t.metrics = opts.Metrics
	if t.metrics == nil && cfg.Metrics.Enabled {
		t.metrics = metrics.NewRegistry(cfg.Metrics.Namespace)
	}
	t.signer = opts.Signer
	if t.signer == nil {
		kp, err := signing.FromConfig(cfg.Signing)
		if err != nil {
			return nil, err
		}
		t.signer = kp
	}
	if u, ok := t.signer.(signing.Unavailable); ok {
		t.log.Warn("signing unavailable: cleanup and export will fail", map[string]any{"reason": u.Reason})
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ledgerOpts := []audit.Option{
		audit.WithClock(clock),
		audit.WithLogger(t.log.WithFields(map[string]any{"component": "ledger"})),
		audit.WithMetrics(t.metrics),
	}
	policyOpts := []retention.Option{
		retention.WithClock(clock),
		retention.WithLogger(t.log.WithFields(map[string]any{"component": "retention"})),
	}
	cleanupOpts := []cleanup.Option{
		cleanup.WithClock(clock),
		cleanup.WithLogger(t.log.WithFields(map[string]any{"component": "cleanup"})),
		cleanup.WithMetrics(t.metrics),
	}
	exportOpts := []export.Option{
		export.WithClock(clock),
		export.WithLogger(t.log.WithFields(map[string]any{"component": "export"})),
		export.WithMetrics(t.metrics),
	}
	if opts.Progress != nil {
		cleanupOpts = append(cleanupOpts, cleanup.WithProgress(opts.Progress))
	}

	if cfg.Webhooks != nil && cfg.Webhooks.Enabled {
		t.hooks = webhook.NewClient(cfg.Webhooks)
		t.hooks.SetLogger(t.log.WithFields(map[string]any{"component": "webhook"}))
		cleanupOpts = append(cleanupOpts, cleanup.WithNotifier(t.hooks))
		exportOpts = append(exportOpts, export.WithNotifier(t.hooks))
	}

	if st != nil {
		ledger, err := audit.Open(st.Journal(), ledgerOpts...)
		if err != nil {
			return nil, err
		}
		t.ledger = ledger

		policies, err := st.LoadPolicies()
		if err != nil {
			return nil, err
		}
		reports, err := st.LoadReports()
		if err != nil {
			return nil, err
		}
		policyOpts = append(policyOpts, retention.WithPolicies(policies), retention.WithSnapshotter(st))
		cleanupOpts = append(cleanupOpts, cleanup.WithReports(reports), cleanup.WithReportStore(st))
	} else {
		t.ledger = audit.New(ledgerOpts...)
	}

	t.policies = retention.NewStore(t.ledger, policyOpts...)
	t.cleanup = cleanup.NewEngine(t.ledger, t.policies, t.signer, cleanupOpts...)
	t.exporter = export.NewExporter(t.ledger, t.signer, exportOpts...)
	return t, nil
}

// Append records an entry. An empty DataCategory takes the configured
// default.
func (t *Trail) Append(draft model.DraftEntry) (model.AuditLogEntry, error) {
	if draft.DataCategory == "" {
		draft.DataCategory = t.cfg.DefaultCategory
	}
	return t.ledger.Append(draft)
}

// Query returns matching entries, newest first unless f.Order says otherwise.
func (t *Trail) Query(f QueryFilter) []model.AuditLogEntry {
	return t.ledger.Query(f)
}

// Entry returns the entry with the given id.
func (t *Trail) Entry(id string) (model.AuditLogEntry, error) {
	return t.ledger.Get(id)
}

// VerifyChain walks the whole ledger.
func (t *Trail) VerifyChain() (bool, string) {
	return t.ledger.VerifyChain()
}

// Len returns the number of live entries.
func (t *Trail) Len() int {
	return t.ledger.Len()
}

// LastHash returns the hash the next entry will link to.
func (t *Trail) LastHash() string {
	return t.ledger.LastHash()
}

// ChainGaps returns the gaps left by retention cleanup.
func (t *Trail) ChainGaps() []model.ChainGap {
	return t.ledger.Gaps()
}

// CreateRetentionPolicy adds a policy and logs the creation to the ledger.
func (t *Trail) CreateRetentionPolicy(req PolicyRequest) (model.RetentionPolicy, error) {
	return t.policies.Create(req)
}

// UpdateRetentionPolicy changes a policy's retention period and deletion flag.
func (t *Trail) UpdateRetentionPolicy(id string, retentionDays int, allowDeletion bool, updatedBy string) (model.RetentionPolicy, error) {
	return t.policies.Update(id, retentionDays, allowDeletion, updatedBy)
}

// DeactivateRetentionPolicy retires a policy. Deactivated policies are kept.
func (t *Trail) DeactivateRetentionPolicy(id, updatedBy string) error {
	return t.policies.Deactivate(id, updatedBy)
}

// GetApplicableRetentionPolicy resolves the policy for a category and
// tenant, or nil when none applies.
func (t *Trail) GetApplicableRetentionPolicy(category string, tenantID *string) *model.RetentionPolicy {
	return t.policies.Resolve(category, tenantID)
}

// GetRetentionPolicies lists policies.
func (t *Trail) GetRetentionPolicies(activeOnly bool) []model.RetentionPolicy {
	return t.policies.List(activeOnly)
}

// RunCleanup evaluates retention policies and deletes expired entries.
func (t *Trail) RunCleanup(ctx context.Context, req CleanupRequest) (model.CleanupResult, error) {
	return t.cleanup.RunCleanup(ctx, req)
}

// GetDeletionReports lists deletion reports newest first, optionally for
// one tenant.
func (t *Trail) GetDeletionReports(tenantID *string) []model.DeletionReport {
	return t.cleanup.Reports(tenantID)
}

// GetDeletionReport returns one deletion report.
func (t *Trail) GetDeletionReport(id string) (model.DeletionReport, error) {
	return t.cleanup.Report(id)
}

// VerifyDeletionReport checks a report's content hash and signature
// against this trail's key.
func (t *Trail) VerifyDeletionReport(r model.DeletionReport) error {
	return cleanup.VerifyReport(r, t.signer)
}

// GenerateTamperEvidentExport produces a signed export bundle.
func (t *Trail) GenerateTamperEvidentExport(ctx context.Context, req ExportRequest) (model.TamperEvidentExport, error) {
	return t.exporter.Generate(ctx, req)
}

// Exports lists the metadata of exports generated by this Trail.
func (t *Trail) Exports() []model.ExportMetadata {
	return t.exporter.Exports()
}

// VerifyExport checks a bundle against this trail's key.
func (t *Trail) VerifyExport(bundle model.TamperEvidentExport) BundleVerification {
	return export.VerifyBundle(bundle, t.signer)
}

// Signer returns the trail's key pair.
func (t *Trail) Signer() signing.KeyPair {
	return t.signer
}

// Metrics returns the trail's registry, or nil when metrics are disabled.
func (t *Trail) Metrics() *metrics.Registry {
	return t.metrics
}

// Config returns the trail's configuration.
func (t *Trail) Config() *config.Config {
	return t.cfg
}

// Home returns the home directory, or "" for an in-memory trail.
func (t *Trail) Home() string {
	return t.home
}

// DataDir returns the data directory, or "" for an in-memory trail.
func (t *Trail) DataDir() string {
	if t.store == nil {
		return ""
	}
	return t.store.Dir
}

// Close drains pending webhook deliveries.
func (t *Trail) Close() error {
	if t.hooks != nil {
		return t.hooks.Close()
	}
	return nil
}
