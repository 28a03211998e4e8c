// Package cleanup applies retention policies to the audit ledger and
// produces signed, metadata-only deletion reports.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/jsonutil"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/metrics"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/progress"
	"github.com/complykit/audittrail/pkg/uuidutil"
)

var tracer = otel.Tracer("github.com/complykit/audittrail/internal/cleanup")

// NoPolicyMessage is returned in CleanupResult.ErrorMessage when no
// retention policy is active.
const NoPolicyMessage = "no active retention policy: nothing was evaluated or deleted"

// Ledger is the view of the audit ledger cleanup needs.
type Ledger interface {
	Entries() []model.AuditLogEntry
	Delete(ids []string, runID string) (int, error)
	Append(draft model.DraftEntry) (model.AuditLogEntry, error)
}

// PolicyResolver resolves the retention policy for a group of entries.
type PolicyResolver interface {
	Resolve(category string, tenantID *string) *model.RetentionPolicy
	HasActive() bool
}

// ReportStore persists the full report collection after each new report.
type ReportStore interface {
	SaveReports(reports []model.DeletionReport) error
}

// Notifier is told about new deletion reports and finished runs.
type Notifier interface {
	SendDeletionReportCreated(report model.DeletionReport) error
	SendCleanupCompleted(result model.CleanupResult) error
}

// Request parameterizes a cleanup run. A nil or empty TenantID covers
// every tenant.
type Request struct {
	DryRun          bool
	TenantID        *string
	InitiatedBy     string
	InitiatedByName string
}

// Engine runs retention cleanup and owns the deletion reports it creates.
type Engine struct {
	runMu sync.Mutex

	mu      sync.RWMutex
	reports []model.DeletionReport

	ledger   Ledger
	policies PolicyResolver
	signer   signing.Signer

	clock    func() time.Time
	log      *logging.Logger
	metrics  *metrics.Registry
	notifier Notifier
	store    ReportStore
	progress progress.Callback
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for cutoffs and DeletedAt.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine's logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records run outcomes on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithNotifier sends report and run notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithReportStore persists reports.
func WithReportStore(s ReportStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithReports seeds previously persisted reports.
func WithReports(reports []model.DeletionReport) Option {
	return func(e *Engine) { e.reports = cloneReports(reports) }
}

// WithProgress reports progress once per evaluated group.
func WithProgress(cb progress.Callback) Option {
	return func(e *Engine) { e.progress = cb }
}

// NewEngine creates a cleanup engine.
func NewEngine(ledger Ledger, policies PolicyResolver, signer signing.Signer, opts ...Option) *Engine {
	e := &Engine{
		ledger:   ledger,
		policies: policies,
		signer:   signer,
		clock:    time.Now,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type groupKey struct {
	category string
	tenant   string
}

type group struct {
	key     groupKey
	entries []model.AuditLogEntry
}

type pending struct {
	outcome int
	ids     []string
	report  model.DeletionReport
}

// RunCleanup evaluates every (category, tenant) group present in the ledger
// against its resolved policy. Reports are built and signed before anything
// is deleted, so a signing failure leaves the ledger untouched.
func (e *Engine) RunCleanup(ctx context.Context, req Request) (result model.CleanupResult, err error) {
	ctx, span := tracer.Start(ctx, "cleanup.RunCleanup", trace.WithAttributes(
		attribute.Bool("cleanup.dry_run", req.DryRun),
	))
	defer span.End()

	if req.InitiatedBy == "" {
		return model.CleanupResult{}, errclass.ErrValidation.Field("initiatedBy", "is required")
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := e.clock()
	result = model.CleanupResult{
		RunID:             uuidutil.NewV7(),
		WasDryRun:         req.DryRun,
		DeletionReportIDs: []string{},
	}
	span.SetAttributes(attribute.String("cleanup.run_id", result.RunID))
	defer func() {
		e.metrics.RecordCleanupRun(req.DryRun, err == nil && result.Success, e.clock().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if !e.policies.HasActive() {
		result.Success = true
		result.ErrorMessage = NoPolicyMessage
		e.log.Info("cleanup skipped", map[string]any{"run_id": result.RunID, "reason": model.SkipNoPolicy})
		return result, nil
	}

	now := e.clock().UTC()
	tenant := ""
	if req.TenantID != nil {
		tenant = *req.TenantID
	}
	groups := groupEntries(e.ledger.Entries(), tenant)
	prog := progress.New("cleanup", len(groups), e.progress)

	var work []pending
	for _, g := range groups {
		outcome, p, err := e.evaluate(g, req, now, result.RunID)
		if err != nil {
			result.ErrorMessage = err.Error()
			return result, err
		}
		result.RecordsIdentified += outcome.RecordsIdentified
		result.Categories = append(result.Categories, outcome)
		if p != nil {
			p.outcome = len(result.Categories) - 1
			work = append(work, *p)
		}
		prog.Increment(g.key.category)
	}

	for _, p := range work {
		report, deleted, err := e.apply(ctx, p, req, result.RunID)
		oc := &result.Categories[p.outcome]
		oc.RecordsDeleted = deleted
		result.RecordsDeleted += deleted
		if report.ID != "" {
			oc.DeletionReportID = report.ID
			result.DeletionReportIDs = append(result.DeletionReportIDs, report.ID)
		}
		if err != nil {
			result.ErrorMessage = err.Error()
			return result, err
		}
	}
	prog.Done("")

	for _, oc := range result.Categories {
		e.metrics.RecordCleanupCategory(oc.DataCategory, oc.RecordsIdentified, oc.RecordsDeleted)
	}
	result.Success = true

	span.SetAttributes(
		attribute.Int("cleanup.records_identified", result.RecordsIdentified),
		attribute.Int("cleanup.records_deleted", result.RecordsDeleted),
	)
	e.log.Info("cleanup finished", map[string]any{
		"run_id":             result.RunID,
		"dry_run":            req.DryRun,
		"records_identified": result.RecordsIdentified,
		"records_deleted":    result.RecordsDeleted,
		"reports":            len(result.DeletionReportIDs),
	})
	if !req.DryRun && e.notifier != nil {
		if err := e.notifier.SendCleanupCompleted(result); err != nil {
			e.log.Warn("cleanup notification failed", map[string]any{
				"run_id": result.RunID,
				"error":  err.Error(),
			})
		}
	}
	return result, nil
}

// evaluate resolves the group's policy and, when deletion will happen,
// returns a signed report ready to apply.
func (e *Engine) evaluate(g group, req Request, now time.Time, runID string) (model.CategoryOutcome, *pending, error) {
	outcome := model.CategoryOutcome{DataCategory: g.key.category, TenantID: g.key.tenant}

	var tenantID *string
	if g.key.tenant != "" {
		t := g.key.tenant
		tenantID = &t
	}
	policy := e.policies.Resolve(g.key.category, tenantID)
	if policy == nil {
		outcome.SkipReason = model.SkipNoPolicy
		return outcome, nil, nil
	}
	outcome.PolicyID = policy.ID
	outcome.RetentionDays = policy.RetentionDays
	outcome.AllowDeletion = policy.AllowDeletion

	cutoff := policy.Cutoff(now)
	var expired []model.AuditLogEntry
	for _, entry := range g.entries {
		if entry.Timestamp.Before(cutoff) {
			expired = append(expired, entry)
		}
	}
	outcome.RecordsIdentified = len(expired)

	switch {
	case len(expired) == 0:
		return outcome, nil, nil
	case req.DryRun:
		outcome.SkipReason = model.SkipDryRun
		return outcome, nil, nil
	case !policy.AllowDeletion:
		outcome.SkipReason = model.SkipDeletionNotAllowed
		return outcome, nil, nil
	}

	report, err := e.buildReport(expired, policy, tenantID, now, runID, req.InitiatedBy)
	if err != nil {
		return outcome, nil, err
	}
	ids := make([]string, len(expired))
	for i, entry := range expired {
		ids[i] = entry.ID
	}
	return outcome, &pending{ids: ids, report: report}, nil
}

func (e *Engine) buildReport(expired []model.AuditLogEntry, policy *model.RetentionPolicy, tenantID *string, now time.Time, runID, by string) (model.DeletionReport, error) {
	first, last := expired[0].Timestamp, expired[0].Timestamp
	for _, entry := range expired[1:] {
		if entry.Timestamp.Before(first) {
			first = entry.Timestamp
		}
		if entry.Timestamp.After(last) {
			last = entry.Timestamp
		}
	}

	r := model.DeletionReport{
		ID:             uuidutil.NewV4(),
		CleanupRunID:   runID,
		DataCategory:   expired[0].DataCategory,
		TenantID:       tenantID,
		PolicyID:       policy.ID,
		RetentionDays:  policy.RetentionDays,
		DateRangeStart: first.UTC(),
		DateRangeEnd:   last.UTC(),
		RecordCount:    len(expired),
		DeletedAt:      now,
		DeletedBy:      by,
	}
	r.DeletionSummary = Summary(r)
	if err := e.sign(&r); err != nil {
		return model.DeletionReport{}, err
	}
	return r, nil
}

// sign fills the content hash and signature fields of r.
func (e *Engine) sign(r *model.DeletionReport) error {
	hash, err := jsonutil.SHA256Hex(r.Content())
	if err != nil {
		return fmt.Errorf("hash deletion report: %w", err)
	}
	digest, err := signing.DigestHex(hash)
	if err != nil {
		return err
	}
	sig, err := e.signer.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign deletion report: %w", err)
	}
	r.ContentHash = hash
	r.Signature = sig
	r.SignatureAlgorithm = e.signer.Algorithm()
	r.KeyID = e.signer.KeyID()
	return nil
}

// apply stores the signed report, deletes its entries and logs it. The
// report is persisted first so deleted entries always have one. A report
// whose deletion fails or removes nothing is withdrawn again, and a report
// that overstates the count is re-signed with the number actually deleted.
// The returned report has an empty ID when none was kept.
func (e *Engine) apply(ctx context.Context, p pending, req Request, runID string) (model.DeletionReport, int, error) {
	_, span := tracer.Start(ctx, "cleanup.apply", trace.WithAttributes(
		attribute.String("cleanup.category", p.report.DataCategory),
		attribute.Int("cleanup.records", len(p.ids)),
	))
	defer span.End()

	report := p.report
	if err := e.addReport(report); err != nil {
		return model.DeletionReport{}, 0, err
	}

	deleted, err := e.ledger.Delete(p.ids, runID)
	if err != nil {
		err = fmt.Errorf("delete %s entries: %w", report.DataCategory, err)
		if rerr := e.removeReport(report.ID); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return model.DeletionReport{}, 0, err
	}
	if deleted == 0 {
		e.log.Warn("identified entries were already gone", map[string]any{
			"run_id":        runID,
			"data_category": report.DataCategory,
			"identified":    len(p.ids),
		})
		return model.DeletionReport{}, 0, e.removeReport(report.ID)
	}
	if deleted != report.RecordCount {
		e.log.Warn("deleted fewer entries than identified", map[string]any{
			"run_id":     runID,
			"identified": report.RecordCount,
			"deleted":    deleted,
		})
		// The date range still bounds what was removed.
		report.RecordCount = deleted
		report.DeletionSummary = Summary(report)
		if err := e.sign(&report); err != nil {
			return p.report, deleted, err
		}
		if err := e.replaceReport(report); err != nil {
			return p.report, deleted, err
		}
	}

	tenant := ""
	if report.TenantID != nil {
		tenant = *report.TenantID
	}
	_, err = e.ledger.Append(model.DraftEntry{
		Action:     model.ActionCreateDeletionReport,
		EntityType: model.EntityDeletionReport,
		EntityID:   report.ID,
		UserID:     req.InitiatedBy,
		UserName:   req.InitiatedByName,
		Changes: []model.Change{
			{Field: "dataCategory", NewValue: &report.DataCategory},
			{Field: "recordCount", NewValue: ptr(fmt.Sprint(report.RecordCount))},
			{Field: "contentHash", NewValue: &report.ContentHash},
		},
		TenantID: tenant,
	})
	if err != nil {
		return report, deleted, fmt.Errorf("log deletion report: %w", err)
	}

	e.metrics.RecordDeletionReport(report.DataCategory)
	if e.notifier != nil {
		if err := e.notifier.SendDeletionReportCreated(report); err != nil {
			e.log.Warn("deletion report notification failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		}
	}
	e.log.Info("deletion report created", map[string]any{
		"report_id":     report.ID,
		"data_category": report.DataCategory,
		"tenant_id":     tenant,
		"record_count":  report.RecordCount,
	})
	return report, deleted, nil
}

func (e *Engine) addReport(r model.DeletionReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(append(cloneReports(e.reports), r))
}

func (e *Engine) replaceReport(r model.DeletionReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := cloneReports(e.reports)
	i := slices.IndexFunc(next, func(x model.DeletionReport) bool { return x.ID == r.ID })
	if i < 0 {
		return errclass.ErrNotFound.WithMessagef("deletion report %s", r.ID)
	}
	next[i] = r
	return e.saveLocked(next)
}

func (e *Engine) removeReport(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := slices.DeleteFunc(cloneReports(e.reports), func(x model.DeletionReport) bool { return x.ID == id })
	if err := e.saveLocked(next); err != nil {
		return fmt.Errorf("withdraw deletion report %s: %w", id, err)
	}
	return nil
}

func (e *Engine) saveLocked(next []model.DeletionReport) error {
	if e.store != nil {
		if err := e.store.SaveReports(next); err != nil {
			return fmt.Errorf("save deletion report: %w", err)
		}
	}
	e.reports = next
	return nil
}

// Summary renders the human-readable report summary. It carries counts,
// dates and the category only.
func Summary(r model.DeletionReport) string {
	return fmt.Sprintf("Deleted %d %s record(s) dated %s to %s under a %d-day retention policy",
		r.RecordCount, r.DataCategory,
		r.DateRangeStart.Format(time.DateOnly), r.DateRangeEnd.Format(time.DateOnly),
		r.RetentionDays)
}

func groupEntries(entries []model.AuditLogEntry, tenant string) []group {
	index := make(map[groupKey]int)
	var groups []group
	for _, entry := range entries {
		if tenant != "" && entry.TenantID != tenant {
			continue
		}
		k := groupKey{category: entry.DataCategory, tenant: entry.TenantID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, group{key: k})
		}
		groups[i].entries = append(groups[i].entries, entry)
	}
	return groups
}

// Reports returns reports newest first. A nil tenantID returns all reports.
func (e *Engine) Reports(tenantID *string) []model.DeletionReport {
	e.mu.RLock()
	var out []model.DeletionReport
	for _, r := range e.reports {
		if tenantID != nil && (r.TenantID == nil || *r.TenantID != *tenantID) {
			continue
		}
		out = append(out, cloneReport(r))
	}
	e.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletedAt.After(out[j].DeletedAt)
	})
	return out
}

// Report returns a report by id.
func (e *Engine) Report(id string) (model.DeletionReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := slices.IndexFunc(e.reports, func(r model.DeletionReport) bool { return r.ID == id })
	if i < 0 {
		return model.DeletionReport{}, errclass.ErrNotFound.WithMessagef("deletion report %s", id)
	}
	return cloneReport(e.reports[i]), nil
}

// VerifyReport recomputes the content hash of r and checks its signature.
func VerifyReport(r model.DeletionReport, v signing.Verifier) error {
	hash, err := jsonutil.SHA256Hex(r.Content())
	if err != nil {
		return fmt.Errorf("hash deletion report: %w", err)
	}
	if hash != r.ContentHash {
		return errclass.ErrHashMismatch.WithMessagef("deletion report %s: content hash mismatch", r.ID)
	}
	digest, err := signing.DigestHex(hash)
	if err != nil {
		return err
	}
	return v.Verify(digest, r.Signature)
}

func cloneReport(r model.DeletionReport) model.DeletionReport {
	if r.TenantID != nil {
		r.TenantID = ptr(*r.TenantID)
	}
	return r
}

func cloneReports(rs []model.DeletionReport) []model.DeletionReport {
	out := make([]model.DeletionReport, len(rs))
	for i, r := range rs {
		out[i] = cloneReport(r)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
