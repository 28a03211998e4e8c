// Package export generates signed, self-verifying audit bundles and checks
// them offline.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/complykit/audittrail/internal/audit"
	"github.com/complykit/audittrail/internal/signing"
	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/jsonutil"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/metrics"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/uuidutil"
)

var tracer = otel.Tracer("github.com/complykit/audittrail/internal/export")

// Ledger is the view of the audit ledger the exporter reads.
type Ledger interface {
	Snapshot(f audit.Filter) audit.Snapshot
}

// Notifier is told about generated exports and broken chains.
type Notifier interface {
	SendExportGenerated(meta model.ExportMetadata) error
	SendChainBroken(subjectID, message string) error
}

// Filter holds the query filters an export may apply.
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     string
}

// Map returns the non-empty filters keyed by parameter name.
func (f Filter) Map() map[string]string {
	m := make(map[string]string)
	for k, v := range map[string]string{
		"entityType": f.EntityType,
		"entityId":   f.EntityID,
		"action":     f.Action,
		"userId":     f.UserID,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// Request parameterizes an export.
type Request struct {
	RequestedBy     string
	RequestedByName string
	Filter          Filter
}

// Exporter generates tamper-evident exports and remembers their metadata.
type Exporter struct {
	mu      sync.RWMutex
	exports []model.ExportMetadata

	ledger   Ledger
	signer   signing.Signer
	clock    func() time.Time
	log      *logging.Logger
	metrics  *metrics.Registry
	notifier Notifier
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the time source for ExportedAt.
func WithClock(clock func() time.Time) Option {
	return func(x *Exporter) { x.clock = clock }
}

// WithLogger sets the exporter's logger.
func WithLogger(log *logging.Logger) Option {
	return func(x *Exporter) { x.log = log }
}

// WithMetrics records exports on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(x *Exporter) { x.metrics = r }
}

// WithNotifier sends export and chain-break notifications.
func WithNotifier(n Notifier) Option {
	return func(x *Exporter) { x.notifier = n }
}

// NewExporter creates an exporter over ledger.
func NewExporter(ledger Ledger, signer signing.Signer, opts ...Option) *Exporter {
	x := &Exporter{
		ledger: ledger,
		signer: signer,
		clock:  time.Now,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Generate builds a signed export of the entries matching req.Filter in
// ascending timestamp order. Chain validity is computed over the whole
// ledger and reported in the metadata; only signing failures are errors.
func (x *Exporter) Generate(ctx context.Context, req Request) (bundle model.TamperEvidentExport, err error) {
	_, span := tracer.Start(ctx, "export.Generate")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if req.RequestedBy == "" {
		return model.TamperEvidentExport{}, errclass.ErrValidation.Field("requestedBy", "is required")
	}
	start := x.clock()

	f := req.Filter
	snap := x.ledger.Snapshot(audit.Filter{
		EntityType: f.EntityType,
		EntityID:   f.EntityID,
		Action:     f.Action,
		UserID:     f.UserID,
		Order:      audit.Chronological,
	})
	entries := snap.Entries
	if entries == nil {
		entries = []model.AuditLogEntry{}
	}
	valid, msg := snap.Valid, snap.Message

	meta := model.ExportMetadata{
		ExportID:           uuidutil.NewV4(),
		ExportedAt:         x.clock().UTC(),
		ExportedBy:         req.RequestedBy,
		ExportedByName:     req.RequestedByName,
		HashAlgorithm:      model.HashAlgorithmSHA256,
		FormatVersion:      model.ExportFormatVersion,
		Filters:            f.Map(),
		HashChainValid:     valid,
		ValidationMessage:  msg,
		EntryCount:         len(entries),
		ChainGaps:          snap.Gaps,
		SignatureAlgorithm: x.signer.Algorithm(),
		KeyID:              x.signer.KeyID(),
	}

	hash, err := ContentHash(meta, entries)
	if err != nil {
		return model.TamperEvidentExport{}, err
	}
	digest, err := signing.DigestHex(hash)
	if err != nil {
		return model.TamperEvidentExport{}, err
	}
	sig, err := x.signer.Sign(digest)
	if err != nil {
		return model.TamperEvidentExport{}, fmt.Errorf("sign export: %w", err)
	}
	meta.ContentHash = hash
	meta.Signature = sig

	x.mu.Lock()
	x.exports = append(x.exports, meta)
	x.mu.Unlock()

	span.SetAttributes(
		attribute.String("export.id", meta.ExportID),
		attribute.Int("export.entries", meta.EntryCount),
		attribute.Bool("export.chain_valid", valid),
	)
	x.metrics.RecordExport(valid, x.clock().Sub(start))
	x.log.Info("export generated", map[string]any{
		"export_id":        meta.ExportID,
		"entries":          meta.EntryCount,
		"hash_chain_valid": valid,
		"requested_by":     req.RequestedBy,
	})
	if !valid {
		x.log.Warn("export generated over a broken hash chain", map[string]any{"export_id": meta.ExportID, "message": msg})
	}
	if x.notifier != nil {
		if err := x.notifier.SendExportGenerated(meta); err != nil {
			x.log.Warn("export notification failed", map[string]any{"export_id": meta.ExportID, "error": err.Error()})
		}
		if !valid {
			if err := x.notifier.SendChainBroken(meta.ExportID, msg); err != nil {
				x.log.Warn("chain broken notification failed", map[string]any{"export_id": meta.ExportID, "error": err.Error()})
			}
		}
	}

	return model.TamperEvidentExport{Metadata: cloneMeta(meta), Entries: entries}, nil
}

// Exports returns the metadata of generated exports, newest first.
func (x *Exporter) Exports() []model.ExportMetadata {
	x.mu.RLock()
	out := make([]model.ExportMetadata, len(x.exports))
	for i, m := range x.exports {
		out[i] = cloneMeta(m)
	}
	x.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExportedAt.After(out[j].ExportedAt)
	})
	return out
}

// ContentHash is the SHA-256 of the canonical JSON of {metadata, entries},
// with contentHash and signature left out of the metadata.
func ContentHash(meta model.ExportMetadata, entries []model.AuditLogEntry) (string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal export metadata: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return "", fmt.Errorf("decode export metadata: %w", err)
	}
	delete(m, "contentHash")
	delete(m, "signature")

	hash, err := jsonutil.SHA256Hex(map[string]any{
		"metadata": m,
		"entries":  entries,
	})
	if err != nil {
		return "", fmt.Errorf("hash export: %w", err)
	}
	return hash, nil
}

func cloneMeta(m model.ExportMetadata) model.ExportMetadata {
	if m.Filters != nil {
		f := make(map[string]string, len(m.Filters))
		for k, v := range m.Filters {
			f[k] = v
		}
		m.Filters = f
	}
	if m.ChainGaps != nil {
		gaps := make([]model.ChainGap, len(m.ChainGaps))
		for i, g := range m.ChainGaps {
			g.CleanupRunIDs = append([]string(nil), g.CleanupRunIDs...)
			gaps[i] = g
		}
		m.ChainGaps = gaps
	}
	return m
}
