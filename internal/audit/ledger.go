package audit

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/ident"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/metrics"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/uuidutil"
)

// Record kinds stored in a journal.
const (
	KindEntry = "entry"
	KindGap   = "gap"
)

// Record is one line of the ledger journal: an entry or a chain gap left
// by retention cleanup, in append order.
type Record struct {
	Kind  string               `json:"kind"`
	Entry *model.AuditLogEntry `json:"entry,omitempty"`
	Gap   *model.ChainGap      `json:"gap,omitempty"`
}

// Journal persists ledger records. Append is called before an entry becomes
// visible; Rewrite replaces the whole journal after a deletion. Either may
// fail with ErrJournalConflict when another writer got there first; the
// ledger then reloads from Load and tries again.
type Journal interface {
	Append(rec Record) error
	Rewrite(recs []Record) error
	Load() ([]Record, error)
}

// Order selects the sort order of query results.
type Order int

const (
	// NewestFirst sorts by descending timestamp.
	NewestFirst Order = iota
	// Chronological sorts by ascending timestamp.
	Chronological
)

// Filter selects entries. Empty fields match everything; Since is
// inclusive and Until exclusive.
type Filter struct {
	EntityType   string
	EntityID     string
	Action       string
	UserID       string
	TenantID     string
	DataCategory string
	Since        time.Time
	Until        time.Time
	Order        Order
	Limit        int
}

func (f Filter) matches(e *model.AuditLogEntry) bool {
	switch {
	case f.EntityType != "" && e.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && e.EntityID != f.EntityID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.TenantID != "" && e.TenantID != f.TenantID:
		return false
	case f.DataCategory != "" && e.DataCategory != f.DataCategory:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !e.Timestamp.Before(f.Until):
		return false
	}
	return true
}

// segment is either a live entry or a documented gap.
type segment struct {
	entry *model.AuditLogEntry
	gap   *model.ChainGap
}

// Ledger is the append-only, hash-chained sequence of audit entries.
type Ledger struct {
	mu       sync.RWMutex
	segments []segment
	index    map[string]int
	lastHash string
	lastTime time.Time

	clock   func() time.Time
	newID   func() string
	journal Journal
	log     *logging.Logger
	metrics *metrics.Registry
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithJournal makes the ledger write every mutation to j first.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithLogger sets the ledger's logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithMetrics records appends and verifications on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(l *Ledger) { l.metrics = r }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		index: make(map[string]int),
		clock: time.Now,
		newID: uuidutil.NewV7,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open creates a ledger backed by j and replays its records.
func Open(j Journal, opts ...Option) (*Ledger, error) {
	l := New(append(opts, WithJournal(j))...)

	recs, err := j.Load()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if err := l.replayLocked(recs); err != nil {
		return nil, err
	}

	l.log.Debug("ledger opened", map[string]any{"entries": len(l.index), "records": len(recs)})
	return l, nil
}

// replayLocked replaces the ledger state with recs.
func (l *Ledger) replayLocked(recs []Record) error {
	segs := make([]segment, 0, len(recs))
	lastHash := ""
	lastTime := l.lastTime
	for i, rec := range recs {
		switch {
		case rec.Kind == KindEntry && rec.Entry != nil:
			e := rec.Entry.Clone()
			segs = append(segs, segment{entry: &e})
			lastHash = e.EntryHash
			if e.Timestamp.After(lastTime) {
				lastTime = e.Timestamp
			}
		case rec.Kind == KindGap && rec.Gap != nil:
			g := cloneGap(*rec.Gap)
			segs = append(segs, segment{gap: &g})
			lastHash = g.TerminalHash
		default:
			return errclass.ErrJournalCorrupt.WithMessagef("record %d: unknown kind %q", i+1, rec.Kind)
		}
	}
	l.segments = segs
	l.lastHash = lastHash
	l.lastTime = lastTime
	l.reindex()
	return nil
}

// maxJournalRetries bounds how often a write is retried after another
// process changed the journal underneath this ledger.
const maxJournalRetries = 5

// retryLocked runs write until it succeeds, reloading the ledger from the
// journal whenever the write reports ErrJournalConflict.
func (l *Ledger) retryLocked(op string, write func() error) error {
	for attempt := 0; ; attempt++ {
		err := write()
		if err == nil || !errors.Is(err, errclass.ErrJournalConflict) || attempt == maxJournalRetries {
			return err
		}
		recs, lerr := l.journal.Load()
		if lerr != nil {
			return fmt.Errorf("reload journal: %w", lerr)
		}
		if lerr := l.replayLocked(recs); lerr != nil {
			return lerr
		}
		l.log.Debug("ledger reloaded after concurrent write", map[string]any{
			"op":      op,
			"attempt": attempt + 1,
			"entries": len(l.index),
		})
	}
}

// Append finalizes draft as the next link of the chain.
func (l *Ledger) Append(draft model.DraftEntry) (model.AuditLogEntry, error) {
	if err := validateDraft(&draft); err != nil {
		return model.AuditLogEntry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// A reload moves the tail, so the entry is rebuilt on every attempt.
	var e model.AuditLogEntry
	err := l.retryLocked("append", func() error {
		e = l.buildLocked(draft)
		if l.journal == nil {
			return nil
		}
		return l.journal.Append(Record{Kind: KindEntry, Entry: &e})
	})
	if err != nil {
		return model.AuditLogEntry{}, fmt.Errorf("journal append: %w", err)
	}

	l.segments = append(l.segments, segment{entry: &e})
	l.index[e.ID] = len(l.segments) - 1
	l.lastHash = e.EntryHash
	l.lastTime = e.Timestamp

	l.metrics.RecordAppend()
	l.log.Debug("entry appended", map[string]any{
		"id":          e.ID,
		"action":      e.Action,
		"entity_type": e.EntityType,
	})
	return e.Clone(), nil
}

func (l *Ledger) buildLocked(draft model.DraftEntry) model.AuditLogEntry {
	ts := l.clock().UTC()
	if ts.Before(l.lastTime) {
		ts = l.lastTime
	}
	e := model.AuditLogEntry{
		ID:                l.newID(),
		Timestamp:         ts,
		UserID:            draft.UserID,
		UserName:          draft.UserName,
		Action:            draft.Action,
		EntityType:        draft.EntityType,
		EntityID:          draft.EntityID,
		Changes:           draft.Changes,
		ChangeNote:        draft.ChangeNote,
		TenantID:          draft.TenantID,
		DataCategory:      draft.DataCategory,
		PreviousEntryHash: l.lastHash,
	}
	e = e.Clone()
	e.EntryHash = Hash(e)
	return e
}

func validateDraft(d *model.DraftEntry) error {
	switch {
	case d.Action == "":
		return errclass.ErrValidation.Field("action", "is required")
	case d.EntityType == "":
		return errclass.ErrValidation.Field("entityType", "is required")
	case d.EntityID == "":
		return errclass.ErrValidation.Field("entityId", "is required")
	case d.UserID == "":
		return errclass.ErrValidation.Field("userId", "is required")
	}
	if d.DataCategory == "" {
		d.DataCategory = model.CategoryAuditLog
	}
	d.DataCategory = ident.Normalize(d.DataCategory)
	d.TenantID = ident.Normalize(d.TenantID)
	if err := ident.ValidateCategory(d.DataCategory); err != nil {
		return err
	}
	return ident.ValidateTenant(d.TenantID)
}

// Query returns copies of the entries matching f.
func (l *Ledger) Query(f Filter) []model.AuditLogEntry {
	l.mu.RLock()
	out := l.queryLocked(f)
	l.mu.RUnlock()
	return sortFiltered(out, f)
}

func (l *Ledger) queryLocked(f Filter) []model.AuditLogEntry {
	var out []model.AuditLogEntry
	for _, s := range l.segments {
		if s.entry != nil && f.matches(s.entry) {
			out = append(out, s.entry.Clone())
		}
	}
	return out
}

func sortFiltered(out []model.AuditLogEntry, f Filter) []model.AuditLogEntry {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if f.Order == NewestFirst {
		slices.Reverse(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Snapshot is one consistent view of the ledger: the entries matching a
// filter together with the chain verdict and gaps of the same state.
type Snapshot struct {
	Entries []model.AuditLogEntry
	Gaps    []model.ChainGap
	Valid   bool
	Message string
}

// Snapshot queries, verifies and lists gaps under a single read lock, so
// no append or deletion can land between the three.
func (l *Ledger) Snapshot(f Filter) Snapshot {
	l.mu.RLock()
	matched := l.queryLocked(f)
	all := l.entriesLocked()
	gaps := l.gapsLocked()
	l.mu.RUnlock()

	valid, msg := l.verify(all, gaps)
	return Snapshot{
		Entries: sortFiltered(matched, f),
		Gaps:    gaps,
		Valid:   valid,
		Message: msg,
	}
}

// Entries returns every live entry in append order.
func (l *Ledger) Entries() []model.AuditLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entriesLocked()
}

func (l *Ledger) entriesLocked() []model.AuditLogEntry {
	out := make([]model.AuditLogEntry, 0, len(l.index))
	for _, s := range l.segments {
		if s.entry != nil {
			out = append(out, s.entry.Clone())
		}
	}
	return out
}

// Gaps returns the documented gaps in append order.
func (l *Ledger) Gaps() []model.ChainGap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gapsLocked()
}

func (l *Ledger) gapsLocked() []model.ChainGap {
	var out []model.ChainGap
	for _, s := range l.segments {
		if s.gap != nil {
			out = append(out, cloneGap(*s.gap))
		}
	}
	return out
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.index)
}

// LastHash returns the hash the next appended entry will link to.
func (l *Ledger) LastHash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastHash
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id string) (model.AuditLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return model.AuditLogEntry{}, errclass.ErrNotFound.WithMessagef("entry %s", id)
	}
	return l.segments[i].entry.Clone(), nil
}

// VerifyChain verifies the whole ledger, honoring documented gaps.
func (l *Ledger) VerifyChain() (bool, string) {
	l.mu.RLock()
	entries := l.entriesLocked()
	gaps := l.gapsLocked()
	l.mu.RUnlock()

	return l.verify(entries, gaps)
}

func (l *Ledger) verify(entries []model.AuditLogEntry, gaps []model.ChainGap) (bool, string) {
	valid, msg := VerifyChain(entries, gaps...)
	l.metrics.RecordVerification(valid)
	if !valid {
		l.log.Warn("hash chain verification failed", map[string]any{"message": msg})
	}
	return valid, msg
}

// Delete removes the given entries for retention cleanup run runID and
// records a gap for every contiguous run removed. Unknown ids are ignored.
// The tail pointer is left untouched so the next append still links to
// the last hash ever appended.
func (l *Ledger) Delete(ids []string, runID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var next []segment
	removed := 0
	err := l.retryLocked("delete", func() error {
		next, removed = l.withoutLocked(remove, runID)
		if removed == 0 || l.journal == nil {
			return nil
		}
		return l.journal.Rewrite(records(next))
	})
	if err != nil {
		return 0, fmt.Errorf("journal rewrite: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}

	l.segments = next
	l.reindex()

	l.log.Info("entries removed by retention cleanup", map[string]any{
		"removed": removed,
		"run_id":  runID,
	})
	return removed, nil
}

// withoutLocked returns the segments left after removing the given entries,
// with every removed run folded into a gap, and how many entries went.
func (l *Ledger) withoutLocked(remove map[string]struct{}, runID string) ([]segment, int) {
	removed := 0
	next := make([]segment, 0, len(l.segments))
	precedingHash := ""
	for _, s := range l.segments {
		var g *model.ChainGap
		switch {
		case s.gap != nil:
			c := cloneGap(*s.gap)
			g = &c
		case isRemoved(s.entry, remove):
			removed++
			g = &model.ChainGap{TerminalHash: s.entry.EntryHash, RemovedCount: 1}
			if runID != "" {
				g.CleanupRunIDs = []string{runID}
			}
		default:
			next = append(next, s)
			precedingHash = s.entry.EntryHash
			continue
		}

		if n := len(next); n > 0 && next[n-1].gap != nil {
			mergeGap(next[n-1].gap, *g)
			continue
		}
		g.PrecedingHash = precedingHash
		next = append(next, segment{gap: g})
	}
	return next, removed
}

func isRemoved(e *model.AuditLogEntry, remove map[string]struct{}) bool {
	_, ok := remove[e.ID]
	return ok
}

func mergeGap(into *model.ChainGap, g model.ChainGap) {
	into.TerminalHash = g.TerminalHash
	into.RemovedCount += g.RemovedCount
	for _, id := range g.CleanupRunIDs {
		if !slices.Contains(into.CleanupRunIDs, id) {
			into.CleanupRunIDs = append(into.CleanupRunIDs, id)
		}
	}
}

func records(segs []segment) []Record {
	out := make([]Record, len(segs))
	for i, s := range segs {
		if s.entry != nil {
			out[i] = Record{Kind: KindEntry, Entry: s.entry}
		} else {
			out[i] = Record{Kind: KindGap, Gap: s.gap}
		}
	}
	return out
}

func (l *Ledger) reindex() {
	l.index = make(map[string]int, len(l.segments))
	for i, s := range l.segments {
		if s.entry != nil {
			l.index[s.entry.ID] = i
		}
	}
}

func cloneGap(g model.ChainGap) model.ChainGap {
	g.CleanupRunIDs = slices.Clone(g.CleanupRunIDs)
	return g
}
