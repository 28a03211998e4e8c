// Package retention stores retention policies and resolves the one that
// applies to a (category, tenant) pair.
package retention

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/ident"
	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/uuidutil"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Ledger is the part of the audit ledger the store writes to.
type Ledger interface {
	Append(draft model.DraftEntry) (model.AuditLogEntry, error)
}

// Snapshotter persists the full policy set after each mutation.
type Snapshotter interface {
	SavePolicies(policies []model.RetentionPolicy) error
}

// CreateRequest describes a new policy.
type CreateRequest struct {
	TenantID      *string `json:"tenantId"`
	ReportType    *string `json:"reportType"`
	DataCategory  string  `json:"dataCategory" validate:"required"`
	RetentionDays int     `json:"retentionDays" validate:"gte=1"`
	AllowDeletion bool    `json:"allowDeletion"`
	CreatedBy     string  `json:"createdBy" validate:"required"`
	CreatedByName string  `json:"createdByName"`
}

// Store holds retention policies. Policies are never hard-deleted.
type Store struct {
	mu       sync.RWMutex
	policies []model.RetentionPolicy

	ledger Ledger
	snap   Snapshotter
	clock  func() time.Time
	log    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for CreatedAt and UpdatedAt.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithSnapshotter persists the policy set after each mutation.
func WithSnapshotter(snap Snapshotter) Option {
	return func(s *Store) { s.snap = snap }
}

// WithLogger sets the store's logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithPolicies seeds the store, typically from a persisted snapshot.
func WithPolicies(policies []model.RetentionPolicy) Option {
	return func(s *Store) { s.policies = clonePolicies(policies) }
}

// NewStore creates a policy store that records its mutations in ledger.
func NewStore(ledger Ledger, opts ...Option) *Store {
	s := &Store{
		ledger: ledger,
		clock:  time.Now,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates req, stores the policy and logs create-retention-policy.
func (s *Store) Create(req CreateRequest) (model.RetentionPolicy, error) {
	req.DataCategory = ident.Normalize(req.DataCategory)
	if err := validateRequest(req); err != nil {
		return model.RetentionPolicy{}, err
	}
	if err := ident.ValidateCategory(req.DataCategory); err != nil {
		return model.RetentionPolicy{}, err
	}
	tenant := normalizeTenant(req.TenantID)
	if tenant != nil {
		if err := ident.ValidateTenant(*tenant); err != nil {
			return model.RetentionPolicy{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := model.RetentionPolicy{
		ID:            uuidutil.NewV4(),
		TenantID:      tenant,
		ReportType:    req.ReportType,
		DataCategory:  req.DataCategory,
		RetentionDays: req.RetentionDays,
		AllowDeletion: req.AllowDeletion,
		IsActive:      true,
		Priority:      model.PolicyPriority(tenant, req.DataCategory),
		CreatedBy:     req.CreatedBy,
		CreatedAt:     s.clock().UTC(),
	}

	draft := model.DraftEntry{
		Action:     model.ActionCreateRetentionPolicy,
		EntityType: model.EntityRetentionPolicy,
		EntityID:   p.ID,
		UserID:     req.CreatedBy,
		UserName:   req.CreatedByName,
		Changes: []model.Change{
			{Field: "dataCategory", NewValue: &p.DataCategory},
			{Field: "retentionDays", NewValue: ptr(strconv.Itoa(p.RetentionDays))},
			{Field: "allowDeletion", NewValue: ptr(strconv.FormatBool(p.AllowDeletion))},
		},
		TenantID: p.Tenant(),
	}
	next := append(clonePolicies(s.policies), p)
	if err := s.commit(next, draft); err != nil {
		return model.RetentionPolicy{}, err
	}

	s.log.Info("retention policy created", map[string]any{
		"policy_id":      p.ID,
		"data_category":  p.DataCategory,
		"tenant_id":      p.Tenant(),
		"retention_days": p.RetentionDays,
		"priority":       p.Priority,
	})
	return clonePolicy(p), nil
}

// Update changes the retention window and deletion permission of a policy
// and logs the old and new values.
func (s *Store) Update(id string, retentionDays int, allowDeletion bool, updatedBy string) (model.RetentionPolicy, error) {
	if retentionDays < 1 {
		return model.RetentionPolicy{}, errclass.ErrValidation.Field("retentionDays", "must be at least 1")
	}
	if updatedBy == "" {
		return model.RetentionPolicy{}, errclass.ErrValidation.Field("updatedBy", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.RetentionPolicy{}, errclass.ErrNotFound.WithMessagef("retention policy %s", id)
	}

	next := clonePolicies(s.policies)
	old := next[i]
	p := &next[i]
	now := s.clock().UTC()
	p.RetentionDays = retentionDays
	p.AllowDeletion = allowDeletion
	p.UpdatedBy = updatedBy
	p.UpdatedAt = &now

	draft := model.DraftEntry{
		Action:     model.ActionUpdateRetentionPolicy,
		EntityType: model.EntityRetentionPolicy,
		EntityID:   id,
		UserID:     updatedBy,
		Changes: []model.Change{
			model.NewChange("retentionDays", strconv.Itoa(old.RetentionDays), strconv.Itoa(retentionDays)),
			model.NewChange("allowDeletion", strconv.FormatBool(old.AllowDeletion), strconv.FormatBool(allowDeletion)),
		},
		TenantID: old.Tenant(),
	}
	if err := s.commit(next, draft); err != nil {
		return model.RetentionPolicy{}, err
	}

	s.log.Info("retention policy updated", map[string]any{
		"policy_id":      id,
		"retention_days": retentionDays,
		"allow_deletion": allowDeletion,
	})
	return clonePolicy(next[i]), nil
}

// Deactivate soft-deletes a policy. Deactivating an inactive policy is a no-op.
func (s *Store) Deactivate(id, updatedBy string) error {
	if updatedBy == "" {
		return errclass.ErrValidation.Field("updatedBy", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return errclass.ErrNotFound.WithMessagef("retention policy %s", id)
	}
	if !s.policies[i].IsActive {
		return nil
	}

	next := clonePolicies(s.policies)
	now := s.clock().UTC()
	next[i].IsActive = false
	next[i].UpdatedBy = updatedBy
	next[i].UpdatedAt = &now

	draft := model.DraftEntry{
		Action:     model.ActionDeactivateRetentionPolicy,
		EntityType: model.EntityRetentionPolicy,
		EntityID:   id,
		UserID:     updatedBy,
		Changes:    []model.Change{model.NewChange("isActive", "true", "false")},
		TenantID:   next[i].Tenant(),
	}
	if err := s.commit(next, draft); err != nil {
		return err
	}

	s.log.Info("retention policy deactivated", map[string]any{"policy_id": id})
	return nil
}

// commit persists next, logs draft to the ledger and swaps next in. Nothing
// changes if either step fails.
func (s *Store) commit(next []model.RetentionPolicy, draft model.DraftEntry) error {
	if s.snap != nil {
		if err := s.snap.SavePolicies(next); err != nil {
			return fmt.Errorf("save policies: %w", err)
		}
	}
	if _, err := s.ledger.Append(draft); err != nil {
		if s.snap != nil {
			if rbErr := s.snap.SavePolicies(s.policies); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("restore policies: %w", rbErr))
			}
		}
		return fmt.Errorf("log %s: %w", draft.Action, err)
	}
	s.policies = next
	return nil
}

// Resolve returns the highest-priority active policy for category and
// tenant, or nil when retention is undefined. Precedence: tenant with exact
// category, global exact category, tenant "all", global "all". Ties go to
// the most recently created policy.
func (s *Store) Resolve(category string, tenantID *string) *model.RetentionPolicy {
	category = ident.Normalize(category)
	tenant := ""
	if t := normalizeTenant(tenantID); t != nil {
		tenant = *t
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.RetentionPolicy
	bestRank := 0
	for i := range s.policies {
		p := &s.policies[i]
		rank := matchRank(p, category, tenant)
		if rank == 0 {
			continue
		}
		if rank > bestRank || (rank == bestRank && !p.CreatedAt.Before(best.CreatedAt)) {
			best, bestRank = p, rank
		}
	}
	if best == nil {
		return nil
	}
	out := clonePolicy(*best)
	return &out
}

func matchRank(p *model.RetentionPolicy, category, tenant string) int {
	if !p.IsActive {
		return 0
	}
	pt := p.Tenant()
	if pt != "" && pt != tenant {
		return 0
	}
	switch {
	case p.DataCategory == category && pt != "":
		return 4
	case p.DataCategory == category:
		return 3
	case p.DataCategory == model.CategoryAll && pt != "":
		return 2
	case p.DataCategory == model.CategoryAll:
		return 1
	}
	return 0
}

// List returns policies in creation order.
func (s *Store) List(activeOnly bool) []model.RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clonePolicy(p))
	}
	return out
}

// Get returns a policy by id.
func (s *Store) Get(id string) (model.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.RetentionPolicy{}, errclass.ErrNotFound.WithMessagef("retention policy %s", id)
	}
	return clonePolicy(s.policies[i]), nil
}

// HasActive reports whether any policy is active.
func (s *Store) HasActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.policies, func(p model.RetentionPolicy) bool { return p.IsActive })
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.policies, func(p model.RetentionPolicy) bool { return p.ID == id })
}

func validateRequest(req CreateRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return errclass.ErrValidation.Field(fe.Field(), "is required")
		case "gte":
			return errclass.ErrValidation.Field(fe.Field(), "must be at least "+fe.Param())
		default:
			return errclass.ErrValidation.Field(fe.Field(), "is invalid")
		}
	}
	return errclass.ErrValidation.WithMessage(err.Error())
}

func normalizeTenant(t *string) *string {
	if t == nil {
		return nil
	}
	v := ident.Normalize(*t)
	if v == "" {
		return nil
	}
	return &v
}

func clonePolicy(p model.RetentionPolicy) model.RetentionPolicy {
	if p.TenantID != nil {
		p.TenantID = ptr(*p.TenantID)
	}
	if p.ReportType != nil {
		p.ReportType = ptr(*p.ReportType)
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		p.UpdatedAt = &t
	}
	return p
}

func clonePolicies(ps []model.RetentionPolicy) []model.RetentionPolicy {
	out := make([]model.RetentionPolicy, len(ps))
	for i, p := range ps {
		out[i] = clonePolicy(p)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
