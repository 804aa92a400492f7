package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	pkgpagination "github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

type rulesRepository interface {
	Create(ctx context.Context, rule *models.CommissionRule) (*models.CommissionRule, error)
	Update(ctx context.Context, rule *models.CommissionRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts listQuery) ([]models.CommissionRule, error)
	FindEligible(ctx context.Context, scope enums.RuleScope, sellerStoreID *uuid.UUID, category *string, asOf time.Time, limit int) ([]models.CommissionRule, error)
	FindSameScope(ctx context.Context, scope enums.RuleScope, sellerStoreID *uuid.UUID, category *string, priority int, excludeID *uuid.UUID) ([]models.CommissionRule, error)
}

// RuleInput carries the admin-supplied fields for creating or editing a rule.
type RuleInput struct {
	SellerStoreID *uuid.UUID
	Category      *string
	Rate          decimal.Decimal
	FixedFee      decimal.Decimal
	MinCommission *decimal.Decimal
	MaxCommission *decimal.Decimal
	Currency      enums.Currency
	Priority      int
	EffectiveFrom time.Time
}

// MutationResult pairs the stored rule with the rules it may shadow. Conflicts
// never block the write; admins decide whether to proceed.
type MutationResult struct {
	Rule      *models.CommissionRule
	Conflicts []models.CommissionRule
}

// ConflictQuery describes a proposed rule for conflict inspection.
type ConflictQuery struct {
	SellerStoreID *uuid.UUID
	Category      *string
	Priority      int
	EffectiveFrom time.Time
	ExcludeRuleID *uuid.UUID
}

// ListParams holds filters plus cursor pagination inputs.
type ListParams struct {
	Scope  *enums.RuleScope
	Active *bool
	Limit  int
	Cursor string
}

// ListResult is a page of rules.
type ListResult struct {
	Rules  []models.CommissionRule
	Cursor string
}

// Service exposes rule CRUD, conflict detection, and best-match resolution.
type Service interface {
	CreateRule(ctx context.Context, input RuleInput) (*MutationResult, error)
	UpdateRule(ctx context.Context, id uuid.UUID, input RuleInput) (*MutationResult, error)
	GetRule(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error)
	ListRules(ctx context.Context, params ListParams) (*ListResult, error)
	DeactivateRule(ctx context.Context, id uuid.UUID) error
	Conflicts(ctx context.Context, query ConflictQuery) ([]models.CommissionRule, error)
	BestMatch(ctx context.Context, sellerStoreID *uuid.UUID, category *string, asOf time.Time) (*models.CommissionRule, error)
}

type service struct {
	repo rulesRepository
}

// NewService builds a rule service backed by the provided repository.
func NewService(repo rulesRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rules repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateRule(ctx context.Context, input RuleInput) (*MutationResult, error) {
	rule, err := s.buildRule(input)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.repo.FindSameScope(ctx, rule.Scope, rule.SellerStoreID, rule.Category, rule.Priority, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check rule conflicts")
	}

	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission rule")
	}
	return &MutationResult{Rule: created, Conflicts: conflicts}, nil
}

func (s *service) UpdateRule(ctx context.Context, id uuid.UUID, input RuleInput) (*MutationResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule id is required")
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission rule not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rule")
	}

	updated, err := s.buildRule(input)
	if err != nil {
		return nil, err
	}

	existing.Scope = updated.Scope
	existing.SellerStoreID = updated.SellerStoreID
	existing.Category = updated.Category
	existing.Rate = updated.Rate
	existing.FixedFee = updated.FixedFee
	existing.MinCommission = updated.MinCommission
	existing.MaxCommission = updated.MaxCommission
	existing.Currency = updated.Currency
	existing.Priority = updated.Priority
	existing.EffectiveFrom = updated.EffectiveFrom

	conflicts, err := s.repo.FindSameScope(ctx, existing.Scope, existing.SellerStoreID, existing.Category, existing.Priority, &existing.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check rule conflicts")
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission rule")
	}
	return &MutationResult{Rule: existing, Conflicts: conflicts}, nil
}

func (s *service) GetRule(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule id is required")
	}
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission rule not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rule")
	}
	return rule, nil
}

func (s *service) ListRules(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := listQuery{
		scope:  params.Scope,
		active: params.Active,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission rules")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &ListResult{Rules: rows, Cursor: nextCursor}, nil
}

func (s *service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "rule id is required")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commission rule not found or already inactive")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate commission rule")
	}
	return nil
}

func (s *service) Conflicts(ctx context.Context, query ConflictQuery) ([]models.CommissionRule, error) {
	scope := DeriveScope(query.SellerStoreID, query.Category)
	conflicts, err := s.repo.FindSameScope(ctx, scope, query.SellerStoreID, query.Category, query.Priority, query.ExcludeRuleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check rule conflicts")
	}
	return conflicts, nil
}

// BestMatch resolves the winning rule by walking the scope tiers from most to
// least specific. A nil result with nil error means no rule matched; callers
// fall back to the platform default.
func (s *service) BestMatch(ctx context.Context, sellerStoreID *uuid.UUID, category *string, asOf time.Time) (*models.CommissionRule, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	for _, tier := range enums.ScopeTiers {
		rows, err := s.repo.FindEligible(ctx, tier, sellerStoreID, category, asOf, 1)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve commission rule")
		}
		if len(rows) > 0 {
			rule := rows[0]
			return &rule, nil
		}
	}
	return nil, nil
}

func (s *service) buildRule(input RuleInput) (*models.CommissionRule, error) {
	if input.Rate.IsNegative() || input.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate must be a fraction between 0 and 1")
	}
	if input.FixedFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fixed fee must not be negative")
	}
	if input.MinCommission != nil && input.MinCommission.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min commission must not be negative")
	}
	if input.MinCommission != nil && input.MaxCommission != nil && input.MaxCommission.LessThan(*input.MinCommission) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max commission must not be below min commission")
	}
	if input.EffectiveFrom.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "effective date is required")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	sellerStoreID := input.SellerStoreID
	if sellerStoreID != nil && *sellerStoreID == uuid.Nil {
		sellerStoreID = nil
	}
	category := input.Category
	if category != nil && strings.TrimSpace(*category) == "" {
		category = nil
	}

	return &models.CommissionRule{
		Scope:         DeriveScope(sellerStoreID, category),
		SellerStoreID: sellerStoreID,
		Category:      category,
		Rate:          input.Rate,
		FixedFee:      input.FixedFee,
		MinCommission: input.MinCommission,
		MaxCommission: input.MaxCommission,
		Currency:      currency,
		Priority:      input.Priority,
		EffectiveFrom: input.EffectiveFrom.UTC(),
		Active:        true,
	}, nil
}
