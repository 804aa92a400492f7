package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// Repository exposes commission rule persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a rule repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new rule row.
func (r *Repository) Create(ctx context.Context, rule *models.CommissionRule) (*models.CommissionRule, error) {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// Update persists the full rule row.
func (r *Repository) Update(ctx context.Context, rule *models.CommissionRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

// FindByID loads one rule or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error) {
	var rule models.CommissionRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// Deactivate flips the active flag; rules are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.CommissionRule{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type listQuery struct {
	scope  *enums.RuleScope
	active *bool
	cursor *pagination.Cursor
	limit  int
}

// List returns rules using cursor pagination, newest first.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.CommissionRule, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRule{})

	if opts.scope != nil {
		query = query.Where("scope = ?", *opts.scope)
	}
	if opts.active != nil {
		query = query.Where("active = ?", *opts.active)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.CommissionRule
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindEligible returns the active rules of one scope tier that target the
// given seller/category and are effective at the supplied instant. Rows come
// back best-first per the tie-break order.
func (r *Repository) FindEligible(ctx context.Context, scope enums.RuleScope, sellerStoreID *uuid.UUID, category *string, asOf time.Time, limit int) ([]models.CommissionRule, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRule{}).
		Where("scope = ? AND active = ? AND effective_from <= ?", scope, true, asOf)

	switch scope {
	case enums.RuleScopeSellerAndCategory:
		if sellerStoreID == nil || category == nil {
			return nil, nil
		}
		query = query.Where("seller_store_id = ? AND category = ?", *sellerStoreID, *category)
	case enums.RuleScopeSellerOnly:
		if sellerStoreID == nil {
			return nil, nil
		}
		query = query.Where("seller_store_id = ?", *sellerStoreID)
	case enums.RuleScopeCategoryOnly:
		if category == nil {
			return nil, nil
		}
		query = query.Where("category = ?", *category)
	case enums.RuleScopeGlobal:
		// no target filter
	default:
		return nil, errors.New("unknown rule scope")
	}

	query = query.Order("priority DESC").
		Order("effective_from DESC").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.CommissionRule
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindSameScope returns the active rules that share the exact seller/category
// target and priority, excluding the rule being edited.
func (r *Repository) FindSameScope(ctx context.Context, scope enums.RuleScope, sellerStoreID *uuid.UUID, category *string, priority int, excludeID *uuid.UUID) ([]models.CommissionRule, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRule{}).
		Where("scope = ? AND active = ? AND priority = ?", scope, true, priority)

	if sellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *sellerStoreID)
	} else {
		query = query.Where("seller_store_id IS NULL")
	}
	if category != nil {
		query = query.Where("category = ?", *category)
	} else {
		query = query.Where("category IS NULL")
	}
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var rows []models.CommissionRule
	if err := query.Order("effective_from DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
