package settlements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// Repository exposes settlement persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindActiveByPeriod(ctx context.Context, sellerStoreID uuid.UUID, year, month int) (*models.Settlement, error)
	List(ctx context.Context, opts SettlementFilters) ([]models.Settlement, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, updates map[string]any) (bool, error)
	UpdateTotals(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ReplaceLineItems(ctx context.Context, settlementID uuid.UUID, items []models.SettlementLineItem) error
	ListLineItems(ctx context.Context, settlementID uuid.UUID) ([]models.SettlementLineItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error) {
	if err := r.db.WithContext(ctx).Create(settlement).Error; err != nil {
		return nil, err
	}
	return settlement, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.WithContext(ctx).First(&settlement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

// FindActiveByPeriod returns the non-cancelled settlement for a seller period,
// or gorm.ErrRecordNotFound. At most one can exist.
func (r *repository) FindActiveByPeriod(ctx context.Context, sellerStoreID uuid.UUID, year, month int) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Where("seller_store_id = ? AND period_year = ? AND period_month = ? AND status <> ?",
			sellerStoreID, year, month, enums.SettlementStatusCancelled).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// SettlementFilters narrows a settlement listing.
type SettlementFilters struct {
	SellerStoreID *uuid.UUID
	Status        *enums.SettlementStatus
	Year          *int
	Month         *int
	Cursor        *pagination.Cursor
	Limit         int
}

// List returns settlements using cursor pagination, newest first.
func (r *repository) List(ctx context.Context, opts SettlementFilters) ([]models.Settlement, error) {
	query := r.db.WithContext(ctx).Model(&models.Settlement{})

	if opts.SellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *opts.SellerStoreID)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.Year != nil {
		query = query.Where("period_year = ?", *opts.Year)
	}
	if opts.Month != nil {
		query = query.Where("period_month = ?", *opts.Month)
	}
	if opts.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.Limit)

	var rows []models.Settlement
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatusIf advances the status only when the row is still in the
// expected pre-state. Returns false when the guard missed, so overlapping
// workers cannot double-apply a transition.
func (r *repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	result := r.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateTotals(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ReplaceLineItems deletes the settlement's line items and inserts the new
// set. Regeneration runs this inside a transaction so totals never observe a
// half-rebuilt state.
func (r *repository) ReplaceLineItems(ctx context.Context, settlementID uuid.UUID, items []models.SettlementLineItem) error {
	if err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Delete(&models.SettlementLineItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) ListLineItems(ctx context.Context, settlementID uuid.UUID) ([]models.SettlementLineItem, error) {
	var items []models.SettlementLineItem
	err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
