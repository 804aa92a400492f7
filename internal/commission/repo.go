package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// Repository exposes commission record persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.CommissionRecord) (*models.CommissionRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRecord, error)
	FindByOrderSeller(ctx context.Context, orderID, sellerStoreID uuid.UUID) (*models.CommissionRecord, error)
	List(ctx context.Context, opts RecordFilters) ([]models.CommissionRecord, error)
	ListForPeriod(ctx context.Context, sellerStoreID uuid.UUID, start, end time.Time) ([]models.CommissionRecord, error)
	DistinctSellers(ctx context.Context, start, end time.Time) ([]uuid.UUID, error)
	AttachToSettlement(ctx context.Context, settlementID uuid.UUID, recordIDs []uuid.UUID) error
	DetachFromSettlement(ctx context.Context, settlementID uuid.UUID) error
	UpdateAmounts(ctx context.Context, id uuid.UUID, gross, commissionAmount, net decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a record repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.CommissionRecord) (*models.CommissionRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByOrderSeller returns the record for an (order, seller) pair, or
// gorm.ErrRecordNotFound. At most one can exist.
func (r *repository) FindByOrderSeller(ctx context.Context, orderID, sellerStoreID uuid.UUID) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	err := r.db.WithContext(ctx).
		First(&record, "order_id = ? AND seller_store_id = ?", orderID, sellerStoreID).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordFilters narrows a record listing.
type RecordFilters struct {
	SellerStoreID *uuid.UUID
	OrderID       *uuid.UUID
	Unsettled     bool
	Cursor        *pagination.Cursor
	Limit         int
}

// List returns records using cursor pagination, newest first.
func (r *repository) List(ctx context.Context, opts RecordFilters) ([]models.CommissionRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRecord{})

	if opts.SellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *opts.SellerStoreID)
	}
	if opts.OrderID != nil {
		query = query.Where("order_id = ?", *opts.OrderID)
	}
	if opts.Unsettled {
		query = query.Where("settlement_id IS NULL")
	}
	if opts.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.Limit)

	var rows []models.CommissionRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListForPeriod returns all of a seller's records whose order completed
// within [start, end), oldest first. Settlement generation reads through this.
func (r *repository) ListForPeriod(ctx context.Context, sellerStoreID uuid.UUID, start, end time.Time) ([]models.CommissionRecord, error) {
	var rows []models.CommissionRecord
	err := r.db.WithContext(ctx).
		Where("seller_store_id = ? AND order_completed_at >= ? AND order_completed_at < ?", sellerStoreID, start, end).
		Order("order_completed_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DistinctSellers returns every seller with a record whose order completed
// within [start, end). The settlement generation sweep fans out from this.
func (r *repository) DistinctSellers(ctx context.Context, start, end time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.CommissionRecord{}).
		Where("order_completed_at >= ? AND order_completed_at < ?", start, end).
		Distinct("seller_store_id").
		Pluck("seller_store_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AttachToSettlement stamps the given records with a settlement id.
func (r *repository) AttachToSettlement(ctx context.Context, settlementID uuid.UUID, recordIDs []uuid.UUID) error {
	if len(recordIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.CommissionRecord{}).
		Where("id IN ?", recordIDs).
		Update("settlement_id", settlementID).Error
}

// DetachFromSettlement clears the settlement stamp from every record tied to
// the settlement. Regeneration and cancellation run this before rebuilding.
func (r *repository) DetachFromSettlement(ctx context.Context, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.CommissionRecord{}).
		Where("settlement_id = ?", settlementID).
		Update("settlement_id", nil).Error
}

// UpdateAmounts rewrites the money columns of an unsettled record. Returns
// false when the record is missing or already folded into a settlement, so
// the guard also holds against a concurrent generation run.
func (r *repository) UpdateAmounts(ctx context.Context, id uuid.UUID, gross, commissionAmount, net decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.CommissionRecord{}).
		Where("id = ? AND settlement_id IS NULL", id).
		Updates(map[string]any{
			"gross_amount":      gross,
			"commission_amount": commissionAmount,
			"net_amount":        net,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
