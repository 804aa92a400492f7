package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// Repository exposes payout persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) (*models.Payout, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.Payout, error)
	FindByRailPaymentID(ctx context.Context, railPaymentID string) (*models.Payout, error)
	List(ctx context.Context, opts PayoutFilters) ([]models.Payout, error)
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Payout, error)
	ListRetryable(ctx context.Context, maxRetryCount, limit int) ([]models.Payout, error)
	ListExhausted(ctx context.Context, maxRetryCount, limit int) ([]models.Payout, error)
	TransitionIf(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) (*models.Payout, error) {
	if err := r.db.WithContext(ctx).Create(payout).Error; err != nil {
		return nil, err
	}
	return payout, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "settlement_id = ?", settlementID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByRailPaymentID(ctx context.Context, railPaymentID string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "rail_payment_id = ?", railPaymentID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// PayoutFilters narrows a payout listing.
type PayoutFilters struct {
	SellerStoreID *uuid.UUID
	Status        *enums.PayoutStatus
	BatchID       *uuid.UUID
	Cursor        *pagination.Cursor
	Limit         int
}

// List returns payouts using cursor pagination, newest first.
func (r *repository) List(ctx context.Context, opts PayoutFilters) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})

	if opts.SellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *opts.SellerStoreID)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.BatchID != nil {
		query = query.Where("batch_id = ?", *opts.BatchID)
	}
	if opts.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.Limit)

	var rows []models.Payout
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue returns scheduled payouts whose due date has passed, oldest first.
// The dispatcher claims each row with an optimistic transition afterwards, so
// overlapping batch runs reading the same snapshot stay safe.
func (r *repository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", enums.PayoutStatusScheduled, asOf).
		Order("scheduled_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRetryable returns failed payouts that still have retry budget left.
func (r *repository) ListRetryable(ctx context.Context, maxRetryCount, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	query := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", enums.PayoutStatusFailed, maxRetryCount).
		Order("failed_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExhausted returns failed payouts with no retry budget remaining. These
// need manual review.
func (r *repository) ListExhausted(ctx context.Context, maxRetryCount, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	query := r.db.WithContext(ctx).
		Where("status = ? AND retry_count >= ?", enums.PayoutStatusFailed, maxRetryCount).
		Order("failed_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionIf advances the payout only when the row is still in the expected
// pre-state. Returns false when another worker got there first.
func (r *repository) TransitionIf(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	result := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
