package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// NextSequence both creates the per-year counter row on first use and bumps
// it afterwards. The conflict update takes a row lock, so concurrent
// allocations inside their transactions serialize and the numbering stays
// gapless.
const allocateSequenceSQL = `
INSERT INTO invoice_sequences (year, next_value, updated_at)
VALUES (?, 2, ?)
ON CONFLICT (year) DO UPDATE SET next_value = invoice_sequences.next_value + 1, updated_at = ?
RETURNING next_value - 1
`

// Repository exposes invoice persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.CommissionInvoice) (*models.CommissionInvoice, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error)
	FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error)
	FindByNumber(ctx context.Context, invoiceNumber string) (*models.CommissionInvoice, error)
	List(ctx context.Context, opts InvoiceFilters) ([]models.CommissionInvoice, error)
	NextSequence(ctx context.Context, year int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoice repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.CommissionInvoice) (*models.CommissionInvoice, error) {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	if err := r.db.WithContext(ctx).First(&invoice, "settlement_id = ?", settlementID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByNumber(ctx context.Context, invoiceNumber string) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	if err := r.db.WithContext(ctx).First(&invoice, "invoice_number = ?", invoiceNumber).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// InvoiceFilters narrows an invoice listing. Year matches the settled
// period, not the issuance year the number is scoped to.
type InvoiceFilters struct {
	SellerStoreID *uuid.UUID
	Year          *int
	Cursor        *pagination.Cursor
	Limit         int
}

// List returns invoices using cursor pagination, newest first.
func (r *repository) List(ctx context.Context, opts InvoiceFilters) ([]models.CommissionInvoice, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionInvoice{})

	if opts.SellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *opts.SellerStoreID)
	}
	if opts.Year != nil {
		query = query.Where("period_year = ?", *opts.Year)
	}
	if opts.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.Limit)

	var rows []models.CommissionInvoice
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// NextSequence atomically allocates the next invoice number for the year.
// Call it inside the same transaction that persists the invoice, otherwise a
// rollback would burn the number and leave a gap.
func (r *repository) NextSequence(ctx context.Context, year int) (int64, error) {
	now := time.Now().UTC()
	var sequence int64
	err := r.db.WithContext(ctx).
		Raw(allocateSequenceSQL, year, now, now).
		Scan(&sequence).Error
	if err != nil {
		return 0, err
	}
	return sequence, nil
}
