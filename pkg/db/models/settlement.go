package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// Settlement aggregates a seller's commission records for one calendar month.
// At most one non-cancelled settlement exists per (seller, year, month).
type Settlement struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerStoreID   uuid.UUID              `gorm:"column:seller_store_id;type:uuid;not null;index"`
	PeriodYear      int                    `gorm:"column:period_year;not null"`
	PeriodMonth     int                    `gorm:"column:period_month;not null"`
	GrossTotal      decimal.Decimal        `gorm:"column:gross_total;type:numeric(14,2);not null"`
	CommissionTotal decimal.Decimal        `gorm:"column:commission_total;type:numeric(14,2);not null"`
	NetPayable      decimal.Decimal        `gorm:"column:net_payable;type:numeric(14,2);not null"`
	Currency        enums.Currency         `gorm:"column:currency;type:currency;not null;default:'USD'"`
	Status          enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null;default:'draft'"`
	RecordCount     int                    `gorm:"column:record_count;not null;default:0"`
	FinalizedAt     *time.Time             `gorm:"column:finalized_at"`
	InvoicedAt      *time.Time             `gorm:"column:invoiced_at"`
	CancelledAt     *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
