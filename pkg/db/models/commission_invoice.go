package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// CommissionInvoice is the invoice issued against a finalized settlement.
// InvoiceNumber is gapless and sequential within its issuing year, while
// PeriodYear/PeriodMonth keep the invoice addressable by the settled period.
type CommissionInvoice struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SettlementID  uuid.UUID         `gorm:"column:settlement_id;type:uuid;not null;uniqueIndex"`
	SellerStoreID uuid.UUID         `gorm:"column:seller_store_id;type:uuid;not null;index"`
	PeriodYear    int               `gorm:"column:period_year;not null"`
	PeriodMonth   int               `gorm:"column:period_month;not null"`
	InvoiceNumber string            `gorm:"column:invoice_number;not null;unique"`
	Year          int               `gorm:"column:year;not null"`
	Sequence      int64             `gorm:"column:sequence;not null"`
	Type          enums.InvoiceType `gorm:"column:type;type:invoice_type;not null;default:'commission'"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency      enums.Currency    `gorm:"column:currency;type:currency;not null;default:'USD'"`
	IssuedAt      time.Time         `gorm:"column:issued_at;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}
