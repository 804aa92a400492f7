package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// CommissionRecord is the immutable per-order per-seller commission entry.
// RuleID is nil when the platform default rate was applied. SettlementID is
// set once the record has been folded into a settlement.
type CommissionRecord struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	SellerStoreID        uuid.UUID       `gorm:"column:seller_store_id;type:uuid;not null;index"`
	PaymentTransactionID *uuid.UUID      `gorm:"column:payment_transaction_id;type:uuid"`
	RuleID               *uuid.UUID      `gorm:"column:rule_id;type:uuid"`
	GrossAmount          decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	RateApplied          decimal.Decimal `gorm:"column:rate_applied;type:numeric(8,6);not null"`
	FixedFeeApplied      decimal.Decimal `gorm:"column:fixed_fee_applied;type:numeric(12,2);not null;default:0"`
	CommissionAmount     decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	NetAmount            decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2);not null"`
	Currency             enums.Currency  `gorm:"column:currency;type:currency;not null;default:'USD'"`
	SettlementID         *uuid.UUID      `gorm:"column:settlement_id;type:uuid;index"`
	OrderCompletedAt     time.Time       `gorm:"column:order_completed_at;not null;index"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}
