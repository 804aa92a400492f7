package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementLineItem snapshots one commission record inside a settlement.
type SettlementLineItem struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SettlementID       uuid.UUID       `gorm:"column:settlement_id;type:uuid;not null;index"`
	CommissionRecordID uuid.UUID       `gorm:"column:commission_record_id;type:uuid;not null"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	GrossAmount        decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	CommissionAmount   decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	NetAmount          decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2);not null"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}
