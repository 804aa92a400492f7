package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// CommissionRule defines a commission charge for a seller/category scope.
// SellerStoreID and Category are nullable; which of the two are set must agree
// with Scope. Rules are deactivated rather than deleted so historical
// commission records stay explainable.
type CommissionRule struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Scope         enums.RuleScope  `gorm:"column:scope;type:rule_scope;not null"`
	SellerStoreID *uuid.UUID       `gorm:"column:seller_store_id;type:uuid;index"`
	Category      *string          `gorm:"column:category;index"`
	Rate          decimal.Decimal  `gorm:"column:rate;type:numeric(8,6);not null"`
	FixedFee      decimal.Decimal  `gorm:"column:fixed_fee;type:numeric(12,2);not null;default:0"`
	MinCommission *decimal.Decimal `gorm:"column:min_commission;type:numeric(12,2)"`
	MaxCommission *decimal.Decimal `gorm:"column:max_commission;type:numeric(12,2)"`
	Currency      enums.Currency   `gorm:"column:currency;type:currency;not null;default:'USD'"`
	Priority      int              `gorm:"column:priority;not null;default:0"`
	EffectiveFrom time.Time        `gorm:"column:effective_from;not null"`
	Active        bool             `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
