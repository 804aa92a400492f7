package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// Payout tracks the disbursement of one settlement's net payable to a seller.
// ScheduledAt is the due date; retries push it forward with backoff.
// RailPaymentID carries the payment rail's reference once dispatch succeeds.
type Payout struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SettlementID  uuid.UUID          `gorm:"column:settlement_id;type:uuid;not null;uniqueIndex"`
	SellerStoreID uuid.UUID          `gorm:"column:seller_store_id;type:uuid;not null;index"`
	BatchID       *uuid.UUID         `gorm:"column:batch_id;type:uuid;index"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency      enums.Currency     `gorm:"column:currency;type:currency;not null;default:'USD'"`
	Status        enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'scheduled'"`
	RetryCount    int                `gorm:"column:retry_count;not null;default:0"`
	RailPaymentID *string            `gorm:"column:rail_payment_id"`
	LastError     *string            `gorm:"column:last_error"`
	ScheduledAt   time.Time          `gorm:"column:scheduled_at;not null"`
	DispatchedAt  *time.Time         `gorm:"column:dispatched_at"`
	CompletedAt   *time.Time         `gorm:"column:completed_at"`
	FailedAt      *time.Time         `gorm:"column:failed_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
