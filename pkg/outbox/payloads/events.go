package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// CommissionRecordedEvent is emitted when a completed order produces a
// commission record for a seller.
type CommissionRecordedEvent struct {
	RecordID         uuid.UUID       `json:"record_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	SellerStoreID    uuid.UUID       `json:"seller_store_id"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	Currency         enums.Currency  `json:"currency"`
}

// SettlementGeneratedEvent signals a draft settlement was produced for a period.
type SettlementGeneratedEvent struct {
	SettlementID  uuid.UUID       `json:"settlement_id"`
	SellerStoreID uuid.UUID       `json:"seller_store_id"`
	PeriodYear    int             `json:"period_year"`
	PeriodMonth   int             `json:"period_month"`
	NetPayable    decimal.Decimal `json:"net_payable"`
	RecordCount   int             `json:"record_count"`
}

// SettlementFinalizedEvent marks the settlement immutable.
type SettlementFinalizedEvent struct {
	SettlementID  uuid.UUID       `json:"settlement_id"`
	SellerStoreID uuid.UUID       `json:"seller_store_id"`
	PeriodYear    int             `json:"period_year"`
	PeriodMonth   int             `json:"period_month"`
	NetPayable    decimal.Decimal `json:"net_payable"`
}

// SettlementInvoicedEvent reports the invoice issued for a settlement.
type SettlementInvoicedEvent struct {
	SettlementID  uuid.UUID `json:"settlement_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
}

// SettlementCancelledEvent reports a voided settlement whose records were
// released for regeneration.
type SettlementCancelledEvent struct {
	SettlementID  uuid.UUID `json:"settlement_id"`
	SellerStoreID uuid.UUID `json:"seller_store_id"`
	PeriodYear    int       `json:"period_year"`
	PeriodMonth   int       `json:"period_month"`
}

// PayoutScheduledEvent signals a payout was created for a finalized settlement.
type PayoutScheduledEvent struct {
	PayoutID      uuid.UUID       `json:"payout_id"`
	SettlementID  uuid.UUID       `json:"settlement_id"`
	SellerStoreID uuid.UUID       `json:"seller_store_id"`
	Amount        decimal.Decimal `json:"amount"`
	ScheduledAt   time.Time       `json:"scheduled_at"`
}

// PayoutDispatchedEvent reports a payout handed to the payment rail.
type PayoutDispatchedEvent struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	RailPaymentID string    `json:"rail_payment_id,omitempty"`
	DispatchedAt  time.Time `json:"dispatched_at"`
}

// PayoutCompletedEvent reports a confirmed disbursement.
type PayoutCompletedEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// PayoutFailedEvent reports a failed attempt that remains retryable.
type PayoutFailedEvent struct {
	PayoutID      uuid.UUID  `json:"payout_id"`
	RetryCount    int        `json:"retry_count"`
	Error         string     `json:"error,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// PayoutRetryExhaustedEvent alerts operators that a payout needs manual review.
type PayoutRetryExhaustedEvent struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	SettlementID  uuid.UUID `json:"settlement_id"`
	SellerStoreID uuid.UUID `json:"seller_store_id"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error,omitempty"`
}
