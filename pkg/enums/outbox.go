package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCommissionRecord  OutboxAggregateType = "commission_record"
	AggregateSettlement        OutboxAggregateType = "settlement"
	AggregatePayout            OutboxAggregateType = "payout"
	AggregateCommissionInvoice OutboxAggregateType = "commission_invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCommissionRecord,
	AggregateSettlement,
	AggregatePayout,
	AggregateCommissionInvoice,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventCommissionRecorded   OutboxEventType = "commission_recorded"
	EventSettlementGenerated  OutboxEventType = "settlement_generated"
	EventSettlementFinalized  OutboxEventType = "settlement_finalized"
	EventSettlementInvoiced   OutboxEventType = "settlement_invoiced"
	EventSettlementCancelled  OutboxEventType = "settlement_cancelled"
	EventPayoutScheduled      OutboxEventType = "payout_scheduled"
	EventPayoutDispatched     OutboxEventType = "payout_dispatched"
	EventPayoutCompleted      OutboxEventType = "payout_completed"
	EventPayoutFailed         OutboxEventType = "payout_failed"
	EventPayoutRetryExhausted OutboxEventType = "payout_retry_exhausted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCommissionRecorded,
	EventSettlementGenerated,
	EventSettlementFinalized,
	EventSettlementInvoiced,
	EventSettlementCancelled,
	EventPayoutScheduled,
	EventPayoutDispatched,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventPayoutRetryExhausted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
