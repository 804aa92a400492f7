package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/metrics"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox/payloads"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
	"github.com/joaquinvilla/merkado-backend/pkg/square"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentRail pushes money to sellers. Square implements it in production.
type PaymentRail interface {
	ExecutePayout(ctx context.Context, params square.PayoutParams) (*square.PayoutResult, error)
}

// Rail payment statuses that mean the money already moved.
const (
	railStatusCompleted = "COMPLETED"
	railStatusApproved  = "APPROVED"
)

// DispatchResult summarizes one dispatch batch run.
type DispatchResult struct {
	BatchID   uuid.UUID
	Due       int
	Claimed   int
	Completed int
	Pending   int
	Failed    int
}

// ListParams holds payout filters plus cursor pagination inputs.
type ListParams struct {
	SellerStoreID *uuid.UUID
	Status        *enums.PayoutStatus
	BatchID       *uuid.UUID
	Limit         int
	Cursor        string
}

// ListResult is a page of payouts.
type ListResult struct {
	Payouts []models.Payout
	Cursor  string
}

// Service owns the payout disbursement lifecycle.
type Service interface {
	SchedulePayout(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error
	DispatchDue(ctx context.Context) (*DispatchResult, error)
	ReportOutcome(ctx context.Context, railPaymentID string, succeeded bool, failureReason string) error
	RetryFailed(ctx context.Context) (int, error)
	RetryPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListPayouts(ctx context.Context, params ListParams) (*ListResult, error)
	ListExhausted(ctx context.Context, limit int) ([]models.Payout, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	rail    PaymentRail
	outbox  outboxPublisher
	metrics *metrics.PayoutMetrics
	cfg     config.PayoutConfig
	logg    *logger.Logger
}

// NewService builds the payout service.
func NewService(
	tx txRunner,
	repo Repository,
	rail PaymentRail,
	publisher outboxPublisher,
	payoutMetrics *metrics.PayoutMetrics,
	cfg config.PayoutConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if rail == nil {
		return nil, fmt.Errorf("payment rail required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 3
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 24 * time.Hour
	}
	if cfg.DispatchBatch <= 0 {
		cfg.DispatchBatch = 100
	}
	return &service{
		tx:      tx,
		repo:    repo,
		rail:    rail,
		outbox:  publisher,
		metrics: payoutMetrics,
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// SchedulePayout creates the payout for a freshly finalized settlement inside
// the finalizing transaction. A settlement owing nothing gets no payout, and a
// repeat call for the same settlement is a no-op.
func (s *service) SchedulePayout(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error {
	if settlement == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement is required")
	}
	if !settlement.NetPayable.IsPositive() {
		s.logg.Info(ctx, "settlement owes nothing, skipping payout")
		return nil
	}

	repo := s.repo.WithTx(tx)
	if _, err := repo.FindBySettlement(ctx, settlement.ID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	payout, err := repo.Create(ctx, &models.Payout{
		SettlementID:  settlement.ID,
		SellerStoreID: settlement.SellerStoreID,
		Amount:        settlement.NetPayable,
		Currency:      settlement.Currency,
		Status:        enums.PayoutStatusScheduled,
		ScheduledAt:   now,
	})
	if err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutScheduled,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data: payloads.PayoutScheduledEvent{
			PayoutID:      payout.ID,
			SettlementID:  payout.SettlementID,
			SellerStoreID: payout.SellerStoreID,
			Amount:        payout.Amount,
			ScheduledAt:   payout.ScheduledAt,
		},
	})
}

// DispatchDue pushes every due payout through the payment rail. Each payout
// is claimed with an optimistic scheduled -> processing transition first, so
// two overlapping runs never double-pay. The rail call happens outside any
// transaction or lock.
func (s *service) DispatchDue(ctx context.Context) (*DispatchResult, error) {
	now := time.Now().UTC()
	due, err := s.repo.ListDue(ctx, now, s.cfg.DispatchBatch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due payouts")
	}

	result := &DispatchResult{BatchID: uuid.New(), Due: len(due)}
	for i := range due {
		payout := due[i]
		claimed, err := s.repo.TransitionIf(ctx, payout.ID, enums.PayoutStatusScheduled, enums.PayoutStatusProcessing, map[string]any{
			"batch_id": result.BatchID,
		})
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout")
		}
		if !claimed {
			continue
		}
		result.Claimed++

		outcome, err := s.dispatchOne(ctx, &payout)
		if err != nil {
			return result, err
		}
		switch outcome {
		case enums.PayoutStatusCompleted:
			result.Completed++
		case enums.PayoutStatusProcessing:
			result.Pending++
		case enums.PayoutStatusFailed:
			result.Failed++
		}
	}
	return result, nil
}

// dispatchOne executes the rail call for a claimed payout and records the
// outcome. Rail errors fail the payout rather than the batch. The idempotency
// key carries the retry count so Square dedupes overlapping runs of the same
// attempt but treats a requeued payout as a fresh payment request.
func (s *service) dispatchOne(ctx context.Context, payout *models.Payout) (enums.PayoutStatus, error) {
	railResult, railErr := s.rail.ExecutePayout(ctx, square.PayoutParams{
		PayoutID:       payout.ID.String(),
		SellerStoreID:  payout.SellerStoreID.String(),
		AmountCents:    amountCents(payout.Amount),
		Currency:       payout.Currency.String(),
		IdempotencyKey: fmt.Sprintf("%s-%d", payout.ID, payout.RetryCount),
	})
	if railErr != nil {
		s.incDispatched("failed")
		if err := s.markFailed(ctx, payout, railErr.Error()); err != nil {
			return "", err
		}
		return enums.PayoutStatusFailed, nil
	}

	now := time.Now().UTC()
	settled := railResult.Status == railStatusCompleted || railResult.Status == railStatusApproved
	target := enums.PayoutStatusProcessing
	updates := map[string]any{
		"rail_payment_id": railResult.RailPaymentID,
		"dispatched_at":   now,
	}
	if settled {
		target = enums.PayoutStatusCompleted
		updates["completed_at"] = now
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).TransitionIf(ctx, payout.ID, enums.PayoutStatusProcessing, target, updates)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutDispatched,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutDispatchedEvent{
				PayoutID:      payout.ID,
				RailPaymentID: railResult.RailPaymentID,
				DispatchedAt:  now,
			},
		}); err != nil {
			return err
		}
		if settled {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutCompleted,
				AggregateType: enums.AggregatePayout,
				AggregateID:   payout.ID,
				Version:       1,
				Data: payloads.PayoutCompletedEvent{
					PayoutID:    payout.ID,
					CompletedAt: now,
				},
			})
		}
		return nil
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout dispatch")
	}

	if settled {
		s.incDispatched("completed")
		return enums.PayoutStatusCompleted, nil
	}
	s.incDispatched("dispatched")
	return enums.PayoutStatusProcessing, nil
}

// ReportOutcome applies the payment rail's asynchronous verdict for a
// dispatched payout. Redelivered webhooks land on already-terminal rows and
// are ignored.
func (s *service) ReportOutcome(ctx context.Context, railPaymentID string, succeeded bool, failureReason string) error {
	railPaymentID = strings.TrimSpace(railPaymentID)
	if railPaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "rail payment id is required")
	}

	payout, err := s.repo.FindByRailPaymentID(ctx, railPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no payout for rail payment")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout by rail payment")
	}

	if payout.Status == enums.PayoutStatusCompleted {
		return nil
	}

	if !succeeded {
		return s.markFailed(ctx, payout, failureReason)
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).TransitionIf(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusCompleted, map[string]any{
			"completed_at": now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutCompletedEvent{
				PayoutID:    payout.ID,
				CompletedAt: now,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout")
	}
	return nil
}

// markFailed records a failed attempt. When the retry budget is spent the
// payout is flagged for manual review and operators get alerted.
func (s *service) markFailed(ctx context.Context, payout *models.Payout, reason string) error {
	now := time.Now().UTC()
	reason = strings.TrimSpace(reason)
	exhausted := payout.RetryCount >= s.cfg.MaxRetryCount

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).TransitionIf(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusFailed, map[string]any{
			"failed_at":  now,
			"last_error": reason,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutFailedEvent{
				PayoutID:   payout.ID,
				RetryCount: payout.RetryCount,
				Error:      reason,
			},
		}); err != nil {
			return err
		}
		if exhausted {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutRetryExhausted,
				AggregateType: enums.AggregatePayout,
				AggregateID:   payout.ID,
				Version:       1,
				Data: payloads.PayoutRetryExhaustedEvent{
					PayoutID:      payout.ID,
					SettlementID:  payout.SettlementID,
					SellerStoreID: payout.SellerStoreID,
					RetryCount:    payout.RetryCount,
					LastError:     reason,
				},
			})
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payout")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payout_id":   payout.ID.String(),
		"retry_count": payout.RetryCount,
		"exhausted":   exhausted,
	})
	s.logg.Warn(logCtx, "payout failed")
	if exhausted && s.metrics != nil {
		s.metrics.IncRetryExhausted()
	}
	return nil
}

// RetryFailed requeues every failed payout that still has retry budget. The
// new due date backs off exponentially with the attempt count.
func (s *service) RetryFailed(ctx context.Context) (int, error) {
	rows, err := s.repo.ListRetryable(ctx, s.cfg.MaxRetryCount, s.cfg.DispatchBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list retryable payouts")
	}

	retried := 0
	now := time.Now().UTC()
	for i := range rows {
		payout := rows[i]
		ok, err := s.requeue(ctx, &payout, now.Add(s.backoffFor(payout.RetryCount)))
		if err != nil {
			return retried, err
		}
		if ok {
			retried++
		}
	}
	return retried, nil
}

// RetryPayout requeues one failed payout immediately, bypassing the backoff.
// Admins use this after fixing the underlying problem.
func (s *service) RetryPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts can be retried")
	}
	if payout.RetryCount >= s.cfg.MaxRetryCount {
		return nil, pkgerrors.New(pkgerrors.CodeRetryExhausted, "payout retry budget is spent")
	}

	now := time.Now().UTC()
	ok, err := s.requeue(ctx, payout, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout was modified concurrently")
	}
	payout.Status = enums.PayoutStatusScheduled
	payout.RetryCount++
	payout.ScheduledAt = now
	return payout, nil
}

// requeue moves a failed payout back to scheduled with an incremented retry
// count and a new due date.
func (s *service) requeue(ctx context.Context, payout *models.Payout, dueAt time.Time) (bool, error) {
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionIf(ctx, payout.ID, enums.PayoutStatusFailed, enums.PayoutStatusScheduled, map[string]any{
			"retry_count":  payout.RetryCount + 1,
			"scheduled_at": dueAt,
		})
		if err != nil {
			return err
		}
		applied = ok
		if !ok {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutScheduled,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutScheduledEvent{
				PayoutID:      payout.ID,
				SettlementID:  payout.SettlementID,
				SellerStoreID: payout.SellerStoreID,
				Amount:        payout.Amount,
				ScheduledAt:   dueAt,
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue payout")
	}
	return applied, nil
}

func (s *service) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListPayouts(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := PayoutFilters{
		SellerStoreID: params.SellerStoreID,
		Status:        params.Status,
		BatchID:       params.BatchID,
		Limit:         pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}
	return &ListResult{Payouts: rows, Cursor: nextCursor}, nil
}

func (s *service) ListExhausted(ctx context.Context, limit int) ([]models.Payout, error) {
	rows, err := s.repo.ListExhausted(ctx, s.cfg.MaxRetryCount, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list exhausted payouts")
	}
	return rows, nil
}

// backoffFor doubles the base delay per prior attempt, capped so the shift
// cannot overflow.
func (s *service) backoffFor(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 10 {
		retryCount = 10
	}
	return s.cfg.RetryBackoffBase * time.Duration(1<<retryCount)
}

func (s *service) incDispatched(outcome string) {
	if s.metrics != nil {
		s.metrics.IncDispatched(outcome)
	}
}

// amountCents converts a 2dp decimal amount to minor currency units.
func amountCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
