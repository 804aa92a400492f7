package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox/payloads"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// generationLocker serializes settlement generation per seller period.
type generationLocker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	SettlementLockKey(sellerStoreID string, year, month int) string
}

// PayoutScheduler creates the payout for a settlement that just finalized,
// inside the finalizing transaction.
type PayoutScheduler interface {
	SchedulePayout(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error
}

// SettlementDetail pairs a settlement with its line items.
type SettlementDetail struct {
	Settlement models.Settlement
	LineItems  []models.SettlementLineItem
}

// ListParams holds settlement filters plus cursor pagination inputs.
type ListParams struct {
	SellerStoreID *uuid.UUID
	Status        *enums.SettlementStatus
	Year          *int
	Month         *int
	Limit         int
	Cursor        string
}

// ListResult is a page of settlements.
type ListResult struct {
	Settlements []models.Settlement
	Cursor      string
}

// SweepResult summarizes one settlement generation sweep.
type SweepResult struct {
	Sellers   int
	Generated int
	Failed    int
}

// Service owns the monthly settlement lifecycle.
type Service interface {
	Generate(ctx context.Context, sellerStoreID uuid.UUID, year, month int) (*models.Settlement, error)
	GenerateAll(ctx context.Context, year, month int) (*SweepResult, error)
	Finalize(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	GetSettlement(ctx context.Context, id uuid.UUID) (*SettlementDetail, error)
	ListSettlements(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	records commission.Repository
	locker  generationLocker
	payouts PayoutScheduler
	outbox  outboxPublisher
	lockTTL time.Duration
	logg    *logger.Logger
}

// NewService builds the settlement service.
func NewService(
	tx txRunner,
	repo Repository,
	records commission.Repository,
	locker generationLocker,
	payouts PayoutScheduler,
	publisher outboxPublisher,
	cfg config.SettlementConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if records == nil {
		return nil, fmt.Errorf("commission records repository required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if payouts == nil {
		return nil, fmt.Errorf("payout scheduler required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &service{
		tx:      tx,
		repo:    repo,
		records: records,
		locker:  locker,
		payouts: payouts,
		outbox:  publisher,
		lockTTL: lockTTL,
		logg:    logg,
	}, nil
}

// Generate builds or rebuilds the draft settlement for a seller month. Line
// items are always deleted and rebuilt from the current record set, so a
// regeneration after late records lands on the same totals a fresh run would.
// Periods are calendar months in UTC.
func (s *service) Generate(ctx context.Context, sellerStoreID uuid.UUID, year, month int) (*models.Settlement, error) {
	if sellerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller store id is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	lockKey := s.locker.SettlementLockKey(sellerStoreID.String(), year, month)
	acquired, err := s.locker.SetNX(ctx, lockKey, time.Now().UTC().Format(time.RFC3339), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire settlement lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "settlement generation already in progress for this period")
	}
	defer func() {
		if delErr := s.locker.Del(context.WithoutCancel(ctx), lockKey); delErr != nil {
			s.logg.Error(ctx, "release settlement lock", delErr)
		}
	}()

	existing, err := s.repo.FindActiveByPeriod(ctx, sellerStoreID, year, month)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement for period")
	}
	if existing != nil && existing.Status.IsFrozen() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settlement is finalized and can no longer be regenerated")
	}

	start, end := periodWindow(year, month)
	records, err := s.records.ListForPeriod(ctx, sellerStoreID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission records for period")
	}

	gross, commissionTotal, net := decimal.Zero, decimal.Zero, decimal.Zero
	currency := enums.CurrencyUSD
	for i, record := range records {
		gross = gross.Add(record.GrossAmount)
		commissionTotal = commissionTotal.Add(record.CommissionAmount)
		net = net.Add(record.NetAmount)
		if i == 0 {
			currency = record.Currency
		}
	}

	var settlement *models.Settlement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		recordsRepo := s.records.WithTx(tx)

		if existing == nil {
			created, err := repo.Create(ctx, &models.Settlement{
				SellerStoreID:   sellerStoreID,
				PeriodYear:      year,
				PeriodMonth:     month,
				GrossTotal:      gross,
				CommissionTotal: commissionTotal,
				NetPayable:      net,
				Currency:        currency,
				Status:          enums.SettlementStatusDraft,
				RecordCount:     len(records),
			})
			if err != nil {
				return err
			}
			settlement = created
		} else {
			settlement = existing
			if err := recordsRepo.DetachFromSettlement(ctx, settlement.ID); err != nil {
				return err
			}
			if err := repo.UpdateTotals(ctx, settlement.ID, map[string]any{
				"gross_total":      gross,
				"commission_total": commissionTotal,
				"net_payable":      net,
				"currency":         currency,
				"record_count":     len(records),
			}); err != nil {
				return err
			}
			settlement.GrossTotal = gross
			settlement.CommissionTotal = commissionTotal
			settlement.NetPayable = net
			settlement.Currency = currency
			settlement.RecordCount = len(records)
		}

		items := make([]models.SettlementLineItem, 0, len(records))
		recordIDs := make([]uuid.UUID, 0, len(records))
		for _, record := range records {
			items = append(items, models.SettlementLineItem{
				SettlementID:       settlement.ID,
				CommissionRecordID: record.ID,
				OrderID:            record.OrderID,
				GrossAmount:        record.GrossAmount,
				CommissionAmount:   record.CommissionAmount,
				NetAmount:          record.NetAmount,
			})
			recordIDs = append(recordIDs, record.ID)
		}
		if err := repo.ReplaceLineItems(ctx, settlement.ID, items); err != nil {
			return err
		}
		if err := recordsRepo.AttachToSettlement(ctx, settlement.ID, recordIDs); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementGenerated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Version:       1,
			Data: payloads.SettlementGeneratedEvent{
				SettlementID:  settlement.ID,
				SellerStoreID: settlement.SellerStoreID,
				PeriodYear:    settlement.PeriodYear,
				PeriodMonth:   settlement.PeriodMonth,
				NetPayable:    settlement.NetPayable,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate settlement")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"settlement_id":   settlement.ID.String(),
		"seller_store_id": sellerStoreID.String(),
		"period":          fmt.Sprintf("%04d-%02d", year, month),
		"record_count":    len(records),
	})
	s.logg.Info(logCtx, "settlement generated")

	return settlement, nil
}

// GenerateAll sweeps every seller that had commission activity in the period.
// A failure for one seller does not stop the rest.
func (s *service) GenerateAll(ctx context.Context, year, month int) (*SweepResult, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	start, end := periodWindow(year, month)
	sellers, err := s.records.DistinctSellers(ctx, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sellers with commission activity")
	}

	result := &SweepResult{Sellers: len(sellers)}
	for _, sellerID := range sellers {
		if _, err := s.Generate(ctx, sellerID, year, month); err != nil {
			// Frozen settlements are expected on re-sweeps, not failures.
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			result.Failed++
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"seller_store_id": sellerID.String(),
				"period":          fmt.Sprintf("%04d-%02d", year, month),
			})
			s.logg.Error(logCtx, "settlement generation failed", err)
			continue
		}
		result.Generated++
	}
	return result, nil
}

// Finalize freezes a draft settlement and schedules its payout in the same
// transaction. Finalized settlements can no longer be regenerated.
func (s *service) Finalize(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	settlement, err := s.loadSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if settlement.Status != enums.SettlementStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft settlements can be finalized")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.UpdateStatusIf(ctx, id, enums.SettlementStatusDraft, enums.SettlementStatusFinalized, map[string]any{
			"finalized_at": now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement was modified concurrently")
		}
		settlement.Status = enums.SettlementStatusFinalized
		settlement.FinalizedAt = &now

		if err := s.payouts.SchedulePayout(ctx, tx, settlement); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementFinalized,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Version:       1,
			Data: payloads.SettlementFinalizedEvent{
				SettlementID:  settlement.ID,
				SellerStoreID: settlement.SellerStoreID,
				PeriodYear:    settlement.PeriodYear,
				PeriodMonth:   settlement.PeriodMonth,
				NetPayable:    settlement.NetPayable,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize settlement")
	}
	return settlement, nil
}

// Cancel voids a settlement that has not been invoiced yet and releases its
// records so a future generation can pick them up again.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	settlement, err := s.loadSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if settlement.Status == enums.SettlementStatusInvoiced {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoiced settlements cannot be cancelled")
	}
	if settlement.Status == enums.SettlementStatusCancelled {
		return settlement, nil
	}

	from := settlement.Status
	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.UpdateStatusIf(ctx, id, from, enums.SettlementStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement was modified concurrently")
		}
		settlement.Status = enums.SettlementStatusCancelled
		settlement.CancelledAt = &now

		if err := s.records.WithTx(tx).DetachFromSettlement(ctx, settlement.ID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCancelled,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Version:       1,
			Data: payloads.SettlementCancelledEvent{
				SettlementID:  settlement.ID,
				SellerStoreID: settlement.SellerStoreID,
				PeriodYear:    settlement.PeriodYear,
				PeriodMonth:   settlement.PeriodMonth,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel settlement")
	}
	return settlement, nil
}

func (s *service) GetSettlement(ctx context.Context, id uuid.UUID) (*SettlementDetail, error) {
	settlement, err := s.loadSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListLineItems(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement line items")
	}
	return &SettlementDetail{Settlement: *settlement, LineItems: items}, nil
}

// loadSettlement loads the bare settlement row.
func (s *service) loadSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}
	settlement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return settlement, nil
}

func (s *service) ListSettlements(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := SettlementFilters{
		SellerStoreID: params.SellerStoreID,
		Status:        params.Status,
		Year:          params.Year,
		Month:         params.Month,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &ListResult{Settlements: rows, Cursor: nextCursor}, nil
}

func validatePeriod(year, month int) error {
	if year < 2000 || year > 9999 {
		return pkgerrors.New(pkgerrors.CodeValidation, "year out of range")
	}
	if month < 1 || month > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, "month must be between 1 and 12")
	}
	return nil
}

// periodWindow returns the [start, end) UTC bounds of a calendar month.
func periodWindow(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
