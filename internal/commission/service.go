package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox/payloads"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

const orderSellerUniqueConstraint = "uq_commission_records_order_seller"

type ruleResolver interface {
	BestMatch(ctx context.Context, sellerStoreID *uuid.UUID, category *string, asOf time.Time) (*models.CommissionRule, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SellerPortion is one seller's share of a completed order: the gross amount
// attributable to that seller plus the dominant category hint used for rule
// resolution.
type SellerPortion struct {
	SellerStoreID uuid.UUID
	Category      *string
	GrossAmount   decimal.Decimal
	Currency      enums.Currency
}

// OrderCompletedInput carries everything the upstream order source reports
// when an order finishes.
type OrderCompletedInput struct {
	OrderID              uuid.UUID
	PaymentTransactionID *uuid.UUID
	CompletedAt          time.Time
	Portions             []SellerPortion
}

// PreviewLine is a computed commission that was not persisted.
type PreviewLine struct {
	SellerStoreID    uuid.UUID
	RuleID           *uuid.UUID
	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	NetAmount        decimal.Decimal
	Currency         enums.Currency
}

// ListParams holds record filters plus cursor pagination inputs.
type ListParams struct {
	SellerStoreID *uuid.UUID
	OrderID       *uuid.UUID
	Unsettled     bool
	Limit         int
	Cursor        string
}

// ListResult is a page of commission records.
type ListResult struct {
	Records []models.CommissionRecord
	Cursor  string
}

// Service turns completed orders into commission records and answers
// what-if previews without persisting anything.
type Service interface {
	RecordOrderCommissions(ctx context.Context, input OrderCompletedInput) ([]models.CommissionRecord, error)
	PreviewCommissions(ctx context.Context, asOf time.Time, portions []SellerPortion) ([]PreviewLine, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.CommissionRecord, error)
	ListRecords(ctx context.Context, params ListParams) (*ListResult, error)
	CorrectRecordAmount(ctx context.Context, id uuid.UUID, gross decimal.Decimal) (*models.CommissionRecord, error)
}

type service struct {
	tx           txRunner
	repo         Repository
	rules        ruleResolver
	outbox       outboxPublisher
	defaultTerms Terms
	logg         *logger.Logger
}

// NewService builds the commission service. The platform fallback terms are
// parsed once up front so a bad default fails at boot instead of per order.
func NewService(
	tx txRunner,
	repo Repository,
	rules ruleResolver,
	publisher outboxPublisher,
	cfg config.CommissionConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("records repository required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rule resolver required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	defaults, err := DefaultTerms(cfg)
	if err != nil {
		return nil, err
	}
	return &service{
		tx:           tx,
		repo:         repo,
		rules:        rules,
		outbox:       publisher,
		defaultTerms: defaults,
		logg:         logg,
	}, nil
}

// RecordOrderCommissions produces one commission record per seller portion of
// a completed order. Portions that already have a record are returned as-is,
// so redelivered completion events are harmless.
func (s *service) RecordOrderCommissions(ctx context.Context, input OrderCompletedInput) ([]models.CommissionRecord, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.CompletedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order completion time is required")
	}
	if len(input.Portions) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one seller portion is required")
	}

	completedAt := input.CompletedAt.UTC()
	records := make([]models.CommissionRecord, 0, len(input.Portions))

	for _, portion := range input.Portions {
		record, err := s.recordPortion(ctx, input, portion, completedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (s *service) recordPortion(ctx context.Context, input OrderCompletedInput, portion SellerPortion, completedAt time.Time) (*models.CommissionRecord, error) {
	if portion.SellerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller store id is required")
	}
	currency := portion.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	existing, err := s.repo.FindByOrderSeller(ctx, input.OrderID, portion.SellerStoreID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up commission record")
	}

	terms, err := s.resolveTerms(ctx, portion, completedAt)
	if err != nil {
		return nil, err
	}
	calc, err := Calculate(portion.GrossAmount, terms)
	if err != nil {
		return nil, err
	}

	record := &models.CommissionRecord{
		OrderID:              input.OrderID,
		SellerStoreID:        portion.SellerStoreID,
		PaymentTransactionID: input.PaymentTransactionID,
		RuleID:               terms.RuleID,
		GrossAmount:          portion.GrossAmount,
		RateApplied:          terms.Rate,
		FixedFeeApplied:      terms.FixedFee,
		CommissionAmount:     calc.CommissionAmount,
		NetAmount:            calc.NetAmount,
		Currency:             currency,
		OrderCompletedAt:     completedAt,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, record)
		if err != nil {
			return err
		}
		record = created

		event := outbox.DomainEvent{
			EventType:     enums.EventCommissionRecorded,
			AggregateType: enums.AggregateCommissionRecord,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.CommissionRecordedEvent{
				RecordID:         record.ID,
				OrderID:          record.OrderID,
				SellerStoreID:    record.SellerStoreID,
				GrossAmount:      record.GrossAmount,
				CommissionAmount: record.CommissionAmount,
				NetAmount:        record.NetAmount,
				Currency:         record.Currency,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		// A concurrent worker got the insert in first. Theirs is the record.
		if db.IsUniqueViolation(err, orderSellerUniqueConstraint) {
			winner, findErr := s.repo.FindByOrderSeller(ctx, input.OrderID, portion.SellerStoreID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load concurrent commission record")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist commission record")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        record.OrderID.String(),
		"seller_store_id": record.SellerStoreID.String(),
		"commission":      record.CommissionAmount.String(),
	})
	s.logg.Info(logCtx, "commission recorded")

	return record, nil
}

// PreviewCommissions computes what each portion would be charged without
// writing anything. The admin UI uses this for rule what-ifs.
func (s *service) PreviewCommissions(ctx context.Context, asOf time.Time, portions []SellerPortion) ([]PreviewLine, error) {
	if len(portions) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one seller portion is required")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	lines := make([]PreviewLine, 0, len(portions))
	for _, portion := range portions {
		if portion.SellerStoreID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller store id is required")
		}
		currency := portion.Currency
		if currency == "" {
			currency = enums.CurrencyUSD
		}

		terms, err := s.resolveTerms(ctx, portion, asOf)
		if err != nil {
			return nil, err
		}
		calc, err := Calculate(portion.GrossAmount, terms)
		if err != nil {
			return nil, err
		}
		lines = append(lines, PreviewLine{
			SellerStoreID:    portion.SellerStoreID,
			RuleID:           terms.RuleID,
			GrossAmount:      portion.GrossAmount,
			CommissionAmount: calc.CommissionAmount,
			NetAmount:        calc.NetAmount,
			Currency:         currency,
		})
	}
	return lines, nil
}

func (s *service) GetRecord(ctx context.Context, id uuid.UUID) (*models.CommissionRecord, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission record")
	}
	return record, nil
}

func (s *service) ListRecords(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := RecordFilters{
		SellerStoreID: params.SellerStoreID,
		OrderID:       params.OrderID,
		Unsettled:     params.Unsettled,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission records")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &ListResult{Records: rows, Cursor: nextCursor}, nil
}

// CorrectRecordAmount rewrites a record's gross amount and recomputes the
// commission from the rate and fee captured when the record was built. Only
// unsettled records can be corrected; once a settlement covers the record the
// settlement has to be cancelled and regenerated instead. The captured terms
// carry no clamp bounds, so min/max limits are not reapplied here.
func (s *service) CorrectRecordAmount(ctx context.Context, id uuid.UUID, gross decimal.Decimal) (*models.CommissionRecord, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission record")
	}
	if record.SettlementID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"commission record is part of a settlement; cancel and regenerate it instead")
	}

	calc, err := Calculate(gross, Terms{Rate: record.RateApplied, FixedFee: record.FixedFeeApplied})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).UpdateAmounts(ctx, id, gross, calc.CommissionAmount, calc.NetAmount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission record amounts")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"commission record was settled while the correction ran")
		}

		record.GrossAmount = gross
		record.CommissionAmount = calc.CommissionAmount
		record.NetAmount = calc.NetAmount

		event := outbox.DomainEvent{
			EventType:     enums.EventCommissionRecorded,
			AggregateType: enums.AggregateCommissionRecord,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.CommissionRecordedEvent{
				RecordID:         record.ID,
				OrderID:          record.OrderID,
				SellerStoreID:    record.SellerStoreID,
				GrossAmount:      record.GrossAmount,
				CommissionAmount: record.CommissionAmount,
				NetAmount:        record.NetAmount,
				Currency:         record.Currency,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"record_id":  record.ID.String(),
		"gross":      record.GrossAmount.String(),
		"commission": record.CommissionAmount.String(),
	})
	s.logg.Info(logCtx, "commission record corrected")

	return record, nil
}

// resolveTerms finds the winning rule for a portion or falls back to the
// platform default.
func (s *service) resolveTerms(ctx context.Context, portion SellerPortion, asOf time.Time) (Terms, error) {
	sellerID := portion.SellerStoreID
	rule, err := s.rules.BestMatch(ctx, &sellerID, portion.Category, asOf)
	if err != nil {
		return Terms{}, err
	}
	if rule == nil {
		return s.defaultTerms, nil
	}
	return TermsFromRule(rule), nil
}
