package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/db"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox/payloads"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

const settlementUniqueConstraint = "commission_invoices_settlement_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ListParams holds invoice filters plus cursor pagination inputs.
type ListParams struct {
	SellerStoreID *uuid.UUID
	Year          *int
	Limit         int
	Cursor        string
}

// ListResult is a page of invoices.
type ListResult struct {
	Invoices []models.CommissionInvoice
	Cursor   string
}

// Service issues commission invoices against finalized settlements.
type Service interface {
	IssueInvoice(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error)
	GetBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error)
	ListInvoices(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	tx          txRunner
	repo        Repository
	settlements settlements.Repository
	outbox      outboxPublisher
	logg        *logger.Logger
}

// NewService builds the invoice service.
func NewService(
	tx txRunner,
	repo Repository,
	settlementsRepo settlements.Repository,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if settlementsRepo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:          tx,
		repo:        repo,
		settlements: settlementsRepo,
		outbox:      publisher,
		logg:        logg,
	}, nil
}

// IssueInvoice allocates the next invoice number for the current year and
// moves the settlement from finalized to invoiced. A settlement that already
// carries an invoice gets that same invoice back.
func (s *service) IssueInvoice(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}

	if existing, err := s.repo.FindBySettlement(ctx, settlementID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice by settlement")
	}

	settlement, err := s.settlements.FindByID(ctx, settlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	if settlement.Status != enums.SettlementStatusFinalized {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only finalized settlements can be invoiced")
	}

	issuedAt := time.Now().UTC()
	year := issuedAt.Year()

	var invoice *models.CommissionInvoice
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sequence, err := repo.NextSequence(ctx, year)
		if err != nil {
			return err
		}

		invoice, err = repo.Create(ctx, &models.CommissionInvoice{
			SettlementID:  settlement.ID,
			SellerStoreID: settlement.SellerStoreID,
			PeriodYear:    settlement.PeriodYear,
			PeriodMonth:   settlement.PeriodMonth,
			InvoiceNumber: fmt.Sprintf("%04d-%06d", year, sequence),
			Year:          year,
			Sequence:      sequence,
			Type:          enums.InvoiceTypeCommission,
			Amount:        settlement.CommissionTotal,
			Currency:      settlement.Currency,
			IssuedAt:      issuedAt,
		})
		if err != nil {
			return err
		}

		applied, err := s.settlements.WithTx(tx).UpdateStatusIf(ctx, settlement.ID, enums.SettlementStatusFinalized, enums.SettlementStatusInvoiced, map[string]any{
			"invoiced_at": issuedAt,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement was modified concurrently")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementInvoiced,
			AggregateType: enums.AggregateCommissionInvoice,
			AggregateID:   invoice.ID,
			Version:       1,
			Data: payloads.SettlementInvoicedEvent{
				SettlementID:  settlement.ID,
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, settlementUniqueConstraint) {
			// Lost the race, the transaction rolled back and the burnt
			// number was never committed. Return the winner's invoice.
			return s.GetBySettlement(ctx, settlementID)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue invoice")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"settlement_id":  settlement.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
	})
	s.logg.Info(logCtx, "invoice issued")
	return invoice, nil
}

func (s *service) GetInvoice(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) GetBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}
	invoice, err := s.repo.FindBySettlement(ctx, settlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no invoice for settlement")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice by settlement")
	}
	return invoice, nil
}

func (s *service) ListInvoices(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := InvoiceFilters{
		SellerStoreID: params.SellerStoreID,
		Year:          params.Year,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}
	return &ListResult{Invoices: rows, Cursor: nextCursor}, nil
}
