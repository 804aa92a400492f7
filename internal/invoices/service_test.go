package invoices

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
)

type stubInvoicesRepo struct {
	byID         map[uuid.UUID]*models.CommissionInvoice
	bySettlement map[uuid.UUID]*models.CommissionInvoice
	listRows     []models.CommissionInvoice

	created      []*models.CommissionInvoice
	nextSequence int64
	allocations  []int
	lastList     InvoiceFilters
}

func newStubInvoicesRepo() *stubInvoicesRepo {
	return &stubInvoicesRepo{
		byID:         map[uuid.UUID]*models.CommissionInvoice{},
		bySettlement: map[uuid.UUID]*models.CommissionInvoice{},
		nextSequence: 1,
	}
}

func (s *stubInvoicesRepo) add(inv *models.CommissionInvoice) {
	s.byID[inv.ID] = inv
	s.bySettlement[inv.SettlementID] = inv
}

func (s *stubInvoicesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubInvoicesRepo) Create(ctx context.Context, invoice *models.CommissionInvoice) (*models.CommissionInvoice, error) {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	s.created = append(s.created, invoice)
	s.add(invoice)
	return invoice, nil
}

func (s *stubInvoicesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	if inv, ok := s.byID[id]; ok {
		clone := *inv
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubInvoicesRepo) FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*models.CommissionInvoice, error) {
	if inv, ok := s.bySettlement[settlementID]; ok {
		clone := *inv
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubInvoicesRepo) FindByNumber(ctx context.Context, invoiceNumber string) (*models.CommissionInvoice, error) {
	for _, inv := range s.byID {
		if inv.InvoiceNumber == invoiceNumber {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubInvoicesRepo) List(ctx context.Context, opts InvoiceFilters) ([]models.CommissionInvoice, error) {
	s.lastList = opts
	return s.listRows, nil
}

func (s *stubInvoicesRepo) NextSequence(ctx context.Context, year int) (int64, error) {
	s.allocations = append(s.allocations, year)
	seq := s.nextSequence
	s.nextSequence++
	return seq, nil
}

type settlementStatusUpdate struct {
	id   uuid.UUID
	from enums.SettlementStatus
	to   enums.SettlementStatus
}

type stubSettlementsStore struct {
	byID          map[uuid.UUID]*models.Settlement
	statusUpdates []settlementStatusUpdate
	statusMisses  bool
}

func newStubSettlementsStore() *stubSettlementsStore {
	return &stubSettlementsStore{byID: map[uuid.UUID]*models.Settlement{}}
}

func (s *stubSettlementsStore) WithTx(tx *gorm.DB) settlements.Repository { return s }

func (s *stubSettlementsStore) Create(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error) {
	return settlement, nil
}

func (s *stubSettlementsStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	if row, ok := s.byID[id]; ok {
		clone := *row
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSettlementsStore) FindActiveByPeriod(ctx context.Context, sellerStoreID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSettlementsStore) List(ctx context.Context, opts settlements.SettlementFilters) ([]models.Settlement, error) {
	return nil, nil
}

func (s *stubSettlementsStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, updates map[string]any) (bool, error) {
	if s.statusMisses {
		return false, nil
	}
	s.statusUpdates = append(s.statusUpdates, settlementStatusUpdate{id: id, from: from, to: to})
	if row, ok := s.byID[id]; ok {
		row.Status = to
	}
	return true, nil
}

func (s *stubSettlementsStore) UpdateTotals(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubSettlementsStore) ReplaceLineItems(ctx context.Context, settlementID uuid.UUID, items []models.SettlementLineItem) error {
	return nil
}

func (s *stubSettlementsStore) ListLineItems(ctx context.Context, settlementID uuid.UUID) ([]models.SettlementLineItem, error) {
	return nil, nil
}

type stubInvoiceTxRunner struct{}

func (stubInvoiceTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubInvoiceOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubInvoiceOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newInvoicesServiceForTests(t *testing.T, repo *stubInvoicesRepo, store *stubSettlementsStore, publisher *stubInvoiceOutbox) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(stubInvoiceTxRunner{}, repo, store, publisher, logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func finalizedSettlement() *models.Settlement {
	now := time.Now().UTC()
	return &models.Settlement{
		ID:              uuid.New(),
		SellerStoreID:   uuid.New(),
		PeriodYear:      2025,
		PeriodMonth:     3,
		GrossTotal:      decimal.RequireFromString("1500.00"),
		CommissionTotal: decimal.RequireFromString("150.00"),
		NetPayable:      decimal.RequireFromString("1350.00"),
		Currency:        enums.CurrencyUSD,
		Status:          enums.SettlementStatusFinalized,
		FinalizedAt:     &now,
	}
}

func TestIssueInvoiceAllocatesYearScopedNumber(t *testing.T) {
	repo := newStubInvoicesRepo()
	repo.nextSequence = 123
	store := newStubSettlementsStore()
	publisher := &stubInvoiceOutbox{}
	svc := newInvoicesServiceForTests(t, repo, store, publisher)

	settlement := finalizedSettlement()
	store.byID[settlement.ID] = settlement

	invoice, err := svc.IssueInvoice(context.Background(), settlement.ID)
	if err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}

	year := time.Now().UTC().Year()
	wantNumber := fmt.Sprintf("%04d-%06d", year, 123)
	if invoice.InvoiceNumber != wantNumber {
		t.Fatalf("invoice number = %q, want %q", invoice.InvoiceNumber, wantNumber)
	}
	if invoice.Year != year || invoice.Sequence != 123 {
		t.Fatalf("invoice year/sequence = %d/%d", invoice.Year, invoice.Sequence)
	}
	if invoice.PeriodYear != 2025 || invoice.PeriodMonth != 3 {
		t.Fatalf("invoice period = %d-%02d, want the settled period 2025-03", invoice.PeriodYear, invoice.PeriodMonth)
	}
	if !invoice.Amount.Equal(settlement.CommissionTotal) {
		t.Fatalf("invoice amount = %s, want the commission total", invoice.Amount)
	}
	if len(repo.allocations) != 1 || repo.allocations[0] != year {
		t.Fatalf("sequence allocations = %v", repo.allocations)
	}

	if len(store.statusUpdates) != 1 {
		t.Fatalf("expected one status update, got %d", len(store.statusUpdates))
	}
	update := store.statusUpdates[0]
	if update.from != enums.SettlementStatusFinalized || update.to != enums.SettlementStatusInvoiced {
		t.Fatalf("status update %s -> %s", update.from, update.to)
	}

	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventSettlementInvoiced {
		t.Fatalf("expected settlement_invoiced event, got %v", publisher.events)
	}
}

func TestIssueInvoiceIsIdempotentPerSettlement(t *testing.T) {
	repo := newStubInvoicesRepo()
	store := newStubSettlementsStore()
	publisher := &stubInvoiceOutbox{}
	svc := newInvoicesServiceForTests(t, repo, store, publisher)

	settlement := finalizedSettlement()
	settlement.Status = enums.SettlementStatusInvoiced
	store.byID[settlement.ID] = settlement
	existing := &models.CommissionInvoice{
		ID:            uuid.New(),
		SettlementID:  settlement.ID,
		SellerStoreID: settlement.SellerStoreID,
		InvoiceNumber: "2025-000007",
	}
	repo.add(existing)

	invoice, err := svc.IssueInvoice(context.Background(), settlement.ID)
	if err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}
	if invoice.ID != existing.ID {
		t.Fatalf("expected the existing invoice back")
	}
	if len(repo.created) != 0 || len(repo.allocations) != 0 {
		t.Fatalf("no new invoice or sequence should be allocated")
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no events expected on a repeat issue")
	}
}

func TestIssueInvoiceRejectsNonFinalizedSettlement(t *testing.T) {
	for _, status := range []enums.SettlementStatus{
		enums.SettlementStatusDraft,
		enums.SettlementStatusCancelled,
	} {
		repo := newStubInvoicesRepo()
		store := newStubSettlementsStore()
		svc := newInvoicesServiceForTests(t, repo, store, &stubInvoiceOutbox{})

		settlement := finalizedSettlement()
		settlement.Status = status
		store.byID[settlement.ID] = settlement

		_, err := svc.IssueInvoice(context.Background(), settlement.ID)
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("status %s: expected state conflict, got %v", status, err)
		}
		if len(repo.allocations) != 0 {
			t.Fatalf("status %s: no sequence should be burnt", status)
		}
	}
}

func TestIssueInvoiceSettlementNotFound(t *testing.T) {
	svc := newInvoicesServiceForTests(t, newStubInvoicesRepo(), newStubSettlementsStore(), &stubInvoiceOutbox{})

	_, err := svc.IssueInvoice(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIssueInvoiceDetectsConcurrentTransition(t *testing.T) {
	repo := newStubInvoicesRepo()
	store := newStubSettlementsStore()
	store.statusMisses = true
	svc := newInvoicesServiceForTests(t, repo, store, &stubInvoiceOutbox{})

	settlement := finalizedSettlement()
	store.byID[settlement.ID] = settlement

	_, err := svc.IssueInvoice(context.Background(), settlement.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListInvoicesPassesFilters(t *testing.T) {
	repo := newStubInvoicesRepo()
	svc := newInvoicesServiceForTests(t, repo, newStubSettlementsStore(), &stubInvoiceOutbox{})

	seller := uuid.New()
	year := 2025
	if _, err := svc.ListInvoices(context.Background(), ListParams{SellerStoreID: &seller, Year: &year, Limit: 20}); err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if repo.lastList.SellerStoreID == nil || *repo.lastList.SellerStoreID != seller {
		t.Fatalf("seller filter not forwarded")
	}
	if repo.lastList.Year == nil || *repo.lastList.Year != year {
		t.Fatalf("year filter not forwarded")
	}
	if repo.lastList.Limit != 21 {
		t.Fatalf("limit = %d, want fetch buffer of 21", repo.lastList.Limit)
	}
}
