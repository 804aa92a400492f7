package invoices

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

func setupInvoicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS commission_invoices`).Error)
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS invoice_sequences`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE invoice_sequences (
			year INTEGER PRIMARY KEY,
			next_value INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME
		)
	`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE commission_invoices (
			id TEXT PRIMARY KEY,
			settlement_id TEXT NOT NULL UNIQUE,
			seller_store_id TEXT NOT NULL,
			period_year INTEGER NOT NULL,
			period_month INTEGER NOT NULL,
			invoice_number TEXT NOT NULL UNIQUE,
			year INTEGER NOT NULL,
			sequence INTEGER NOT NULL,
			type TEXT NOT NULL DEFAULT 'commission',
			amount NUMERIC NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			issued_at DATETIME NOT NULL,
			created_at DATETIME
		)
	`).Error)

	return db
}

func insertInvoice(t *testing.T, db *gorm.DB, year int, sequence int64, mutate func(inv *models.CommissionInvoice)) *models.CommissionInvoice {
	t.Helper()

	now := time.Now().UTC()
	invoice := &models.CommissionInvoice{
		ID:            uuid.New(),
		SettlementID:  uuid.New(),
		SellerStoreID: uuid.New(),
		PeriodYear:    year,
		PeriodMonth:   6,
		InvoiceNumber: fmt.Sprintf("%04d-%06d", year, sequence),
		Year:          year,
		Sequence:      sequence,
		Type:          enums.InvoiceTypeCommission,
		Amount:        decimal.RequireFromString("150.00"),
		Currency:      enums.CurrencyUSD,
		IssuedAt:      now,
		CreatedAt:     now,
	}
	if mutate != nil {
		mutate(invoice)
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func TestRepositoryNextSequenceIsGaplessPerYear(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextSequence(ctx, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// A new year starts its own counter from 1.
	got, err := repo.NextSequence(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = repo.NextSequence(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}

func TestRepositoryNextSequenceConcurrentAllocationsAreDistinct(t *testing.T) {
	db := setupInvoicesTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single pooled connection keeps SQLite from returning busy errors
	// while the goroutines race the counter upsert.
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	ctx := context.Background()

	const callers = 16
	sequences := make(chan int64, callers)
	failures := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := repo.NextSequence(ctx, 2025)
			if err != nil {
				failures <- err
				return
			}
			sequences <- seq
		}()
	}
	wg.Wait()
	close(sequences)
	close(failures)

	for err := range failures {
		t.Fatalf("NextSequence: %v", err)
	}

	seen := make(map[int64]bool, callers)
	for seq := range sequences {
		require.False(t, seen[seq], "sequence %d issued twice", seq)
		seen[seq] = true
	}
	require.Len(t, seen, callers)
	for want := int64(1); want <= callers; want++ {
		assert.True(t, seen[want], "expected gapless issuance, missing %d", want)
	}
}

func TestRepositoryFindBySettlement(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	invoice := insertInvoice(t, db, 2025, 7, nil)

	got, err := repo.FindBySettlement(ctx, invoice.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, got.ID)
	assert.Equal(t, "2025-000007", got.InvoiceNumber)

	_, err = repo.FindBySettlement(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListFiltersBySellerAndYear(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seller := uuid.New()
	match := insertInvoice(t, db, 2025, 1, func(inv *models.CommissionInvoice) {
		inv.SellerStoreID = seller
	})
	insertInvoice(t, db, 2024, 2, func(inv *models.CommissionInvoice) {
		inv.SellerStoreID = seller
	})
	insertInvoice(t, db, 2025, 3, nil)

	year := 2025
	rows, err := repo.List(ctx, InvoiceFilters{SellerStoreID: &seller, Year: &year, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, match.ID, rows[0].ID)
}
