package payouts

import (
	"context"
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

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS payouts`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE payouts (
			id TEXT PRIMARY KEY,
			settlement_id TEXT NOT NULL UNIQUE,
			seller_store_id TEXT NOT NULL,
			batch_id TEXT,
			amount NUMERIC NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL DEFAULT 'scheduled',
			retry_count INTEGER NOT NULL DEFAULT 0,
			rail_payment_id TEXT,
			last_error TEXT,
			scheduled_at DATETIME NOT NULL,
			dispatched_at DATETIME,
			completed_at DATETIME,
			failed_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error)

	return db
}

func insertPayout(t *testing.T, db *gorm.DB, mutate func(p *models.Payout)) *models.Payout {
	t.Helper()

	now := time.Now().UTC()
	payout := &models.Payout{
		ID:            uuid.New(),
		SettlementID:  uuid.New(),
		SellerStoreID: uuid.New(),
		Amount:        decimal.RequireFromString("50.00"),
		Currency:      enums.CurrencyUSD,
		Status:        enums.PayoutStatusScheduled,
		ScheduledAt:   now.Add(-time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(payout)
	}
	require.NoError(t, db.Create(payout).Error)
	return payout
}

func TestRepositoryListDue(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	due := insertPayout(t, db, func(p *models.Payout) {
		p.ScheduledAt = now.Add(-2 * time.Hour)
	})
	insertPayout(t, db, func(p *models.Payout) {
		p.ScheduledAt = now.Add(48 * time.Hour) // backed off, not due yet
	})
	insertPayout(t, db, func(p *models.Payout) {
		p.Status = enums.PayoutStatusProcessing
		p.ScheduledAt = now.Add(-3 * time.Hour)
	})

	rows, err := repo.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)
}

func TestRepositoryListRetryableBudgetBoundary(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	underBudget := insertPayout(t, db, func(p *models.Payout) {
		p.Status = enums.PayoutStatusFailed
		p.RetryCount = 2
		p.FailedAt = &now
	})
	spent := insertPayout(t, db, func(p *models.Payout) {
		p.Status = enums.PayoutStatusFailed
		p.RetryCount = 3
		p.FailedAt = &now
	})
	insertPayout(t, db, func(p *models.Payout) {
		p.Status = enums.PayoutStatusCompleted
	})

	retryable, err := repo.ListRetryable(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, underBudget.ID, retryable[0].ID)

	exhausted, err := repo.ListExhausted(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, exhausted, 1)
	assert.Equal(t, spent.ID, exhausted[0].ID)
}

func TestRepositoryTransitionIf(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payout := insertPayout(t, db, nil)
	batchID := uuid.New()

	applied, err := repo.TransitionIf(ctx, payout.ID, enums.PayoutStatusScheduled, enums.PayoutStatusProcessing, map[string]any{
		"batch_id": batchID,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// The row already left scheduled, a second claim must lose.
	applied, err = repo.TransitionIf(ctx, payout.ID, enums.PayoutStatusScheduled, enums.PayoutStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.FindByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, got.Status)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, batchID, *got.BatchID)
}

func TestRepositoryFindByRailPaymentID(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	railID := "sq-pay-42"
	payout := insertPayout(t, db, func(p *models.Payout) {
		p.Status = enums.PayoutStatusProcessing
		p.RailPaymentID = &railID
	})

	got, err := repo.FindByRailPaymentID(ctx, railID)
	require.NoError(t, err)
	assert.Equal(t, payout.ID, got.ID)

	_, err = repo.FindByRailPaymentID(ctx, "sq-pay-none")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListFiltersByBatch(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	batchID := uuid.New()
	inBatch := insertPayout(t, db, func(p *models.Payout) {
		p.BatchID = &batchID
		p.Status = enums.PayoutStatusProcessing
	})
	insertPayout(t, db, nil)

	rows, err := repo.List(ctx, PayoutFilters{BatchID: &batchID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, inBatch.ID, rows[0].ID)
}
