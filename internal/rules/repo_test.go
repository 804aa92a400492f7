package rules

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

func setupRulesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	commissionRules := `
CREATE TABLE IF NOT EXISTS commission_rules (
  id TEXT PRIMARY KEY,
  scope TEXT NOT NULL,
  seller_store_id TEXT,
  category TEXT,
  rate NUMERIC NOT NULL,
  fixed_fee NUMERIC NOT NULL DEFAULT 0,
  min_commission NUMERIC,
  max_commission NUMERIC,
  currency TEXT NOT NULL DEFAULT 'USD',
  priority INTEGER NOT NULL DEFAULT 0,
  effective_from DATETIME NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS commission_rules`).Error)
	require.NoError(t, db.Exec(commissionRules).Error)
	return db
}

func createRule(t *testing.T, db *gorm.DB, scope enums.RuleScope, seller *uuid.UUID, category *string, rate string, priority int, effectiveFrom, createdAt time.Time) *models.CommissionRule {
	t.Helper()

	rule := &models.CommissionRule{
		ID:            uuid.New(),
		Scope:         scope,
		SellerStoreID: seller,
		Category:      category,
		Rate:          decimal.RequireFromString(rate),
		FixedFee:      decimal.Zero,
		Currency:      enums.CurrencyUSD,
		Priority:      priority,
		EffectiveFrom: effectiveFrom,
		Active:        true,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, db.Create(rule).Error)
	return rule
}

func strPtr(s string) *string { return &s }

func TestRepositoryFindEligible_scopeFiltering(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seller := uuid.New()
	otherSeller := uuid.New()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -1, 0)

	sellerRule := createRule(t, db, enums.RuleScopeSellerOnly, &seller, nil, "0.08", 0, start, start)
	createRule(t, db, enums.RuleScopeSellerOnly, &otherSeller, nil, "0.12", 0, start, start)
	createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.10", 0, start, start)

	rows, err := repo.FindEligible(ctx, enums.RuleScopeSellerOnly, &seller, nil, now, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, sellerRule.ID, rows[0].ID)

	// A seller_and_category lookup with no category cannot match anything.
	rows, err = repo.FindEligible(ctx, enums.RuleScopeSellerAndCategory, &seller, nil, now, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = repo.FindEligible(ctx, enums.RuleScopeGlobal, nil, nil, now, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.RuleScopeGlobal, rows[0].Scope)
}

func TestRepositoryFindEligible_excludesInactiveAndFuture(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)

	active := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.10", 0, past, past)
	createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.20", 10, now.AddDate(0, 1, 0), past)

	inactive := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.30", 20, past, past)
	require.NoError(t, repo.Deactivate(ctx, inactive.ID))

	rows, err := repo.FindEligible(ctx, enums.RuleScopeGlobal, nil, nil, now, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, active.ID, rows[0].ID)
}

func TestRepositoryFindEligible_tieBreakOrder(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	lowPriority := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.05", 1, feb, jan)
	highPriorityOld := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.06", 5, jan, jan)
	highPriorityNew := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.07", 5, feb, jan)

	rows, err := repo.FindEligible(ctx, enums.RuleScopeGlobal, nil, nil, now, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Priority wins first, then the later effective date.
	assert.Equal(t, highPriorityNew.ID, rows[0].ID)
	assert.Equal(t, highPriorityOld.ID, rows[1].ID)
	assert.Equal(t, lowPriority.ID, rows[2].ID)
}

func TestRepositoryFindSameScope_nullTargetMatching(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seller := uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	globalA := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.10", 3, start, start)
	globalB := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.11", 3, start, start)
	createRule(t, db, enums.RuleScopeSellerOnly, &seller, nil, "0.08", 3, start, start)

	rows, err := repo.FindSameScope(ctx, enums.RuleScopeGlobal, nil, nil, 3, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Excluding the rule under edit leaves only its sibling.
	rows, err = repo.FindSameScope(ctx, enums.RuleScopeGlobal, nil, nil, 3, &globalA.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, globalB.ID, rows[0].ID)

	rows, err = repo.FindSameScope(ctx, enums.RuleScopeGlobal, nil, nil, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryDeactivate(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.10", 0, start, start)

	require.NoError(t, repo.Deactivate(ctx, rule.ID))

	stored, err := repo.FindByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	// A second deactivation finds no active row.
	err = repo.Deactivate(ctx, rule.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.Deactivate(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryList_filtersAndPagination(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createRule(t, db, enums.RuleScopeGlobal, nil, nil, "0.10", i, base, base.Add(time.Duration(i)*time.Hour))
	}
	seller := uuid.New()
	createRule(t, db, enums.RuleScopeSellerOnly, &seller, nil, "0.08", 0, base, base)

	scope := enums.RuleScopeGlobal
	rows, err := repo.List(ctx, listQuery{scope: &scope, limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Newest first.
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
	assert.True(t, rows[1].CreatedAt.After(rows[2].CreatedAt))

	rows, err = repo.List(ctx, listQuery{limit: 100})
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}
