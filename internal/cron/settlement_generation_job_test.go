package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type fakeSweeper struct {
	lastYear  int
	lastMonth int
	result    *settlements.SweepResult
	err       error
	calls     int
}

func (f *fakeSweeper) GenerateAll(ctx context.Context, year, month int) (*settlements.SweepResult, error) {
	f.calls++
	f.lastYear = year
	f.lastMonth = month
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &settlements.SweepResult{}, nil
}

func newSettlementGenerationJob(t *testing.T, sweeper *fakeSweeper) *settlementGenerationJob {
	t.Helper()
	jobIface, err := NewSettlementGenerationJob(SettlementGenerationJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		Settlements: sweeper,
	})
	if err != nil {
		t.Fatalf("NewSettlementGenerationJob: %v", err)
	}
	job, ok := jobIface.(*settlementGenerationJob)
	if !ok {
		t.Fatalf("expected settlementGenerationJob, got %T", jobIface)
	}
	return job
}

func TestSettlementGenerationJobSweepsPreviousMonth(t *testing.T) {
	sweeper := &fakeSweeper{result: &settlements.SweepResult{Sellers: 4, Generated: 4}}
	job := newSettlementGenerationJob(t, sweeper)
	job.now = func() time.Time { return time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
	// Early January settles December of the prior year.
	if sweeper.lastYear != 2025 || sweeper.lastMonth != 12 {
		t.Fatalf("swept %04d-%02d, want 2025-12", sweeper.lastYear, sweeper.lastMonth)
	}
}

func TestSettlementGenerationJobReportsPartialFailure(t *testing.T) {
	sweeper := &fakeSweeper{result: &settlements.SweepResult{Sellers: 3, Generated: 2, Failed: 1}}
	job := newSettlementGenerationJob(t, sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when part of the sweep fails")
	}
}

func TestSettlementGenerationJobPropagatesError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("boom")}
	job := newSettlementGenerationJob(t, sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPreviousMonthMidYear(t *testing.T) {
	year, month := previousMonth(time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC))
	if year != 2026 || month != 6 {
		t.Fatalf("got %04d-%02d, want 2026-06", year, month)
	}
}
