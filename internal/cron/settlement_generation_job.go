package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type settlementSweeper interface {
	GenerateAll(ctx context.Context, year, month int) (*settlements.SweepResult, error)
}

// SettlementGenerationJobParams configure the monthly settlement sweep.
type SettlementGenerationJobParams struct {
	Logger      *logger.Logger
	Settlements settlementSweeper
}

// NewSettlementGenerationJob builds the job that settles the previous
// calendar month for every seller with commission activity. Regeneration is
// idempotent, so a cycle that runs after drafts already exist just rebuilds
// them from the current records.
func NewSettlementGenerationJob(params SettlementGenerationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlements service required")
	}
	return &settlementGenerationJob{
		logg:        params.Logger,
		settlements: params.Settlements,
		now:         time.Now,
	}, nil
}

type settlementGenerationJob struct {
	logg        *logger.Logger
	settlements settlementSweeper
	now         func() time.Time
}

func (j *settlementGenerationJob) Name() string { return "settlement-generation" }

func (j *settlementGenerationJob) Run(ctx context.Context) error {
	year, month := previousMonth(j.now().UTC())

	result, err := j.settlements.GenerateAll(ctx, year, month)
	if err != nil {
		return fmt.Errorf("settlement sweep %04d-%02d: %w", year, month, err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"period":    fmt.Sprintf("%04d-%02d", year, month),
		"sellers":   result.Sellers,
		"generated": result.Generated,
		"failed":    result.Failed,
	})
	j.logg.Info(logCtx, "settlement sweep complete")
	if result.Failed > 0 {
		return fmt.Errorf("settlement sweep %04d-%02d: %d of %d sellers failed", year, month, result.Failed, result.Sellers)
	}
	return nil
}

// previousMonth returns the calendar month before the one containing now.
func previousMonth(now time.Time) (int, int) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}
