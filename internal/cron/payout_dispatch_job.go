package cron

import (
	"context"
	"fmt"

	"github.com/joaquinvilla/merkado-backend/internal/payouts"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type payoutDispatcher interface {
	DispatchDue(ctx context.Context) (*payouts.DispatchResult, error)
}

// PayoutDispatchJobParams configure the payout dispatch job.
type PayoutDispatchJobParams struct {
	Logger  *logger.Logger
	Payouts payoutDispatcher
}

// NewPayoutDispatchJob builds the job that pushes due payouts to the payment
// rail.
func NewPayoutDispatchJob(params PayoutDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &payoutDispatchJob{
		logg:    params.Logger,
		payouts: params.Payouts,
	}, nil
}

type payoutDispatchJob struct {
	logg    *logger.Logger
	payouts payoutDispatcher
}

func (j *payoutDispatchJob) Name() string { return "payout-dispatch" }

func (j *payoutDispatchJob) Run(ctx context.Context) error {
	result, err := j.payouts.DispatchDue(ctx)
	if err != nil {
		return fmt.Errorf("payout dispatch: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch_id":  result.BatchID.String(),
		"due":       result.Due,
		"claimed":   result.Claimed,
		"completed": result.Completed,
		"pending":   result.Pending,
		"failed":    result.Failed,
	})
	j.logg.Info(logCtx, "payout dispatch complete")
	return nil
}
