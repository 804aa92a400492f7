package cron

import (
	"context"
	"fmt"

	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type payoutRetrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// PayoutRetryJobParams configure the payout retry sweep.
type PayoutRetryJobParams struct {
	Logger  *logger.Logger
	Payouts payoutRetrier
}

// NewPayoutRetryJob builds the job that requeues failed payouts with retry
// budget remaining. Payouts that spent their budget stay failed for manual
// review.
func NewPayoutRetryJob(params PayoutRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &payoutRetryJob{
		logg:    params.Logger,
		payouts: params.Payouts,
	}, nil
}

type payoutRetryJob struct {
	logg    *logger.Logger
	payouts payoutRetrier
}

func (j *payoutRetryJob) Name() string { return "payout-retry" }

func (j *payoutRetryJob) Run(ctx context.Context) error {
	retried, err := j.payouts.RetryFailed(ctx)
	if err != nil {
		return fmt.Errorf("payout retry sweep: %w", err)
	}

	logCtx := j.logg.WithField(ctx, "retried", retried)
	j.logg.Info(logCtx, "payout retry sweep complete")
	return nil
}
