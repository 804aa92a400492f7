package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/joaquinvilla/merkado-backend/internal/payouts"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type fakeDispatcher struct {
	result *payouts.DispatchResult
	err    error
	calls  int
}

func (f *fakeDispatcher) DispatchDue(ctx context.Context) (*payouts.DispatchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &payouts.DispatchResult{BatchID: uuid.New()}, nil
}

type fakeRetrier struct {
	retried int
	err     error
	calls   int
}

func (f *fakeRetrier) RetryFailed(ctx context.Context) (int, error) {
	f.calls++
	return f.retried, f.err
}

func TestPayoutDispatchJobRunsDispatcher(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	job, err := NewPayoutDispatchJob(PayoutDispatchJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: dispatcher,
	})
	if err != nil {
		t.Fatalf("NewPayoutDispatchJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected one dispatch run, got %d", dispatcher.calls)
	}
}

func TestPayoutDispatchJobPropagatesError(t *testing.T) {
	job, err := NewPayoutDispatchJob(PayoutDispatchJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: &fakeDispatcher{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewPayoutDispatchJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPayoutRetryJobRunsSweep(t *testing.T) {
	retrier := &fakeRetrier{retried: 2}
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: retrier,
	})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if retrier.calls != 1 {
		t.Fatalf("expected one retry sweep, got %d", retrier.calls)
	}
}

func TestPayoutRetryJobPropagatesError(t *testing.T) {
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: &fakeRetrier{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
