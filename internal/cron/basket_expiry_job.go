package cron

import (
	"context"
	"fmt"

	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

// expiredSweeper is the basket service surface the job needs.
type expiredSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// BasketExpiryJobParams configure the reservation sweeper job.
type BasketExpiryJobParams struct {
	Logger  *logger.Logger
	Baskets expiredSweeper
}

// NewBasketExpiryJob builds the job that releases reservations past their TTL.
func NewBasketExpiryJob(params BasketExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Baskets == nil {
		return nil, fmt.Errorf("basket service required")
	}
	return &basketExpiryJob{
		logg:    params.Logger,
		baskets: params.Baskets,
	}, nil
}

type basketExpiryJob struct {
	logg    *logger.Logger
	baskets expiredSweeper
}

func (j *basketExpiryJob) Name() string { return "basket-expiry" }

func (j *basketExpiryJob) Run(ctx context.Context) error {
	swept, err := j.baskets.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("basket expiry sweep: %w", err)
	}
	if swept > 0 {
		logCtx := j.logg.WithField(ctx, "released", swept)
		j.logg.Info(logCtx, "expired basket reservations released")
	}
	return nil
}
