package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var jobTracer = otel.Tracer("service/jobs")

const expiryRunTimeout = time.Minute

// CardExpiryJob marks cards whose expiry month has passed as EXPIRED.
type CardExpiryJob struct {
	store   port.Store
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	cron    *cron.Cron
}

// NewCardExpiryJob creates the job; call Start to schedule it.
func NewCardExpiryJob(store port.Store, metrics *observability.Metrics, logger *zap.Logger) *CardExpiryJob {
	return &CardExpiryJob{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		cron:    cron.New(),
	}
}

// RunOnce expires every card whose expiry month is before the current month.
func (j *CardExpiryJob) RunOnce(ctx context.Context) (int64, error) {
	ctx, span := jobTracer.Start(ctx, "CardExpiryJob.RunOnce")
	defer span.End()

	cutoff := domain.YearMonthOf(j.now().UTC())
	var n int64
	err := j.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		var err error
		n, err = tx.ExpireCards(ctx, cutoff)
		return err
	})
	if err != nil {
		j.logger.Error("card expiry run failed", zap.String("cutoff", cutoff.String()), zap.Error(err))
		return 0, err
	}

	span.SetAttributes(attribute.Int64("cards.expired", n))
	j.metrics.AddCardsExpired(n)
	j.logger.Info("card expiry run finished", zap.String("cutoff", cutoff.String()), zap.Int64("expired", n))
	return n, nil
}

// Start schedules RunOnce with a standard five-field cron spec.
func (j *CardExpiryJob) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), expiryRunTimeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule card expiry %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info("card expiry job scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and returns a context that is done once a running job finishes.
func (j *CardExpiryJob) Stop() context.Context {
	return j.cron.Stop()
}
