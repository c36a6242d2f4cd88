package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/resilience"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

// PostgreSQL error codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ErrorRecorder counts unexpected datastore failures.
type ErrorRecorder interface {
	IncrStoreError(store string)
}

// Store implements port.Store on PostgreSQL.
// Calls made directly on Store run in autocommit mode; InTx scopes them to one transaction.
type Store struct {
	repos
	db       *sqlx.DB
	cb       *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	cfg      resilience.Config
	errs     ErrorRecorder
	logger   *zap.Logger
}

var _ port.Store = (*Store)(nil)

// NewStore wires the store. errs may be nil.
func NewStore(db *sqlx.DB, cfg resilience.Config, errs ErrorRecorder, logger *zap.Logger) *Store {
	return &Store{
		repos:    repos{q: db},
		db:       db,
		cb:       resilience.NewCircuitBreaker("postgres", isInfraFailure),
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:      cfg,
		errs:     errs,
		logger:   logger,
	}
}

// InTx runs fn in a transaction. Serialization failures and deadlocks are retried with backoff;
// fn is re-run from scratch on each attempt.
func (s *Store) InTx(ctx context.Context, iso port.Isolation, fn func(ctx context.Context, tx port.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "Postgres.InTx")
	defer span.End()
	span.SetAttributes(attribute.Bool("tx.serializable", iso == port.IsolationSerializable))

	if err := s.bulkhead.Acquire(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("acquire database slot: %w", err)
		}
		return &domain.ErrTimeout{Operation: "acquire database slot"}
	}
	defer s.bulkhead.Release()

	attempts := 0
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryIf(ctx, s.cfg, isRetryable, func() error {
			attempts++
			return s.runTx(ctx, iso, fn)
		})
	})
	span.SetAttributes(attribute.Int("tx.attempts", attempts))

	if err == nil {
		return nil
	}
	if resilience.IsBreakerOpen(err) {
		s.logger.Warn("postgres: circuit open, rejecting transaction")
		return &domain.ErrCircuitOpen{Service: "postgres"}
	}
	if domain.KindOf(err) == domain.KindInternal {
		s.recordError()
		s.logger.Error("postgres: transaction failed", zap.Int("attempts", attempts), zap.Error(err))
	}
	return err
}

func (s *Store) runTx(ctx context.Context, iso port.Isolation, fn func(ctx context.Context, tx port.Repositories) error) error {
	opts := &sql.TxOptions{}
	if iso == port.IsolationSerializable {
		opts.Isolation = sql.LevelSerializable
	}

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, repos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Ping checks connectivity; used by /healthz.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) recordError() {
	if s.errs != nil {
		s.errs.IncrStoreError("postgres")
	}
}

// isRetryable reports whether err is a transient conflict that a fresh transaction may not hit.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

// isInfraFailure decides what counts against the circuit breaker.
// Business rejections and caller cancellations do not.
func isInfraFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return domain.KindOf(err) == domain.KindInternal && !isRetryable(err)
}

// mapError translates driver errors into domain errors. Unknown errors pass through unchanged.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		return &domain.ErrConflict{Message: uniqueMessage(pqErr.Constraint)}
	case codeForeignKeyViolation:
		return &domain.ErrConflict{Message: "resource is still referenced by other records"}
	}
	return err
}

func uniqueMessage(constraint string) string {
	switch constraint {
	case "cards_card_number_key":
		return "card number already exists"
	case "users_name_key":
		return "user name already taken"
	case "users_email_key":
		return "email already registered"
	}
	return "resource already exists"
}
