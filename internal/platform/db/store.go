package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/telemetry"
)

// Queryable is the subset of pgx shared by pools, connections and transactions.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	Queryable
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// StoreConfig tunes the timeout and circuit breaker wrapped around a store.
type StoreConfig struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Store is one independently deployed database. Every call runs under a
// per-call timeout and a circuit breaker; connectivity failures surface as
// apperr.KindDependencyUnavailable naming the store.
type Store struct {
	name    string
	pool    Pool
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]
	metrics *telemetry.Metrics
}

type txKey struct{ store *Store }

func NewStore(pool Pool, cfg StoreConfig, metrics *telemetry.Metrics, logger zerolog.Logger) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	s := &Store{name: cfg.Name, pool: pool, timeout: cfg.Timeout, metrics: metrics}
	s.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !IsUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("store", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state changed")
			metrics.SetBreakerState(name, int(to))
		},
	})
	metrics.SetBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return s
}

func (s *Store) Name() string { return s.name }

// Do runs fn against the store. Inside WithinTx, fn receives the open
// transaction instead of the pool.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, q Queryable) error) error {
	if tx := s.txFrom(ctx); tx != nil {
		return s.classify(fn(ctx, tx))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx, s.pool)
	})
	return s.classify(err)
}

// WithinTx runs fn in a transaction on this store. Nested calls join the
// outer transaction. The transaction commits only if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var tx pgx.Tx
	_, err := s.cb.Execute(func() (struct{}, error) {
		var err error
		tx, err = s.pool.Begin(ctx)
		return struct{}{}, err
	})
	if err != nil {
		return s.classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{s}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return s.classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Ping bypasses the breaker so health checks observe the real state.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.Unavailable(s.name, err)
	}
	return nil
}

func (s *Store) txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{s}).(pgx.Tx)
	return tx
}

func (s *Store) classify(err error) error {
	switch {
	case err == nil:
		s.metrics.StoreCall(s.name, "ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests), IsUnavailable(err):
		s.metrics.StoreCall(s.name, "unavailable")
		return apperr.Unavailable(s.name, err)
	case IsForeignKeyViolation(err):
		s.metrics.StoreCall(s.name, "error")
		var pgErr *pgconn.PgError
		errors.As(err, &pgErr)
		return apperr.Wrap(apperr.KindValidation, "referenced record does not exist", err).
			WithDetail("constraint", pgErr.ConstraintName)
	default:
		s.metrics.StoreCall(s.name, "error")
		return err
	}
}

// IsUnavailable reports whether err means the store could not be reached,
// as opposed to the store answering with an error.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; 57P0x: server shutting down or not accepting
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports a unique_violation on the named constraint, or on
// any constraint when name is empty.
func IsUniqueViolation(err error, name string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return name == "" || pgErr.ConstraintName == name
}

// IsForeignKeyViolation reports a foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
