package db

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/telemetry"
)

type fakePool struct {
	execErr  error
	beginErr error
	pingErr  error
	execs    int
	begins   int
	tx       *fakeTx
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, p.execErr
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	p.execs++
	return pgconn.CommandTag{}, p.execErr
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	p.begins++
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.tx = &fakeTx{}
	return p.tx, nil
}

func (p *fakePool) Ping(ctx context.Context) error { return p.pingErr }

// fakeTx implements the handful of pgx.Tx methods the store touches; the
// embedded interface panics on anything else.
type fakeTx struct {
	pgx.Tx
	execs      int
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.execs++
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

var refused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

func newTestStore(pool Pool, threshold uint32) (*Store, *telemetry.Metrics) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	s := NewStore(pool, StoreConfig{
		Name:             "central",
		Timeout:          time.Second,
		FailureThreshold: threshold,
		OpenTimeout:      time.Minute,
	}, m, zerolog.Nop())
	return s, m
}

func exec(s *Store) error {
	return s.Do(context.Background(), func(ctx context.Context, q Queryable) error {
		_, err := q.Exec(ctx, "SELECT 1")
		return err
	})
}

func TestStore_Do_Success(t *testing.T) {
	pool := &fakePool{}
	s, _ := newTestStore(pool, 3)
	if err := exec(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.execs != 1 {
		t.Fatalf("expected 1 exec, got %d", pool.execs)
	}
}

func TestStore_Do_UnreachableBecomesDependencyUnavailable(t *testing.T) {
	s, _ := newTestStore(&fakePool{execErr: refused}, 3)
	err := exec(s)
	if !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		t.Fatalf("expected DEPENDENCY_UNAVAILABLE, got %v", err)
	}
	if apperr.From(err).Details["store"] != "central" {
		t.Fatalf("expected store name in details, got %v", apperr.From(err).Details)
	}
}

func TestStore_Do_QueryErrorPassesThrough(t *testing.T) {
	s, _ := newTestStore(&fakePool{execErr: pgx.ErrNoRows}, 1)
	for i := 0; i < 3; i++ {
		err := exec(s)
		if !errors.Is(err, pgx.ErrNoRows) {
			t.Fatalf("expected ErrNoRows, got %v", err)
		}
	}
}

func TestStore_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	pool := &fakePool{execErr: refused}
	s, m := newTestStore(pool, 2)

	_ = exec(s)
	_ = exec(s)
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("central")); got != 2 {
		t.Fatalf("expected breaker open (2), got %v", got)
	}

	err := exec(s)
	if !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		t.Fatalf("expected DEPENDENCY_UNAVAILABLE while open, got %v", err)
	}
	if pool.execs != 2 {
		t.Fatalf("open breaker must short-circuit, got %d execs", pool.execs)
	}
}

func TestStore_WithinTx_CommitsAndRoutesCallsToTx(t *testing.T) {
	pool := &fakePool{}
	s, _ := newTestStore(pool, 3)

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := exec2(ctx, s); err != nil {
			return err
		}
		return s.WithinTx(ctx, func(ctx context.Context) error {
			return exec2(ctx, s)
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.begins != 1 {
		t.Fatalf("nested WithinTx must join the outer tx, got %d begins", pool.begins)
	}
	if pool.execs != 0 || pool.tx.execs != 2 {
		t.Fatalf("expected both execs on the tx, pool=%d tx=%d", pool.execs, pool.tx.execs)
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
}

func exec2(ctx context.Context, s *Store) error {
	return s.Do(ctx, func(ctx context.Context, q Queryable) error {
		_, err := q.Exec(ctx, "UPDATE x SET y = 1")
		return err
	})
}

func TestStore_WithinTx_RollsBackOnError(t *testing.T) {
	pool := &fakePool{}
	s, _ := newTestStore(pool, 3)
	boom := apperr.New(apperr.KindScheduleConflict, "slot taken")

	err := s.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if pool.tx.committed || !pool.tx.rolledBack {
		t.Fatal("expected rollback without commit")
	}
}

func TestStore_WithinTx_BeginUnavailable(t *testing.T) {
	s, _ := newTestStore(&fakePool{beginErr: refused}, 3)
	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	if !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		t.Fatalf("expected DEPENDENCY_UNAVAILABLE, got %v", err)
	}
}

func TestStore_TxIsScopedPerStore(t *testing.T) {
	central := &fakePool{}
	dept := &fakePool{}
	cs, _ := newTestStore(central, 3)
	ds := NewStore(dept, StoreConfig{Name: "department"}, nil, zerolog.Nop())

	err := ds.WithinTx(context.Background(), func(ctx context.Context) error {
		return exec2(ctx, cs)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if central.execs != 1 {
		t.Fatal("a department transaction must not capture central calls")
	}
}

func TestCheckStores(t *testing.T) {
	up, _ := newTestStore(&fakePool{}, 3)
	down := NewStore(&fakePool{pingErr: refused}, StoreConfig{Name: "department"}, nil, zerolog.Nop())

	report, ok := CheckStores(context.Background(), up, down)
	if ok {
		t.Fatal("expected degraded result")
	}
	if report["central"].Status != "healthy" {
		t.Errorf("expected central healthy, got %+v", report["central"])
	}
	if report["department"].Status != "unhealthy" || report["department"].Error == "" {
		t.Errorf("expected department unhealthy with error, got %+v", report["department"])
	}
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"net error", refused, true},
		{"connection failure class", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"no rows", pgx.ErrNoRows, false},
		{"canceled by caller", context.Canceled, false},
		{"already classified", apperr.Unavailable("central", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnavailable(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStore_Do_ForeignKeyViolationBecomesValidation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "prescription_request_appointment_id_fkey"}
	s, _ := newTestStore(&fakePool{execErr: fk}, 1)
	for i := 0; i < 3; i++ {
		err := exec(s)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("expected VALIDATION_ERROR, got %v", err)
		}
		if apperr.From(err).Details["constraint"] != "prescription_request_appointment_id_fkey" {
			t.Fatalf("expected constraint in details, got %v", apperr.From(err).Details)
		}
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not a foreign key violation")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "appointment_active_slot_key"}
	if !IsUniqueViolation(err, "appointment_active_slot_key") {
		t.Fatal("expected match on constraint name")
	}
	if IsUniqueViolation(err, "staff_cedula_key") {
		t.Fatal("expected no match on other constraint")
	}
	if !IsUniqueViolation(err, "") {
		t.Fatal("empty name matches any unique violation")
	}
}
