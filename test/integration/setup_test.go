package integration

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hospital/hospital/internal/domain/patient"
	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/internal/platform/db"
	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/internal/platform/telemetry"
	"github.com/hospital/hospital/migrations"
	"github.com/hospital/hospital/pkg/civil"
)

// testEnv holds both stores, migrated, for the whole package run.
type testEnv struct {
	CentralPool *pgxpool.Pool
	DeptPool    *pgxpool.Pool
	Central     *db.Store
	Department  *db.Store
	Metrics     *telemetry.Metrics
	Logger      zerolog.Logger
	Engine      *federation.Engine
	StaffRepo   staff.Repository
	PatientRepo patient.Repository
}

var env *testEnv

// The suite runs against TEST_CENTRAL_DATABASE_URL and TEST_DEPT_DATABASE_URL
// when both are set, or against a throwaway Docker container when
// HOSPITAL_INTEGRATION is set. Otherwise it is skipped.
func TestMain(m *testing.M) {
	centralURL := os.Getenv("TEST_CENTRAL_DATABASE_URL")
	deptURL := os.Getenv("TEST_DEPT_DATABASE_URL")
	useDocker := os.Getenv("HOSPITAL_INTEGRATION") != ""
	if (centralURL == "" || deptURL == "") && !useDocker {
		fmt.Println("skipping integration tests: set TEST_CENTRAL_DATABASE_URL and TEST_DEPT_DATABASE_URL, or HOSPITAL_INTEGRATION=1")
		os.Exit(0)
	}

	ctx := context.Background()
	var (
		e       *testEnv
		cleanup func()
		err     error
	)
	if centralURL != "" && deptURL != "" {
		e, cleanup, err = connectStores(ctx, centralURL, deptURL, func() {})
	} else {
		e, cleanup, err = setupContainer(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up stores: %v\n", err)
		os.Exit(1)
	}

	env = e
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupContainer starts Postgres and creates the department database next
// to the default central one.
func setupContainer(ctx context.Context) (*testEnv, func(), error) {
	connStr, stop, err := startPostgresContainer(ctx)
	if err != nil {
		return nil, nil, err
	}
	admin, err := db.NewPool(ctx, db.PoolConfig{Name: "admin", URL: connStr, MaxConns: 2})
	if err != nil {
		stop()
		return nil, nil, err
	}
	_, err = admin.Exec(ctx, "CREATE DATABASE department")
	admin.Close()
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("create department database: %w", err)
	}
	return connectStores(ctx, connStr, withDatabase(connStr, "department"), stop)
}

// connectStores migrates both databases and seeds the role catalog and one
// department. stop runs after the pools close.
func connectStores(ctx context.Context, centralURL, deptURL string, stop func()) (*testEnv, func(), error) {
	central, err := db.NewPool(ctx, db.PoolConfig{Name: "central", URL: centralURL, MaxConns: 10})
	if err != nil {
		stop()
		return nil, nil, err
	}
	dept, err := db.NewPool(ctx, db.PoolConfig{Name: "department", URL: deptURL, MaxConns: 20})
	if err != nil {
		central.Close()
		stop()
		return nil, nil, err
	}
	cleanup := func() {
		dept.Close()
		central.Close()
		stop()
	}

	if _, err := db.NewMigrator(central, migrations.Central).Up(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate central: %w", err)
	}
	if _, err := db.NewMigrator(dept, migrations.Department).Up(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate department: %w", err)
	}

	logger := zerolog.Nop()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	storeCfg := func(name string) db.StoreConfig {
		return db.StoreConfig{Name: name, Timeout: 5 * time.Second, FailureThreshold: 5, OpenTimeout: time.Second}
	}
	e := &testEnv{
		CentralPool: central,
		DeptPool:    dept,
		Central:     db.NewStore(central, storeCfg("central"), metrics, logger),
		Department:  db.NewStore(dept, storeCfg("department"), metrics, logger),
		Metrics:     metrics,
		Logger:      logger,
	}
	e.PatientRepo = patient.NewRepoPG(e.Central)
	e.StaffRepo = staff.NewRepoPG(e.Department)
	e.Engine = federation.NewEngine(e.PatientRepo, metrics, logger)

	if _, err := staff.NewService(e.StaffRepo).SeedRoles(ctx, auth.DefaultRoles); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("seed roles: %w", err)
	}
	if _, err := dept.Exec(ctx, `INSERT INTO department (name, specialty) VALUES ('Medicina Interna', 'Internal medicine')`); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("seed department: %w", err)
	}
	return e, cleanup, nil
}

var seq atomic.Int64

// uniqueCedula returns a cedula no other test in this run uses.
func uniqueCedula(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano()%1_000_000, seq.Add(1))
}

func createTestPatient(t *testing.T, ctx context.Context, first, last string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		FirstName: first,
		LastName:  last,
		BirthDate: civil.Date{Year: 1980, Month: time.May, Day: 4},
		Cedula:    uniqueCedula("P"),
	}
	if err := patient.NewService(env.PatientRepo).Create(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func roleID(t *testing.T, ctx context.Context, name string) int {
	t.Helper()
	var id int
	if err := env.DeptPool.QueryRow(ctx, `SELECT id FROM role WHERE name = $1`, name).Scan(&id); err != nil {
		t.Fatalf("role %s: %v", name, err)
	}
	return id
}

func createTestStaff(t *testing.T, ctx context.Context, first, last, role string) *staff.Member {
	t.Helper()
	var deptID int
	if err := env.DeptPool.QueryRow(ctx, `SELECT MIN(id) FROM department`).Scan(&deptID); err != nil {
		t.Fatalf("department: %v", err)
	}
	m := &staff.Member{
		FirstName:    first,
		LastName:     last,
		BirthDate:    civil.Date{Year: 1975, Month: time.January, Day: 12},
		Cedula:       uniqueCedula("S"),
		DepartmentID: deptID,
		RoleID:       roleID(t, ctx, role),
	}
	if err := staff.NewService(env.StaffRepo).Create(ctx, m); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return m
}
