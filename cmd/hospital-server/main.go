package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospital/hospital/internal/config"
	"github.com/hospital/hospital/internal/domain/account"
	"github.com/hospital/hospital/internal/domain/interconsult"
	"github.com/hospital/hospital/internal/domain/patient"
	"github.com/hospital/hospital/internal/domain/pharmacy"
	"github.com/hospital/hospital/internal/domain/scheduling"
	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/internal/platform/db"
	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/internal/platform/middleware"
	"github.com/hospital/hospital/internal/platform/telemetry"
	"github.com/hospital/hospital/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hospital-server",
		Short: "Hospital administration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return newLoggerTo(os.Stdout, cfg)
}

// newLoggerTo writes JSON lines unless cfg is a development config. A nil
// cfg is used before configuration has loaded.
func newLoggerTo(w io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func storeConfig(cfg *config.Config, name string) db.StoreConfig {
	return db.StoreConfig{
		Name:             name,
		Timeout:          cfg.StoreTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}
}

func poolConfig(cfg *config.Config, name string) (db.PoolConfig, error) {
	switch name {
	case "central":
		return db.PoolConfig{Name: name, URL: cfg.CentralDatabaseURL, MaxConns: cfg.CentralMaxConns, MinConns: cfg.CentralMinConns}, nil
	case "department":
		return db.PoolConfig{Name: name, URL: cfg.DeptDatabaseURL, MaxConns: cfg.DeptMaxConns, MinConns: cfg.DeptMinConns}, nil
	}
	return db.PoolConfig{}, fmt.Errorf("unknown store %q: expected central or department", name)
}

// stores holds the two independently deployed databases.
type stores struct {
	central    *db.Store
	department *db.Store
	closers    []func()
}

func (s *stores) Close() {
	for _, c := range s.closers {
		c()
	}
}

func openStore(ctx context.Context, cfg *config.Config, name string, metrics *telemetry.Metrics, logger zerolog.Logger) (*db.Store, func(), error) {
	pc, err := poolConfig(cfg, name)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, pc)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, storeConfig(cfg, name), metrics, logger), pool.Close, nil
}

func openStores(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) (*stores, error) {
	s := &stores{}
	central, closeCentral, err := openStore(ctx, cfg, "central", metrics, logger)
	if err != nil {
		return nil, err
	}
	s.central = central
	s.closers = append(s.closers, closeCentral)

	dept, closeDept, err := openStore(ctx, cfg, "department", metrics, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.department = dept
	s.closers = append(s.closers, closeDept)
	return s, nil
}

// -- serve --

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// app carries everything the router needs.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	sessions    *auth.SessionManager
	revocations auth.RevocationStore
	health      echo.HandlerFunc

	patients     *patient.Service
	staff        *staff.Service
	accounts     *account.Service
	scheduling   *scheduling.Service
	interconsult *interconsult.Service
	pharmacy     *pharmacy.Service
}

func newApp(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, st *stores, revocations auth.RevocationStore) *app {
	sessions := auth.NewSessionManager(auth.SessionConfig{
		Secret:        []byte(cfg.SessionSecret),
		Issuer:        cfg.SessionIssuer,
		TTL:           cfg.SessionTTL,
		RefreshWindow: cfg.SessionRefreshWindow,
	})

	patientRepo := patient.NewRepoPG(st.central)
	engine := federation.NewEngine(patientRepo, metrics, logger)
	staffRepo := staff.NewRepoPG(st.department)

	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		sessions:    sessions,
		revocations: revocations,
		health:      db.HealthHandler(version, st.central, st.department),

		patients: patient.NewService(patientRepo),
		staff:    staff.NewService(staffRepo),
		accounts: account.NewService(account.NewRepoPG(st.department), staffRepo, sessions, revocations,
			auth.NewBcryptHasher(0), account.Config{MaxFailedAttempts: cfg.MaxFailedAttempts}, metrics, logger),
		scheduling:   scheduling.NewService(scheduling.NewRepoPG(st.department), staffRepo, engine, metrics),
		interconsult: interconsult.NewService(interconsult.NewRepoPG(st.department), staffRepo, engine, metrics),
		pharmacy: pharmacy.NewService(pharmacy.NewMedicationRepoPG(st.central),
			pharmacy.NewRequestRepoPG(st.department), staffRepo, engine),
	}
}

func rateLimitConfig(rps float64, burst int) middleware.RateLimitConfig {
	if rps <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = rps
	rl.BurstSize = burst
	return rl
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.SecurityHeaders(!a.cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", a.health)
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitConfig(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)))
	api.Use(auth.SessionMiddleware(auth.MiddlewareConfig{
		Sessions:    a.sessions,
		Revocations: a.revocations,
	}))

	loginLimit := middleware.RateLimit(rateLimitConfig(a.cfg.LoginRateLimitRPS, a.cfg.LoginRateLimitBurst))
	account.NewHandler(a.accounts).RegisterRoutes(api, loginLimit)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	staff.NewHandler(a.staff).RegisterRoutes(api)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	interconsult.NewHandler(a.interconsult).RegisterRoutes(api)
	pharmacy.NewHandler(a.pharmacy).RegisterRoutes(api)

	return e
}

func newRevocationStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, revoked sessions are kept in memory and lost on restart")
		mem := auth.NewMemoryRevocationStore()
		return mem, mem.Close, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

func newMetrics() *telemetry.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return telemetry.NewMetrics(reg)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "hospital-server",
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer tp.Shutdown(context.Background())

	metrics := newMetrics()

	st, err := openStores(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to databases")
	}
	defer st.Close()
	logger.Info().Msg("connected to central and department databases")

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRevocations()

	e := newApp(cfg, logger, metrics, st, revocations).router()

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// -- migrate --

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for one store",
	}
	cmd.PersistentFlags().String("store", "", "Target store: central or department")
	cmd.MarkPersistentFlagRequired("store")

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, store string) error) error {
		store, _ := cmd.Flags().GetString("store")
		fsys, ok := migrations.ForStore(store)
		if !ok {
			return fmt.Errorf("unknown store %q: expected central or department", store)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pc, err := poolConfig(cfg, store)
		if err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, pc)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, fsys), store)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, store string) error {
				fmt.Printf("Running migrations on store: %s\n", store)
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, store string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("Migration status for store: %s\n", store)
				printStatus(os.Stdout, statuses)
				return nil
			})
		},
	})

	return cmd
}

// -- seed --

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the department store",
	}

	withDepartment := func(fn func(ctx context.Context, cfg *config.Config, dept *db.Store, logger zerolog.Logger) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		ctx := context.Background()
		dept, closeDept, err := openStore(ctx, cfg, "department", nil, logger)
		if err != nil {
			return err
		}
		defer closeDept()
		return fn(ctx, cfg, dept, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "Create or update the default role catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDepartment(func(ctx context.Context, _ *config.Config, dept *db.Store, _ zerolog.Logger) error {
				n, err := staff.NewService(staff.NewRepoPG(dept)).SeedRoles(ctx, auth.DefaultRoles)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d role(s).\n", n)
				return nil
			})
		},
	})

	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Create a session account for an existing staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			staffID, _ := cmd.Flags().GetInt64("staff-id")
			username, _ := cmd.Flags().GetString("username")
			password := os.Getenv("HOSPITAL_SEED_PASSWORD")
			if password == "" {
				return fmt.Errorf("HOSPITAL_SEED_PASSWORD must be set")
			}
			return withDepartment(func(ctx context.Context, cfg *config.Config, dept *db.Store, logger zerolog.Logger) error {
				svc := account.NewService(account.NewRepoPG(dept), staff.NewRepoPG(dept), nil, nil,
					auth.NewBcryptHasher(0), account.Config{MaxFailedAttempts: cfg.MaxFailedAttempts}, nil, logger)
				a, err := svc.Create(ctx, account.CreateRequest{StaffID: staffID, Username: username, Password: password})
				if err != nil {
					return err
				}
				fmt.Printf("Created account %d (%s) for staff member %d.\n", a.ID, a.Username, a.StaffID)
				return nil
			})
		},
	}
	accountCmd.Flags().Int64("staff-id", 0, "Staff member the account belongs to")
	accountCmd.Flags().String("username", "", "Login name")
	accountCmd.MarkFlagRequired("staff-id")
	accountCmd.MarkFlagRequired("username")
	cmd.AddCommand(accountCmd)

	return cmd
}
