package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thmr/registry/internal/config"
	"github.com/thmr/registry/internal/domain/patient"
	"github.com/thmr/registry/internal/domain/user"
	"github.com/thmr/registry/internal/platform/auth"
	"github.com/thmr/registry/internal/platform/db"
	"github.com/thmr/registry/internal/platform/entity"
	"github.com/thmr/registry/internal/platform/middleware"
	"github.com/thmr/registry/internal/platform/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "registry-server",
		Short:        "THMR patient registry server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("admin-email")
			password, _ := cmd.Flags().GetString("admin-password")
			return runServer(email, password)
		},
	}
	cmd.Flags().String("admin-email", "", "Provision this user at start-up if it does not exist")
	cmd.Flags().String("admin-password", "", "Password for --admin-email")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	cmd.AddCommand(statusCmd)

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	}

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a new forward migration instead.")
			return nil
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir).WithSchema(schema), schema)
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage registry users",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user who can sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("user create needs STORE_DRIVER=%s; use serve --admin-email with the memory store", config.StoreDriverPostgres)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			u, err := user.NewService(user.NewUserRepoPG(pool)).Create(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %d (%s).\n", u.ID, u.Email)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email address")
	createCmd.Flags().String("password", "", "Password (at least 8 characters)")

	cmd.AddCommand(createCmd)
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// backend is the storage the server runs on: PostgreSQL with a scoped session
// per request, or the in-memory store.
type backend struct {
	store    entity.Store
	users    user.UserRepository
	patients patient.PatientRepository
	pinger   db.Pinger
	pool     *pgxpool.Pool
	session  echo.MiddlewareFunc
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config, reg *entity.Registry, logger zerolog.Logger) (*backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return memoryBackend(reg)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:    entity.NewPGStore(pool),
		users:    user.NewUserRepoPG(pool),
		patients: patient.NewPatientRepoPG(pool),
		pinger:   pool,
		pool:     pool,
		session:  db.ScopedSession(pool, logger),
		close:    pool.Close,
	}, nil
}

func memoryBackend(reg *entity.Registry) (*backend, error) {
	userEntity, err := user.Describe()
	if err != nil {
		return nil, err
	}
	patientEntity, err := reg.Resolve("patient")
	if err != nil {
		return nil, err
	}
	store, err := entity.NewMemStore(append(reg.Entities(), userEntity)...)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:    store,
		users:    user.NewUserRepoStore(store, userEntity),
		patients: patient.NewPatientRepoStore(store, patientEntity),
		pinger:   store,
		close:    func() {},
	}, nil
}

func newRegistry() (*entity.Registry, error) {
	reg := entity.NewRegistry()
	if _, err := patient.Register(reg); err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return reg, nil
}

// newServer wires middleware and routes. Global middleware runs after routing,
// so the metrics and audit middleware see route patterns.
func newServer(cfg *config.Config, logger zerolog.Logger, b *backend, reg *entity.Registry, metrics *prometheus.Registry) (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.SessionMaxAge, cfg.CookieSecure)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:     []string{echo.HeaderContentType, middleware.RequestIDHeader, echo.HeaderXCSRFToken},
		AllowCredentials: true,
	}))
	e.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
		TokenLookup:    "form:csrf,header:" + echo.HeaderXCSRFToken,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: http.SameSiteLaxMode,
	}))
	e.Use(sessions.Middleware())
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.NewMetrics(metrics).Middleware())
	e.Use(middleware.Audit(logger, middleware.NewAccessCounter(metrics)))

	e.GET("/health", db.HealthHandler(b.pinger, b.pool))
	e.GET("/metrics", middleware.MetricsHandler(metrics))

	app := e.Group("")
	if b.session != nil {
		app.Use(b.session)
	}

	user.NewHandler(user.NewService(b.users), sessions).RegisterRoutes(app)
	patient.NewHandler(patient.NewService(b.patients)).RegisterRoutes(app)
	app.GET("/thmr/ui/registry", web.StaticPage("Registry", "registry.html"), auth.RequireLogin)

	data := app.Group("/thmr/data", auth.RequireLoginJSON)
	entity.NewHandler(b.store, reg, web.StripMarkup, logger).RegisterRoutes(data)

	return e, nil
}

// provisionUser creates email unless it already exists.
func provisionUser(ctx context.Context, users user.UserRepository, email, password string) error {
	_, err := user.NewService(users).Create(ctx, email, password)
	if errors.Is(err, user.ErrEmailTaken) {
		return nil
	}
	return err
}

func runServer(adminEmail, adminPassword string) error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}

	// Store
	ctx := context.Background()
	b, err := openBackend(ctx, cfg, reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("failed to open store")
	}
	defer b.close()
	logger.Info().Str("store", cfg.StoreDriver).Msg("store ready")

	if adminEmail != "" {
		if err := provisionUser(ctx, b.users, adminEmail, adminPassword); err != nil {
			logger.Fatal().Err(err).Str("email", adminEmail).Msg("failed to provision user")
		}
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e, err := newServer(cfg, logger, b, reg, metrics)
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
