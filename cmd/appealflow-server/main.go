package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/appealflow/appealflow/internal/config"
	"github.com/appealflow/appealflow/internal/domain/dispute"
	"github.com/appealflow/appealflow/internal/domain/group"
	"github.com/appealflow/appealflow/internal/domain/patient"
	"github.com/appealflow/appealflow/internal/platform/db"
	"github.com/appealflow/appealflow/internal/platform/middleware"
	"github.com/appealflow/appealflow/internal/platform/notification"
	"github.com/appealflow/appealflow/internal/platform/sandbox"
	"github.com/appealflow/appealflow/internal/platform/webhook"
	"github.com/appealflow/appealflow/pkg/clock"
)

// monitorSourceAdapter exposes the dispute repository to the deadline
// monitor. Saves go through the flag-only write so a scheduled tick can
// never clobber a concurrent request-driven validation write.
type monitorSourceAdapter struct {
	repo dispute.Repository
}

func (a *monitorSourceAdapter) ListActive(ctx context.Context) ([]*dispute.Dispute, error) {
	return a.repo.ListActive(ctx)
}

func (a *monitorSourceAdapter) Save(ctx context.Context, d *dispute.Dispute) error {
	return a.repo.UpdateFlags(ctx, d)
}

// editorRosterAdapter resolves the notification recipients for a
// group-owned dispute: every member holding edit or admin permission.
type editorRosterAdapter struct {
	groups group.Repository
}

func (a *editorRosterAdapter) ListEditors(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	members, err := a.groups.ListEditors(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "appealflow-server",
		Short: "Prior-authorization dispute tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dispute tracking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with synthetic demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			if n, _ := cmd.Flags().GetInt("patients"); n > 0 {
				seedCfg.PatientCount = n
			}
			if n, _ := cmd.Flags().GetInt("disputes"); n > 0 {
				seedCfg.DisputesPerPatient = n
			}
			if n, _ := cmd.Flags().GetInt("groups"); n > 0 {
				seedCfg.GroupCount = n
			}
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			disputeSvc := dispute.NewService(dispute.NewRepoPG(pool), patient.NewRepoPG(pool), clock.Real())
			seeder := sandbox.NewSeeder(seedCfg, patient.NewRepoPG(pool), group.NewRepoPG(pool), disputeSvc)

			result, err := seeder.Run(ctx)
			if err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}

			fmt.Printf("Seeded %d patients, %d groups (%d members), %d disputes (%d validated) in %s.\n",
				result.Patients, result.Groups, result.Members,
				result.Disputes, result.Validated, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("patients", 0, "Number of patients to generate")
	cmd.Flags().Int("disputes", 0, "Disputes per patient")
	cmd.Flags().Int("groups", 0, "Number of review groups")
	cmd.Flags().Int64("seed", 0, "RNG seed for reproducible data (0 = random)")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Repositories
	disputeRepo := dispute.NewRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	groupRepo := group.NewRepoPG(pool)

	clk := clock.Real()

	// Dispute domain
	disputeSvc := dispute.NewService(disputeRepo, patientRepo, clk)
	disputeHandler := dispute.NewHandler(disputeSvc)
	disputeHandler.RegisterRoutes(apiV1)

	// Notification dispatch. High-priority events fan out to the signed
	// webhook when one is configured; email stays disabled until a real
	// sender is deployed alongside.
	store := notification.NewStore()
	var egress notification.WebhookSender
	if cfg.WebhookURL != "" {
		egress = webhook.NewEgress(cfg.WebhookURL, cfg.WebhookSecret,
			logger.With().Str("component", "webhook").Logger())
		logger.Info().Str("url", cfg.WebhookURL).Msg("webhook egress enabled")
	}
	dispatcher := notification.NewDispatcher(store, nil, egress, clk,
		logger.With().Str("component", "dispatcher").Logger())
	notificationHandler := notification.NewHandler(store)
	notificationHandler.RegisterRoutes(apiV1)

	// Deadline monitor
	monitor := dispute.NewMonitor(
		&monitorSourceAdapter{repo: disputeRepo},
		&editorRosterAdapter{groups: groupRepo},
		dispatcher,
		clk,
		logger.With().Str("component", "monitor").Logger(),
	)
	monitor.Interval = cfg.MonitorInterval
	monitor.Grace = cfg.MonitorGrace

	monitorCtx, monitorCancel := context.WithCancel(ctx)
	defer monitorCancel()
	if cfg.MonitorEnabled {
		go monitor.Start(monitorCtx)
		logger.Info().Dur("interval", cfg.MonitorInterval).Msg("deadline monitor started")
	}

	// Health endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", db.ReadyHandler(pool))

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
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
