package main

import (
	"context"
	"encoding/json"
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

	"github.com/clinic/triage/internal/config"
	"github.com/clinic/triage/internal/domain/doctor"
	"github.com/clinic/triage/internal/domain/queue"
	"github.com/clinic/triage/internal/domain/triage"
	"github.com/clinic/triage/internal/domain/visit"
	"github.com/clinic/triage/internal/platform/db"
	"github.com/clinic/triage/internal/platform/lock"
	"github.com/clinic/triage/internal/platform/middleware"
	"github.com/clinic/triage/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Clinic triage queue and assignment engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// hubPublisher adapts the websocket hub to the queue.Publisher interface,
// keeping the queue package free of transport concerns.
type hubPublisher struct {
	hub    *websocket.Hub
	logger zerolog.Logger
}

func (p *hubPublisher) PublishQueue(doctorID uuid.UUID, snapshot queue.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		p.logger.Error().Err(err).Msg("snapshot marshal failed")
		return
	}
	p.hub.Broadcast(doctorID, websocket.Event{
		Type:      websocket.EventQueueSnapshot,
		DoctorID:  doctorID,
		Timestamp: snapshot.GeneratedAt,
		Data:      data,
	})
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Per-doctor serialization: Redis-backed when REDIS_URL is set so
	// multiple intake nodes share locks, in-process mutexes otherwise.
	var locks lock.Keyed = lock.NewMutexKeyed()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		locks = lock.NewRedisKeyed(client, time.Duration(cfg.LockTTLSeconds)*time.Second)
		logger.Info().Msg("using redis doctor locks")
	}

	// Websocket hub
	hub := websocket.NewHub(logger)
	publisher := &hubPublisher{hub: hub, logger: logger}

	// Repositories
	visitRepo := visit.NewRepoPG(pool)
	assessmentRepo := triage.NewAssessmentRepoPG(pool)
	doctorRepo := doctor.NewRepoPG(pool)
	queueRepo := queue.NewRepoPG(pool)

	// Engine
	txRunner := db.Runner(pool, cfg.TxRetryAttempts)
	scorer := triage.NewScorer(triage.ScorerConfig{
		ChronicWeights: triage.DefaultChronicWeights(),
		SymptomWeights: triage.DefaultSymptomWeights(),
		Rules:          triage.DefaultRules(),
	})
	selector := doctor.NewSelector(doctorRepo, cfg.DefaultSpecialty, logger)
	store := queue.NewStore(queueRepo, locks, txRunner, logger)
	reconciler := queue.NewReconciler(queueRepo, locks, txRunner, publisher, logger)

	visitSvc := visit.NewService(visit.ServiceDeps{
		Visits:            visitRepo,
		Assessments:       assessmentRepo,
		Doctors:           doctorRepo,
		Entries:           queueRepo,
		Classifier:        triage.NewRuleClassifier(),
		Scorer:            scorer,
		Selector:          selector,
		Store:             store,
		Reconciler:        reconciler,
		Tx:                txRunner,
		AvgConsultMinutes: cfg.AvgConsultMinutes,
		Logger:            logger,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Routes
	apiV1 := e.Group("/api/v1")
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1)
	doctor.NewHandler(doctorRepo).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

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
