package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/formengine/internal/config"
	"github.com/ehr/formengine/internal/domain/console"
	"github.com/ehr/formengine/internal/domain/formengine"
	"github.com/ehr/formengine/internal/platform/auth"
	"github.com/ehr/formengine/internal/platform/db"
	"github.com/ehr/formengine/internal/platform/middleware"
	"github.com/ehr/formengine/internal/platform/upstream"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "formengine",
		Short:         "Schema driven forms and tables for the clinic console",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			// Variables already set in the environment win.
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file %s: %w", envFile, err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file first")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the console server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := middleware.ParseSize(cfg.BodyLimit); err != nil {
		return nil, fmt.Errorf("invalid config: BODY_LIMIT: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newUpstreamClient(cfg *config.Config, logger zerolog.Logger) *upstream.Client {
	return upstream.NewClient(cfg.UpstreamURL,
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithLogger(logger.With().Str("component", "upstream").Logger()),
		upstream.WithRequestID(middleware.RequestIDFromContext),
	)
}

// newService wires the rendering service over the upstream client.
func newService(cfg *config.Config, client *upstream.Client, audit console.AuditRepository, logger zerolog.Logger) (*console.Service, error) {
	registry, err := formengine.LoadRegistry(cfg.EntitiesFile)
	if err != nil {
		return nil, err
	}
	source := formengine.NewUpstreamSource(client)
	return console.NewService(registry, source, client, audit, logger,
		formengine.WithParallelReferences(cfg.ParallelReferences),
	), nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// newServer builds the echo instance. pool may be nil when the audit trail
// is kept in memory.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *console.Service, client *upstream.Client, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = console.NewTemplateRenderer()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, middleware.RenderTargetHeader},
		ExposeHeaders: []string{"Link", "X-Total-Count", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/upstream", db.CheckHandler(client, func() interface{} {
		return map[string]string{"url": client.BaseURL()}
	}))
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	ui := e.Group("/ui", authMiddleware(cfg))
	console.NewHandler(svc, console.WithWriteRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.WriteRateLimit,
		BurstSize:         cfg.WriteRateBurst,
	})).RegisterRoutes(ui)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	var pool *pgxpool.Pool
	audit := console.AuditRepository(console.NewInMemoryAuditRepo())
	if cfg.HasDatabase() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		audit = console.NewAuditRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, audit trail kept in memory")
	}

	client := newUpstreamClient(cfg, logger)
	svc, err := newService(cfg, client, audit, logger)
	if err != nil {
		return err
	}

	e := newServer(cfg, logger, svc, client, pool)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("upstream", client.BaseURL()).
			Msg("starting server")
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
