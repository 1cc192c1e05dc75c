package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signalbot-backend/internal/config"
	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/db"
	"signalbot-backend/internal/logger"
	"signalbot-backend/internal/metrics"
	"signalbot-backend/internal/repository"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signalbot",
	Short: "MT5 signal bot backend",
	Long: `signalbot mirrors trading signals, settings and status from an MT5
terminal (or a built-in simulator), persists them, and serves them over
a REST API and a websocket feed with email, Telegram and push alerts.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SIGNALBOT_CONFIG"), "Path to a YAML config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newImportPresetsCmd(),
		newResetDailyCmd(),
		newSignalsCmd(),
		newPingTerminalCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs before it does its own work.
type app struct {
	cfg config.Config
	log zerolog.Logger
	m   *metrics.Metrics
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &app{
		cfg: cfg,
		log: logger.New(cfg.Log.Level, cfg.Log.Format),
		m:   metrics.New(),
	}, nil
}

// openStore connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory store otherwise. The returned func releases
// the pool.
func (a *app) openStore(ctx context.Context) (domain.Store, func(), error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return repository.NewInMemoryStore(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.Pool)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	a.log.Info().Int32("max_conns", pool.Config().MaxConns).Msg("connected to database")
	return repository.NewPostgresStore(pool, repository.DefaultRetryPolicy(), a.log, a.m), pool.Close, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
