package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/config"
	"github.com/homeconf/regbot/internal/actionlog"
	"github.com/homeconf/regbot/internal/events"
	"github.com/homeconf/regbot/internal/lottery"
	"github.com/homeconf/regbot/internal/registrations"
	"github.com/homeconf/regbot/internal/speakers"
	"github.com/homeconf/regbot/pkg/database"
)

var rootCmd = &cobra.Command{
	Use:   "regctl",
	Short: "Operator tools for the event registration bot",
	Long: `regctl works directly against the bot database. Run it while the bot
is stopped, or only for read-only and append-only tasks while it runs.`,
	SilenceUsage: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// env bundles what every database-backed subcommand needs.
type env struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, pool: pool, logger: logger}, nil
}

func (e *env) Close() {
	e.pool.Close()
	_ = e.logger.Sync()
}

// service builds a lottery service with the stores only. Operations that
// notify or schedule are not reachable from regctl.
func (e *env) service() *lottery.Service {
	return lottery.NewService(lottery.Deps{
		Events:                      events.NewRepository(e.pool),
		Registrations:               registrations.NewRepository(e.pool),
		Speakers:                    speakers.NewRepository(e.pool),
		Actions:                     actionlog.NewRepository(e.pool),
		AdminIDs:                    e.cfg.Bot.AdminIDs,
		DefaultWaitlistTimeoutHours: e.cfg.Bot.WaitlistTimeoutHours,
	}, e.logger)
}
