package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/SissonJ/xtoken-pool-script/internal/arbitrage"
	"github.com/SissonJ/xtoken-pool-script/internal/bot"
	"github.com/SissonJ/xtoken-pool-script/internal/chain"
	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/internal/market"
	"github.com/SissonJ/xtoken-pool-script/internal/notify"
	"github.com/SissonJ/xtoken-pool-script/internal/output"
	"github.com/SissonJ/xtoken-pool-script/internal/state"
	"github.com/SissonJ/xtoken-pool-script/internal/txlog"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] == "" {
		log.Fatal().Msg("Usage: bot <invocation-key>")
	}
	key := os.Args[1]

	cfg, err := config.Load(key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := output.Setup(cfg.Logging, key)

	client := chain.NewClient(cfg.Chain)
	store := state.NewStore(cfg.State.Dir, key)
	fetcher := market.NewFetcher(client, cfg, logger)
	evaluator := arbitrage.NewEvaluator(fetcher, cfg, logger)
	planner := arbitrage.NewPlanner(client, cfg, logger)
	txLog := txlog.New(cfg.State.TxLogFile)
	notifier := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)

	b := bot.New(cfg, store, fetcher, evaluator, planner, txLog, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// One tick per invocation by default; a cron schedule keeps the process
	// alive and fires the same idempotent tick instead.
	if cfg.Schedule == "" {
		if err := b.Tick(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Run failed")
		}
		return
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := b.Tick(ctx); err != nil {
			logger.Error().Err(err).Msg("Run failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Schedule).Msg("Invalid SCHEDULE expression")
	}
	c.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("Scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("Bot stopped")
}
