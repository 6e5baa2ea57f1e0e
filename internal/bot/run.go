package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SissonJ/xtoken-pool-script/internal/arbitrage"
	"github.com/SissonJ/xtoken-pool-script/internal/chain"
	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/internal/notify"
	"github.com/SissonJ/xtoken-pool-script/internal/state"
	"github.com/SissonJ/xtoken-pool-script/internal/txlog"
	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

const (
	// cooldownWindow suppresses attempts after an on-chain revert so a moved
	// market cannot burn fees on every tick.
	cooldownWindow = 2 * time.Hour
	// reportInterval spaces the periodic statistics log lines.
	reportInterval = 2 * time.Hour
	// startupWindow is the wallet variant's always-log window after start.
	startupWindow = 15 * time.Second
)

// SnapshotFetcher fetches and decodes the batched market query.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*types.MarketSnapshot, error)
}

// PathEvaluator compares the two candidate orderings.
type PathEvaluator interface {
	Evaluate(ctx context.Context, snap *types.MarketSnapshot) (*arbitrage.Evaluation, error)
}

// PlanExecutor broadcasts the winning plan.
type PlanExecutor interface {
	Execute(ctx context.Context, plan types.CandidatePlan) (*types.TxResult, error)
}

// Bot runs one idempotent tick per invocation: cooldown check, periodic
// report, fetch, evaluate, gate, execute, persist. Retry and backoff live in
// the persisted state, not in-process control flow; the external scheduler
// (or cron mode) re-invokes the tick.
type Bot struct {
	cfg       *config.Config
	store     *state.Store
	fetcher   SnapshotFetcher
	evaluator PathEvaluator
	executor  PlanExecutor
	txLog     *txlog.Log
	notifier  *notify.Telegram
	log       zerolog.Logger

	now func() time.Time
}

func New(
	cfg *config.Config,
	store *state.Store,
	fetcher SnapshotFetcher,
	evaluator PathEvaluator,
	executor PlanExecutor,
	txLog *txlog.Log,
	notifier *notify.Telegram,
	logger zerolog.Logger,
) *Bot {
	return &Bot{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		evaluator: evaluator,
		executor:  executor,
		txLog:     txLog,
		notifier:  notifier,
		log:       logger,
		now:       time.Now,
	}
}

// Tick executes one run. Every exit path after a successful state load
// persists whatever was accumulated; transient query failures are counted and
// swallowed, data-integrity problems propagate.
func (b *Bot) Tick(ctx context.Context) (err error) {
	now := b.now()
	st, err := b.store.Load(b.cfg.Key)
	if err != nil {
		return err
	}
	defer func() {
		if saveErr := b.store.Save(b.cfg.Key, st); saveErr != nil {
			b.log.Error().Err(saveErr).Msg("Failed to persist state")
			if err == nil {
				err = saveErr
			}
		}
	}()

	nowMs := now.UnixMilli()
	if st.LastFailed > 0 && nowMs-st.LastFailed < cooldownWindow.Milliseconds() {
		if !st.HasNotified {
			b.log.Info().
				Int64("lastFailed", st.LastFailed).
				Msg("On cooldown from last failed attempt")
			b.notify(ctx, "entering cooldown after failed arbitrage attempt")
		}
		st.HasNotified = true
		return nil
	}
	st.HasNotified = false

	b.maybeReport(st, nowMs)

	queryStart := b.now()
	snap, runErr := b.fetcher.FetchSnapshot(ctx)
	if runErr != nil {
		if chain.IsTransient(runErr) {
			st.FailedQueries++
			b.log.Warn().Err(runErr).Msg("Transient query failure, aborting run")
			return nil
		}
		return fmt.Errorf("fetch market snapshot: %w", runErr)
	}
	st.PushQueryLength(b.now().Sub(queryStart).Seconds())

	eval, runErr := b.evaluator.Evaluate(ctx, snap)
	if runErr != nil {
		if chain.IsTransient(runErr) {
			st.FailedQueries++
			b.log.Warn().Err(runErr).Msg("Transient simulation failure, aborting run")
			return nil
		}
		return fmt.Errorf("evaluate paths: %w", runErr)
	}
	st.FailedQueries += eval.SoftFailures
	st.PushProfit(eval.Plan.Profit)

	if eval.Plan.Profit < b.cfg.Strategy.MinimumProfit || eval.Plan.TradeAmount <= 0 {
		b.log.Debug().
			Float64("profit", eval.Plan.Profit).
			Float64("minimumProfit", b.cfg.Strategy.MinimumProfit).
			Msg("Below profit threshold, skipping")
		return nil
	}

	st.TotalAttempts++
	st.LastAttempt = nowMs

	execStart := b.now()
	result, runErr := b.executor.Execute(ctx, eval.Plan)
	if runErr != nil {
		return runErr
	}

	if b.cfg.Strategy.Variant == config.VariantBorrow && result.TxHash != "" {
		if logErr := b.txLog.Append(nowMs, result.TxHash, "xToken"); logErr != nil {
			b.log.Error().Err(logErr).Msg("Failed to append transaction log")
		}
	}

	if result.Code == 0 {
		b.log.Info().
			Str("txHash", result.TxHash).
			Float64("profit", eval.Plan.Profit).
			Msg("ARBITRAGE ATTEMPT SUCCESSFUL")
		st.SuccessfulAttempts++
		b.notify(ctx, fmt.Sprintf("arbitrage succeeded: %s (profit %.3f)", result.TxHash, eval.Plan.Profit))
	} else {
		b.log.Info().
			Str("txHash", result.TxHash).
			Uint32("code", result.Code).
			Str("rawLog", result.RawLog).
			Msg("ARBITRAGE ATTEMPT FAILED")
		st.LastFailed = nowMs
		st.FailedAttempts++
		b.notify(ctx, fmt.Sprintf("arbitrage reverted: %s", result.TxHash))
	}
	st.RecordExecuteLength(b.now().Sub(execStart).Seconds())

	return nil
}

// maybeReport emits the aggregate statistics line. The borrow variant reports
// whenever more than the interval elapsed since the last report; the wallet
// variant reports near process start and inside a tolerance window around
// each exact interval boundary, accepting wall-clock drift.
func (b *Bot) maybeReport(st *state.StrategyState, nowMs int64) {
	if b.cfg.Strategy.Variant == config.VariantBorrow {
		if st.Start != 0 && nowMs-st.LastUpdate <= reportInterval.Milliseconds() {
			return
		}
		st.LastUpdate = nowMs
		if st.Start == 0 {
			st.Start = nowMs
		}
		b.report(st, nowMs)
		return
	}

	if st.Start == 0 {
		st.Start = nowMs
	}
	elapsed := nowMs - st.Start
	window := b.cfg.Strategy.ReportWindow.Milliseconds()
	interval := reportInterval.Milliseconds()
	mod := elapsed % interval
	// The tolerance spans both sides of the boundary so a tick landing just
	// short of the interval still reports.
	if elapsed >= startupWindow.Milliseconds() && mod >= window && mod <= interval-window {
		return
	}
	st.LastUpdate = nowMs
	b.report(st, nowMs)
}

func (b *Bot) report(st *state.StrategyState, nowMs int64) {
	b.log.Info().
		Int64("hoursRunning", (nowMs-st.Start)/3_600_000).
		Int("totalAttempts", st.TotalAttempts).
		Int("successfulAttempts", st.SuccessfulAttempts).
		Int("failedAttempts", st.FailedAttempts).
		Int("failedQueries", st.FailedQueries).
		Float64("avgQuerySeconds", mean(st.QueryLength)).
		Float64("avgProfit", mean(st.Profit)).
		Float64("avgExecuteSeconds", st.ExecuteLength).
		Msg("Strategy statistics")
	st.ResetProfit()
}

func (b *Bot) notify(ctx context.Context, text string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Send(ctx, text); err != nil {
		b.log.Warn().Err(err).Msg("Failed to send notification")
	}
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
