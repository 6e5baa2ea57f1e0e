package arbitrage

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

// defaultSlippageSafety shaves simulated swap returns before they feed the
// profit comparison and the on-chain expected_return guards.
const defaultSlippageSafety = 0.99999

// SwapSimulator is the slice of the market fetcher the evaluator needs.
type SwapSimulator interface {
	SimulateSwap(ctx context.Context, token types.Contract, amount string) (float64, bool, error)
}

// Evaluation is the outcome of comparing the two candidate orderings.
type Evaluation struct {
	Plan types.CandidatePlan
	// SoftFailures counts simulations that answered without a usable
	// return_amount; the run loop folds these into failedQueries.
	SoftFailures int
}

// Evaluator sizes the trade and compares the swap-first and mint-first
// orderings, each priced by one simulated swap against the pair.
type Evaluator struct {
	sim      SwapSimulator
	cfg      *config.Config
	log      zerolog.Logger
	slippage float64
}

func NewEvaluator(sim SwapSimulator, cfg *config.Config, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		sim:      sim,
		cfg:      cfg,
		log:      logger,
		slippage: defaultSlippageSafety,
	}
}

// Evaluate runs both candidate paths against the snapshot and returns the more
// profitable one. Ties keep the mint-first default. Transport errors from the
// simulations propagate for the run loop's transient/fatal classification.
func (e *Evaluator) Evaluate(ctx context.Context, snap *types.MarketSnapshot) (*Evaluation, error) {
	tradeAmount := e.tradeSize(snap)
	soft := 0

	// Swap-first: swap base for xToken, then redeem shares at vault value.
	ret, ok, err := e.sim.SimulateSwap(ctx, e.cfg.Contracts.BaseToken, FormatAmount(tradeAmount))
	if err != nil {
		return nil, err
	}
	if !ok {
		soft++
	}
	swapFirstInput := ret * e.slippage
	swapFirstResult := math.Trunc(swapFirstInput * snap.VaultTotalAssets / snap.XTokenSupply)

	// Mint-first: mint shares at vault value, then swap them back for base.
	// A vault at its supply cap clamps the mint leg, possibly to zero.
	mintFirstTradeAmount := tradeAmount
	if snap.SupplyCap < tradeAmount {
		mintFirstTradeAmount = math.Max(snap.SupplyCap, 0)
	}
	mintInput := mintFirstTradeAmount * snap.XTokenSupply / snap.VaultTotalAssets

	ret2, ok2, err := e.sim.SimulateSwap(ctx, e.cfg.Contracts.XToken, FormatAmount(mintInput))
	if err != nil {
		return nil, err
	}
	if !ok2 {
		soft++
	}
	mintFirstResult := ret2 * e.slippage

	swapFirstProfit := e.profit(swapFirstResult, tradeAmount, snap)
	mintFirstProfit := e.profit(mintFirstResult, mintFirstTradeAmount, snap)

	plan := types.CandidatePlan{
		SwapFirst:         false,
		TradeAmount:       mintFirstTradeAmount,
		SecondActionInput: mintInput,
		Result:            mintFirstResult,
		Profit:            mintFirstProfit,
	}
	if swapFirstProfit > mintFirstProfit {
		plan = types.CandidatePlan{
			SwapFirst:         true,
			TradeAmount:       tradeAmount,
			SecondActionInput: swapFirstInput,
			Result:            swapFirstResult,
			Profit:            swapFirstProfit,
		}
	}

	e.log.Debug().
		Float64("tradeAmount", tradeAmount).
		Float64("swapFirstProfit", swapFirstProfit).
		Float64("mintFirstProfit", mintFirstProfit).
		Bool("swapFirst", plan.SwapFirst).
		Msg("Evaluated candidate paths")

	return &Evaluation{Plan: plan, SoftFailures: soft}, nil
}

// tradeSize computes the variant-specific sizing input in raw token units.
func (e *Evaluator) tradeSize(snap *types.MarketSnapshot) float64 {
	if e.cfg.Strategy.Variant == config.VariantBorrow {
		liquidityCap := snap.BaseTokenAmount * 0.05
		borrowCap := math.Floor(snap.MaxBorrowUSD * 0.98 / snap.Price *
			math.Pow10(e.cfg.Strategy.Decimals))
		return math.Min(liquidityCap, borrowCap)
	}
	percentOfPool := snap.BaseTokenAmount * 0.01
	return math.Min(snap.WalletBalance, percentOfPool)
}

// profit converts a path's raw final amount into the gating unit: USD for the
// borrow variant (the oracle is available there), raw token units otherwise.
func (e *Evaluator) profit(result, tradeAmount float64, snap *types.MarketSnapshot) float64 {
	if e.cfg.Strategy.Variant == config.VariantBorrow {
		return (result - tradeAmount) * snap.Price / math.Pow10(e.cfg.Strategy.Decimals)
	}
	return result - tradeAmount
}

// FormatAmount renders an internal float as the contract-boundary decimal
// string: truncated toward zero, no fractional digits. Non-finite input
// degrades to "0" so a poisoned value can never reach a contract.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return decimal.NewFromFloat(math.Trunc(v)).Truncate(0).String()
}
