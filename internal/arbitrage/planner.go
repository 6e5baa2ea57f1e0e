package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/SissonJ/xtoken-pool-script/internal/chain"
	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

// Fixed gas limits per variant; no estimation or retry-with-higher-gas.
const (
	borrowVariantGasLimit = 4_000_000
	walletVariantGasLimit = 2_000_000
	feeDenom              = "uscrt"
)

// Broadcaster is the slice of the chain client the planner needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, msgs []types.ExecuteMsg, opts chain.BroadcastOptions) (*types.TxResult, error)
}

// Planner turns the winning candidate plan into the ordered contract-call
// bundle and submits it as one atomic transaction.
type Planner struct {
	broadcaster Broadcaster
	cfg         *config.Config
	log         zerolog.Logger
}

func NewPlanner(broadcaster Broadcaster, cfg *config.Config, logger zerolog.Logger) *Planner {
	return &Planner{broadcaster: broadcaster, cfg: cfg, log: logger}
}

// sendMsg is the "send with embedded instruction" pattern: a token transfer
// carrying a base64-JSON sub-message interpreted by the receiving contract.
type sendMsg struct {
	Send sendBody `json:"send"`
}

type sendBody struct {
	Recipient         string `json:"recipient"`
	RecipientCodeHash string `json:"recipient_code_hash"`
	Amount            string `json:"amount"`
	Msg               string `json:"msg"`
}

// BuildMessages assembles the ordered message list for the plan. The wallet
// variant is just the two legs; the borrow variant wraps them in a
// borrow/repay pair so the whole position opens and closes atomically.
func (p *Planner) BuildMessages(plan types.CandidatePlan) ([]types.ExecuteMsg, error) {
	contracts := p.cfg.Contracts

	var firstMsg, secondMsg types.ExecuteMsg
	var err error
	if plan.SwapFirst {
		// Base token into the pair with an expected-return guard, then the
		// received shares into the vault to withdraw supplied liquidity.
		firstMsg, err = p.tokenSend(contracts.BaseToken, contracts.Pair,
			FormatAmount(plan.TradeAmount),
			map[string]any{"swap_tokens": map[string]any{
				"expected_return": FormatAmount(plan.SecondActionInput),
			}})
		if err == nil {
			secondMsg, err = p.tokenSend(contracts.XToken, contracts.MoneyMarket,
				FormatAmount(plan.SecondActionInput),
				map[string]any{"withdraw_supply": map[string]any{}})
		}
	} else {
		// Base token into the vault to mint shares, then the shares into the
		// pair to swap back.
		firstMsg, err = p.tokenSend(contracts.BaseToken, contracts.MoneyMarket,
			FormatAmount(plan.TradeAmount),
			map[string]any{"supply": map[string]any{}})
		if err == nil {
			secondMsg, err = p.tokenSend(contracts.XToken, contracts.Pair,
				FormatAmount(plan.SecondActionInput),
				map[string]any{"swap_tokens": map[string]any{
					"expected_return": FormatAmount(plan.Result),
				}})
		}
	}
	if err != nil {
		return nil, err
	}

	if p.cfg.Strategy.Variant == config.VariantWallet {
		return []types.ExecuteMsg{firstMsg, secondMsg}, nil
	}

	borrowMsg, err := p.directCall(contracts.MoneyMarket, map[string]any{
		"borrow": map[string]any{
			"token":  contracts.BaseToken.Address,
			"amount": FormatAmount(plan.TradeAmount),
		},
	})
	if err != nil {
		return nil, err
	}
	repayMsg, err := p.tokenSend(contracts.BaseToken, contracts.MoneyMarket,
		FormatAmount(plan.Result),
		map[string]any{"repay": map[string]any{}})
	if err != nil {
		return nil, err
	}

	return []types.ExecuteMsg{borrowMsg, firstMsg, secondMsg, repayMsg}, nil
}

// Execute broadcasts the plan. A transport error is returned as-is; an
// on-chain revert comes back as a TxResult with a non-zero code and is the
// caller's normal-outcome bookkeeping, not an error.
func (p *Planner) Execute(ctx context.Context, plan types.CandidatePlan) (*types.TxResult, error) {
	msgs, err := p.BuildMessages(plan)
	if err != nil {
		return nil, err
	}

	gasLimit := uint64(walletVariantGasLimit)
	if p.cfg.Strategy.Variant == config.VariantBorrow {
		gasLimit = borrowVariantGasLimit
	}

	p.log.Info().
		Bool("swapFirst", plan.SwapFirst).
		Str("tradeAmount", FormatAmount(plan.TradeAmount)).
		Float64("profit", plan.Profit).
		Int("msgs", len(msgs)).
		Msg("Submitting arbitrage transaction")

	result, err := p.broadcaster.Broadcast(ctx, msgs, chain.BroadcastOptions{
		GasLimit: gasLimit,
		FeeDenom: feeDenom,
	})
	if err != nil {
		return nil, fmt.Errorf("broadcast arbitrage bundle: %w", err)
	}
	return result, nil
}

func (p *Planner) tokenSend(token, recipient types.Contract, amount string, embedded any) (types.ExecuteMsg, error) {
	encoded, err := chain.EncodeJSONToB64(embedded)
	if err != nil {
		return types.ExecuteMsg{}, err
	}
	raw, err := json.Marshal(sendMsg{Send: sendBody{
		Recipient:         recipient.Address,
		RecipientCodeHash: recipient.CodeHash,
		Amount:            amount,
		Msg:               encoded,
	}})
	if err != nil {
		return types.ExecuteMsg{}, err
	}
	return types.ExecuteMsg{
		Contract:  token,
		Msg:       raw,
		SentFunds: []types.Coin{},
	}, nil
}

func (p *Planner) directCall(contract types.Contract, msg any) (types.ExecuteMsg, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return types.ExecuteMsg{}, err
	}
	return types.ExecuteMsg{
		Contract:  contract,
		Msg:       raw,
		SentFunds: []types.Coin{},
	}, nil
}
