package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SissonJ/xtoken-pool-script/internal/chain"
	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

// ContractQuerier is the slice of the chain client the fetcher needs.
type ContractQuerier interface {
	QueryContract(ctx context.Context, contract types.Contract, query any, out any) error
}

// Fetcher issues the once-per-run batched market query and the per-path swap
// simulations, and decodes the tagged sub-responses into a MarketSnapshot.
type Fetcher struct {
	querier ContractQuerier
	cfg     *config.Config
	log     zerolog.Logger
}

func NewFetcher(querier ContractQuerier, cfg *config.Config, logger zerolog.Logger) *Fetcher {
	return &Fetcher{querier: querier, cfg: cfg, log: logger}
}

// Decoded sub-response payloads. Numeric fields arrive as either JSON strings
// or numbers depending on the contract, so they decode through flexNumber.
type oraclePayload struct {
	Data struct {
		Rate *flexNumber `json:"rate"`
	} `json:"data"`
}

type tokenInfoPayload struct {
	TokenInfo struct {
		TotalSupply *flexNumber `json:"total_supply"`
	} `json:"token_info"`
}

type pairPayload struct {
	GetPairInfo struct {
		Amount0 *flexNumber `json:"amount_0"`
		Amount1 *flexNumber `json:"amount_1"`
	} `json:"get_pair_info"`
}

type vaultPayload struct {
	Loanable             *flexNumber `json:"loanable"`
	LentAmount           *flexNumber `json:"lent_amount"`
	LifetimeInterestPaid *flexNumber `json:"lifetime_interest_paid"`
	LifetimeInterestOwed *flexNumber `json:"lifetime_interest_owed"`
	MaxSupply            *flexNumber `json:"max_supply"`
}

type positionPayload struct {
	MaxBorrowValue *flexNumber `json:"max_borrow_value"`
}

type balancePayload struct {
	Balance struct {
		Amount *flexNumber `json:"amount"`
	} `json:"balance"`
}

// FetchSnapshot runs the aggregated query and decodes it. Unknown tags and
// missing or non-finite fields are data-integrity fatal; a transport-level
// invalid-JSON error passes through for the run loop's transient handling.
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*types.MarketSnapshot, error) {
	queries, err := f.buildQueries()
	if err != nil {
		return nil, err
	}

	var resp types.BatchResponse
	batch := types.BatchQuery{Batch: types.BatchQueryBody{Queries: queries}}
	if err := f.querier.QueryContract(ctx, f.cfg.Contracts.BatchQuery, batch, &resp); err != nil {
		return nil, err
	}

	snap := &types.MarketSnapshot{
		BlockHeight:      resp.Batch.BlockHeight,
		Price:            math.NaN(),
		XTokenSupply:     math.NaN(),
		BaseTokenAmount:  math.NaN(),
		XTokenAmount:     math.NaN(),
		VaultTotalAssets: math.NaN(),
		SupplyCap:        math.NaN(),
		MaxBorrowUSD:     math.NaN(),
		WalletBalance:    math.NaN(),
	}

	for _, sub := range resp.Batch.Responses {
		var tag types.QueryTag
		if err := chain.DecodeB64ToJSON(sub.ID, &tag); err != nil {
			return nil, fmt.Errorf("decode batch response id: %w", err)
		}
		if err := f.decodeSubResponse(tag, sub.Response.Response, snap); err != nil {
			return nil, err
		}
	}

	if err := f.validate(snap); err != nil {
		return nil, err
	}

	f.log.Debug().
		Uint64("blockHeight", snap.BlockHeight).
		Float64("baseTokenAmount", snap.BaseTokenAmount).
		Float64("xTokenAmount", snap.XTokenAmount).
		Float64("xTokenSupply", snap.XTokenSupply).
		Float64("vaultTotalAssets", snap.VaultTotalAssets).
		Float64("supplyCap", snap.SupplyCap).
		Msg("Decoded market snapshot")

	return snap, nil
}

func (f *Fetcher) buildQueries() ([]types.BatchSubQuery, error) {
	contracts := f.cfg.Contracts

	var specs []struct {
		tag      types.QueryTag
		contract types.Contract
		query    any
	}
	add := func(tag types.QueryTag, contract types.Contract, query any) {
		specs = append(specs, struct {
			tag      types.QueryTag
			contract types.Contract
			query    any
		}{tag, contract, query})
	}

	if f.cfg.Strategy.Variant == config.VariantBorrow {
		add(types.TagOracle, contracts.Oracle, map[string]any{
			"get_price": map[string]any{"key": contracts.OracleKey},
		})
		add(types.TagBalance, contracts.MoneyMarket, map[string]any{
			"user_position": map[string]any{
				"authentication": map[string]any{"permit": contracts.MasterPermit},
			},
		})
	} else {
		add(types.TagBalance, contracts.BaseToken, map[string]any{
			"balance": map[string]any{
				"address": f.cfg.Chain.WalletAddress,
				"key":     contracts.ViewingKey,
			},
		})
	}
	add(types.TagTokenInfo, contracts.XToken, map[string]any{"token_info": map[string]any{}})
	add(types.TagPair, contracts.Pair, map[string]any{"get_pair_info": map[string]any{}})
	add(types.TagVault, contracts.MoneyMarket, map[string]any{
		"get_vault": map[string]any{"token": contracts.BaseToken.Address},
	})

	queries := make([]types.BatchSubQuery, 0, len(specs))
	for _, spec := range specs {
		id, err := chain.EncodeJSONToB64(spec.tag)
		if err != nil {
			return nil, err
		}
		payload, err := chain.EncodeJSONToB64(spec.query)
		if err != nil {
			return nil, err
		}
		queries = append(queries, types.BatchSubQuery{
			ID:       id,
			Contract: spec.contract,
			Query:    payload,
		})
	}
	return queries, nil
}

func (f *Fetcher) decodeSubResponse(tag types.QueryTag, encoded string, snap *types.MarketSnapshot) error {
	switch tag {
	case types.TagOracle:
		var p oraclePayload
		if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
			return fmt.Errorf("decode oracle response: %w", err)
		}
		snap.Price = p.Data.Rate.float() / 1e18

	case types.TagTokenInfo:
		var p tokenInfoPayload
		if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
			return fmt.Errorf("decode token_info response: %w", err)
		}
		snap.XTokenSupply = p.TokenInfo.TotalSupply.float()

	case types.TagPair:
		var p pairPayload
		if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
			return fmt.Errorf("decode pair response: %w", err)
		}
		snap.BaseTokenAmount = p.GetPairInfo.Amount0.float()
		snap.XTokenAmount = p.GetPairInfo.Amount1.float()

	case types.TagVault:
		var p vaultPayload
		if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
			return fmt.Errorf("decode vault response: %w", err)
		}
		snap.VaultTotalAssets = p.Loanable.float() + p.LentAmount.float() +
			(p.LifetimeInterestOwed.float() - p.LifetimeInterestPaid.float())
		snap.SupplyCap = p.MaxSupply.float() - snap.VaultTotalAssets

	case types.TagBalance:
		if f.cfg.Strategy.Variant == config.VariantBorrow {
			var p positionPayload
			if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
				return fmt.Errorf("decode user_position response: %w", err)
			}
			snap.MaxBorrowUSD = p.MaxBorrowValue.float()
		} else {
			var p balancePayload
			if err := chain.DecodeB64ToJSON(encoded, &p); err != nil {
				return fmt.Errorf("decode balance response: %w", err)
			}
			snap.WalletBalance = p.Balance.Amount.float()
		}

	default:
		return fmt.Errorf("unknown batch response tag %q", tag)
	}
	return nil
}

func (f *Fetcher) validate(snap *types.MarketSnapshot) error {
	required := map[string]float64{
		"baseTokenAmount":  snap.BaseTokenAmount,
		"xTokenAmount":     snap.XTokenAmount,
		"xTokenSupply":     snap.XTokenSupply,
		"vaultTotalAssets": snap.VaultTotalAssets,
		"supplyCap":        snap.SupplyCap,
	}
	if f.cfg.Strategy.Variant == config.VariantBorrow {
		required["price"] = snap.Price
		required["maxBorrowUsd"] = snap.MaxBorrowUSD
	} else {
		required["walletBalance"] = snap.WalletBalance
	}

	var missing []string
	for name, v := range required {
		if math.IsNaN(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required data from batch query response: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SimulateSwap asks the pair for the return of swapping amount of token. The
// second return value is false when the response arrived but carried no
// usable return_amount; the caller counts that as a soft query failure and
// proceeds with zero.
func (f *Fetcher) SimulateSwap(ctx context.Context, token types.Contract, amount string) (float64, bool, error) {
	query := types.SwapSimulationQuery{
		SwapSimulation: types.SwapSimulationBody{
			Offer: types.SwapOffer{
				Amount: amount,
				Token: types.TokenRef{
					CustomToken: types.CustomToken{
						ContractAddr:  token.Address,
						TokenCodeHash: token.CodeHash,
					},
				},
			},
		},
	}

	var resp types.SwapSimulationResponse
	if err := f.querier.QueryContract(ctx, f.cfg.Contracts.Pair, query, &resp); err != nil {
		return 0, false, err
	}

	raw := resp.SwapSimulation.Result.ReturnAmount
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}

// flexNumber decodes a JSON number that may arrive quoted. Unparseable
// content decodes to NaN so snapshot validation surfaces it as fatal instead
// of it leaking into the arithmetic.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = flexNumber(math.NaN())
			return nil
		}
		*n = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*n = flexNumber(math.NaN())
		return nil
	}
	*n = flexNumber(v)
	return nil
}

// float returns the value, or NaN for an absent field.
func (n *flexNumber) float() float64 {
	if n == nil {
		return math.NaN()
	}
	return float64(*n)
}
