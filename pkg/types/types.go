package types

import "encoding/json"

// Contract identifies a contract instance by address and code hash. The code
// hash rides along with every query and message because the chain requires it
// for encrypted compute calls.
type Contract struct {
	Address  string `json:"address"`
	CodeHash string `json:"code_hash"`
}

// QueryTag correlates batch sub-queries with their responses. Tags round-trip
// through the aggregator contract as base64-encoded JSON strings.
type QueryTag string

const (
	TagBalance   QueryTag = "balance"
	TagTokenInfo QueryTag = "token_info"
	TagPair      QueryTag = "pair"
	TagVault     QueryTag = "vault"
	TagOracle    QueryTag = "oracle"
)

// BatchQuery is the request envelope for the batch-query aggregator contract.
type BatchQuery struct {
	Batch BatchQueryBody `json:"batch"`
}

type BatchQueryBody struct {
	Queries []BatchSubQuery `json:"queries"`
}

// BatchSubQuery is one fan-out query. ID and Query are base64-encoded JSON.
type BatchSubQuery struct {
	ID       string   `json:"id"`
	Contract Contract `json:"contract"`
	Query    string   `json:"query"`
}

// BatchResponse is the aggregator's reply. All sub-queries execute against a
// single block height; responses are correlated by ID, not position.
type BatchResponse struct {
	Batch BatchResponseBody `json:"batch"`
}

type BatchResponseBody struct {
	BlockHeight uint64             `json:"block_height"`
	Responses   []BatchSubResponse `json:"responses"`
}

type BatchSubResponse struct {
	ID       string        `json:"id"`
	Contract Contract      `json:"contract"`
	Response NestedPayload `json:"response"`
}

// NestedPayload wraps the inner base64-encoded JSON response of a sub-query.
type NestedPayload struct {
	Response string `json:"response"`
}

// SwapSimulationQuery asks the AMM pair for the return of a hypothetical swap.
type SwapSimulationQuery struct {
	SwapSimulation SwapSimulationBody `json:"swap_simulation"`
}

type SwapSimulationBody struct {
	Offer SwapOffer `json:"offer"`
}

type SwapOffer struct {
	Amount string   `json:"amount"`
	Token  TokenRef `json:"token"`
}

type TokenRef struct {
	CustomToken CustomToken `json:"custom_token"`
}

type CustomToken struct {
	ContractAddr  string `json:"contract_addr"`
	TokenCodeHash string `json:"token_code_hash"`
}

type SwapSimulationResponse struct {
	SwapSimulation SwapSimulationResult `json:"swap_simulation"`
}

type SwapSimulationResult struct {
	Result SwapReturn `json:"result"`
}

type SwapReturn struct {
	ReturnAmount string `json:"return_amount"`
}

// MarketSnapshot is the decoded view of on-chain state for one run. It is
// rebuilt from scratch every tick and never persisted.
type MarketSnapshot struct {
	BlockHeight      uint64
	Price            float64 // oracle rate of the base asset (borrow variant)
	XTokenSupply     float64
	BaseTokenAmount  float64 // pair reserve of the base token
	XTokenAmount     float64 // pair reserve of the share token
	VaultTotalAssets float64
	SupplyCap        float64 // remaining deposit headroom, may be negative
	MaxBorrowUSD     float64 // borrow variant sizing input
	WalletBalance    float64 // wallet variant sizing input
}

// CandidatePlan is the winning execution ordering for one run.
type CandidatePlan struct {
	SwapFirst         bool
	TradeAmount       float64
	SecondActionInput float64
	Result            float64
	Profit            float64
}

// ExecuteMsg is one contract call inside an atomic transaction bundle.
type ExecuteMsg struct {
	Contract  Contract        `json:"contract"`
	Msg       json.RawMessage `json:"msg"`
	SentFunds []Coin          `json:"sent_funds"`
}

type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// TxResult is the outcome of a broadcast. A non-zero Code means the messages
// reverted on chain; that is a normal strategy outcome, not a transport error.
type TxResult struct {
	TxHash string          `json:"txhash"`
	Code   uint32          `json:"code"`
	RawLog string          `json:"raw_log"`
	Logs   json.RawMessage `json:"logs,omitempty"`
}
