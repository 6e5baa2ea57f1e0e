package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SissonJ/xtoken-pool-script/internal/config"
	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

// ErrInvalidResponse marks the transient failure class: the node answered but
// the body was not decodable JSON. Runs abort softly on this class and rely on
// the next scheduled invocation instead of retrying in process.
var ErrInvalidResponse = errors.New("invalid json response")

// IsTransient reports whether err belongs to the transient query-failure
// class. The substring match covers errors surfaced by lower transport layers
// that use the same phrasing.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidResponse) ||
		strings.Contains(err.Error(), "invalid json response")
}

// BroadcastOptions carries the fixed fee parameters for one transaction. No
// gas estimation exists; each variant supplies its own limit.
type BroadcastOptions struct {
	GasLimit uint64 `json:"gas_limit"`
	FeeDenom string `json:"fee_denom"`
}

// Client talks to the chain node: smart-contract queries against the compute
// endpoint and message-bundle submission through the signing endpoint. Signing
// itself is outside this bot; the node-side signer holds the broadcast
// mechanics and this client only authorizes with the configured credential.
type Client struct {
	httpClient *http.Client
	cfg        config.ChainConfig
}

// NewClient creates a chain client from the node configuration.
func NewClient(cfg config.ChainConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}
}

type queryEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// QueryContract runs a smart query against a contract and decodes the JSON
// reply into out. The query payload crosses the wire base64-encoded.
func (c *Client) QueryContract(ctx context.Context, contract types.Contract, query any, out any) error {
	encoded, err := EncodeJSONToB64(query)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/compute/v1beta1/query/%s?code_hash=%s&query=%s",
		strings.TrimRight(c.cfg.NodeURL, "/"),
		url.PathEscape(contract.Address),
		url.QueryEscape(contract.CodeHash),
		url.QueryEscape(encoded),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query contract %s: %w", contract.Address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("query contract %s: read body: %w", contract.Address, err)
	}

	var envelope queryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("query contract %s: %w", contract.Address, ErrInvalidResponse)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query contract %s: status %d: %s", contract.Address, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("query contract %s: decode data: %w", contract.Address, err)
	}
	return nil
}

type broadcastRequest struct {
	ChainID  string             `json:"chain_id"`
	Sender   string             `json:"sender"`
	Msgs     []types.ExecuteMsg `json:"msgs"`
	GasLimit uint64             `json:"gas_limit"`
	FeeDenom string             `json:"fee_denom"`
}

// Broadcast submits the message bundle as one atomic transaction and blocks
// until a result code is available. Transport failures come back as errors;
// an on-chain revert comes back as a TxResult with a non-zero code.
func (c *Client) Broadcast(ctx context.Context, msgs []types.ExecuteMsg, opts BroadcastOptions) (*types.TxResult, error) {
	payload, err := json.Marshal(broadcastRequest{
		ChainID:  c.cfg.ChainID,
		Sender:   c.cfg.WalletAddress,
		Msgs:     msgs,
		GasLimit: opts.GasLimit,
		FeeDenom: opts.FeeDenom,
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.SignerURL, "/") + "/txs/broadcast"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.WalletKey)

	log.Debug().Int("msgs", len(msgs)).Uint64("gasLimit", opts.GasLimit).Msg("Broadcasting transaction")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broadcast: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broadcast: status %d: %s", resp.StatusCode, string(body))
	}

	var result types.TxResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("broadcast: %w", ErrInvalidResponse)
	}
	return &result, nil
}
