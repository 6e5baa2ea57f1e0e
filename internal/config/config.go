package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

// Variant selects the collateral source and with it the message sequence.
type Variant string

const (
	// VariantBorrow funds the trade with a borrow against the money market
	// (borrow, two legs, repay; four messages).
	VariantBorrow Variant = "borrow"
	// VariantWallet funds the trade from the wallet balance (two messages).
	VariantWallet Variant = "wallet"
)

// Config holds everything one invocation needs. A profile file `.env.<key>`
// is layered over the base `.env` and the process environment, one profile
// per invocation key.
type Config struct {
	Key       string
	Chain     ChainConfig
	Contracts ContractsConfig
	Strategy  StrategyConfig
	State     StateConfig
	Logging   LoggingConfig
	Notify    NotifyConfig

	// Schedule, when set to a cron expression, keeps the process alive and
	// fires the tick on that schedule instead of exiting after one run.
	Schedule string
}

// ChainConfig holds node endpoints and signing credentials.
type ChainConfig struct {
	NodeURL       string
	SignerURL     string
	ChainID       string
	WalletAddress string
	WalletKey     string
}

// ContractsConfig enumerates every contract the strategy touches.
type ContractsConfig struct {
	MoneyMarket types.Contract
	Oracle      types.Contract
	Pair        types.Contract
	BaseToken   types.Contract
	XToken      types.Contract
	BatchQuery  types.Contract

	OracleKey    string
	MasterPermit json.RawMessage // borrow variant: query permit for user_position
	ViewingKey   string          // wallet variant: SNIP-20 balance viewing key
}

// StrategyConfig holds trade sizing and gating parameters.
type StrategyConfig struct {
	Variant       Variant
	Decimals      int
	MinimumProfit float64
	ReportWindow  time.Duration // wallet variant periodic-log tolerance
}

// StateConfig locates the durable files.
type StateConfig struct {
	Dir       string
	TxLogFile string
}

type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID string
}

// Load builds the configuration for the given invocation key. Precedence:
// process environment over `.env.<key>` over `.env`.
func Load(key string) (*Config, error) {
	if key == "" {
		return nil, fmt.Errorf("invocation key is required")
	}

	v := viper.New()
	v.SetConfigType("env")

	// Base .env goes in first so the profile merge wins on conflicting keys;
	// a missing base file is fine.
	if base, err := godotenv.Read(); err == nil {
		settings := make(map[string]any, len(base))
		for name, val := range base {
			settings[name] = val
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merge base .env: %w", err)
		}
	}

	v.SetConfigFile(".env." + key)
	if err := v.MergeInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read profile .env.%s: %w", key, err)
	}
	v.AutomaticEnv()

	v.SetDefault("VARIANT", string(VariantBorrow))
	v.SetDefault("SIGNER_URL", "")
	v.SetDefault("STATE_DIR", ".")
	v.SetDefault("TX_LOG_FILE", "../transactions.txt")
	v.SetDefault("REPORT_WINDOW_SECONDS", 10)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	// An absent threshold would read as 0.0 and gate nothing, so its absence
	// is caught here rather than in Validate.
	if !v.IsSet("MINIMUM_PROFIT") {
		return nil, fmt.Errorf("missing required configuration: MINIMUM_PROFIT")
	}

	cfg := &Config{
		Key: key,
		Chain: ChainConfig{
			NodeURL:       v.GetString("NODE"),
			SignerURL:     v.GetString("SIGNER_URL"),
			ChainID:       v.GetString("CHAIN_ID"),
			WalletAddress: v.GetString("WALLET_ADDRESS"),
			WalletKey:     v.GetString("WALLET_KEY"),
		},
		Contracts: ContractsConfig{
			MoneyMarket: types.Contract{
				Address:  v.GetString("MONEY_MARKET_ADDRESS"),
				CodeHash: v.GetString("MONEY_MARKET_CODE_HASH"),
			},
			Oracle: types.Contract{
				Address:  v.GetString("ORACLE_ADDRESS"),
				CodeHash: v.GetString("ORACLE_CODE_HASH"),
			},
			Pair: types.Contract{
				Address:  v.GetString("PAIR_ADDRESS"),
				CodeHash: v.GetString("PAIR_CODE_HASH"),
			},
			BaseToken: types.Contract{
				Address:  v.GetString("BASE_TOKEN_ADDRESS"),
				CodeHash: v.GetString("BASE_TOKEN_CODE_HASH"),
			},
			XToken: types.Contract{
				Address:  v.GetString("XTOKEN_ADDRESS"),
				CodeHash: v.GetString("XTOKEN_CODE_HASH"),
			},
			BatchQuery: types.Contract{
				Address:  v.GetString("BATCH_QUERY_CONTRACT"),
				CodeHash: v.GetString("BATCH_QUERY_HASH"),
			},
			OracleKey:  v.GetString("ORACLE_KEY"),
			ViewingKey: v.GetString("VIEWING_KEY"),
		},
		Strategy: StrategyConfig{
			Variant:       Variant(v.GetString("VARIANT")),
			Decimals:      v.GetInt("DECIMALS"),
			MinimumProfit: v.GetFloat64("MINIMUM_PROFIT"),
			ReportWindow:  time.Duration(v.GetInt("REPORT_WINDOW_SECONDS")) * time.Second,
		},
		State: StateConfig{
			Dir:       v.GetString("STATE_DIR"),
			TxLogFile: v.GetString("TX_LOG_FILE"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Notify: NotifyConfig{
			TelegramToken:  v.GetString("TELEGRAM_TOKEN"),
			TelegramChatID: v.GetString("TELEGRAM_CHAT_ID"),
		},
		Schedule: v.GetString("SCHEDULE"),
	}

	if cfg.Chain.SignerURL == "" {
		cfg.Chain.SignerURL = cfg.Chain.NodeURL
	}

	if permit := v.GetString("MASTER_PERMIT"); permit != "" {
		if !json.Valid([]byte(permit)) {
			return nil, fmt.Errorf("MASTER_PERMIT is not valid JSON")
		}
		cfg.Contracts.MasterPermit = json.RawMessage(permit)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required key for the selected variant is set.
func (c *Config) Validate() error {
	var missing []string
	need := func(name, val string) {
		if val == "" {
			missing = append(missing, name)
		}
	}

	need("NODE", c.Chain.NodeURL)
	need("CHAIN_ID", c.Chain.ChainID)
	need("WALLET_ADDRESS", c.Chain.WalletAddress)
	need("WALLET_KEY", c.Chain.WalletKey)
	need("MONEY_MARKET_ADDRESS", c.Contracts.MoneyMarket.Address)
	need("MONEY_MARKET_CODE_HASH", c.Contracts.MoneyMarket.CodeHash)
	need("PAIR_ADDRESS", c.Contracts.Pair.Address)
	need("PAIR_CODE_HASH", c.Contracts.Pair.CodeHash)
	need("BASE_TOKEN_ADDRESS", c.Contracts.BaseToken.Address)
	need("BASE_TOKEN_CODE_HASH", c.Contracts.BaseToken.CodeHash)
	need("XTOKEN_ADDRESS", c.Contracts.XToken.Address)
	need("XTOKEN_CODE_HASH", c.Contracts.XToken.CodeHash)
	need("BATCH_QUERY_CONTRACT", c.Contracts.BatchQuery.Address)
	need("BATCH_QUERY_HASH", c.Contracts.BatchQuery.CodeHash)

	switch c.Strategy.Variant {
	case VariantBorrow:
		need("ORACLE_ADDRESS", c.Contracts.Oracle.Address)
		need("ORACLE_CODE_HASH", c.Contracts.Oracle.CodeHash)
		need("ORACLE_KEY", c.Contracts.OracleKey)
		if len(c.Contracts.MasterPermit) == 0 {
			missing = append(missing, "MASTER_PERMIT")
		}
	case VariantWallet:
		need("VIEWING_KEY", c.Contracts.ViewingKey)
	default:
		return fmt.Errorf("unknown VARIANT %q (want %q or %q)", c.Strategy.Variant, VariantBorrow, VariantWallet)
	}

	if c.Strategy.Decimals <= 0 {
		missing = append(missing, "DECIMALS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
