package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SissonJ/xtoken-pool-script/pkg/types"
)

func validConfig() *Config {
	return &Config{
		Key: "test",
		Chain: ChainConfig{
			NodeURL:       "https://lcd.example",
			SignerURL:     "https://lcd.example",
			ChainID:       "secret-4",
			WalletAddress: "secret1wallet",
			WalletKey:     "key",
		},
		Contracts: ContractsConfig{
			MoneyMarket:  types.Contract{Address: "a", CodeHash: "h"},
			Oracle:       types.Contract{Address: "a", CodeHash: "h"},
			Pair:         types.Contract{Address: "a", CodeHash: "h"},
			BaseToken:    types.Contract{Address: "a", CodeHash: "h"},
			XToken:       types.Contract{Address: "a", CodeHash: "h"},
			BatchQuery:   types.Contract{Address: "a", CodeHash: "h"},
			OracleKey:    "BASE",
			MasterPermit: json.RawMessage(`{}`),
		},
		Strategy: StrategyConfig{Variant: VariantBorrow, Decimals: 6},
	}
}

func TestValidateBorrowVariant(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateReportsMissingKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.NodeURL = ""
	cfg.Contracts.Pair.CodeHash = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"NODE", "PAIR_CODE_HASH"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should name %s, got %v", want, err)
		}
	}
}

func TestValidateWalletVariantNeedsViewingKey(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.Variant = VariantWallet

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "VIEWING_KEY") {
		t.Errorf("expected VIEWING_KEY to be required, got %v", err)
	}

	cfg.Contracts.ViewingKey = "vk"
	// Oracle settings are not required for the wallet variant.
	cfg.Contracts.Oracle = types.Contract{}
	cfg.Contracts.OracleKey = ""
	cfg.Contracts.MasterPermit = nil
	if err := cfg.Validate(); err != nil {
		t.Errorf("wallet variant rejected: %v", err)
	}
}

func TestValidateRejectsUnknownVariant(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.Variant = "margin"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func baseEnvLines() []string {
	return []string{
		"NODE=http://from-base",
		"CHAIN_ID=secret-4",
		"WALLET_ADDRESS=secret1wallet",
		"WALLET_KEY=key",
		"MONEY_MARKET_ADDRESS=mm",
		"MONEY_MARKET_CODE_HASH=h",
		"ORACLE_ADDRESS=or",
		"ORACLE_CODE_HASH=h",
		"ORACLE_KEY=BASE",
		"PAIR_ADDRESS=pair",
		"PAIR_CODE_HASH=h",
		"BASE_TOKEN_ADDRESS=bt",
		"BASE_TOKEN_CODE_HASH=h",
		"XTOKEN_ADDRESS=xt",
		"XTOKEN_CODE_HASH=h",
		"BATCH_QUERY_CONTRACT=bq",
		"BATCH_QUERY_HASH=h",
		`MASTER_PERMIT={"params":{}}`,
		"DECIMALS=6",
		"MINIMUM_PROFIT=5",
	}
}

func writeEnvFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// chdir moves the working directory for the test; Load resolves the dotenv
// files relative to it.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadProfileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeEnvFile(t, dir, ".env", baseEnvLines()...)
	writeEnvFile(t, dir, ".env.p1", "NODE=http://from-profile")

	cfg, err := Load("p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.NodeURL != "http://from-profile" {
		t.Errorf("NODE = %q, want the profile value", cfg.Chain.NodeURL)
	}
	// Keys the profile leaves unset fall back to the base file.
	if cfg.Chain.ChainID != "secret-4" {
		t.Errorf("CHAIN_ID = %q, want the base value", cfg.Chain.ChainID)
	}
	if cfg.Strategy.MinimumProfit != 5 {
		t.Errorf("MINIMUM_PROFIT = %v, want 5", cfg.Strategy.MinimumProfit)
	}
}

func TestLoadEnvOverridesProfile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeEnvFile(t, dir, ".env", baseEnvLines()...)
	writeEnvFile(t, dir, ".env.p1", "NODE=http://from-profile")
	t.Setenv("NODE", "http://from-env")

	cfg, err := Load("p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.NodeURL != "http://from-env" {
		t.Errorf("NODE = %q, want the process-environment value", cfg.Chain.NodeURL)
	}
}

func TestLoadRequiresMinimumProfit(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	var lines []string
	for _, l := range baseEnvLines() {
		if !strings.HasPrefix(l, "MINIMUM_PROFIT=") {
			lines = append(lines, l)
		}
	}
	writeEnvFile(t, dir, ".env", lines...)

	_, err := Load("p1")
	if err == nil || !strings.Contains(err.Error(), "MINIMUM_PROFIT") {
		t.Errorf("expected MINIMUM_PROFIT to be required, got %v", err)
	}
}
