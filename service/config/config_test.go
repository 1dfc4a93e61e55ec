package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/brojonat/walletrunner/service/wallet"
	"github.com/fernet/fernet-go"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.Commitment)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, time.Second, cfg.ConfirmPollInterval)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.True(t, cfg.ShuffleWallets)
	assert.Equal(t, orchestrator.Range{Min: 10 * time.Second, Max: 30 * time.Second}, cfg.ActionDelay)
	assert.True(t, cfg.CycleDelay.IsZero())
	assert.Equal(t, 6*time.Minute, cfg.BalanceTimeout)
	assert.Equal(t, wallet.IntRange{Min: 1, Max: 3}, cfg.SwapsPerCycle)
	require.Len(t, cfg.SwapTokens, 2)
	assert.Equal(t, "USDC", cfg.SwapTokens[0].Symbol)
	assert.Equal(t, wallet.Selection{}, cfg.Selection())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}

func TestLoad_InvalidValuesAreAllReported(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIRM_TIMEOUT", "soon")
	t.Setenv("ACTION_DELAY", "30s-5s")
	t.Setenv("CONCURRENCY", "many")
	t.Setenv("SWAP_TOKENS", "USDC,DOGE")
	t.Setenv("COMPUTE_UNIT_LIMIT", "5000000000")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	for _, want := range []string{"invalid duration", "ACTION_DELAY", "CONCURRENCY", "DOGE", "COMPUTE_UNIT_LIMIT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SOLANA_RPC_URL", "https://a.example.com, https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NATS_URL", "nats://nats.example.com:4222")
	t.Setenv("COMMITMENT", "finalized")
	t.Setenv("CONCURRENCY", "8")
	t.Setenv("SHUFFLE_WALLETS", "false")
	t.Setenv("CYCLE_DELAY", "1h-2h")
	t.Setenv("PRIORITY_FEE_MICROLAMPORTS", "5000")
	t.Setenv("COMPUTE_UNIT_LIMIT", "200000")
	t.Setenv("WALLET_IDS", "3, 7,11")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, orchestrator.Range{Min: time.Hour, Max: 2 * time.Hour}, cfg.CycleDelay)

	rc := cfg.RunnerConfig()
	assert.Equal(t, 8, rc.Concurrency)
	assert.False(t, rc.Shuffle)

	ws := cfg.WalletSettings()
	assert.Equal(t, uint64(5000), ws.PriorityFee)
	assert.Equal(t, uint32(200_000), ws.ComputeUnitLimit)
	assert.Equal(t, []int64{3, 7, 11}, cfg.Selection().IDs)

	opts := cfg.ClientOptions()
	assert.Equal(t, rpc.CommitmentFinalized, opts.Commitment)
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
concurrency: 6
shuffle_wallets: false
action_delay:
  min: 5s
  max: 15s
swap_tokens: [USDT]
wallet_range: 2-9
withdraw_amount:
  min: 0.2
  max: 0.3
log_level: warn
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	// environment wins over the file
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Concurrency)
	assert.False(t, cfg.ShuffleWallets)
	assert.Equal(t, orchestrator.Range{Min: 5 * time.Second, Max: 15 * time.Second}, cfg.ActionDelay)
	require.Len(t, cfg.SwapTokens, 1)
	assert.Equal(t, "USDT", cfg.SwapTokens[0].Symbol)
	assert.Equal(t, wallet.IntRange{Min: 2, Max: 9}, cfg.WalletRange)
	assert.Equal(t, "0.2", cfg.WithdrawAmount.Min.String())
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_BadConfigFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("action_delay:\n  min: 5s\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "range needs min and max")

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		LogLevel:            "info",
		DatabaseURL:         "postgres://localhost/test",
		SolanaRPCURLs:       []string{"https://api.mainnet-beta.solana.com"},
		Commitment:          rpc.CommitmentConfirmed,
		Concurrency:         2,
		ConfirmTimeout:      time.Minute,
		ConfirmPollInterval: time.Second,
		BalanceTimeout:      time.Minute,
		BalancePollInterval: orchestrator.Range{Min: time.Second, Max: 2 * time.Second},
		SwapTokens:          wallet.DefaultSettings().SwapTokens,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, "DatabaseURL is required"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "LogLevel"},
		{"processed commitment", func(c *Config) { c.Commitment = rpc.CommitmentProcessed }, "Commitment"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "Concurrency must be at least 1"},
		{"timeout below poll", func(c *Config) { c.ConfirmTimeout = 500 * time.Millisecond }, "ConfirmTimeout"},
		{"inverted range", func(c *Config) { c.StartDelay = orchestrator.Range{Min: time.Minute} }, "StartDelay"},
		{"no swap tokens", func(c *Config) { c.SwapTokens = nil }, "SwapTokens"},
		{"zero balance poll", func(c *Config) { c.BalancePollInterval = orchestrator.Range{} }, "BalancePollInterval must be positive"},
		{"bad encryption key", func(c *Config) { c.EncryptionKeys = []string{"not-a-key"} }, "EncryptionKeys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ZeroBalancePollRejected(t *testing.T) {
	setRequired(t)
	t.Setenv("BALANCE_POLL_INTERVAL", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BalancePollInterval must be positive")
}

func TestLoadWithOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("NATS_URL", "nats://env:4222")

	cfg, err := LoadWithOverrides(map[string]string{
		"DATABASE_URL": "postgres://flag/db",
		"LOG_LEVEL":    "debug",
		"NATS_URL":     "",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://env:4222", cfg.NATSURL, "empty overrides fall through")

	t.Setenv("DATABASE_URL", "")
	cfg, err = LoadWithOverrides(map[string]string{"DATABASE_URL": "postgres://flag/db"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.DatabaseURL)
}

func TestConfig_KeyParser(t *testing.T) {
	setRequired(t)
	var key fernet.Key
	require.NoError(t, key.Generate())
	t.Setenv("KEY_ENCRYPTION_KEYS", key.Encode())

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.EncryptionKeys, 1)

	pk, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	tok, err := fernet.EncryptAndSign([]byte(pk.String()), &key)
	require.NoError(t, err)

	keys, err := cfg.KeyParser(nil)
	require.NoError(t, err)
	kp, err := keys.ParseString(string(tok))
	require.NoError(t, err)
	assert.Equal(t, pk.PublicKey(), kp.PublicKey())

	plain, err := validConfig().KeyParser(nil)
	require.NoError(t, err)
	_, err = plain.ParseString(string(tok))
	assert.ErrorIs(t, err, solana.ErrInvalidKeyFormat)
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	setRequired(t)

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}
