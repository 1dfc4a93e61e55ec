package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/brojonat/walletrunner/service/wallet"
	"github.com/gagliardetto/solana-go/rpc"
)

// Config holds all application configuration. Values come from environment
// variables, falling back to the YAML file named by CONFIG_FILE, then to
// defaults. It is built once at startup and passed explicitly.
type Config struct {
	LogLevel    string
	MetricsAddr string

	DatabaseURL string
	// NATSURL is optional; without it no transaction events are published.
	NATSURL string

	// Solana RPC
	SolanaRPCURLs       []string
	RPCRateLimit        int
	RPCProxy            string
	Commitment          rpc.CommitmentType
	SkipSimulation      bool
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// Fees
	PriorityFeeMicroLamports uint64
	ComputeUnitLimit         uint32

	// Orchestration
	Concurrency    int
	ShuffleWallets bool
	StartDelay     orchestrator.Range
	ActionDelay    orchestrator.Range
	CycleDelay     orchestrator.Range

	// Balances
	BalanceTimeout      time.Duration
	BalancePollInterval orchestrator.Range

	// Workflows
	SwapsPerCycle     wallet.IntRange
	SwapTokens        []solana.TokenDescriptor
	WithdrawAmount    wallet.AmountRange
	CommissionReserve wallet.AmountRange
	SweepReserve      wallet.AmountRange
	// RefillAmount is the stable amount swapped back to SOL when the SOL
	// balance no longer covers commissions.
	RefillAmount wallet.AmountRange

	// EncryptionKeys open Fernet-encrypted private keys; the first one also
	// encrypts newly generated keys.
	EncryptionKeys []string

	// Wallet selection. A non-zero WalletRange wins over WalletIDs.
	WalletRange wallet.IntRange
	WalletIDs   []int64
}

// Load reads configuration and validates it, reporting every problem at once.
func Load() (*Config, error) {
	return LoadWithOverrides(nil)
}

// LoadWithOverrides is Load with values, keyed by environment name, that take
// precedence over the environment. Empty values are ignored.
func LoadWithOverrides(overrides map[string]string) (*Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"), overrides)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.LogLevel = src.get("LOG_LEVEL", "info")
	cfg.MetricsAddr = src.get("METRICS_ADDR", ":9090")

	cfg.DatabaseURL = src.get("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}
	cfg.NATSURL = src.get("NATS_URL", "")

	cfg.SolanaRPCURLs = splitList(src.get("SOLANA_RPC_URL", ""))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.RPCRateLimit, err = src.int("RPC_RATE_LIMIT", 10)
	collect(err)
	cfg.RPCProxy = src.get("RPC_PROXY", "")
	cfg.Commitment = rpc.CommitmentType(src.get("COMMITMENT", string(rpc.CommitmentConfirmed)))
	cfg.SkipSimulation, err = src.bool("SKIP_SIMULATION", false)
	collect(err)
	cfg.ConfirmTimeout, err = src.duration("CONFIRM_TIMEOUT", "60s")
	collect(err)
	cfg.ConfirmPollInterval, err = src.duration("CONFIRM_POLL_INTERVAL", "1s")
	collect(err)

	fee, err := src.uint("PRIORITY_FEE_MICROLAMPORTS", 0, 64)
	collect(err)
	cfg.PriorityFeeMicroLamports = fee
	limit, err := src.uint("COMPUTE_UNIT_LIMIT", 0, 32)
	collect(err)
	cfg.ComputeUnitLimit = uint32(limit)

	cfg.Concurrency, err = src.int("CONCURRENCY", 4)
	collect(err)
	cfg.ShuffleWallets, err = src.bool("SHUFFLE_WALLETS", true)
	collect(err)
	cfg.StartDelay, err = src.durationRange("START_DELAY", "0s")
	collect(err)
	cfg.ActionDelay, err = src.durationRange("ACTION_DELAY", "10s-30s")
	collect(err)
	cfg.CycleDelay, err = src.durationRange("CYCLE_DELAY", "0s")
	collect(err)

	cfg.BalanceTimeout, err = src.duration("BALANCE_TIMEOUT", "6m")
	collect(err)
	cfg.BalancePollInterval, err = src.durationRange("BALANCE_POLL_INTERVAL", "20s-30s")
	collect(err)

	cfg.SwapsPerCycle, err = wallet.ParseIntRange(src.get("SWAPS_PER_CYCLE", "1-3"))
	collect(prefix("SWAPS_PER_CYCLE", err))
	for _, sym := range splitList(src.get("SWAP_TOKENS", "USDC,USDT")) {
		tok, err := solana.TokenBySymbol(sym)
		if err != nil {
			errs = append(errs, fmt.Errorf("SWAP_TOKENS: %w", err))
			continue
		}
		cfg.SwapTokens = append(cfg.SwapTokens, tok)
	}
	cfg.WithdrawAmount, err = wallet.ParseAmountRange(src.get("WITHDRAW_AMOUNT", "0.05-0.1"))
	collect(prefix("WITHDRAW_AMOUNT", err))
	cfg.CommissionReserve, err = wallet.ParseAmountRange(src.get("COMMISSION_RESERVE", "0.01-0.02"))
	collect(prefix("COMMISSION_RESERVE", err))
	cfg.SweepReserve, err = wallet.ParseAmountRange(src.get("SWEEP_RESERVE", "0.001-0.002"))
	collect(prefix("SWEEP_RESERVE", err))
	cfg.RefillAmount, err = wallet.ParseAmountRange(src.get("REFILL_AMOUNT", "5-10"))
	collect(prefix("REFILL_AMOUNT", err))
	cfg.EncryptionKeys = splitList(src.get("KEY_ENCRYPTION_KEYS", ""))

	cfg.WalletRange, err = wallet.ParseIntRange(src.get("WALLET_RANGE", ""))
	collect(prefix("WALLET_RANGE", err))
	for _, s := range splitList(src.get("WALLET_IDS", "")) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("WALLET_IDS: invalid id %q: %w", s, err))
			continue
		}
		cfg.WalletIDs = append(cfg.WalletIDs, id)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}
	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	switch c.Commitment {
	case rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("Commitment must be confirmed or finalized, got %q", c.Commitment))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("Concurrency must be at least 1"))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit cannot be negative"))
	}
	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}
	if c.ConfirmTimeout < c.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("ConfirmTimeout cannot be shorter than ConfirmPollInterval"))
	}
	if c.BalanceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BalanceTimeout must be positive"))
	}
	if c.BalancePollInterval.Max <= 0 {
		errs = append(errs, fmt.Errorf("BalancePollInterval must be positive"))
	}
	if len(c.EncryptionKeys) > 0 {
		if _, err := solana.NewFernetDecrypter(c.EncryptionKeys...); err != nil {
			errs = append(errs, fmt.Errorf("EncryptionKeys: %w", err))
		}
	}
	if len(c.SwapTokens) == 0 {
		errs = append(errs, fmt.Errorf("SwapTokens cannot be empty"))
	}
	for name, r := range map[string]orchestrator.Range{
		"StartDelay":          c.StartDelay,
		"ActionDelay":         c.ActionDelay,
		"CycleDelay":          c.CycleDelay,
		"BalancePollInterval": c.BalancePollInterval,
	} {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// RunnerConfig is the orchestrator's slice of the configuration.
func (c *Config) RunnerConfig() orchestrator.Config {
	return orchestrator.Config{
		Concurrency: c.Concurrency,
		Shuffle:     c.ShuffleWallets,
		StartDelay:  c.StartDelay,
		ActionDelay: c.ActionDelay,
		CycleDelay:  c.CycleDelay,
	}
}

// ClientOptions configures the Solana client.
func (c *Config) ClientOptions() solana.Options {
	return solana.Options{
		Commitment:          c.Commitment,
		SkipSimulation:      c.SkipSimulation,
		ConfirmTimeout:      c.ConfirmTimeout,
		ConfirmPollInterval: c.ConfirmPollInterval,
	}
}

// WalletSettings configures the wallet workflows.
func (c *Config) WalletSettings() wallet.Settings {
	s := wallet.DefaultSettings()
	s.SwapsPerCycle = c.SwapsPerCycle
	s.SwapTokens = c.SwapTokens
	s.WithdrawAmount = c.WithdrawAmount
	s.BalanceTimeout = c.BalanceTimeout
	s.BalancePoll = c.BalancePollInterval
	s.CommissionReserve = c.CommissionReserve
	s.SweepReserve = c.SweepReserve
	s.SweepReserve.Step = wallet.DefaultSettings().SweepReserve.Step
	s.RefillAmount = c.RefillAmount
	s.RefillAmount.Step = wallet.DefaultSettings().RefillAmount.Step
	s.ComputeUnitLimit = c.ComputeUnitLimit
	s.PriorityFee = c.PriorityFeeMicroLamports
	return s
}

// KeyParser returns a parser that opens encrypted keys when EncryptionKeys
// are configured.
func (c *Config) KeyParser(logger *slog.Logger) (*solana.KeyParser, error) {
	if len(c.EncryptionKeys) == 0 {
		return solana.NewKeyParser(nil, logger), nil
	}
	d, err := solana.NewFernetDecrypter(c.EncryptionKeys...)
	if err != nil {
		return nil, err
	}
	return solana.NewKeyParser(d, logger), nil
}

// Selection returns the wallet filter configured by WALLET_RANGE / WALLET_IDS.
func (c *Config) Selection() wallet.Selection {
	return wallet.Selection{Range: c.WalletRange, IDs: c.WalletIDs}
}

func prefix(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
