package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/brojonat/walletrunner/service/config"
	"github.com/brojonat/walletrunner/service/metrics"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/brojonat/walletrunner/service/wallet"
)

// newSolanaClient connects to one of the configured endpoints, picked at
// random, optionally through proxy.
func newSolanaClient(cfg *config.Config, proxy string, m *metrics.Metrics, logger *slog.Logger) (*solana.Client, error) {
	endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		return nil, err
	}
	rpcClient, err := solana.NewRPCClient(endpoint, solana.RPCClientOptions{
		Proxy:     proxy,
		RateLimit: cfg.RPCRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc client for %s: %w", endpointLabel(endpoint), err)
	}
	return solana.NewClient(rpcClient, endpointLabel(endpoint), m, logger, cfg.ClientOptions()), nil
}

// proxiedLedgers hands out one client per distinct proxy so that repeated
// cycles reuse connections.
type proxiedLedgers struct {
	mu      sync.Mutex
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	clients map[string]*solana.Client
}

func newProxiedLedgers(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *proxiedLedgers {
	return &proxiedLedgers{cfg: cfg, metrics: m, logger: logger, clients: map[string]*solana.Client{}}
}

func (p *proxiedLedgers) LedgerFor(rec *wallet.Record) (wallet.Ledger, error) {
	proxy := *rec.Proxy
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[proxy]; ok {
		return c, nil
	}
	c, err := newSolanaClient(p.cfg, proxy, p.metrics, p.logger.With("wallet_id", rec.ID))
	if err != nil {
		return nil, err
	}
	p.clients[proxy] = c
	return c, nil
}

// Checked in order; providers before the generic cluster names.
var endpointProviders = []struct{ needle, label string }{
	{"helius", "helius"},
	{"quiknode", "quiknode"},
	{"quicknode", "quiknode"},
	{"alchemy", "alchemy"},
	{"triton", "triton"},
	{"rpcpool", "rpcpool"},
	{"mainnet", "mainnet"},
	{"devnet", "devnet"},
	{"testnet", "testnet"},
}

// endpointLabel extracts a short identifier from the Solana RPC URL for
// metrics labeling. API keys in the path or query never reach a label.
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()
	for _, p := range endpointProviders {
		if strings.Contains(host, p.needle) {
			return p.label
		}
	}
	return host
}
