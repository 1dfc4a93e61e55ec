package main

import (
	"fmt"
	"strings"

	"github.com/brojonat/walletrunner/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

func rpcFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint(s), comma separated",
			EnvVars: []string{"SOLANA_RPC_URL"},
			Value:   rpc.MainNetBeta_RPC,
		},
		&cli.StringFlag{
			Name:    "proxy",
			Usage:   "HTTP proxy for RPC requests",
			EnvVars: []string{"RPC_PROXY"},
		},
	}
}

func diagClient(c *cli.Context) (*solana.Client, error) {
	var endpoints []string
	for _, e := range strings.Split(c.String("rpc-url"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	endpoint, err := solana.SelectRandomEndpoint(endpoints)
	if err != nil {
		return nil, err
	}
	rpcClient, err := solana.NewRPCClient(endpoint, solana.RPCClientOptions{Proxy: c.String("proxy")})
	if err != nil {
		return nil, err
	}
	logger := setupLogger(c.String("log-level"))
	return solana.NewClient(rpcClient, endpointLabel(endpoint), nil, logger, solana.Options{}), nil
}

// decodeTransaction accepts a base64 or base58 serialized transaction.
func decodeTransaction(s string) (*solanago.Transaction, error) {
	s = strings.TrimSpace(s)
	tx, err := solanago.TransactionFromBase64(s)
	if err == nil {
		return tx, nil
	}
	tx, err58 := solanago.TransactionFromBase58(s)
	if err58 == nil {
		return tx, nil
	}
	return nil, fmt.Errorf("decode transaction: base64: %v; base58: %v", err, err58)
}

func txDiagnosticsCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Inspect a serialized transaction's fees, transfers and blockhash validity",
		ArgsUsage: "<base64|base58 transaction>",
		Flags:     rpcFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: serialized transaction")
			}
			tx, err := decodeTransaction(c.Args().First())
			if err != nil {
				return err
			}
			client, err := diagClient(c)
			if err != nil {
				return err
			}
			d, err := client.BlockhashDiagnostics(c.Context, tx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(d)
			}
			fmt.Printf("Compute limit:   %d", d.EffectiveLimit)
			if d.Budget.ComputeUnitLimit == 0 {
				fmt.Print(" (default)")
			}
			fmt.Println()
			fmt.Printf("Price:           %d µlamports/CU\n", d.Budget.MicroLamportPrice)
			fmt.Printf("Max fee:         %s SOL\n", d.Budget.MaxFee)
			for i, t := range d.Transfers {
				fmt.Printf("Transfer %d:      %s %s %s -> %s\n", i+1, t.Kind, t.Human(), t.Source, t.Destination)
			}
			fmt.Printf("Tx blockhash:    %s\n", d.TxBlockhash)
			fmt.Printf("Latest:          %s (valid until height %d)\n", d.LatestBlockhash.Hash, d.LatestBlockhash.LastValidBlockHeight)
			fmt.Printf("Current height:  %d\n", d.CurrentBlockHeight)
			if d.TxBlockhashValid == nil {
				fmt.Println("Blockhash valid: unknown")
			} else {
				fmt.Printf("Blockhash valid: %t\n", *d.TxBlockhashValid)
			}
			return nil
		},
	}
}

func feeCommand() *cli.Command {
	return &cli.Command{
		Name:  "fee",
		Usage: "Compute the priority fee for a compute unit limit and price",
		Description: `Example:
  walletrunner diag fee --limit 200000 --price 5000   # 1000 lamports`,
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "limit",
				Usage: "Compute unit limit",
				Value: uint64(solana.DefaultComputeUnitLimit),
			},
			&cli.Uint64Flag{
				Name:     "price",
				Usage:    "Price in micro-lamports per compute unit",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			limit := c.Uint64("limit")
			if limit > uint64(^uint32(0)) {
				return fmt.Errorf("--limit %d exceeds u32", limit)
			}
			price := c.Uint64("price")
			fee, err := solana.PriorityFeeLamports(uint32(limit), price)
			if err != nil {
				return err
			}
			upper, err := solana.PriorityFeeUpperBound(uint32(limit), price)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(map[string]uint64{
					"limit":              limit,
					"micro_lamports":     price,
					"fee_lamports":       fee,
					"fee_upper_lamports": upper,
				})
			}
			fmt.Printf("fee: %d lamports (%s SOL), upper bound %d lamports\n", fee, solana.Lamports(fee), upper)
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Read a wallet's balance of SOL or a known token",
		ArgsUsage: "<address>",
		Flags: append(rpcFlags(), &cli.StringFlag{
			Name:  "token",
			Usage: "Token symbol (SOL, USDC, USDT)",
			Value: "SOL",
		}),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			owner, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			token, err := solana.TokenBySymbol(c.String("token"))
			if err != nil {
				return err
			}
			client, err := diagClient(c)
			if err != nil {
				return err
			}
			bal, err := client.Balance(c.Context, owner, token)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(map[string]any{
					"address": owner.String(),
					"token":   token.Symbol,
					"raw":     bal.Raw(),
					"amount":  bal.Human().String(),
				})
			}
			fmt.Printf("%s %s\n", bal, token.Symbol)
			return nil
		},
	}
}
