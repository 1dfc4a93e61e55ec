package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "walletrunner",
		Usage: "Run scripted activity across a fleet of Solana wallets",
		Description: `Loads wallets from PostgreSQL and drives them through workflows
(funding, swaps, sweeps, statistics) with bounded concurrency and randomized pacing.

Runtime settings come from the environment or a YAML file named by CONFIG_FILE.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			{
				Name:  "wallets",
				Usage: "Wallet store commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listWalletsCommand(),
					getWalletCommand(),
					importWalletsCommand(),
					generateWalletsCommand(),
					setDepositCommand(),
					deleteWalletCommand(),
				},
			},
			{
				Name:  "events",
				Usage: "Transaction event stream commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "diag",
				Usage: "Transaction and fee diagnostics",
				Subcommands: []*cli.Command{
					txDiagnosticsCommand(),
					feeCommand(),
					balanceCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringSliceFlag{
				Name:    "encryption-keys",
				Usage:   "Fernet keys that open encrypted private keys; the first encrypts new ones",
				EnvVars: []string{"KEY_ENCRYPTION_KEYS"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
