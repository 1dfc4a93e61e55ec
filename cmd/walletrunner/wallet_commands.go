package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/walletrunner/service/db"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/brojonat/walletrunner/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the wallets table if it does not exist",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()
			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "wallets table ready")
			return nil
		},
	}
}

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List stored wallets",
		Aliases: []string{"ls"},
		Description: `Lists wallets without their private keys. --jq keeps the wallets for which
every filter is truthy, e.g.

  walletrunner wallets list --jq '.stats.completed | not' --jq '.proxy != null'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter evaluated against each wallet (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			records, err := store.ListWallets(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			views, err := filterWallets(records, filters)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(views)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tADDRESS\tPROXY\tDEPOSIT\tTRADES\tVOLUME\tRANK\tCOMPLETED")
			for _, v := range views {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%t\n",
					v.ID,
					v.Address,
					optional(v.Proxy),
					optional(v.DepositAddress),
					v.Stats.TotalTrades,
					v.Stats.VolumeUSD,
					v.Stats.Rank,
					v.Stats.Completed,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d wallets\n", len(views))
			return nil
		},
	}
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one wallet",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			rec, err := store.GetWalletByAddress(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}
			v := newWalletView(rec)
			if c.Bool("json") {
				return outputJSON(v)
			}

			fmt.Printf("ID:          %d\n", v.ID)
			fmt.Printf("Address:     %s\n", v.Address)
			fmt.Printf("Proxy:       %s\n", optional(v.Proxy))
			fmt.Printf("Deposit:     %s\n", optional(v.DepositAddress))
			fmt.Printf("Invite Code: %s\n", v.InviteCode)
			fmt.Printf("Trades:      %d\n", v.Stats.TotalTrades)
			fmt.Printf("Volume USD:  %d\n", v.Stats.VolumeUSD)
			fmt.Printf("Edge USD:    %.2f\n", v.Stats.TotalEdgeUSD)
			fmt.Printf("Rank:        %s\n", v.Stats.Rank)
			fmt.Printf("Completed:   %t\n", v.Stats.Completed)
			fmt.Printf("Created:     %s\n", v.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:     %s\n", v.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func importWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import wallets from a CSV file",
		ArgsUsage: "<file|->",
		Description: `Each line holds: private_key[,proxy[,deposit_address[,invite_code]]].
Keys may be base58, a [1,2,...] byte list (quoted or not), or an encrypted token
opened with --encryption-keys. Lines starting with # are skipped. Wallets whose
address is already stored are left untouched.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: file path or -")
			}
			var in io.Reader = os.Stdin
			if path := c.Args().First(); path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			keys, _, err := keyParser(c)
			if err != nil {
				return err
			}
			params, err := parseImport(in, keys)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			inserted, err := store.ImportWallets(c.Context, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "imported %d of %d wallets\n", inserted, len(params))
			return nil
		},
	}
}

func generateWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate fresh keypairs and store them",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of wallets to create",
				Value:   1,
			},
			&cli.StringFlag{
				Name:  "proxy",
				Usage: "Proxy assigned to every generated wallet",
			},
			&cli.BoolFlag{
				Name:  "encrypt",
				Usage: "Store keys as Fernet tokens (requires --encryption-keys)",
			},
		},
		Action: func(c *cli.Context) error {
			n := c.Int("count")
			if n < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			var proxy *string
			if p := c.String("proxy"); p != "" {
				if _, err := solana.ParseProxy(p); err != nil {
					return err
				}
				proxy = &p
			}

			keys, sealer, err := keyParser(c)
			if err != nil {
				return err
			}
			if c.Bool("encrypt") && sealer == nil {
				return fmt.Errorf("--encrypt requires --encryption-keys")
			}
			params := make([]db.CreateWalletParams, 0, n)
			for i := 0; i < n; i++ {
				kp, err := keys.Generate()
				if err != nil {
					return err
				}
				secret := kp.PrivateKey().String()
				if c.Bool("encrypt") {
					if secret, err = sealer.Encrypt(secret); err != nil {
						return err
					}
				}
				params = append(params, db.CreateWalletParams{
					Address:    kp.PublicKey().String(),
					PrivateKey: secret,
					Proxy:      proxy,
				})
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if _, err := store.ImportWallets(c.Context, params); err != nil {
				return err
			}
			for _, p := range params {
				fmt.Println(p.Address)
			}
			return nil
		},
	}
}

func setDepositCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-deposit",
		Usage:     "Set the exchange deposit address a wallet sweeps to",
		ArgsUsage: "<address> <deposit_address>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Remove the deposit address instead",
			},
		},
		Action: func(c *cli.Context) error {
			remove := c.Bool("clear")
			if (remove && c.NArg() != 1) || (!remove && c.NArg() != 2) {
				return fmt.Errorf("usage: set-deposit <address> <deposit_address> | set-deposit --clear <address>")
			}
			var deposit *string
			if !remove {
				d := c.Args().Get(1)
				if _, err := solanago.PublicKeyFromBase58(d); err != nil {
					return fmt.Errorf("invalid deposit address %q: %w", d, err)
				}
				deposit = &d
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			rec, err := store.GetWalletByAddress(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return store.SetDepositAddress(c.Context, rec.ID, deposit)
		},
	}
}

func deleteWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove a wallet from the store",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()
			return store.DeleteWallet(c.Context, c.Args().First())
		},
	}
}

// walletView is the printable form of a wallet; it never carries the key.
type walletView struct {
	ID             int64     `json:"id"`
	Address        string    `json:"address"`
	Proxy          *string   `json:"proxy"`
	DepositAddress *string   `json:"deposit_address"`
	InviteCode     string    `json:"invite_code"`
	Stats          statsView `json:"stats"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type statsView struct {
	TotalTrades  int64   `json:"total_trades"`
	VolumeUSD    int64   `json:"volume_usd"`
	TotalEdgeUSD float64 `json:"total_edge_usd"`
	Rank         string  `json:"rank"`
	Completed    bool    `json:"completed"`
}

func newWalletView(r *wallet.Record) walletView {
	return walletView{
		ID:             r.ID,
		Address:        r.Address,
		Proxy:          redactProxy(r.Proxy),
		DepositAddress: r.DepositAddress,
		InviteCode:     r.InviteCode,
		Stats: statsView{
			TotalTrades:  r.Stats.TotalTrades,
			VolumeUSD:    r.Stats.VolumeUSD,
			TotalEdgeUSD: r.Stats.TotalEdgeUSD,
			Rank:         r.Stats.Rank,
			Completed:    r.Stats.Completed,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// redactProxy hides proxy credentials; unparsable values are dropped.
func redactProxy(p *string) *string {
	if p == nil {
		return nil
	}
	u, err := solana.ParseProxy(*p)
	if err != nil {
		return nil
	}
	s := u.Redacted()
	return &s
}

func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// filterWallets keeps the wallets for which every filter yields a truthy
// first result.
func filterWallets(records []*wallet.Record, filters []*gojq.Code) ([]walletView, error) {
	views := make([]walletView, 0, len(records))
	for _, r := range records {
		v := newWalletView(r)
		ok, err := matchesAll(v, filters)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", r.ID, err)
		}
		if ok {
			views = append(views, v)
		}
	}
	return views, nil
}

func matchesAll(v walletView, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	// gojq works on plain JSON values, not structs
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, err
	}
	for _, code := range filters {
		iter := code.Run(doc)
		out, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := out.(error); isErr {
			return false, err
		}
		if !isTruthy(out) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy follows jq: only false and null are falsy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	}
	return true
}

// parseImport reads private_key[,proxy[,deposit_address[,invite_code]]]
// lines and derives each wallet's address from its key.
func parseImport(in io.Reader, keys *solana.KeyParser) ([]db.CreateWalletParams, error) {
	quoted, err := quoteByteLists(in)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	r := csv.NewReader(quoted)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var params []db.CreateWalletParams
	seen := map[string]bool{}
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read import: %w", err)
		}
		line, _ := r.FieldPos(0)
		if len(fields) > 4 {
			return nil, fmt.Errorf("line %d: expected at most 4 fields, got %d", line, len(fields))
		}
		key := strings.TrimSpace(fields[0])
		if key == "" {
			continue
		}
		kp, err := keys.ParseString(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := db.CreateWalletParams{Address: kp.PublicKey().String(), PrivateKey: key}
		if seen[p.Address] {
			return nil, fmt.Errorf("line %d: duplicate wallet %s", line, p.Address)
		}
		seen[p.Address] = true

		if v := field(fields, 1); v != "" {
			if _, err := solana.ParseProxy(v); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			p.Proxy = &v
		}
		if v := field(fields, 2); v != "" {
			if _, err := solanago.PublicKeyFromBase58(v); err != nil {
				return nil, fmt.Errorf("line %d: invalid deposit address: %w", line, err)
			}
			p.DepositAddress = &v
		}
		p.InviteCode = field(fields, 3)
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no wallets found in import")
	}
	return params, nil
}

// quoteByteLists quotes a leading unquoted [..] key so its commas are not
// taken as field separators.
func quoteByteLists(in io.Reader) (io.Reader, error) {
	var buf bytes.Buffer
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "[") {
			if end := strings.IndexByte(trimmed, ']'); end > 0 {
				line = `"` + trimmed[:end+1] + `"` + trimmed[end+1:]
			}
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// keyParser builds the key parser from --encryption-keys. The returned
// decrypter is nil when no keys are configured.
func keyParser(c *cli.Context) (*solana.KeyParser, *solana.FernetDecrypter, error) {
	logger := setupLogger(c.String("log-level"))
	encKeys := c.StringSlice("encryption-keys")
	if len(encKeys) == 0 {
		return solana.NewKeyParser(nil, logger), nil, nil
	}
	d, err := solana.NewFernetDecrypter(encKeys...)
	if err != nil {
		return nil, nil, err
	}
	return solana.NewKeyParser(d, logger), d, nil
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func optional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}

// getStore connects to the database named by --database-url / DATABASE_URL.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
