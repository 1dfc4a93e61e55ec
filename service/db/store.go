package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/walletrunner/service/metrics"
	"github.com/brojonat/walletrunner/service/wallet"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrWalletNotFound is returned when no wallet matches a lookup.
var ErrWalletNotFound = errors.New("wallet not found")

// Store provides wallet persistence on PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

var _ wallet.Store = (*Store)(nil)

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Migrate creates the wallets table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateWalletParams contains the parameters for creating a wallet.
type CreateWalletParams struct {
	Address        string
	PrivateKey     string
	Proxy          *string
	DepositAddress *string
	InviteCode     string
}

const walletColumns = `id, address, private_key, proxy, deposit_address, invite_code,
	total_trades, volume_usd, total_edge_usd, rank, completed, created_at, updated_at`

// observe records a query; not-found lookups do not count as failures.
func (s *Store) observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrWalletNotFound) {
		err = nil
	}
	s.metrics.RecordDBQuery(op, "wallets", time.Since(start).Seconds(), err)
}

// CreateWallet inserts a new wallet.
func (s *Store) CreateWallet(ctx context.Context, params CreateWalletParams) (_ *wallet.Record, err error) {
	defer s.observe("create_wallet", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, private_key, proxy, deposit_address, invite_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+walletColumns,
		params.Address, params.PrivateKey,
		pgtextFromStringPtr(params.Proxy), pgtextFromStringPtr(params.DepositAddress),
		params.InviteCode,
	)
	rec, err := scanWallet(row)
	if err != nil {
		return nil, fmt.Errorf("create wallet %s: %w", params.Address, err)
	}
	return rec, nil
}

// ImportWallets inserts wallets in one batch, skipping addresses that already
// exist. It returns the number of wallets inserted.
func (s *Store) ImportWallets(ctx context.Context, params []CreateWalletParams) (inserted int, err error) {
	defer s.observe("import_wallets", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, p := range params {
		batch.Queue(`
			INSERT INTO wallets (address, private_key, proxy, deposit_address, invite_code)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (address) DO NOTHING`,
			p.Address, p.PrivateKey, pgtextFromStringPtr(p.Proxy), pgtextFromStringPtr(p.DepositAddress), p.InviteCode,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for _, p := range params {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("import wallet %s: %w", p.Address, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListWallets returns every wallet ordered by id.
func (s *Store) ListWallets(ctx context.Context) (_ []*wallet.Record, err error) {
	defer s.observe("list_wallets", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*wallet.Record, error) {
		return scanWallet(row)
	})
}

// GetWalletByAddress returns ErrWalletNotFound when the address is unknown.
func (s *Store) GetWalletByAddress(ctx context.Context, address string) (_ *wallet.Record, err error) {
	defer s.observe("get_wallet", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address)
	rec, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}
	return rec, err
}

// UpdateWalletStats overwrites the statistics of wallet id.
func (s *Store) UpdateWalletStats(ctx context.Context, id int64, stats wallet.Stats) (err error) {
	defer s.observe("update_wallet_stats", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets
		SET total_trades = $2, volume_usd = $3, total_edge_usd = $4, rank = $5, completed = $6, updated_at = NOW()
		WHERE id = $1`,
		id, stats.TotalTrades, stats.VolumeUSD, stats.TotalEdgeUSD, stats.Rank, stats.Completed,
	)
	if err != nil {
		return fmt.Errorf("update stats of wallet %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrWalletNotFound, id)
	}
	return nil
}

// SetDepositAddress sets or clears (nil) the deposit address of wallet id.
func (s *Store) SetDepositAddress(ctx context.Context, id int64, deposit *string) (err error) {
	defer s.observe("set_deposit_address", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET deposit_address = $2, updated_at = NOW() WHERE id = $1`,
		id, pgtextFromStringPtr(deposit),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrWalletNotFound, id)
	}
	return nil
}

// DeleteWallet removes the wallet with address.
func (s *Store) DeleteWallet(ctx context.Context, address string) (err error) {
	defer s.observe("delete_wallet", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE address = $1`, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}
	return nil
}

func scanWallet(row pgx.Row) (*wallet.Record, error) {
	var (
		rec            wallet.Record
		proxy, deposit pgtype.Text
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
	)
	err := row.Scan(
		&rec.ID, &rec.Address, &rec.PrivateKey, &proxy, &deposit, &rec.InviteCode,
		&rec.Stats.TotalTrades, &rec.Stats.VolumeUSD, &rec.Stats.TotalEdgeUSD, &rec.Stats.Rank, &rec.Stats.Completed,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Proxy = stringPtrFromPgtext(proxy)
	rec.DepositAddress = stringPtrFromPgtext(deposit)
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	return &rec, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
