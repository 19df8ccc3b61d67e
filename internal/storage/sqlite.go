package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"solana-tx-tracker/internal/trackerr"
)

// SQLiteStore is the default Store implementation. Transaction inserts
// and wallet-token merges are the hot writes; reads are cheap enough on
// SQLite + WAL that no in-process cache sits in front of them (the core
// keeps only its in-memory session map on top, see internal/poolmonitor;
// internal/registry passes every call through to the store).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, trackerr.New(trackerr.StoreFailure, "storage.open", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, trackerr.New(trackerr.StoreFailure, "storage.migrate", err)
	}

	log.Info().Str("path", path).Msg("storage initialized")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveTransaction(ctx context.Context, rec TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(signature, platform, type, mint_in, mint_out, amount_in, amount_out,
			 fee_payer, block_number, block_timestamp, market_cap, total_supply, price_sol, price_usd, dev_still_holding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO NOTHING`,
		rec.Signature, rec.Platform, rec.Type, rec.MintIn, rec.MintOut, rec.AmountIn, rec.AmountOut,
		rec.FeePayer, rec.BlockNumber, rec.BlockTimestamp,
		rec.MarketCap, rec.TotalSupply, rec.PriceSol, rec.PriceUsd, rec.DevStillHolding)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SaveTransaction", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTransactionDevHolding(ctx context.Context, signature string, holding bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET dev_still_holding = ? WHERE signature = ?`, holding, signature)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.UpdateTransactionDevHolding", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTransactionMarketCap(ctx context.Context, signature string, marketCap, totalSupply, priceSol, priceUsd *float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET market_cap = ?, total_supply = ?, price_sol = ?, price_usd = ? WHERE signature = ?`,
		marketCap, totalSupply, priceSol, priceUsd, signature)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.UpdateTransactionMarketCap", err)
	}
	return nil
}

// SaveWalletTokenPair is the write-once merge: first_buy_* / first_sell_*
// columns are only ever set by an UPDATE guarded by an IS NULL check, so
// the first merge of each kind to commit wins and later merges never
// overwrite it, even when they carry an earlier timestamp (spec §3, §4.5).
func (s *SQLiteStore) SaveWalletTokenPair(ctx context.Context, m WalletTokenMerge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SaveWalletTokenPair.begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_token_pairs (wallet, token) VALUES (?, ?)
		ON CONFLICT(wallet, token) DO NOTHING`, m.Wallet, m.Token)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SaveWalletTokenPair.insert", err)
	}

	switch m.Kind {
	case MergeBuy:
		_, err = tx.ExecContext(ctx, `
			UPDATE wallet_token_pairs SET
				first_buy_timestamp = COALESCE(first_buy_timestamp, ?),
				first_buy_tx = CASE WHEN first_buy_timestamp IS NULL THEN ? ELSE first_buy_tx END,
				first_buy_market_cap = CASE WHEN first_buy_timestamp IS NULL THEN ? ELSE first_buy_market_cap END,
				open_position_count_first_buy = CASE WHEN first_buy_timestamp IS NULL THEN ? ELSE open_position_count_first_buy END,
				buy_count = buy_count + 1
			WHERE wallet = ? AND token = ?`,
			m.Timestamp, m.TxSignature, m.MarketCap, m.OpenPositionCount, m.Wallet, m.Token)
	case MergeSell:
		_, err = tx.ExecContext(ctx, `
			UPDATE wallet_token_pairs SET
				first_sell_timestamp = COALESCE(first_sell_timestamp, ?),
				first_sell_tx = CASE WHEN first_sell_timestamp IS NULL THEN ? ELSE first_sell_tx END,
				first_sell_market_cap = CASE WHEN first_sell_timestamp IS NULL THEN ? ELSE first_sell_market_cap END,
				sell_count = sell_count + 1
			WHERE wallet = ? AND token = ?`,
			m.Timestamp, m.TxSignature, m.MarketCap, m.Wallet, m.Token)
	default:
		return trackerr.New(trackerr.StoreFailure, "storage.SaveWalletTokenPair", fmt.Errorf("unknown merge kind %q", m.Kind))
	}
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SaveWalletTokenPair.update", err)
	}

	if err := tx.Commit(); err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SaveWalletTokenPair.commit", err)
	}
	return nil
}

func (s *SQLiteStore) IsFirstBuy(ctx context.Context, wallet, token string) (bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT first_buy_timestamp FROM wallet_token_pairs WHERE wallet = ? AND token = ?`, wallet, token).Scan(&ts)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, trackerr.New(trackerr.StoreFailure, "storage.IsFirstBuy", err)
	}
	return !ts.Valid, nil
}

func (s *SQLiteStore) IsFirstSell(ctx context.Context, wallet, token string) (bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT first_sell_timestamp FROM wallet_token_pairs WHERE wallet = ? AND token = ?`, wallet, token).Scan(&ts)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, trackerr.New(trackerr.StoreFailure, "storage.IsFirstSell", err)
	}
	return !ts.Valid, nil
}

func (s *SQLiteStore) GetWalletTokenPair(ctx context.Context, wallet, token string) (*WalletTokenPair, error) {
	var p WalletTokenPair
	p.Wallet, p.Token = wallet, token

	var firstBuyTs, firstSellTs sql.NullInt64
	var firstBuyTx, firstSellTx sql.NullString
	var firstBuyMC, firstSellMC sql.NullFloat64
	var openPos sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT first_buy_timestamp, first_sell_timestamp, first_buy_tx, first_sell_tx,
		       first_buy_market_cap, first_sell_market_cap, open_position_count_first_buy
		FROM wallet_token_pairs WHERE wallet = ? AND token = ?`, wallet, token).
		Scan(&firstBuyTs, &firstSellTs, &firstBuyTx, &firstSellTx, &firstBuyMC, &firstSellMC, &openPos)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trackerr.New(trackerr.StoreFailure, "storage.GetWalletTokenPair", err)
	}

	if firstBuyTs.Valid {
		v := firstBuyTs.Int64
		p.FirstBuyTimestamp = &v
	}
	if firstSellTs.Valid {
		v := firstSellTs.Int64
		p.FirstSellTimestamp = &v
	}
	p.FirstBuyTx = firstBuyTx.String
	p.FirstSellTx = firstSellTx.String
	if firstBuyMC.Valid {
		v := firstBuyMC.Float64
		p.FirstBuyMarketCap = &v
	}
	if firstSellMC.Valid {
		v := firstSellMC.Float64
		p.FirstSellMarketCap = &v
	}
	if openPos.Valid {
		v := int(openPos.Int64)
		p.OpenPositionCountAtFirstBuy = &v
	}
	return &p, nil
}

func (s *SQLiteStore) GetBuyCountForToken(ctx context.Context, wallet, token string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT buy_count FROM wallet_token_pairs WHERE wallet = ? AND token = ?`, wallet, token).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, trackerr.New(trackerr.StoreFailure, "storage.GetBuyCountForToken", err)
	}
	return int(n.Int64), nil
}

func (s *SQLiteStore) GetSellCountForToken(ctx context.Context, wallet, token string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT sell_count FROM wallet_token_pairs WHERE wallet = ? AND token = ?`, wallet, token).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, trackerr.New(trackerr.StoreFailure, "storage.GetSellCountForToken", err)
	}
	return int(n.Int64), nil
}

func (s *SQLiteStore) GetLatestSolPrice(ctx context.Context) (*float64, error) {
	var price float64
	err := s.db.QueryRowContext(ctx, `SELECT latest_sol_usd FROM oracle_state WHERE id = 1`).Scan(&price)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trackerr.New(trackerr.StoreFailure, "storage.GetLatestSolPrice", err)
	}
	return &price, nil
}

func (s *SQLiteStore) SetLatestSolPrice(ctx context.Context, priceUsd float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_state (id, latest_sol_usd, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET latest_sol_usd = excluded.latest_sol_usd, updated_at = excluded.updated_at`,
		priceUsd, time.Now().Unix())
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SetLatestSolPrice", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCreatorTokenCount(ctx context.Context, token, creator string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_token_pairs (wallet, token, creator_token_count) VALUES (?, ?, ?)
		ON CONFLICT(wallet, token) DO UPDATE SET creator_token_count = excluded.creator_token_count`,
		creator, token, count)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.UpdateCreatorTokenCount", err)
	}
	return nil
}

func (s *SQLiteStore) InsertSession(ctx context.Context, key SessionKey, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_sessions (wallet, token, state, started_at)
		VALUES (?, ?, 'Active', ?)
		ON CONFLICT(wallet, token) DO NOTHING`,
		key.Wallet, key.Token, startedAt.Unix())
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.InsertSession", err)
	}
	return nil
}

func (s *SQLiteStore) SavePriceSample(ctx context.Context, key SessionKey, point PricePoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_points (wallet, token, sampled_at, slot, price_sol, price_usd, market_cap)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Wallet, key.Token, point.SampledAt.Unix(), point.Slot, point.PriceSol, point.PriceUsd, point.MarketCap)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.SavePriceSample", err)
	}
	return nil
}

func (s *SQLiteStore) FinalizeSession(ctx context.Context, key SessionKey, reason string, terminal *PricePoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.FinalizeSession.begin", err)
	}
	defer tx.Rollback()

	if terminal != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO price_points (wallet, token, sampled_at, slot, price_sol, price_usd, market_cap)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.Wallet, key.Token, terminal.SampledAt.Unix(), terminal.Slot, terminal.PriceSol, terminal.PriceUsd, terminal.MarketCap); err != nil {
			return trackerr.New(trackerr.StoreFailure, "storage.FinalizeSession.point", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE monitoring_sessions SET state = ?, final_reason = ?, finalized_at = ?
		WHERE wallet = ? AND token = ? AND finalized_at IS NULL`,
		reason, reason, time.Now().Unix(), key.Wallet, key.Token)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.FinalizeSession.update", err)
	}

	if err := tx.Commit(); err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.FinalizeSession.commit", err)
	}
	return nil
}

func (s *SQLiteStore) EnqueueTokenJob(ctx context.Context, mint string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO token_enrich_jobs (mint, queued_at, status) VALUES (?, ?, 'queued')
		ON CONFLICT(mint) DO NOTHING`, mint, time.Now().Unix())
	if err != nil {
		return false, trackerr.New(trackerr.StoreFailure, "storage.EnqueueTokenJob", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, trackerr.New(trackerr.StoreFailure, "storage.EnqueueTokenJob.rows", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) DequeueTokenJob(ctx context.Context) (string, bool, error) {
	var mint string
	err := s.db.QueryRowContext(ctx, `
		SELECT mint FROM token_enrich_jobs WHERE status = 'queued' ORDER BY queued_at ASC LIMIT 1`).Scan(&mint)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, trackerr.New(trackerr.StoreFailure, "storage.DequeueTokenJob", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE token_enrich_jobs SET status = 'in_flight' WHERE mint = ?`, mint); err != nil {
		return "", false, trackerr.New(trackerr.StoreFailure, "storage.DequeueTokenJob.mark", err)
	}
	return mint, true, nil
}

func (s *SQLiteStore) CompleteTokenJob(ctx context.Context, mint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM token_enrich_jobs WHERE mint = ?`, mint)
	if err != nil {
		return trackerr.New(trackerr.StoreFailure, "storage.CompleteTokenJob", err)
	}
	return nil
}
