package storage

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	signature         TEXT PRIMARY KEY,
	platform          TEXT NOT NULL,
	type              TEXT NOT NULL,
	mint_in           TEXT NOT NULL DEFAULT '',
	mint_out          TEXT NOT NULL DEFAULT '',
	amount_in         REAL NOT NULL DEFAULT 0,
	amount_out        REAL NOT NULL DEFAULT 0,
	fee_payer         TEXT NOT NULL DEFAULT '',
	block_number      INTEGER NOT NULL DEFAULT 0,
	block_timestamp   INTEGER NOT NULL DEFAULT 0,
	market_cap        REAL,
	total_supply      REAL,
	price_sol         REAL,
	price_usd         REAL,
	dev_still_holding INTEGER
);

CREATE TABLE IF NOT EXISTS wallet_token_pairs (
	wallet                          TEXT NOT NULL,
	token                           TEXT NOT NULL,
	first_buy_timestamp             INTEGER,
	first_sell_timestamp            INTEGER,
	first_buy_tx                    TEXT NOT NULL DEFAULT '',
	first_sell_tx                   TEXT NOT NULL DEFAULT '',
	first_buy_market_cap            REAL,
	first_sell_market_cap           REAL,
	open_position_count_first_buy   INTEGER,
	buy_count                       INTEGER NOT NULL DEFAULT 0,
	sell_count                      INTEGER NOT NULL DEFAULT 0,
	creator_token_count             INTEGER,
	PRIMARY KEY (wallet, token)
);

CREATE TABLE IF NOT EXISTS monitoring_sessions (
	wallet        TEXT NOT NULL,
	token         TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT 'Active',
	final_reason  TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	finalized_at  INTEGER,
	PRIMARY KEY (wallet, token)
);

CREATE TABLE IF NOT EXISTS price_points (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	wallet      TEXT NOT NULL,
	token       TEXT NOT NULL,
	sampled_at  INTEGER NOT NULL,
	slot        INTEGER NOT NULL,
	price_sol   REAL NOT NULL,
	price_usd   REAL NOT NULL,
	market_cap  REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_points_session ON price_points(wallet, token, sampled_at);

CREATE TABLE IF NOT EXISTS token_enrich_jobs (
	mint      TEXT PRIMARY KEY,
	queued_at INTEGER NOT NULL,
	status    TEXT NOT NULL DEFAULT 'queued'
);

CREATE TABLE IF NOT EXISTS oracle_state (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	latest_sol_usd  REAL NOT NULL,
	updated_at      INTEGER NOT NULL
);
`
