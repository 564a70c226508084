package storage

// schema creates the warehouse tables. Trades and legs are append/update
// only; snapshots and analyses are append only.
const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id        TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	strategy_type   TEXT NOT NULL,
	expiration_date TEXT NOT NULL,
	entry_time      DATETIME NOT NULL,
	entry_price     REAL NOT NULL,
	status          TEXT NOT NULL,
	pnl             REAL NOT NULL DEFAULT 0,
	exit_time       DATETIME,
	exit_price      REAL,
	notes           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trade_legs (
	leg_id      TEXT PRIMARY KEY,
	trade_id    TEXT NOT NULL REFERENCES trades(trade_id),
	strike      REAL NOT NULL,
	option_type TEXT NOT NULL,
	direction   TEXT NOT NULL,
	entry_price REAL NOT NULL,
	status      TEXT NOT NULL,
	exit_price  REAL,
	pnl         REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS live_trade_pnl (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id          TEXT NOT NULL,
	leg_id            TEXT NOT NULL,
	timestamp         DATETIME NOT NULL,
	current_price     REAL NOT NULL,
	theoretical_pnl   REAL NOT NULL,
	underlying_price  REAL NOT NULL,
	underlying_symbol TEXT NOT NULL,
	price_type        TEXT NOT NULL,
	status            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_pl_analysis (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id           TEXT NOT NULL,
	timestamp          DATETIME NOT NULL,
	max_profit         REAL NOT NULL,
	max_loss           REAL NOT NULL,
	breakeven_lower    REAL,
	breakeven_upper    REAL,
	probability_profit REAL NOT NULL,
	delta              REAL NOT NULL,
	theta              REAL NOT NULL,
	notes              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS underlying_snapshots (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol    TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	last      REAL NOT NULL,
	open      REAL NOT NULL,
	high      REAL NOT NULL,
	low       REAL NOT NULL,
	close     REAL NOT NULL,
	volume    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_legs_trade ON trade_legs(trade_id);
CREATE INDEX IF NOT EXISTS idx_legs_status ON trade_legs(status);
CREATE INDEX IF NOT EXISTS idx_live_pnl_trade ON live_trade_pnl(trade_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_analysis_trade ON trade_pl_analysis(trade_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_underlying_symbol ON underlying_snapshots(symbol, timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, status);
`
