package riskstore

// Times are stored as UTC unix nanoseconds so range queries compare numbers.
const schema = `
CREATE TABLE IF NOT EXISTS stop_orders (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price REAL NOT NULL,
	stop_price REAL NOT NULL,
	quantity REAL NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	triggered_at INTEGER,
	exit_price REAL,
	realized_pnl REAL,
	cancelled_at INTEGER,
	CHECK (status <> 'TRIGGERED' OR (triggered_at IS NOT NULL AND realized_pnl IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_stop_orders_symbol_status ON stop_orders(symbol, status);
CREATE INDEX IF NOT EXISTS idx_stop_orders_triggered_at ON stop_orders(triggered_at);

CREATE TABLE IF NOT EXISTS breaker_events (
	id TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	reason TEXT NOT NULL,
	daily_pnl REAL NOT NULL,
	loss_percentage REAL NOT NULL,
	triggered_at INTEGER NOT NULL,
	reset_at INTEGER,
	reset_reason TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_breaker_events_open_day ON breaker_events(day) WHERE reset_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_breaker_events_triggered_at ON breaker_events(triggered_at);
`
