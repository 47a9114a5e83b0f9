package riskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ risk.Store = (*SQLiteStore)(nil)

const orderColumns = `id, symbol, side, entry_price, stop_price, quantity, status,
	created_at, triggered_at, exit_price, realized_pnl, cancelled_at`

const eventColumns = `id, day, reason, daily_pnl, loss_percentage, triggered_at, reset_at, reset_reason`

// SQLiteStore is a risk.Store backed by a SQLite database file. The handle
// pools connections internally; every method acquires and releases its own.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistence("open", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, persistence("migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertOrder adds a new order.
func (s *SQLiteStore) InsertOrder(ctx context.Context, o risk.StopOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stop_orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), o.EntryPrice, o.StopPrice, o.Quantity, string(o.Status),
		nanos(o.CreatedAt), nullNanos(o.TriggeredAt), nullFloat(o.TriggeredAt, o.ExitPrice),
		nullFloat(o.TriggeredAt, o.RealizedPnL), nullNanos(o.CancelledAt),
	)
	if err != nil {
		return persistence("insert order", err)
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (risk.StopOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM stop_orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return risk.StopOrder{}, core.WrapError(core.ErrNotFound, fmt.Errorf("order %s", id))
		}
		return risk.StopOrder{}, persistence("get order", err)
	}
	return o, nil
}

// ListOrders returns orders matching the filter, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, filter risk.OrderFilter) ([]risk.StopOrder, error) {
	var where []string
	var args []any
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM stop_orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list orders", err)
	}
	defer rows.Close()

	out := make([]risk.StopOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, persistence("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list orders", err)
	}
	return out, nil
}

// ActiveBySymbol returns ACTIVE orders for a symbol.
func (s *SQLiteStore) ActiveBySymbol(ctx context.Context, symbol string) ([]risk.StopOrder, error) {
	return s.ListOrders(ctx, risk.OrderFilter{Symbol: symbol, Status: risk.StatusActive})
}

// ListActive returns every ACTIVE order.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]risk.StopOrder, error) {
	return s.ListOrders(ctx, risk.OrderFilter{Status: risk.StatusActive})
}

// MarkTriggered records the trigger and its P&L in a single conditional update.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id string, exitPrice, pnl float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stop_orders
		SET status = ?, triggered_at = ?, exit_price = ?, realized_pnl = ?
		WHERE id = ? AND status = ?`,
		string(risk.StatusTriggered), nanos(at), exitPrice, pnl, id, string(risk.StatusActive),
	)
	if err != nil {
		return persistence("mark triggered", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkCancelled moves an ACTIVE order to CANCELLED.
func (s *SQLiteStore) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stop_orders SET status = ?, cancelled_at = ?
		WHERE id = ? AND status = ?`,
		string(risk.StatusCancelled), nanos(at), id, string(risk.StatusActive),
	)
	if err != nil {
		return persistence("mark cancelled", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition explains a conditional update that touched no row
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("rows affected", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM stop_orders WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WrapError(core.ErrNotFound, fmt.Errorf("order %s", id))
	}
	if err != nil {
		return persistence("get status", err)
	}
	return core.WrapError(core.ErrOrderNotActive, fmt.Errorf("order %s is %s", id, status))
}

// DailyRealizedPnL sums realized P&L of orders triggered in [start, end).
func (s *SQLiteStore) DailyRealizedPnL(ctx context.Context, start, end time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM stop_orders
		WHERE status = ? AND triggered_at >= ? AND triggered_at < ?`,
		string(risk.StatusTriggered), nanos(start), nanos(end),
	).Scan(&total)
	if err != nil {
		return 0, persistence("daily pnl", err)
	}
	return total, nil
}

// InsertBreakerEvent appends an event unless the day already has an open one.
func (s *SQLiteStore) InsertBreakerEvent(ctx context.Context, e risk.BreakerEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM breaker_events WHERE day = ? AND reset_at IS NULL`, e.Day).Scan(&existing)
	switch {
	case err == nil:
		return core.WrapError(core.ErrBreakerOpen, fmt.Errorf("day %s already has open event %s", e.Day, existing))
	case !errors.Is(err, sql.ErrNoRows):
		return persistence("check open event", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO breaker_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Day, e.Reason, e.DailyPnL, e.LossPercentage,
		nanos(e.TriggeredAt), nullNanos(e.ResetAt), e.ResetReason,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.WrapError(core.ErrBreakerOpen, err)
		}
		return persistence("insert breaker event", err)
	}
	if err := tx.Commit(); err != nil {
		return persistence("commit", err)
	}
	return nil
}

// OpenBreakerEvent returns the unresolved event for day, or nil.
func (s *SQLiteStore) OpenBreakerEvent(ctx context.Context, day string) (*risk.BreakerEvent, error) {
	return s.queryEvent(ctx, "open breaker event",
		`SELECT `+eventColumns+` FROM breaker_events WHERE day = ? AND reset_at IS NULL`, day)
}

// LatestOpenBreakerEvent returns the most recent unresolved event, or nil.
func (s *SQLiteStore) LatestOpenBreakerEvent(ctx context.Context) (*risk.BreakerEvent, error) {
	return s.queryEvent(ctx, "latest open breaker event",
		`SELECT `+eventColumns+` FROM breaker_events WHERE reset_at IS NULL
		ORDER BY triggered_at DESC LIMIT 1`)
}

func (s *SQLiteStore) queryEvent(ctx context.Context, op, query string, args ...any) (*risk.BreakerEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return &e, nil
}

// ResolveBreakerEvent stamps the reset time on an open event.
func (s *SQLiteStore) ResolveBreakerEvent(ctx context.Context, id string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE breaker_events SET reset_at = ?, reset_reason = ?
		WHERE id = ? AND reset_at IS NULL`,
		nanos(at), reason, id,
	)
	if err != nil {
		return persistence("resolve breaker event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("rows affected", err)
	}
	if n == 0 {
		return core.WrapError(core.ErrNotFound, fmt.Errorf("open breaker event %s", id))
	}
	return nil
}

// ListBreakerEvents returns events newest first.
func (s *SQLiteStore) ListBreakerEvents(ctx context.Context, limit int) ([]risk.BreakerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM breaker_events ORDER BY triggered_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list breaker events", err)
	}
	defer rows.Close()

	out := make([]risk.BreakerEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, persistence("scan breaker event", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list breaker events", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (risk.StopOrder, error) {
	var (
		o                    risk.StopOrder
		side, status         string
		created              int64
		triggered, cancelled sql.NullInt64
		exitPrice, realized  sql.NullFloat64
	)
	err := row.Scan(&o.ID, &o.Symbol, &side, &o.EntryPrice, &o.StopPrice, &o.Quantity, &status,
		&created, &triggered, &exitPrice, &realized, &cancelled)
	if err != nil {
		return risk.StopOrder{}, err
	}
	o.Side = core.Side(side)
	o.Status = risk.OrderStatus(status)
	o.CreatedAt = fromNanos(created)
	o.TriggeredAt = fromNullNanos(triggered)
	o.CancelledAt = fromNullNanos(cancelled)
	o.ExitPrice = exitPrice.Float64
	o.RealizedPnL = realized.Float64
	return o, nil
}

func scanEvent(row scanner) (risk.BreakerEvent, error) {
	var (
		e         risk.BreakerEvent
		triggered int64
		reset     sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Day, &e.Reason, &e.DailyPnL, &e.LossPercentage, &triggered, &reset, &e.ResetReason)
	if err != nil {
		return risk.BreakerEvent{}, err
	}
	e.TriggeredAt = fromNanos(triggered)
	e.ResetAt = fromNullNanos(reset)
	return e, nil
}

func persistence(op string, err error) error {
	return core.WrapError(core.ErrPersistenceFailure, fmt.Errorf("%s: %w", op, err))
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

// nullFloat stores v only when the timestamp it belongs to is set
func nullFloat(t *time.Time, v float64) sql.NullFloat64 {
	if t == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
