package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/journal"
	_ "github.com/lib/pq"
)

// Postgres persists trades, balance history, agent state, and journal events
// in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the connection and runs the schema migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgres | open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("NewPostgres | ping: %w", err)
	}
	p := &Postgres{db: conn}
	if err := p.migrate(ctx); err != nil {
		return nil, fmt.Errorf("NewPostgres | migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			leverage DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION NOT NULL,
			position_value DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			tp1 DOUBLE PRECISION NOT NULL,
			tp2 DOUBLE PRECISION NOT NULL,
			tp3 DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			exit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			exit_reason TEXT NOT NULL DEFAULT '',
			exit_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
			realized_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			confluence DOUBLE PRECISION NOT NULL DEFAULT 0,
			stop_method TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE TABLE IF NOT EXISTS balance_history (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			balance DOUBLE PRECISION NOT NULL,
			delta DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			data JSONB
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (p *Postgres) SaveTrade(ctx context.Context, t *Trade) (int64, error) {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO trades (symbol, side, entry_price, quantity, leverage, margin,
			position_value, stop_loss, tp1, tp2, tp3, status, opened_at,
			exit_price, exit_reason, exit_fee, realized_profit, confidence, confluence, stop_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING id`,
		t.Symbol, t.Side, t.EntryPrice, t.Quantity, t.Leverage, t.Margin,
		t.PositionValue, t.StopLoss, t.TP1, t.TP2, t.TP3, t.Status, t.OpenedAt,
		t.ExitPrice, t.ExitReason, t.ExitFee, t.RealizedProfit, t.Confidence, t.Confluence, t.StopMethod,
	).Scan(&t.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to save trade for %s: %w", t.Symbol, err)
	}
	return t.ID, nil
}

func (p *Postgres) UpdateTrade(ctx context.Context, t Trade) error {
	closedAt := sql.NullTime{Time: t.ClosedAt, Valid: !t.ClosedAt.IsZero()}
	res, err := p.db.ExecContext(ctx, `
		UPDATE trades SET stop_loss=$1, status=$2, closed_at=$3, exit_price=$4,
			exit_reason=$5, exit_fee=$6, realized_profit=$7
		WHERE id=$8`,
		t.StopLoss, t.Status, closedAt, t.ExitPrice,
		t.ExitReason, t.ExitFee, t.RealizedProfit, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %d: %w", t.ID, err)
	}
	if n == 0 {
		return ErrTradeNotFound
	}
	return nil
}

const tradeColumns = `id, symbol, side, entry_price, quantity, leverage, margin,
	position_value, stop_loss, tp1, tp2, tp3, status, opened_at, closed_at,
	exit_price, exit_reason, exit_fee, realized_profit, confidence, confluence, stop_method`

func scanTrade(row interface{ Scan(...any) error }) (Trade, error) {
	var t Trade
	var closedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Symbol, &t.Side, &t.EntryPrice, &t.Quantity, &t.Leverage,
		&t.Margin, &t.PositionValue, &t.StopLoss, &t.TP1, &t.TP2, &t.TP3, &t.Status,
		&t.OpenedAt, &closedAt, &t.ExitPrice, &t.ExitReason, &t.ExitFee,
		&t.RealizedProfit, &t.Confidence, &t.Confluence, &t.StopMethod)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return t, err
}

func (p *Postgres) GetTrade(ctx context.Context, id int64) (*Trade, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id=$1`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %d: %w", id, err)
	}
	return &t, nil
}

func (p *Postgres) GetOpenTrades(ctx context.Context) ([]Trade, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status=$1 ORDER BY id`, StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to get open trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (p *Postgres) GetClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status<>$1 ORDER BY closed_at DESC`
	args := []any{StatusOpen}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendBalanceHistory(ctx context.Context, e BalanceEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO balance_history (timestamp, balance, delta, description)
		VALUES ($1,$2,$3,$4)`,
		e.Timestamp, e.Balance, e.Delta, e.Description)
	if err != nil {
		return fmt.Errorf("failed to append balance history: %w", err)
	}
	return nil
}

func (p *Postgres) GetBalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error) {
	query := `SELECT timestamp, balance, delta, description FROM balance_history ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history: %w", err)
	}
	defer rows.Close()
	var out []BalanceEntry
	for rows.Next() {
		var e BalanceEntry
		if err := rows.Scan(&e.Timestamp, &e.Balance, &e.Delta, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		out = append(out, e)
	}
	// Oldest first, matching the in-memory log order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (p *Postgres) SaveAgentState(ctx context.Context, s AgentState) error {
	kv := map[string]string{
		"balance":    strconv.FormatFloat(s.Balance, 'f', -1, 64),
		"total_pnl":  strconv.FormatFloat(s.TotalPnL, 'f', -1, 64),
		"daily_pnl":  strconv.FormatFloat(s.DailyPnL, 'f', -1, 64),
		"daily_date": s.DailyDate,
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for k, v := range kv {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_state (key, value) VALUES ($1,$2)
			ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`, k, v); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
			}
			return fmt.Errorf("failed to save agent state key %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent state: %w", err)
	}
	return nil
}

func (p *Postgres) LoadAgentState(ctx context.Context) (*AgentState, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM agent_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent state: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan agent state: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(kv) == 0 {
		return nil, nil
	}

	s := &AgentState{DailyDate: kv["daily_date"]}
	s.Balance, _ = strconv.ParseFloat(kv["balance"], 64)
	s.TotalPnL, _ = strconv.ParseFloat(kv["total_pnl"], 64)
	s.DailyPnL, _ = strconv.ParseFloat(kv["daily_pnl"], 64)
	return s, nil
}

func (p *Postgres) LogEvent(ctx context.Context, e journal.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
		e.Time, e.Type, e.Description, data); err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT time, type, description, COALESCE(data, 'null'::jsonb)
		FROM events
		WHERE ($1 = '' OR type = $1)
		  AND ($2::timestamptz IS NULL OR time >= $2)
		  AND ($3::timestamptz IS NULL OR time <= $3)
		ORDER BY id`,
		eventType, nullableTime(start), nullableTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var raw []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (p *Postgres) Close() error { return p.db.Close() }
