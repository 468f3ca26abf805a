// Package storage - postgres.go provides the Postgres implementation
// over a pgx connection pool.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pooled Postgres store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (ps *PostgresStore) SaveDailyRecord(ctx context.Context, rec *DailyRecordRow) error {
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO daily_records (run_id, date, cash, total_value, returns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, date) DO UPDATE
		SET cash = EXCLUDED.cash, total_value = EXCLUDED.total_value, returns = EXCLUDED.returns
		RETURNING id`,
		rec.RunID, rec.Date, rec.Cash, rec.TotalValue, rec.Returns,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("postgres store: save daily record: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetDailyRecords(ctx context.Context, runID string) ([]DailyRecordRow, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, run_id, date, cash, total_value, returns, created_at
		FROM daily_records
		WHERE run_id = $1
		ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query daily records: %w", err)
	}
	defer rows.Close()

	var out []DailyRecordRow
	for rows.Next() {
		var r DailyRecordRow
		if err := rows.Scan(&r.ID, &r.RunID, &r.Date, &r.Cash, &r.TotalValue, &r.Returns, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan daily record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) SaveTrade(ctx context.Context, trade *TradeRow) error {
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO trades (run_id, time, security, side, amount, price, commission, tax, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		trade.RunID, trade.Time, trade.Security, trade.Side, trade.Amount,
		trade.Price, trade.Commission, trade.Tax, trade.OrderID,
	).Scan(&trade.ID)
	if err != nil {
		return fmt.Errorf("postgres store: save trade: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetTrades(ctx context.Context, runID string) ([]TradeRow, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, run_id, time, security, side, amount, price, commission, tax, order_id, created_at
		FROM trades
		WHERE run_id = $1
		ORDER BY time`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.RunID, &t.Time, &t.Security, &t.Side, &t.Amount,
			&t.Price, &t.Commission, &t.Tax, &t.OrderID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) SaveTradeLog(ctx context.Context, entry *TradeLogRow) error {
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO trade_logs (run_id, timestamp, security, action, reason_code, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.RunID, entry.Timestamp, entry.Security, entry.Action, entry.ReasonCode, entry.Message,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("postgres store: save trade log: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

func (ps *PostgresStore) Close() {
	ps.pool.Close()
}
