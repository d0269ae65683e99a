package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/trading_agent_lab/internal/domain"
)

// SQLiteStore persists runs, their metrics and mirrored order records. Each
// record is its own statement; a crash between the ledger append and a DB
// write leaves the ledger authoritative.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			ts_start TEXT NOT NULL,
			ts_end TEXT NOT NULL,
			commit_sha TEXT,
			config_hash TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_agent_ts ON runs(agent_id, ts_end);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL,
			PRIMARY KEY (run_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			price REAL NOT NULL,
			broker TEXT NOT NULL,
			broker_order_id TEXT,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_agent_ts ON orders(agent_id, ts);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// RecordRun inserts the run row and then each metric independently; no
// cross-record atomicity is guaranteed or required.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *domain.RunRecord, metrics []domain.MetricRecord) error {
	query := `INSERT OR REPLACE INTO runs (id, agent_id, mode, ts_start, ts_end, commit_sha, config_hash)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.AgentID, run.Mode, run.TsStart, run.TsEnd,
		nullable(run.CommitSHA), nullable(run.ConfigHash))
	if err != nil {
		return err
	}
	for _, m := range metrics {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO metrics (run_id, name, value) VALUES (?, ?, ?)`,
			m.RunID, m.Name, m.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) RecordOrder(ctx context.Context, order *domain.OrderRecord) error {
	query := `INSERT INTO orders (id, ts, agent_id, symbol, side, qty, price, broker, broker_order_id, status)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.Ts, order.AgentID, order.Symbol, string(order.Side),
		order.Qty, order.Price, order.Broker, nullable(order.BrokerOrderID), order.Status)
	return err
}

func (s *SQLiteStore) FetchRunsSince(ctx context.Context, sinceISO string) ([]*domain.RunRecord, error) {
	query := `SELECT id, agent_id, mode, ts_start, ts_end, coalesce(commit_sha, ''), coalesce(config_hash, '')
			  FROM runs WHERE ts_end >= ? ORDER BY ts_end`
	rows, err := s.db.QueryContext(ctx, query, sinceISO)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Mode, &r.TsStart, &r.TsEnd, &r.CommitSHA, &r.ConfigHash); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) FetchMetricsForRuns(ctx context.Context, runIDs []string) ([]*domain.MetricRecord, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(runIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT run_id, name, value FROM metrics WHERE run_id IN (%s)`, placeholders)
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*domain.MetricRecord
	for rows.Next() {
		var m domain.MetricRecord
		var value sql.NullFloat64
		if err := rows.Scan(&m.RunID, &m.Name, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			m.Value = &v
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// TailOrders returns the most recent order records, newest first.
func (s *SQLiteStore) TailOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	query := `SELECT id, ts, agent_id, symbol, side, qty, price, broker, coalesce(broker_order_id, ''), status
			  FROM orders ORDER BY ts DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.OrderRecord
	for rows.Next() {
		var o domain.OrderRecord
		var side string
		if err := rows.Scan(&o.ID, &o.Ts, &o.AgentID, &o.Symbol, &side, &o.Qty, &o.Price, &o.Broker, &o.BrokerOrderID, &o.Status); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
