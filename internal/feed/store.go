// Package feed 提供日行情的存取与按日回放。
package feed

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"tradesim/internal/market"
)

// QuoteStore 管理 daily_quotes 表：每个 (date, symbol) 一行行情。
type QuoteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func OpenQuoteStore(path string) (*QuoteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("quote store 路径不能为空")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureQuoteSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &QuoteStore{db: db, path: path}, nil
}

func (s *QuoteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureQuoteSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_quotes (
			date TEXT NOT NULL,
			symbol TEXT NOT NULL,
			close REAL NOT NULL,
			open REAL NOT NULL,
			vwap REAL NOT NULL,
			adjfactor REAL NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			limit_hit INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(date, symbol)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_date ON daily_quotes(date);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertQuotes 批量写入某日行情，主键冲突时覆盖旧行。
func (s *QuoteStore) InsertQuotes(ctx context.Context, date string, quotes []market.Quote) error {
	if date == "" {
		return fmt.Errorf("date 不能为空")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_quotes
			(date, symbol, close, open, vwap, adjfactor, status, limit_hit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, q := range quotes {
		limitHit := 0
		if q.LimitHit {
			limitHit = 1
		}
		if _, err := stmt.ExecContext(ctx, date, q.Symbol, q.Close, q.Open, q.VWAP,
			q.AdjFactor, string(q.Status), limitHit); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Dates 返回 [start, end] 范围内存在行情的交易日，升序。
// start/end 为空表示不设界。
func (s *QuoteStore) Dates(ctx context.Context, start, end string) ([]string, error) {
	query := `SELECT DISTINCT date FROM daily_quotes`
	var args []interface{}
	switch {
	case start != "" && end != "":
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, start, end)
	case start != "":
		query += ` WHERE date >= ?`
		args = append(args, start)
	case end != "":
		query += ` WHERE date <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY date ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// QuotesFor 返回某个交易日的全部行情行。
func (s *QuoteStore) QuotesFor(ctx context.Context, date string) ([]market.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, close, open, vwap, adjfactor, status, limit_hit
		FROM daily_quotes
		WHERE date = ?
		ORDER BY symbol ASC`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Quote
	for rows.Next() {
		var q market.Quote
		var status string
		var limitHit int
		if err := rows.Scan(&q.Symbol, &q.Close, &q.Open, &q.VWAP, &q.AdjFactor, &status, &limitHit); err != nil {
			return nil, err
		}
		q.Status = market.TradeStatus(status)
		q.LimitHit = limitHit != 0
		out = append(out, q)
	}
	return out, rows.Err()
}
