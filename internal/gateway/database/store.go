package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// 中文说明：
// 分析运行日志：每次完成的请求落一条 run 记录和若干条建议记录。
// 写入失败只记日志，不影响请求本身。

// RunRecord 一次完整分析的持久化快照。
type RunRecord struct {
	TraceID         string
	UserID          string
	Goal            string
	Narrative       string
	CreatedAt       int64 // unix ms；0 表示取当前时间
	Recommendations []RecommendationRecord
}

type RecommendationRecord struct {
	Symbol         string
	Action         string
	OriginalAction string
	Quantity       float64
	Leverage       int
	StopLoss       float64
	TakeProfit     float64
	Price          float64
	Confidence     float64
	Reason         string
}

// RunLogStore 基于 sqlite 的运行日志存储。
type RunLogStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewRunLogStore(path string) (*RunLogStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run log store: path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("run log store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("run log store: open %s: %w", path, err)
	}
	s := &RunLogStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunLogStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_runs (
            trace_id   TEXT PRIMARY KEY,
            user_id    TEXT NOT NULL DEFAULT '',
            goal       TEXT NOT NULL DEFAULT '',
            narrative  TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS run_recommendations (
            id              INTEGER PRIMARY KEY AUTOINCREMENT,
            trace_id        TEXT NOT NULL,
            symbol          TEXT NOT NULL,
            action          TEXT NOT NULL,
            original_action TEXT NOT NULL DEFAULT '',
            quantity        REAL NOT NULL,
            leverage        INTEGER NOT NULL DEFAULT 1,
            stop_loss       REAL NOT NULL DEFAULT 0,
            take_profit     REAL NOT NULL DEFAULT 0,
            price           REAL NOT NULL,
            confidence      REAL NOT NULL DEFAULT 0,
            reason          TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE INDEX IF NOT EXISTS idx_run_recommendations_trace
            ON run_recommendations(trace_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("run log store: migrate: %w", err)
		}
	}
	return nil
}

// SaveRun 落库一次运行及其建议；整体放在一个事务里。
func (s *RunLogStore) SaveRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("run log store 未初始化")
	}
	if strings.TrimSpace(rec.TraceID) == "" {
		return fmt.Errorf("trace_id 不能为空")
	}
	created := rec.CreatedAt
	if created == 0 {
		created = time.Now().UnixMilli()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO analysis_runs (trace_id, user_id, goal, narrative, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		rec.TraceID, rec.UserID, rec.Goal, rec.Narrative, created); err != nil {
		return err
	}
	for _, r := range rec.Recommendations {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO run_recommendations
                (trace_id, symbol, action, original_action, quantity, leverage,
                 stop_loss, take_profit, price, confidence, reason)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.TraceID, r.Symbol, r.Action, r.OriginalAction, r.Quantity, r.Leverage,
			r.StopLoss, r.TakeProfit, r.Price, r.Confidence, r.Reason); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentRuns 返回最近 limit 条运行记录（不含建议明细）。
func (s *RunLogStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("run log store 未初始化")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
        SELECT trace_id, user_id, goal, narrative, created_at
        FROM analysis_runs
        ORDER BY created_at DESC, trace_id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.TraceID, &rec.UserID, &rec.Goal, &rec.Narrative, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RunLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
