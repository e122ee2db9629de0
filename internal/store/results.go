// Package store 持久化回测结果：run 元数据、每日净值与成交汇总。
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunModel backtest_runs 表：一次回测任务的元数据与汇总指标。
type RunModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	Profile        string `gorm:"index;size:64"`
	Status         string `gorm:"index;size:16"`
	Start          string `gorm:"size:10"`
	End            string `gorm:"size:10"`
	InitialEquity  float64
	FinalNav       float64
	Profit         float64
	ReturnPct      float64
	MaxDrawdownPct float64
	Orders         int
	Executed       int
	Config         datatypes.JSON
	Stats          datatypes.JSON
	Message        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (RunModel) TableName() string { return "backtest_runs" }

// NavModel run_navs 表：资金曲线，每个交易日一行。
type NavModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index:idx_navs_run;size:36"`
	Date      string `gorm:"size:10"`
	Nav       float64
	Cash      float64
	Positions datatypes.JSON
}

func (NavModel) TableName() string { return "run_navs" }

// TradeDayModel run_trades 表：每个交易日的成交汇总。
type TradeDayModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"index:idx_trades_run;size:36"`
	Date     string `gorm:"size:10"`
	Traded   float64
	Fees     float64
	Orders   int
	Executed int
}

func (TradeDayModel) TableName() string { return "run_trades" }

// ResultStore 基于 gorm + SQLite 的结果库。
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("result store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}, &NavModel{}, &TradeDayModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给 HTTP 读留一点并行度，同时控制锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入一条新 run。
func (s *ResultStore) InsertRun(ctx context.Context, run *RunModel) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run 记录缺少 ID")
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// UpdateRunStatus 仅更新状态与提示；进入终态时补 CompletedAt。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	updates := map[string]interface{}{
		"status":  status,
		"message": message,
	}
	if status == RunStatusDone || status == RunStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return s.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateRunSummary 回写汇总指标并落终态。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, run *RunModel) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run 记录缺少 ID")
	}
	updates := map[string]interface{}{
		"status":           run.Status,
		"final_nav":        run.FinalNav,
		"profit":           run.Profit,
		"return_pct":       run.ReturnPct,
		"max_drawdown_pct": run.MaxDrawdownPct,
		"orders":           run.Orders,
		"executed":         run.Executed,
		"stats":            run.Stats,
		"message":          run.Message,
	}
	if run.Status == RunStatusDone || run.Status == RunStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return s.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", run.ID).Updates(updates).Error
}

// SaveNavs 批量写入资金曲线。
func (s *ResultStore) SaveNavs(ctx context.Context, navs []NavModel) error {
	if len(navs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(navs, 200).Error
}

// SaveTradeDays 批量写入每日成交汇总。
func (s *ResultStore) SaveTradeDays(ctx context.Context, days []TradeDayModel) error {
	if len(days) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(days, 200).Error
}

// ListRuns 按创建时间倒序返回 run 列表。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []RunModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetRun 按 ID 取单条 run。
func (s *ResultStore) GetRun(ctx context.Context, id string) (RunModel, error) {
	var run RunModel
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	return run, err
}

// ListNavs 按日期升序返回资金曲线。
func (s *ResultStore) ListNavs(ctx context.Context, runID string, limit int) ([]NavModel, error) {
	if limit <= 0 || limit > 5000 {
		limit = 2000
	}
	var out []NavModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("date ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListTradeDays 按日期升序返回成交汇总。
func (s *ResultStore) ListTradeDays(ctx context.Context, runID string, limit int) ([]TradeDayModel, error) {
	if limit <= 0 || limit > 5000 {
		limit = 2000
	}
	var out []TradeDayModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("date ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
