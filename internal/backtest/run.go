// Package backtest 把行情回放、策略与 Broker 串成完整的回测任务。
package backtest

import (
	"encoding/json"
	"time"

	"tradesim/internal/store"
)

const (
	RunStatusPending = store.RunStatusPending
	RunStatusRunning = store.RunStatusRunning
	RunStatusDone    = store.RunStatusDone
	RunStatusFailed  = store.RunStatusFailed
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Profile       string  `json:"profile"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	InitialEquity float64 `json:"initial_equity"`
	Commission    float64 `json:"commission"`
	StampTax      float64 `json:"stamp_tax"`
	PricePolicy   string  `json:"price_policy"`
	ShortAllowed  bool    `json:"short_allowed"`
	Notes         string  `json:"notes,omitempty"`
}

// RunStats 汇总收益与风控指标，供前端展示。
type RunStats struct {
	FinalNav       float64   `json:"final_nav"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	NavPeak        float64   `json:"nav_peak"`
	NavValley      float64   `json:"nav_valley"`
	Days           int       `json:"days"`
	Orders         int       `json:"orders"`
	Executed       int       `json:"executed"`
	Turnover       float64   `json:"turnover"`
	Fees           float64   `json:"fees"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 表示一次回测任务。
type Run struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	Status      string    `json:"status"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunRequest 为 HTTP 提交使用，零值字段回落到服务端默认。
type RunRequest struct {
	Profile       string  `json:"profile" binding:"required"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	InitialEquity float64 `json:"initial_equity"`
	Commission    float64 `json:"commission"`
	StampTax      float64 `json:"stamp_tax"`
	PricePolicy   string  `json:"price_policy"`
	ShortAllowed  bool    `json:"short_allowed"`
}

func runFromModel(m store.RunModel) Run {
	run := Run{
		ID:        m.ID,
		Profile:   m.Profile,
		Status:    m.Status,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		run.CompletedAt = *m.CompletedAt
	}
	if len(m.Config) > 0 {
		_ = json.Unmarshal(m.Config, &run.Config)
	}
	if len(m.Stats) > 0 {
		_ = json.Unmarshal(m.Stats, &run.Stats)
	} else {
		run.Stats = RunStats{
			FinalNav:       m.FinalNav,
			Profit:         m.Profit,
			ReturnPct:      m.ReturnPct,
			MaxDrawdownPct: m.MaxDrawdownPct,
			Orders:         m.Orders,
			Executed:       m.Executed,
		}
	}
	return run
}
