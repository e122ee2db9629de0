package backtest

import (
	"time"

	"tradesim/internal/broker"
	"tradesim/internal/portfolio"
)

// computeStats 用资金曲线与成交日志汇总指标。最大回撤按
// 净值曲线的峰值跟踪法计算，返回的是正的百分比。
func computeStats(initial float64, history []portfolio.DailyRecord, log []broker.DayResult) RunStats {
	stats := RunStats{
		FinalNav:   initial,
		NavPeak:    initial,
		NavValley:  initial,
		Days:       len(history),
		FinishedAt: time.Now(),
	}
	peak := initial
	maxDD := 0.0
	for _, rec := range history {
		if rec.Nav > peak {
			peak = rec.Nav
		}
		if peak > 0 {
			if dd := (peak - rec.Nav) / peak; dd > maxDD {
				maxDD = dd
			}
		}
		if rec.Nav > stats.NavPeak {
			stats.NavPeak = rec.Nav
		}
		if rec.Nav < stats.NavValley {
			stats.NavValley = rec.Nav
		}
		stats.FinalNav = rec.Nav
	}
	stats.MaxDrawdownPct = maxDD * 100
	stats.Profit = stats.FinalNav - initial
	if initial > 0 {
		stats.ReturnPct = stats.Profit / initial * 100
	}
	for _, day := range log {
		stats.Orders += day.Orders
		stats.Executed += day.Executed
		stats.Turnover += day.Traded
		stats.Fees += day.Fees
	}
	return stats
}
