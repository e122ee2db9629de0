package market

import (
	"fmt"
	"sort"
)

// Bar 复权后的可交易行情，供撮合与估值使用。
type Bar struct {
	AdjClose float64
	AdjTrade float64
	Status   TradeStatus
	LimitHit bool
}

// Tradable 当日是否可以实际成交：未停牌且未触及涨跌停。
func (b Bar) Tradable() bool {
	return !b.LimitHit && b.Status == StatusTrading
}

// Snapshot 某个交易日的全市场快照。每个 symbol 恰好一行；
// 不在快照中的 symbol 当日不可交易。
type Snapshot struct {
	date string
	bars map[string]Bar
}

// NewSnapshot 根据原始行情行构建快照，按 policy 计算复权成交价。
// 同一 symbol 出现两次视为上游数据损坏。
func NewSnapshot(date string, quotes []Quote, policy PricePolicy) (*Snapshot, error) {
	if date == "" {
		return nil, fmt.Errorf("快照日期不能为空")
	}
	bars := make(map[string]Bar, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" {
			return nil, fmt.Errorf("快照 %s 存在空 symbol 行", date)
		}
		if _, dup := bars[q.Symbol]; dup {
			return nil, fmt.Errorf("快照 %s 中 %s 出现多行", date, q.Symbol)
		}
		raw := policy.rawPrice(q)
		if raw <= 0 || q.Close <= 0 || q.AdjFactor <= 0 {
			return nil, fmt.Errorf("快照 %s 中 %s 行情字段非法 (close=%v, price=%v, adjfactor=%v)",
				date, q.Symbol, q.Close, raw, q.AdjFactor)
		}
		bars[q.Symbol] = Bar{
			AdjClose: q.Close * q.AdjFactor,
			AdjTrade: raw * q.AdjFactor,
			Status:   q.Status,
			LimitHit: q.LimitHit,
		}
	}
	return &Snapshot{date: date, bars: bars}, nil
}

func (s *Snapshot) Date() string { return s.date }

func (s *Snapshot) Len() int { return len(s.bars) }

// Bar 返回 symbol 当日行情；ok=false 表示该 symbol 不在快照内。
func (s *Snapshot) Bar(symbol string) (Bar, bool) {
	b, ok := s.bars[symbol]
	return b, ok
}

// Universe 返回当日可实际成交的 symbol 列表（排除停牌与涨跌停）。
func (s *Snapshot) Universe() []string {
	out := make([]string, 0, len(s.bars))
	for sym, b := range s.bars {
		if b.Tradable() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Symbols 返回快照内全部 symbol，字典序。
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
