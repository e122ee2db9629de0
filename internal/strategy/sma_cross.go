package strategy

import (
	talib "github.com/markcheno/go-talib"

	"tradesim/internal/broker"
	"tradesim/internal/market"
)

// smaCross 快慢均线交叉：金叉按目标占比建仓，死叉清仓。
// 停牌日不追加历史，避免停牌前后的价格跳变污染均线。
type smaCross struct {
	profile Profile
	closes  map[string][]float64
}

func newSMACross(p Profile) *smaCross {
	return &smaCross{
		profile: p,
		closes:  make(map[string][]float64, len(p.Universe)),
	}
}

func (s *smaCross) Name() string { return s.profile.Name }

func (s *smaCross) OnBar(snap *market.Snapshot, b *broker.Broker) error {
	for _, sym := range s.profile.Universe {
		bar, ok := snap.Bar(sym)
		if !ok || !bar.Tradable() {
			continue
		}
		hist := append(s.closes[sym], bar.AdjClose)
		s.closes[sym] = hist
		if len(hist) <= s.profile.Slow {
			continue
		}
		// 保留慢线窗口+1 根即可判断交叉
		if keep := s.profile.Slow + 1; len(hist) > keep*4 {
			s.closes[sym] = append([]float64(nil), hist[len(hist)-keep:]...)
			hist = s.closes[sym]
		}

		fast := talib.Sma(hist, s.profile.Fast)
		slow := talib.Sma(hist, s.profile.Slow)
		last := len(hist) - 1
		fastNow, fastPrev := fast[last], fast[last-1]
		slowNow, slowPrev := slow[last], slow[last-1]

		switch {
		case fastPrev <= slowPrev && fastNow > slowNow:
			b.OrderPctTo(sym, s.profile.Weight)
		case fastPrev >= slowPrev && fastNow < slowNow:
			b.OrderPctTo(sym, 0)
		}
	}
	return nil
}
