package strategy

import (
	"tradesim/internal/broker"
	"tradesim/internal/market"
)

// rebalance 定期等权（或固定权重）再平衡：首个交易日建仓，
// 之后每 RebalanceEvery 个交易日把各票拉回目标占比。
type rebalance struct {
	profile Profile
	days    int
}

func newRebalance(p Profile) *rebalance {
	return &rebalance{profile: p}
}

func (s *rebalance) Name() string { return s.profile.Name }

func (s *rebalance) OnBar(snap *market.Snapshot, b *broker.Broker) error {
	due := s.days%s.profile.RebalanceEvery == 0
	s.days++
	if !due {
		return nil
	}
	for _, sym := range s.profile.Universe {
		if _, ok := snap.Bar(sym); !ok {
			continue
		}
		b.OrderPctTo(sym, s.profile.Weight)
	}
	return nil
}
