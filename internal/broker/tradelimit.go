package broker

import (
	"math"

	"tradesim/internal/market"
)

// TradeLimit 单次订单校验用的约束快照：由台账当前的现金、持仓与
// 当日行情推导出可行的委托区间。纯值对象，无副作用，每次校验前
// 重新计算，同一批次内后执行的订单会看到前序订单消耗现金后的约束。
type TradeLimit struct {
	Symbol         string
	Bar            market.Bar
	Cash           float64
	Commission     float64
	Position       int64
	PortfolioValue float64
	ShortAllowed   bool

	// MaxLots 现金（含佣金）可支撑的最大买入手数。
	MaxLots int64
	// MinLots 可行的最小（最负）委托手数。禁止做空时等于 -Position，
	// 允许做空时与买入侧对称。
	MinLots int64
}

// NewTradeLimit 计算约束区间。恒有 MinLots <= 0 <= MaxLots。
func NewTradeLimit(symbol string, bar market.Bar, cash, portfolioValue, commission float64, position int64, shortAllowed bool) TradeLimit {
	maxLots := maxAffordableLots(cash, bar.AdjTrade, commission)
	minLots := -position
	if shortAllowed {
		minLots = -maxLots
	}
	if minLots > 0 {
		minLots = 0
	}
	return TradeLimit{
		Symbol:         symbol,
		Bar:            bar,
		Cash:           cash,
		Commission:     commission,
		Position:       position,
		PortfolioValue: portfolioValue,
		ShortAllowed:   shortAllowed,
		MaxLots:        maxLots,
		MinLots:        minLots,
	}
}

// maxAffordableLots 向下取整保证买入 MaxLots 手后现金不会透支。
func maxAffordableLots(cash, price, commission float64) int64 {
	if cash <= 0 || price <= 0 {
		return 0
	}
	return int64(math.Floor(cash / (price * (1 + commission) * market.LotSize)))
}
