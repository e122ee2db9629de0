package market

import (
	"fmt"
	"strings"
)

// DateLayout 全仓统一的交易日格式。
const DateLayout = "2006-01-02"

// LotSize A 股一手固定 100 股，委托手数均以手为单位。
const LotSize = 100

// TradeStatus 交易所发布的当日交易状态。
type TradeStatus string

const (
	StatusTrading   TradeStatus = "交易"
	StatusSuspended TradeStatus = "停牌"
)

// Quote 单只股票在一个交易日的原始行情行。价格均为未复权价，
// AdjFactor 为累计复权因子。
type Quote struct {
	Symbol    string
	Close     float64
	Open      float64
	VWAP      float64
	AdjFactor float64
	Status    TradeStatus
	// LimitHit 表示当日触及涨跌停价，实际无法成交。
	LimitHit bool
}

// PricePolicy 决定用哪个价格字段作为成交价。
type PricePolicy string

const (
	PolicyClose PricePolicy = "close"
	PolicyOpen  PricePolicy = "open"
	PolicyVWAP  PricePolicy = "vwap"
	// PolicyBlend 取开盘价与收盘价的均值。
	PolicyBlend PricePolicy = "blend"
)

func ParsePricePolicy(s string) (PricePolicy, error) {
	switch PricePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyClose, "":
		return PolicyClose, nil
	case PolicyOpen:
		return PolicyOpen, nil
	case PolicyVWAP:
		return PolicyVWAP, nil
	case PolicyBlend:
		return PolicyBlend, nil
	default:
		return "", fmt.Errorf("未知的 price policy: %q", s)
	}
}

func (p PricePolicy) rawPrice(q Quote) float64 {
	switch p {
	case PolicyOpen:
		return q.Open
	case PolicyVWAP:
		return q.VWAP
	case PolicyBlend:
		return (q.Open + q.Close) / 2
	default:
		return q.Close
	}
}
