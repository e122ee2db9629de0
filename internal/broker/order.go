package broker

import (
	"fmt"
	"math"

	"tradesim/internal/market"
)

// OrderKind 委托的五种口径。Value 的含义随 Kind 变化。
type OrderKind string

const (
	// KindLots 绝对手数，正买负卖。
	KindLots OrderKind = "lots"
	// KindLotsTo 目标持仓手数，按当前持仓差额下单。
	KindLotsTo OrderKind = "lots_to"
	// KindPercent 按组合市值占比换算的买卖手数。
	KindPercent OrderKind = "percent"
	// KindPercentTo 目标市值占比，按当前持仓差额下单。
	KindPercentTo OrderKind = "percent_to"
	// KindShort 做空手数。口径与 KindLots 相同，仅表达意图，
	// 是否真正允许卖空由 TradeLimit 决定。
	KindShort OrderKind = "short"
)

// Order 一条用户委托。校验前 volume/price 无意义（读取返回零值），
// 校验通过后即不可变，由台账消费一次。
type Order struct {
	Symbol string
	Kind   OrderKind
	Value  float64
	Date   string

	validated   bool
	validVolume int64
	validPrice  float64
}

func newOrder(symbol string, kind OrderKind, value float64, date string) *Order {
	return &Order{Symbol: symbol, Kind: kind, Value: value, Date: date}
}

// Validated 订单是否已经通过校验。
func (o *Order) Validated() bool { return o.validated }

// Volume 校验后的签名手数；未校验返回 0。
func (o *Order) Volume() int64 {
	if !o.validated {
		return 0
	}
	return o.validVolume
}

// Price 校验后的成交价（复权）；未校验返回 0。
func (o *Order) Price() float64 {
	if !o.validated {
		return 0
	}
	return o.validPrice
}

// Validate 将委托口径折算成原始手数，再夹入约束区间并定价。
// 只允许调用一次，重复校验会导致成交与费用被重复累计，直接报错。
func (o *Order) Validate(limit TradeLimit) error {
	if o.validated {
		return fmt.Errorf("%w (symbol=%s)", ErrRevalidation, o.Symbol)
	}
	raw := o.rawLots(limit)
	if limit.Bar.Tradable() {
		o.validVolume = clampLots(raw, limit.MinLots, limit.MaxLots)
	} else {
		// 停牌或涨跌停：当日不可成交，无论委托多大都置零。
		o.validVolume = 0
	}
	o.validPrice = limit.Bar.AdjTrade
	o.validated = true
	return nil
}

// rawLots 按 Kind 推导原始委托手数，尚未做可行性约束。
func (o *Order) rawLots(limit TradeLimit) int64 {
	switch o.Kind {
	case KindLotsTo:
		return int64(o.Value) - limit.Position
	case KindPercent:
		return percentLots(o.Value, limit)
	case KindPercentTo:
		return percentLots(o.Value, limit) - limit.Position
	default: // KindLots 与 KindShort 直接使用委托值
		return int64(o.Value)
	}
}

func percentLots(pct float64, limit TradeLimit) int64 {
	if limit.Bar.AdjTrade <= 0 {
		return 0
	}
	return int64(math.Floor(pct * limit.PortfolioValue / (limit.Bar.AdjTrade * market.LotSize)))
}

func clampLots(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (o *Order) String() string {
	if !o.validated {
		return fmt.Sprintf("Order{%s %s value=%v 未校验}", o.Symbol, o.Kind, o.Value)
	}
	return fmt.Sprintf("Order{%s %s price=%.3f volume=%d}", o.Symbol, o.Kind, o.validPrice, o.validVolume)
}
