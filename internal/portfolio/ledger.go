// Package portfolio 实现组合台账：现金与持仓的唯一归属方。
// Broker 只能通过 Update/UpdatePort 驱动台账，不直接改写字段。
package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/broker"
	"tradesim/internal/market"
)

// 编译期接口检查。
var _ broker.Ledger = (*Ledger)(nil)

// DefaultStampTax 卖出印花税率。
const DefaultStampTax = 0.001

// Options 台账构造参数。
type Options struct {
	InitialEquity float64
	// Commission 双边佣金率，按成交额比例收取。
	Commission float64
	// StampTax 卖出侧印花税率，负数表示使用默认值。
	StampTax float64
}

type position struct {
	lots      int64
	lastClose float64
}

// Ledger 单账户组合台账。现金与费用用 decimal 计算避免累计误差，
// 对外接口仍以 float64 交互。
type Ledger struct {
	cash       decimal.Decimal
	commission decimal.Decimal
	stampTax   decimal.Decimal
	positions  map[string]*position

	// portValue 最近一次 UpdatePort 的估值结果；批内不随成交变动，
	// 占比类订单在两次估值之间看到同一个组合市值。
	portValue float64

	history []DailyRecord
}

// DailyRecord 单日估值存档，写入后不再改动。
type DailyRecord struct {
	Date      string
	Nav       float64
	Cash      float64
	Positions map[string]int64
	Closes    map[string]float64
}

func NewLedger(opts Options) (*Ledger, error) {
	if opts.InitialEquity <= 0 {
		return nil, fmt.Errorf("初始资金必须为正: %v", opts.InitialEquity)
	}
	if opts.Commission < 0 {
		return nil, fmt.Errorf("佣金率不能为负: %v", opts.Commission)
	}
	stamp := opts.StampTax
	if stamp < 0 {
		stamp = DefaultStampTax
	}
	return &Ledger{
		cash:       decimal.NewFromFloat(opts.InitialEquity),
		commission: decimal.NewFromFloat(opts.Commission),
		stampTax:   decimal.NewFromFloat(stamp),
		positions:  make(map[string]*position),
		portValue:  opts.InitialEquity,
	}, nil
}

// Update 应用一条已校验订单。买入扣 现金 = 成交额 + 佣金，卖出
// 回笼 成交额 - 佣金 - 印花税。买入侧费用口径与 TradeLimit 的
// 可买手数公式一致，买满 MaxLots 不会把现金打负。
func (l *Ledger) Update(o *broker.Order) (fee, traded, cashDelta float64, err error) {
	if o == nil {
		return 0, 0, 0, fmt.Errorf("订单不能为空")
	}
	if !o.Validated() {
		return 0, 0, 0, fmt.Errorf("未校验订单不能入账 (%s)", o.Symbol)
	}
	vol := o.Volume()
	if vol == 0 {
		return 0, 0, 0, nil
	}

	shares := decimal.NewFromInt(vol * market.LotSize)
	price := decimal.NewFromFloat(o.Price())
	notional := price.Mul(shares) // 签名成交额
	gross := notional.Abs()

	feeDec := gross.Mul(l.commission)
	if vol < 0 {
		feeDec = feeDec.Add(gross.Mul(l.stampTax))
	}
	deltaDec := notional.Neg().Sub(feeDec)
	l.cash = l.cash.Add(deltaDec)

	pos := l.positions[o.Symbol]
	if pos == nil {
		pos = &position{}
		l.positions[o.Symbol] = pos
	}
	pos.lots += vol
	pos.lastClose = o.Price()
	if pos.lots == 0 {
		delete(l.positions, o.Symbol)
	}

	fee, _ = feeDec.Float64()
	traded, _ = gross.Float64()
	cashDelta, _ = deltaDec.Float64()
	return fee, traded, cashDelta, nil
}

// UpdatePort 按快照收盘价对全部持仓估值并写入当日存档。
// 快照缺失的持仓沿用最近已知收盘价（停牌股按停牌前价格估值）。
func (l *Ledger) UpdatePort(snap *market.Snapshot, date string) error {
	if snap == nil {
		return fmt.Errorf("估值需要行情快照")
	}
	if date == "" {
		date = snap.Date()
	}
	total := l.cash
	closes := make(map[string]float64, len(l.positions))
	lots := make(map[string]int64, len(l.positions))
	for sym, pos := range l.positions {
		if bar, ok := snap.Bar(sym); ok {
			pos.lastClose = bar.AdjClose
		}
		closes[sym] = pos.lastClose
		lots[sym] = pos.lots
		value := decimal.NewFromFloat(pos.lastClose).
			Mul(decimal.NewFromInt(pos.lots * market.LotSize))
		total = total.Add(value)
	}
	nav, _ := total.Float64()
	cash, _ := l.cash.Float64()
	l.portValue = nav
	l.history = append(l.history, DailyRecord{
		Date:      date,
		Nav:       nav,
		Cash:      cash,
		Positions: lots,
		Closes:    closes,
	})
	return nil
}

// Cash 当前可用现金。
func (l *Ledger) Cash() float64 {
	c, _ := l.cash.Float64()
	return c
}

// PortfolioValue 最近一次估值的组合净值。
func (l *Ledger) PortfolioValue() float64 { return l.portValue }

// Position symbol 的当前持仓手数，未持有返回 0。
func (l *Ledger) Position(symbol string) int64 {
	if pos, ok := l.positions[symbol]; ok {
		return pos.lots
	}
	return 0
}

// Weight symbol 市值占组合净值的比例。
func (l *Ledger) Weight(symbol string) float64 {
	pos, ok := l.positions[symbol]
	if !ok || l.portValue <= 0 {
		return 0
	}
	return pos.lastClose * float64(pos.lots*market.LotSize) / l.portValue
}

// Holdings 当前持仓手数的副本。
func (l *Ledger) Holdings() map[string]int64 {
	out := make(map[string]int64, len(l.positions))
	for sym, pos := range l.positions {
		out[sym] = pos.lots
	}
	return out
}

// History 历史估值存档的副本；记录本身写入后只读。
func (l *Ledger) History() []DailyRecord {
	out := make([]DailyRecord, len(l.history))
	copy(out, l.history)
	return out
}
