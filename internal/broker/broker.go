package broker

import (
	"fmt"

	"tradesim/internal/logger"
	"tradesim/internal/market"
)

// Ledger 组合台账。现金与持仓只由台账自己改写，Broker 只通过
// 这些方法读写，且同一批次内每次 Update 都要反映前序成交的影响。
type Ledger interface {
	// Update 应用一条已校验订单，返回费用、成交额与现金变动。
	Update(o *Order) (fee, traded, cashDelta float64, err error)
	// UpdatePort 按快照收盘价对全部持仓估值并写入当日存档。
	UpdatePort(snap *market.Snapshot, date string) error
	Cash() float64
	PortfolioValue() float64
	Position(symbol string) int64
}

// cycleState 日内生命周期。合法迁移：
// idle -> updated (UpdateInfo)
// updated -> executed (Execute)
// executed -> updated (下一次 UpdateInfo)
type cycleState int

const (
	stateIdle cycleState = iota
	stateUpdated
	stateExecuted
)

// DayResult 单日成交汇总，随 Execute 追加，只增不改。
type DayResult struct {
	Date     string
	Traded   float64
	Fees     float64
	Orders   int
	Executed int
}

// Broker 单账户的日度执行状态机：载入快照、排队委托、批量校验
// 执行、收盘估值。订单队列与当日汇总归 Broker 独占，台账只被调用。
type Broker struct {
	commission   float64
	policy       market.PricePolicy
	shortAllowed bool
	ledger       Ledger

	state cycleState
	date  string
	snap  *market.Snapshot

	queue      []*Order
	orderCount int
	dayTraded  float64
	dayFees    float64

	tradeLog []DayResult
}

// Options Broker 构造参数。
type Options struct {
	Commission   float64
	PricePolicy  market.PricePolicy
	ShortAllowed bool
}

func New(ledger Ledger, opts Options) (*Broker, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger 不能为空")
	}
	if opts.Commission < 0 {
		return nil, fmt.Errorf("commission 不能为负: %v", opts.Commission)
	}
	policy := opts.PricePolicy
	if policy == "" {
		policy = market.PolicyClose
	}
	return &Broker{
		commission:   opts.Commission,
		policy:       policy,
		shortAllowed: opts.ShortAllowed,
		ledger:       ledger,
		state:        stateIdle,
	}, nil
}

// UpdateInfo 载入新交易日行情：构建快照、清空队列与当日汇总。
// 这是离开 executed 状态的唯一途径。
func (b *Broker) UpdateInfo(date string, quotes []market.Quote) error {
	snap, err := market.NewSnapshot(date, quotes, b.policy)
	if err != nil {
		return err
	}
	b.date = date
	b.snap = snap
	b.queue = nil
	b.orderCount = 0
	b.dayTraded = 0
	b.dayFees = 0
	b.state = stateUpdated
	return nil
}

// enqueue 任何状态下都允许排队，订单在 Execute 前保持未校验。
func (b *Broker) enqueue(symbol string, kind OrderKind, value float64) {
	b.queue = append(b.queue, newOrder(symbol, kind, value, b.date))
	b.orderCount++
}

// Order 绝对手数委托，正买负卖。
func (b *Broker) Order(symbol string, lots int64) {
	b.enqueue(symbol, KindLots, float64(lots))
}

// OrderTo 目标持仓手数委托。
func (b *Broker) OrderTo(symbol string, lots int64) {
	b.enqueue(symbol, KindLotsTo, float64(lots))
}

// OrderPct 按组合市值占比委托。
func (b *Broker) OrderPct(symbol string, pct float64) {
	b.enqueue(symbol, KindPercent, pct)
}

// OrderPctTo 目标市值占比委托。
func (b *Broker) OrderPctTo(symbol string, pct float64) {
	b.enqueue(symbol, KindPercentTo, pct)
}

// OrderShort 做空委托，lots 为希望做空的手数。
func (b *Broker) OrderShort(symbol string, lots int64) {
	b.enqueue(symbol, KindShort, float64(-lots))
}

// Execute 按入队顺序执行当日全部委托。每条订单执行前用台账的
// 最新现金/持仓重建 TradeLimit，因此批内现金是逐笔占用的：两条
// 单独可行但合计超出现金的订单，后一条会被夹到更小的手数。
//
// 同一份快照重复执行只告警不落单；未载入快照直接报错。批内某条
// 订单失败时，已执行的订单不回滚，错误在记录当日汇总后上抛。
func (b *Broker) Execute() error {
	switch b.state {
	case stateIdle:
		return ErrNoSnapshot
	case stateExecuted:
		logger.Warnf("broker: %v (date=%s)", ErrStaleExecution, b.date)
		return nil
	}

	var execErr error
	executed := 0
	for _, o := range b.queue {
		bar, ok := b.snap.Bar(o.Symbol)
		if !ok {
			execErr = &MissingSymbolError{Symbol: o.Symbol, Date: b.date}
			break
		}
		limit := NewTradeLimit(o.Symbol, bar,
			b.ledger.Cash(), b.ledger.PortfolioValue(),
			b.commission, b.ledger.Position(o.Symbol), b.shortAllowed)
		if err := o.Validate(limit); err != nil {
			execErr = err
			break
		}
		fee, traded, cashDelta, err := b.ledger.Update(o)
		if err != nil {
			execErr = fmt.Errorf("应用订单失败 (%s): %w", o.Symbol, err)
			break
		}
		logger.Debugf("broker: 成交 %s volume=%d price=%.3f fee=%.2f cashΔ=%.2f",
			o.Symbol, o.Volume(), o.Price(), fee, cashDelta)
		b.dayTraded += traded
		b.dayFees += fee
		executed++
	}

	// 无论批内是否有失败，已成交部分都要入账并锁定本轮，
	// 防止调用方重试导致重复落单。
	b.tradeLog = append(b.tradeLog, DayResult{
		Date:     b.date,
		Traded:   b.dayTraded,
		Fees:     b.dayFees,
		Orders:   b.orderCount,
		Executed: executed,
	})
	b.state = stateExecuted
	return execErr
}

// UpdateValue 收盘后按当日快照对组合估值。与是否执行过订单无关，
// 零成交的交易日同样需要存档净值。
func (b *Broker) UpdateValue() error {
	if b.state == stateIdle {
		return ErrNoSnapshot
	}
	return b.ledger.UpdatePort(b.snap, b.date)
}

// Universe 当日可实际成交的 symbol 列表。
func (b *Broker) Universe() ([]string, error) {
	if b.snap == nil {
		return nil, ErrNoSnapshot
	}
	return b.snap.Universe(), nil
}

// Date 当前交易日。
func (b *Broker) Date() string { return b.date }

// Snapshot 当前交易日快照，未载入行情时为 nil。
func (b *Broker) Snapshot() *market.Snapshot { return b.snap }

// OrderCount 本交易日入队的委托条数。
func (b *Broker) OrderCount() int { return b.orderCount }

// TradeResult 返回当日的 (date, 成交额, 费用)。
func (b *Broker) TradeResult() (string, float64, float64) {
	return b.date, b.dayTraded, b.dayFees
}

// TradeLog 历史每日成交汇总的副本。
func (b *Broker) TradeLog() []DayResult {
	out := make([]DayResult, len(b.tradeLog))
	copy(out, b.tradeLog)
	return out
}

// Cash 透传台账现金，便于策略读取。
func (b *Broker) Cash() float64 { return b.ledger.Cash() }

// PortfolioValue 透传台账净值。
func (b *Broker) PortfolioValue() float64 { return b.ledger.PortfolioValue() }

// Position 透传台账持仓手数。
func (b *Broker) Position(symbol string) int64 { return b.ledger.Position(symbol) }
