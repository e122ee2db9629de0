package feed

import (
	"context"
	"fmt"

	"tradesim/internal/market"
)

// Day 回放产出的单个交易日：日期与当日全部行情行。
type Day struct {
	Date   string
	Quotes []market.Quote
}

// Feed 按交易日顺序回放行情，驱动回测主循环。快照由 Broker
// 在载入时构建，Feed 只负责产出原始行情行。
type Feed struct {
	store  *QuoteStore
	dates  []string
	cursor int
}

func New(ctx context.Context, store *QuoteStore, start, end string) (*Feed, error) {
	if store == nil {
		return nil, fmt.Errorf("quote store 不能为空")
	}
	dates, err := store.Dates(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &Feed{store: store, dates: dates}, nil
}

// Len 回放范围内的交易日总数。
func (f *Feed) Len() int { return len(f.dates) }

// Next 产出下一个交易日；回放结束返回 ok=false。
func (f *Feed) Next(ctx context.Context) (Day, bool, error) {
	if f.cursor >= len(f.dates) {
		return Day{}, false, nil
	}
	date := f.dates[f.cursor]
	f.cursor++
	quotes, err := f.store.QuotesFor(ctx, date)
	if err != nil {
		return Day{}, false, err
	}
	return Day{Date: date, Quotes: quotes}, true, nil
}
