package feed

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"tradesim/internal/logger"
	"tradesim/internal/market"
)

// ImportJSON 从行情 JSON 转储导入 QuoteStore，返回导入的行数。
// 支持两种形态：
//
//	顶层数组：[{"date":"2015-11-02","symbol":"600000.SH",...}, ...]
//	按日分组：{"2015-11-02":[{"symbol":"600000.SH",...}, ...], ...}
//
// 字段别名兼容旧数据源：symbol/sec_code、status/trade_status、
// limit_hit/maxupordown。adjfactor 缺省为 1，status 缺省为交易。
func ImportJSON(ctx context.Context, store *QuoteStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	root := gjson.ParseBytes(data)
	byDate := make(map[string][]market.Quote)

	switch {
	case root.IsArray():
		var parseErr error
		root.ForEach(func(_, row gjson.Result) bool {
			date := row.Get("date").String()
			if date == "" {
				parseErr = fmt.Errorf("行情行缺少 date 字段: %s", row.Raw)
				return false
			}
			q, err := quoteFromRow(row)
			if err != nil {
				parseErr = err
				return false
			}
			byDate[date] = append(byDate[date], q)
			return true
		})
		if parseErr != nil {
			return 0, parseErr
		}
	case root.IsObject():
		var parseErr error
		root.ForEach(func(date, rows gjson.Result) bool {
			if !rows.IsArray() {
				parseErr = fmt.Errorf("日期 %s 的值必须是数组", date.String())
				return false
			}
			rows.ForEach(func(_, row gjson.Result) bool {
				q, err := quoteFromRow(row)
				if err != nil {
					parseErr = err
					return false
				}
				byDate[date.String()] = append(byDate[date.String()], q)
				return true
			})
			return parseErr == nil
		})
		if parseErr != nil {
			return 0, parseErr
		}
	default:
		return 0, fmt.Errorf("无法识别的行情 JSON 结构: %s", path)
	}

	total := 0
	for date, quotes := range byDate {
		if err := store.InsertQuotes(ctx, date, quotes); err != nil {
			return total, err
		}
		total += len(quotes)
	}
	logger.Infof("feed: 导入 %s 共 %d 行（%d 个交易日）", path, total, len(byDate))
	return total, nil
}

func quoteFromRow(row gjson.Result) (market.Quote, error) {
	symbol := row.Get("symbol").String()
	if symbol == "" {
		symbol = row.Get("sec_code").String()
	}
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("行情行缺少 symbol 字段: %s", row.Raw)
	}
	q := market.Quote{
		Symbol:    symbol,
		Close:     row.Get("close").Float(),
		Open:      row.Get("open").Float(),
		VWAP:      row.Get("vwap").Float(),
		AdjFactor: 1,
		Status:    market.StatusTrading,
	}
	if adj := row.Get("adjfactor"); adj.Exists() {
		q.AdjFactor = adj.Float()
	}
	if q.Open == 0 {
		q.Open = q.Close
	}
	if q.VWAP == 0 {
		q.VWAP = q.Close
	}
	status := row.Get("status")
	if !status.Exists() {
		status = row.Get("trade_status")
	}
	if status.Exists() && status.String() != "" {
		q.Status = market.TradeStatus(status.String())
	}
	limit := row.Get("limit_hit")
	if !limit.Exists() {
		limit = row.Get("maxupordown")
	}
	q.LimitHit = limit.Bool() || limit.Int() != 0
	return q, nil
}
