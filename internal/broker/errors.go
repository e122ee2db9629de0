package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleExecution 同一份快照下重复调用 Execute。就地恢复：
	// 告警后不再落单，避免重复记账。
	ErrStaleExecution = errors.New("当日订单已执行，需先载入新行情")

	// ErrNoSnapshot 尚未载入任何行情快照就尝试校验或执行。
	ErrNoSnapshot = errors.New("尚未载入行情快照")

	// ErrRevalidation 对已校验订单再次校验，属于调用方契约错误。
	ErrRevalidation = errors.New("订单已校验，不允许重复校验")
)

// MissingSymbolError 委托的 symbol 不在当日快照中（退市或不在数据
// 范围内），说明上游 universe 与行情数据不一致，必须上抛。
type MissingSymbolError struct {
	Symbol string
	Date   string
}

func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("symbol %s 不在 %s 的行情快照中", e.Symbol, e.Date)
}
