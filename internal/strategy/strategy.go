// Package strategy 定义回测策略接口与内置策略。策略只通过 Broker
// 的下单接口表达意图，手数约束与成交由 Broker/台账负责。
package strategy

import (
	"fmt"
	"strings"

	"tradesim/internal/broker"
	"tradesim/internal/market"
)

// Strategy 每个交易日在行情载入后、执行前被调用一次。
type Strategy interface {
	Name() string
	OnBar(snap *market.Snapshot, b *broker.Broker) error
}

// Profile 一个策略实例的配置。
type Profile struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Kind     string   `mapstructure:"kind" yaml:"kind"`
	Universe []string `mapstructure:"universe" yaml:"universe"`
	// Weight 单票目标市值占比；0 表示按 universe 均分。
	Weight float64 `mapstructure:"weight" yaml:"weight"`
	// SMA 快慢均线窗口，仅 sma_cross 使用。
	Fast int `mapstructure:"fast" yaml:"fast"`
	Slow int `mapstructure:"slow" yaml:"slow"`
	// RebalanceEvery 每 N 个交易日再平衡一次，仅 rebalance 使用。
	RebalanceEvery int `mapstructure:"rebalance_every" yaml:"rebalance_every"`
}

const (
	KindSMACross  = "sma_cross"
	KindRebalance = "rebalance"
)

func (p *Profile) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	if p.Name == "" {
		return fmt.Errorf("profile 缺少 name")
	}
	if len(p.Universe) == 0 {
		return fmt.Errorf("profile %s 缺少 universe", p.Name)
	}
	if p.Weight < 0 || p.Weight > 1 {
		return fmt.Errorf("profile %s 的 weight 必须在 [0,1]: %v", p.Name, p.Weight)
	}
	if p.Weight == 0 {
		p.Weight = 1 / float64(len(p.Universe))
	}
	switch p.Kind {
	case KindSMACross:
		if p.Fast <= 0 {
			p.Fast = 5
		}
		if p.Slow <= 0 {
			p.Slow = 20
		}
		if p.Fast >= p.Slow {
			return fmt.Errorf("profile %s 快线窗口必须小于慢线: fast=%d slow=%d", p.Name, p.Fast, p.Slow)
		}
	case KindRebalance:
		if p.RebalanceEvery <= 0 {
			p.RebalanceEvery = 20
		}
	default:
		return fmt.Errorf("profile %s 未知策略类型: %q", p.Name, p.Kind)
	}
	return nil
}

// New 按 Profile 构造策略实例。
func New(p Profile) (Strategy, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case KindSMACross:
		return newSMACross(p), nil
	case KindRebalance:
		return newRebalance(p), nil
	default:
		return nil, fmt.Errorf("未知策略类型: %q", p.Kind)
	}
}
