package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/broker"
	"tradesim/internal/market"
	"tradesim/internal/portfolio"
)

func newAccount(t *testing.T) (*portfolio.Ledger, *broker.Broker) {
	t.Helper()
	ledger, err := portfolio.NewLedger(portfolio.Options{InitialEquity: 1000000})
	require.NoError(t, err)
	b, err := broker.New(ledger, broker.Options{Commission: 0, PricePolicy: market.PolicyClose})
	require.NoError(t, err)
	return ledger, b
}

func stepDay(t *testing.T, b *broker.Broker, s Strategy, date string, price float64) {
	t.Helper()
	require.NoError(t, b.UpdateInfo(date, []market.Quote{
		{Symbol: "600000.SH", Close: price, Open: price, VWAP: price, AdjFactor: 1, Status: market.StatusTrading},
	}))
	require.NoError(t, s.OnBar(b.Snapshot(), b))
	require.NoError(t, b.Execute())
	require.NoError(t, b.UpdateValue())
}

func TestSMACrossSignals(t *testing.T) {
	s, err := New(Profile{
		Name:     "sma",
		Kind:     KindSMACross,
		Universe: []string{"600000.SH"},
		Fast:     2,
		Slow:     3,
		Weight:   0.5,
	})
	require.NoError(t, err)
	ledger, b := newAccount(t)

	days := []struct {
		date  string
		price float64
	}{
		{"2015-11-02", 10},
		{"2015-11-03", 9},
		{"2015-11-04", 8},
		{"2015-11-05", 7},
	}
	for _, d := range days {
		stepDay(t, b, s, d.date, d.price)
		assert.Zero(t, ledger.Position("600000.SH"), d.date)
	}

	// 反弹触发金叉，按 0.5 占比建仓
	stepDay(t, b, s, "2015-11-06", 12)
	goldenPos := ledger.Position("600000.SH")
	assert.Greater(t, goldenPos, int64(0))

	// 继续上行，无新信号
	stepDay(t, b, s, "2015-11-09", 15)
	assert.Equal(t, goldenPos, ledger.Position("600000.SH"))

	// 暴跌触发死叉，清仓
	stepDay(t, b, s, "2015-11-10", 5)
	assert.Zero(t, ledger.Position("600000.SH"))
}

func TestRebalanceCadence(t *testing.T) {
	s, err := New(Profile{
		Name:           "hold",
		Kind:           KindRebalance,
		Universe:       []string{"600000.SH"},
		RebalanceEvery: 2,
	})
	require.NoError(t, err)
	_, b := newAccount(t)

	stepDay(t, b, s, "2015-11-02", 10)
	assert.Equal(t, 1, b.OrderCount())

	stepDay(t, b, s, "2015-11-03", 10)
	assert.Equal(t, 0, b.OrderCount())

	stepDay(t, b, s, "2015-11-04", 10)
	assert.Equal(t, 1, b.OrderCount())
}

func TestProfileNormalize(t *testing.T) {
	t.Run("weight defaults to equal split", func(t *testing.T) {
		p := Profile{Name: "x", Kind: KindRebalance, Universe: []string{"a", "b", "c", "d"}}
		require.NoError(t, p.normalize())
		assert.InDelta(t, 0.25, p.Weight, 1e-9)
		assert.Equal(t, 20, p.RebalanceEvery)
	})

	t.Run("sma windows validated", func(t *testing.T) {
		p := Profile{Name: "x", Kind: KindSMACross, Universe: []string{"a"}, Fast: 20, Slow: 5}
		assert.Error(t, p.normalize())
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := New(Profile{Name: "x", Kind: "hodl", Universe: []string{"a"}})
		assert.Error(t, err)
	})
}

func TestLoader(t *testing.T) {
	t.Run("parses and normalizes profiles", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profiles.yaml")
		payload := `profiles:
  - name: sma-demo
    kind: sma_cross
    universe: ["600000.SH", "000001.SZ"]
    fast: 5
    slow: 20
  - name: hold
    kind: rebalance
    universe: ["600000.SH"]
`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
		l, err := NewLoader(path)
		require.NoError(t, err)

		profiles := l.Profiles()
		require.Len(t, profiles, 2)
		assert.Equal(t, "hold", profiles[0].Name)

		p, ok := l.Get("sma-demo")
		require.True(t, ok)
		assert.InDelta(t, 0.5, p.Weight, 1e-9)
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profiles.yaml")
		payload := `profiles:
  - {name: a, kind: rebalance, universe: ["x"]}
  - {name: a, kind: rebalance, universe: ["y"]}
`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
		_, err := NewLoader(path)
		assert.Error(t, err)
	})

	t.Run("default file round trips", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profiles.yaml")
		require.NoError(t, WriteDefaultProfiles(path))
		l, err := NewLoader(path)
		require.NoError(t, err)
		assert.NotEmpty(t, l.Profiles())
		// 已存在时不覆盖
		require.NoError(t, WriteDefaultProfiles(path))
	})
}
