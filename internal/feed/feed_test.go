package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/market"
)

func openTestStore(t *testing.T) *QuoteStore {
	t.Helper()
	store, err := OpenQuoteStore(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestQuoteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	quotes := []market.Quote{
		{Symbol: "600000.SH", Close: 10, Open: 9.8, VWAP: 9.9, AdjFactor: 1, Status: market.StatusTrading},
		{Symbol: "000001.SZ", Close: 20, Open: 20, VWAP: 20, AdjFactor: 2, Status: market.StatusSuspended, LimitHit: true},
	}
	require.NoError(t, store.InsertQuotes(ctx, "2015-11-02", quotes))
	require.NoError(t, store.InsertQuotes(ctx, "2015-11-03", quotes[:1]))

	dates, err := store.Dates(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-11-02", "2015-11-03"}, dates)

	dates, err = store.Dates(ctx, "2015-11-03", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-11-03"}, dates)

	got, err := store.QuotesFor(ctx, "2015-11-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// symbol 升序
	assert.Equal(t, "000001.SZ", got[0].Symbol)
	assert.Equal(t, market.StatusSuspended, got[0].Status)
	assert.True(t, got[0].LimitHit)
	assert.Equal(t, "600000.SH", got[1].Symbol)
	assert.InDelta(t, 9.8, got[1].Open, 1e-9)
}

func TestQuoteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	q := market.Quote{Symbol: "600000.SH", Close: 10, Open: 10, VWAP: 10, AdjFactor: 1, Status: market.StatusTrading}
	require.NoError(t, store.InsertQuotes(ctx, "2015-11-02", []market.Quote{q}))
	q.Close = 11
	require.NoError(t, store.InsertQuotes(ctx, "2015-11-02", []market.Quote{q}))

	got, err := store.QuotesFor(ctx, "2015-11-02")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 11, got[0].Close, 1e-9)
}

func TestImportJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("array form with legacy aliases", func(t *testing.T) {
		store := openTestStore(t)
		path := filepath.Join(t.TempDir(), "quotes.json")
		payload := `[
			{"date":"2015-11-02","sec_code":"600000.SH","close":10.5,"adjfactor":2,"trade_status":"交易","maxupordown":0},
			{"date":"2015-11-02","sec_code":"000001.SZ","close":20,"trade_status":"停牌","maxupordown":1},
			{"date":"2015-11-03","symbol":"600000.SH","close":10.8,"open":10.6,"vwap":10.7}
		]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		n, err := ImportJSON(ctx, store, path)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := store.QuotesFor(ctx, "2015-11-02")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].LimitHit)
		assert.Equal(t, market.StatusSuspended, got[0].Status)
		// open/vwap 缺省回落到 close
		assert.InDelta(t, 10.5, got[1].Open, 1e-9)
		assert.InDelta(t, 2, got[1].AdjFactor, 1e-9)
	})

	t.Run("grouped form", func(t *testing.T) {
		store := openTestStore(t)
		path := filepath.Join(t.TempDir(), "grouped.json")
		payload := `{"2015-11-02":[{"symbol":"600000.SH","close":10}]}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		n, err := ImportJSON(ctx, store, path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("missing symbol fails", func(t *testing.T) {
		store := openTestStore(t)
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"date":"2015-11-02","close":10}]`), 0o644))
		_, err := ImportJSON(ctx, store, path)
		assert.Error(t, err)
	})
}

func TestFeedNext(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, day := range []string{"2015-11-02", "2015-11-03", "2015-11-04"} {
		require.NoError(t, store.InsertQuotes(ctx, day, []market.Quote{
			{Symbol: "600000.SH", Close: 10, Open: 10, VWAP: 10, AdjFactor: 1, Status: market.StatusTrading},
		}))
	}

	f, err := New(ctx, store, "2015-11-02", "2015-11-03")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	day, ok, err := f.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2015-11-02", day.Date)
	require.Len(t, day.Quotes, 1)

	day, ok, err = f.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2015-11-03", day.Date)

	_, ok, err = f.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
