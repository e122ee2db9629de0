package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/backtest"
	"tradesim/internal/feed"
	"tradesim/internal/market"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

func newTestServer(t *testing.T) (*Server, *backtest.Runner) {
	t.Helper()
	dir := t.TempDir()

	quotes, err := feed.OpenQuoteStore(filepath.Join(dir, "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { quotes.Close() })
	ctx := context.Background()
	for _, day := range []struct {
		date  string
		price float64
	}{
		{"2015-11-02", 10},
		{"2015-11-03", 11},
		{"2015-11-04", 10.5},
	} {
		require.NoError(t, quotes.InsertQuotes(ctx, day.date, []market.Quote{
			{Symbol: "600000.SH", Close: day.price, Open: day.price, VWAP: day.price, AdjFactor: 1, Status: market.StatusTrading},
		}))
	}

	results, err := store.NewResultStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })

	profilePath := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte(`profiles:
  - name: hold
    kind: rebalance
    universe: ["600000.SH"]
`), 0o644))
	profiles, err := strategy.NewLoader(profilePath)
	require.NoError(t, err)

	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Quotes:   quotes,
		Results:  results,
		Profiles: profiles,
		Defaults: backtest.RunConfig{InitialEquity: 100000},
	})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{Runner: runner, Results: results})
	require.NoError(t, err)
	return srv, runner
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRunEndpoints(t *testing.T) {
	srv, runner := newTestServer(t)
	ctx := context.Background()

	run, err := runner.RunOnce(ctx, backtest.RunRequest{Profile: "hold"})
	require.NoError(t, err)

	t.Run("list runs", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/runs", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Runs []backtest.Run `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, run.ID, resp.Runs[0].ID)
		assert.Equal(t, backtest.RunStatusDone, resp.Runs[0].Status)
	})

	t.Run("run detail", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/runs/"+run.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, srv, http.MethodGet, "/api/runs/no-such-run", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("nav and trades", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/nav", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var navResp struct {
			Nav []store.NavModel `json:"nav"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &navResp))
		assert.Len(t, navResp.Nav, 3)

		rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/trades", "")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("chart page", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/runs/"+run.ID+"/chart", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "echarts")
	})
}

func TestRunSubmit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/runs", `{"profile":"hold"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Run backtest.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Run.ID)

	t.Run("missing profile rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/runs", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown profile rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/runs", `{"profile":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
