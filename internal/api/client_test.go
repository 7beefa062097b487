package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestClient_Snapshot(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/desk/snapshot", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"daily_pnl":{"daily_pnl":42.5},"positions":[]}`)
	})

	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap, "positions")
	pnl := snap["daily_pnl"].(map[string]any)["daily_pnl"]
	assert.Equal(t, 42.5, pnl)
}

func TestClient_EventsLimit(t *testing.T) {
	var got string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("limit")
		io.WriteString(w, `[]`)
	})

	_, err := c.Events(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "50", got)

	_, err = c.Events(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "10", got)
}

func TestClient_NonSuccessStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.GetJSON(context.Background(), "/api/market/clock")
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
	assert.Equal(t, "/api/market/clock", httpErr.Path)
	assert.Equal(t, "HTTP 502", httpErr.Error())
}

func TestClient_CopyEndpoints(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/copy/snapshot":
			io.WriteString(w, `{"text":"compact=`+r.URL.Query().Get("compact")+`"}`)
		case "/api/copy/claude-context":
			io.WriteString(w, `{"text":"context report"}`)
		case "/api/copy/positions":
			io.WriteString(w, `{"rows":3}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	text, err := c.CopySnapshot(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "compact=true", text)

	text, err = c.CopyClaudeContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "context report", text)

	_, err = c.CopyPositions(ctx)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestClient_Backtest(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/api/backtest/run":
			assert.JSONEq(t, `{"symbols":["NVDA"],"date_start":"2025-01-01","date_end":"2025-02-01",
				"stop_loss_pct":1,"take_profit_pct":2,"side":"LONG","position_size":100}`, string(body))
			io.WriteString(w, `{"trades_taken":12,"win_rate":58.3,"total_pnl":-14.2}`)
		case "/api/copy/backtest":
			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "NVDA Backtest", req["strategy_name"])
			assert.EqualValues(t, 12, req["trades_taken"])
			io.WriteString(w, `{"text":"NVDA: 12 trades"}`)
		}
	})
	ctx := context.Background()

	res, err := c.RunBacktest(ctx, BacktestRequest{
		Symbols:       []string{"NVDA"},
		DateStart:     "2025-01-01",
		DateEnd:       "2025-02-01",
		StopLossPct:   1,
		TakeProfitPct: 2,
		Side:          "LONG",
		PositionSize:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, res.TradesTaken)
	assert.InDelta(t, -14.2, res.TotalPnL, 1e-9)

	text, err := c.CopyBacktest(ctx, CopyBacktestRequest{
		StrategyName:   "NVDA Backtest",
		Symbol:         "NVDA",
		BacktestResult: *res,
	})
	require.NoError(t, err)
	assert.Equal(t, "NVDA: 12 trades", text)
}

func TestClient_BacktestReport(t *testing.T) {
	var copyReq map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/backtest/run":
			io.WriteString(w, `{"trades_taken":4,"win_rate":50,"total_pnl":8.5}`)
		case "/api/copy/backtest":
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &copyReq))
			io.WriteString(w, `{"text":"report"}`)
		}
	})

	text, err := c.BacktestReport(context.Background(), "", BacktestRequest{
		Symbols: []string{"NVDA", "AMD"}, DateStart: "2025-01-01", DateEnd: "2025-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "report", text)
	assert.Equal(t, "NVDA,AMD Backtest", copyReq["strategy_name"])
	assert.Equal(t, "NVDA,AMD", copyReq["symbol"])
	assert.Equal(t, "2025-01-31", copyReq["end_date"])
	assert.EqualValues(t, 4, copyReq["trades_taken"])
}

func TestClient_BacktestReportRunFailure(t *testing.T) {
	var copied bool
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/copy/backtest" {
			copied = true
		}
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.BacktestReport(context.Background(), "x", BacktestRequest{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.False(t, copied)
}

func TestClient_Resource(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	for _, name := range []string{"positions", "bots", "events", "pnl", "alerts"} {
		_, err := c.Resource(ctx, name)
		require.NoError(t, err, name)
	}
	assert.Equal(t, []string{"/api/desk/positions", "/api/desk/bots", "/api/desk/events", "/api/desk/pnl", "/api/alerts"}, paths)

	_, err := c.Resource(ctx, "orders")
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetJSON(ctx, "/api/desk/bots")
	require.Error(t, err)
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}
