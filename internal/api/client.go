// Package api is the REST client for the desk service.
package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"deskwatch/internal/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownResource is returned by Resource for names it does not serve.
var ErrUnknownResource = errors.New("api: unknown desk resource")

// ErrNoText is returned by the copy endpoints when the response has no text.
var ErrNoText = errors.New("api: response carried no text")

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Status int
	Path   string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Client talks to one desk service under a fixed base URL.
type Client struct {
	base string
	rest *resty.Client
}

// NewClient returns a client for base. A non-positive timeout uses the default.
func NewClient(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultRESTTimeout)
	}
	r.SetBaseURL(strings.TrimRight(base, "/"))
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	r.JSONMarshal = json.Marshal
	r.JSONUnmarshal = json.Unmarshal
	return &Client{base: base, rest: r}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.base }

// BacktestRequest is the body of a backtest run.
type BacktestRequest struct {
	Symbols        []string `json:"symbols"`
	DateStart      string   `json:"date_start"`
	DateEnd        string   `json:"date_end"`
	EntryTimeStart string   `json:"entry_time_start,omitempty"`
	EntryTimeEnd   string   `json:"entry_time_end,omitempty"`
	StopLossPct    float64  `json:"stop_loss_pct"`
	TakeProfitPct  float64  `json:"take_profit_pct"`
	Side           string   `json:"side"`
	PositionSize   float64  `json:"position_size"`
}

// BacktestResult is the summary the backend returns for a run.
type BacktestResult struct {
	TradesTaken  int     `json:"trades_taken"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalPnL     float64 `json:"total_pnl"`
	WinCount     int     `json:"win_count"`
	LossCount    int     `json:"loss_count"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

// CopyBacktestRequest asks the backend to render a backtest result as text.
type CopyBacktestRequest struct {
	StrategyName string `json:"strategy_name"`
	Symbol       string `json:"symbol"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	BacktestResult
}

type textResp struct {
	Text *string `json:"text"`
}

// GetJSON fetches path and decodes the body into a generic JSON value.
func (c *Client) GetJSON(ctx context.Context, path string) (any, error) {
	var out any
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot returns the full desk snapshot.
func (c *Client) Snapshot(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, common.PathDeskSnapshot, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) (any, error) {
	return c.GetJSON(ctx, common.PathDeskPositions)
}

func (c *Client) Bots(ctx context.Context) (any, error) {
	return c.GetJSON(ctx, common.PathDeskBots)
}

// Events returns the newest limit desk events. Non-positive limit means 50.
func (c *Client) Events(ctx context.Context, limit int) (any, error) {
	if limit <= 0 {
		limit = 50
	}
	var out any
	err := c.get(ctx, common.PathDeskEvents, map[string]string{"limit": strconv.Itoa(limit)}, &out)
	return out, err
}

func (c *Client) DailyPnL(ctx context.Context) (any, error) {
	return c.GetJSON(ctx, common.PathDeskPnL)
}

func (c *Client) Alerts(ctx context.Context) (any, error) {
	return c.GetJSON(ctx, common.PathAlerts)
}

// CopySnapshot returns the desk snapshot rendered as a text report.
func (c *Client) CopySnapshot(ctx context.Context, compact bool) (string, error) {
	return c.text(ctx, common.PathCopySnapshot, map[string]string{"compact": strconv.FormatBool(compact)})
}

// CopyClaudeContext returns the desk context report meant for pasting into an assistant.
func (c *Client) CopyClaudeContext(ctx context.Context) (string, error) {
	return c.text(ctx, common.PathCopyClaudeContext, nil)
}

func (c *Client) CopyPositions(ctx context.Context) (string, error) {
	return c.text(ctx, common.PathCopyPositions, nil)
}

// CopyBacktest renders a backtest result as a text report.
func (c *Client) CopyBacktest(ctx context.Context, req CopyBacktestRequest) (string, error) {
	var out textResp
	if err := c.post(ctx, common.PathCopyBacktest, req, &out); err != nil {
		return "", err
	}
	if out.Text == nil {
		return "", ErrNoText
	}
	return *out.Text, nil
}

// RunBacktest runs a backtest on the backend and returns its summary.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.post(ctx, common.PathBacktestRun, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BacktestReport runs req and renders the result as a text report, the same
// two calls the backtest panel makes before copying.
func (c *Client) BacktestReport(ctx context.Context, strategy string, req BacktestRequest) (string, error) {
	res, err := c.RunBacktest(ctx, req)
	if err != nil {
		return "", fmt.Errorf("run backtest: %w", err)
	}
	if strategy == "" {
		strategy = strings.Join(req.Symbols, ",") + " Backtest"
	}
	return c.CopyBacktest(ctx, CopyBacktestRequest{
		StrategyName:   strategy,
		Symbol:         strings.Join(req.Symbols, ","),
		StartDate:      req.DateStart,
		EndDate:        req.DateEnd,
		BacktestResult: *res,
	})
}

// Resource fetches a desk read endpoint by name: positions, bots, events,
// pnl or alerts.
func (c *Client) Resource(ctx context.Context, name string) (any, error) {
	switch name {
	case "positions":
		return c.Positions(ctx)
	case "bots":
		return c.Bots(ctx)
	case "events":
		return c.Events(ctx, 0)
	case "pnl":
		return c.DailyPnL(ctx)
	case "alerts":
		return c.Alerts(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
}

func (c *Client) text(ctx context.Context, path string, params map[string]string) (string, error) {
	var out textResp
	if err := c.get(ctx, path, params, &out); err != nil {
		return "", err
	}
	if out.Text == nil {
		return "", ErrNoText
	}
	return *out.Text, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.rest.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	return decode(path, resp, err, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.rest.R().SetContext(ctx).SetBody(body).Post(path)
	return decode(path, resp, err, out)
}

// decode checks the status and unmarshals the body. The backend does not always
// send a JSON content type, so SetResult is not used.
func decode(path string, resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &HTTPError{Status: resp.StatusCode(), Path: path, Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
