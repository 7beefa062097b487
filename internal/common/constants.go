package common

import "time"

// Environment variable keys
const (
	EnvConfigFile              = "CONFIG_FILE"
	EnvAPIURL                  = "DESK_API_URL"
	EnvWsURL                   = "DESK_WS_URL"
	EnvReconnectDelay          = "RECONNECT_DELAY"
	EnvPingInterval            = "PING_INTERVAL"
	EnvRESTTimeout             = "REST_TIMEOUT"
	EnvMetricsPort             = "METRICS_PORT"
	EnvDataPath                = "DATA_PATH"
	EnvJournalRetention        = "JOURNAL_RETENTION"
	EnvLogLevel                = "LOG_LEVEL"
	EnvLogFile                 = "LOG_FILE"
	EnvClipboardSuccessDisplay = "CLIPBOARD_SUCCESS_DISPLAY"
	EnvClipboardFailureDisplay = "CLIPBOARD_FAILURE_DISPLAY"
	EnvManualCopyDir           = "MANUAL_COPY_DIR"
	EnvMockAddr                = "DESKMOCK_ADDR"
)

// Configuration defaults
const (
	DefaultAPIURL                  = "http://localhost:8888"
	DefaultWsURL                   = "ws://localhost:8888/ws"
	DefaultReconnectDelay          = 3 * time.Second
	DefaultPingInterval            = 15 * time.Second
	DefaultRESTTimeout             = 10 * time.Second
	DefaultJournalRetention        = 500
	DefaultLogLevel                = "info"
	DefaultLogFile                 = "deskwatch.log"
	DefaultClipboardSuccessDisplay = 2 * time.Second
	DefaultClipboardFailureDisplay = 3 * time.Second
	DefaultMockAddr                = ":8888"
)

// Push channel message tags
const (
	MsgTypeGetSnapshot = "get_snapshot"
	MsgTypeSnapshot    = "snapshot"
	MsgTypeDeskUpdate  = "desk_update"
)

// REST endpoints
const (
	PathDeskSnapshot      = "/api/desk/snapshot"
	PathDeskPositions     = "/api/desk/positions"
	PathDeskBots          = "/api/desk/bots"
	PathDeskEvents        = "/api/desk/events"
	PathDeskPnL           = "/api/desk/pnl"
	PathAlerts            = "/api/alerts"
	PathCopySnapshot      = "/api/copy/snapshot"
	PathCopyClaudeContext = "/api/copy/claude-context"
	PathCopyPositions     = "/api/copy/positions"
	PathCopyBacktest      = "/api/copy/backtest"
	PathBacktestRun       = "/api/backtest/run"

	// PathClientCapabilities tells a browser front end which copy route to take.
	PathClientCapabilities = "/api/client/capabilities"
)

// Common error messages
const (
	ErrMsgAPIURLRequired = "desk API URL is required"
	ErrMsgWsURLRequired  = "desk WebSocket URL is required"
)

// Validation constants
const (
	MinReconnectDelay = 100 * time.Millisecond
	MaxReconnectDelay = 5 * time.Minute
	MinPollInterval   = time.Second
	MaxPollInterval   = time.Hour
	MinMetricsPort    = 1024
	MaxMetricsPort    = 65535
)
