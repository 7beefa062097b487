package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"deskwatch/internal/common"
)

type Settings struct {
	APIURL                  string
	WsURL                   string
	ReconnectDelay          time.Duration
	PingInterval            time.Duration
	RESTTimeout             time.Duration
	MetricsPort             int
	DataPath                string
	JournalRetention        int
	LogLevel                string
	LogFile                 string
	ClipboardSuccessDisplay time.Duration
	ClipboardFailureDisplay time.Duration
	ManualCopyDir           string
	Resources               []PollResource
}

// PollResource is one REST resource refreshed on a fixed interval.
type PollResource struct {
	Name     string
	Path     string
	Interval time.Duration
}

type ConfigFile struct {
	API struct {
		BaseURL     string `yaml:"baseURL"`
		WsURL       string `yaml:"wsURL"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"api"`

	Connection struct {
		ReconnectDelay string `yaml:"reconnectDelay"`
		PingInterval   string `yaml:"pingInterval"`
	} `yaml:"connection"`

	Clipboard struct {
		SuccessDisplay string `yaml:"successDisplay"`
		FailureDisplay string `yaml:"failureDisplay"`
		ManualCopyDir  string `yaml:"manualCopyDir"`
	} `yaml:"clipboard"`

	Polling struct {
		Resources []struct {
			Name     string `yaml:"name"`
			Path     string `yaml:"path"`
			Interval string `yaml:"interval"`
		} `yaml:"resources"`
	} `yaml:"polling"`

	System struct {
		DataPath         string `yaml:"dataPath"`
		JournalRetention int    `yaml:"journalRetention"`
		MetricsPort      int    `yaml:"metricsPort"`
		LogLevel         string `yaml:"logLevel"`
		LogFile          string `yaml:"logFile"`
	} `yaml:"system"`
}

// DefaultResources are the polled resources used when the config file names none.
func DefaultResources() []PollResource {
	return []PollResource{
		{Name: "crypto_status", Path: "/api/crypto/status", Interval: 5 * time.Second},
		{Name: "market_clock", Path: "/api/market/clock", Interval: 10 * time.Second},
		{Name: "spx_fleet", Path: "/api/spx/fleet", Interval: 30 * time.Second},
		{Name: "equity_status", Path: "/api/equity/status", Interval: 30 * time.Second},
		{Name: "golive_status", Path: "/api/golive/status", Interval: 30 * time.Second},
		{Name: "ppo_status", Path: "/api/ppo/status", Interval: time.Minute},
		{Name: "value_watchlist", Path: "/api/value/watchlist", Interval: time.Minute},
		{Name: "themes", Path: "/api/themes/all", Interval: 5 * time.Minute},
	}
}

func Load() (Settings, error) {
	// A .env next to the binary is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	resources := DefaultResources()
	if len(config.Polling.Resources) > 0 {
		resources = make([]PollResource, 0, len(config.Polling.Resources))
		for _, r := range config.Polling.Resources {
			interval, err := time.ParseDuration(r.Interval)
			if err != nil {
				return Settings{}, fmt.Errorf("resource %q: invalid interval %q: %w", r.Name, r.Interval, err)
			}
			resources = append(resources, PollResource{Name: r.Name, Path: r.Path, Interval: interval})
		}
	}

	settings := Settings{
		APIURL:                  getEnvOrDefault(common.EnvAPIURL, orDefault(config.API.BaseURL, common.DefaultAPIURL)),
		WsURL:                   getEnvOrDefault(common.EnvWsURL, orDefault(config.API.WsURL, common.DefaultWsURL)),
		ReconnectDelay:          getDurationFromEnvOrConfig(common.EnvReconnectDelay, config.Connection.ReconnectDelay, common.DefaultReconnectDelay),
		PingInterval:            getDurationFromEnvOrConfig(common.EnvPingInterval, config.Connection.PingInterval, common.DefaultPingInterval),
		RESTTimeout:             getDurationFromEnvOrConfig(common.EnvRESTTimeout, config.API.RESTTimeout, common.DefaultRESTTimeout),
		MetricsPort:             getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, 0),
		DataPath:                getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		JournalRetention:        getIntFromEnvOrConfig(common.EnvJournalRetention, config.System.JournalRetention, common.DefaultJournalRetention),
		LogLevel:                getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFile:                 getEnvOrDefault(common.EnvLogFile, orDefault(config.System.LogFile, common.DefaultLogFile)),
		ClipboardSuccessDisplay: getDurationFromEnvOrConfig(common.EnvClipboardSuccessDisplay, config.Clipboard.SuccessDisplay, common.DefaultClipboardSuccessDisplay),
		ClipboardFailureDisplay: getDurationFromEnvOrConfig(common.EnvClipboardFailureDisplay, config.Clipboard.FailureDisplay, common.DefaultClipboardFailureDisplay),
		ManualCopyDir:           getEnvOrDefault(common.EnvManualCopyDir, config.Clipboard.ManualCopyDir),
		Resources:               resources,
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		APIURL:                  getEnvOrDefault(common.EnvAPIURL, common.DefaultAPIURL),
		WsURL:                   getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),
		ReconnectDelay:          getDurationOrDefault(common.EnvReconnectDelay, common.DefaultReconnectDelay),
		PingInterval:            getDurationOrDefault(common.EnvPingInterval, common.DefaultPingInterval),
		RESTTimeout:             getDurationOrDefault(common.EnvRESTTimeout, common.DefaultRESTTimeout),
		MetricsPort:             getIntOrDefault(common.EnvMetricsPort, 0), // 0 disables the endpoint
		DataPath:                os.Getenv(common.EnvDataPath),             // optional
		JournalRetention:        getIntOrDefault(common.EnvJournalRetention, common.DefaultJournalRetention),
		LogLevel:                getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFile:                 getEnvOrDefault(common.EnvLogFile, common.DefaultLogFile),
		ClipboardSuccessDisplay: getDurationOrDefault(common.EnvClipboardSuccessDisplay, common.DefaultClipboardSuccessDisplay),
		ClipboardFailureDisplay: getDurationOrDefault(common.EnvClipboardFailureDisplay, common.DefaultClipboardFailureDisplay),
		ManualCopyDir:           os.Getenv(common.EnvManualCopyDir),
		Resources:               DefaultResources(),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate URLs
	if settings.APIURL == "" {
		return errors.New(common.ErrMsgAPIURLRequired)
	}
	if err := checkURL(settings.APIURL, "http", "https"); err != nil {
		return fmt.Errorf("desk API URL: %w", err)
	}
	if settings.WsURL == "" {
		return errors.New(common.ErrMsgWsURLRequired)
	}
	if err := checkURL(settings.WsURL, "ws", "wss"); err != nil {
		return fmt.Errorf("desk WebSocket URL: %w", err)
	}

	// Validate time durations
	if settings.ReconnectDelay < common.MinReconnectDelay || settings.ReconnectDelay > common.MaxReconnectDelay {
		return fmt.Errorf("reconnect delay must be between %v and %v, got %v",
			common.MinReconnectDelay, common.MaxReconnectDelay, settings.ReconnectDelay)
	}
	if settings.PingInterval != 0 && (settings.PingInterval < time.Second || settings.PingInterval > 5*time.Minute) {
		return fmt.Errorf("ping interval must be 0 or between 1s and 5m, got %v", settings.PingInterval)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.ClipboardSuccessDisplay <= 0 || settings.ClipboardFailureDisplay <= 0 {
		return fmt.Errorf("clipboard status display durations must be positive")
	}

	// Validate integer values
	if settings.MetricsPort != 0 && (settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort) {
		return fmt.Errorf("metrics port must be 0 or between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}
	if settings.JournalRetention < 1 {
		return fmt.Errorf("journal retention must be at least 1, got %d", settings.JournalRetention)
	}

	// Validate polled resources
	seen := make(map[string]bool, len(settings.Resources))
	for _, r := range settings.Resources {
		if r.Name == "" {
			return fmt.Errorf("polled resource with path %q has no name", r.Path)
		}
		if seen[r.Name] {
			return fmt.Errorf("polled resource %q declared twice", r.Name)
		}
		seen[r.Name] = true
		if len(r.Path) == 0 || r.Path[0] != '/' {
			return fmt.Errorf("polled resource %q: path must start with '/', got %q", r.Name, r.Path)
		}
		if r.Interval < common.MinPollInterval || r.Interval > common.MaxPollInterval {
			return fmt.Errorf("polled resource %q: interval must be between %v and %v, got %v",
				r.Name, common.MinPollInterval, common.MaxPollInterval, r.Interval)
		}
	}

	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %v, got %q", schemes, u.Scheme)
}
