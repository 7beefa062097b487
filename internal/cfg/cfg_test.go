package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.APIURL != "http://localhost:8888" {
					t.Errorf("expected default APIURL, got %s", settings.APIURL)
				}
				if settings.WsURL != "ws://localhost:8888/ws" {
					t.Errorf("expected default WsURL, got %s", settings.WsURL)
				}
				if settings.ReconnectDelay != 3*time.Second {
					t.Errorf("expected default ReconnectDelay 3s, got %v", settings.ReconnectDelay)
				}
				if settings.ClipboardSuccessDisplay != 2*time.Second {
					t.Errorf("expected success display 2s, got %v", settings.ClipboardSuccessDisplay)
				}
				if settings.ClipboardFailureDisplay != 3*time.Second {
					t.Errorf("expected failure display 3s, got %v", settings.ClipboardFailureDisplay)
				}
				if settings.MetricsPort != 0 {
					t.Errorf("expected metrics disabled by default, got %d", settings.MetricsPort)
				}
				if len(settings.Resources) != len(DefaultResources()) {
					t.Errorf("expected default resources, got %d", len(settings.Resources))
				}
			},
		},
		{
			name: "custom endpoints and timings",
			envVars: map[string]string{
				"DESK_API_URL":    "https://desk.example.com",
				"DESK_WS_URL":     "wss://desk.example.com/ws",
				"RECONNECT_DELAY": "5s",
				"PING_INTERVAL":   "0s",
				"METRICS_PORT":    "9090",
				"DATA_PATH":       "/var/lib/deskwatch",
				"LOG_LEVEL":       "debug",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.APIURL != "https://desk.example.com" {
					t.Errorf("expected APIURL override, got %s", settings.APIURL)
				}
				if settings.WsURL != "wss://desk.example.com/ws" {
					t.Errorf("expected WsURL override, got %s", settings.WsURL)
				}
				if settings.ReconnectDelay != 5*time.Second {
					t.Errorf("expected ReconnectDelay 5s, got %v", settings.ReconnectDelay)
				}
				if settings.PingInterval != 0 {
					t.Errorf("expected pings disabled, got %v", settings.PingInterval)
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.DataPath != "/var/lib/deskwatch" {
					t.Errorf("expected DataPath, got %s", settings.DataPath)
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected LogLevel debug, got %s", settings.LogLevel)
				}
			},
		},
		{
			name: "http scheme for push channel",
			envVars: map[string]string{
				"DESK_WS_URL": "http://desk.example.com/ws",
			},
			wantErr: true,
		},
		{
			name: "reconnect delay too small",
			envVars: map[string]string{
				"RECONNECT_DELAY": "1ms",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all environment variables first
			clearTestEnv(t)

			// Set test environment variables
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
api:
  baseURL: "https://desk.example.com"
  wsURL: "wss://desk.example.com/ws"
  restTimeout: "15s"

connection:
  reconnectDelay: "3s"
  pingInterval: "20s"

clipboard:
  successDisplay: "2s"
  failureDisplay: "3s"
  manualCopyDir: "/tmp/deskwatch"

polling:
  resources:
    - name: market_clock
      path: /api/market/clock
      interval: 10s
    - name: themes
      path: /api/themes/all
      interval: 5m

system:
  dataPath: "/custom/data"
  journalRetention: 50
  metricsPort: 9090
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.APIURL != "https://desk.example.com" {
					t.Errorf("expected APIURL from YAML, got %s", settings.APIURL)
				}
				if settings.RESTTimeout != 15*time.Second {
					t.Errorf("expected RESTTimeout 15s, got %v", settings.RESTTimeout)
				}
				if settings.PingInterval != 20*time.Second {
					t.Errorf("expected PingInterval 20s, got %v", settings.PingInterval)
				}
				if settings.ManualCopyDir != "/tmp/deskwatch" {
					t.Errorf("expected ManualCopyDir, got %s", settings.ManualCopyDir)
				}
				if len(settings.Resources) != 2 {
					t.Fatalf("expected 2 resources, got %d", len(settings.Resources))
				}
				if settings.Resources[1].Interval != 5*time.Minute {
					t.Errorf("expected themes interval 5m, got %v", settings.Resources[1].Interval)
				}
				if settings.JournalRetention != 50 {
					t.Errorf("expected JournalRetention 50, got %d", settings.JournalRetention)
				}
			},
		},
		{
			name: "environment overrides YAML",
			yamlContent: `
api:
  baseURL: "https://desk.example.com"
  wsURL: "wss://desk.example.com/ws"
`,
			envOverrides: map[string]string{
				"DESK_API_URL":    "http://127.0.0.1:9000",
				"RECONNECT_DELAY": "1s",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.APIURL != "http://127.0.0.1:9000" {
					t.Errorf("expected env override for APIURL, got %s", settings.APIURL)
				}
				if settings.WsURL != "wss://desk.example.com/ws" {
					t.Errorf("expected WsURL from YAML, got %s", settings.WsURL)
				}
				if settings.ReconnectDelay != time.Second {
					t.Errorf("expected ReconnectDelay 1s, got %v", settings.ReconnectDelay)
				}
				if len(settings.Resources) != len(DefaultResources()) {
					t.Errorf("expected default resources, got %d", len(settings.Resources))
				}
			},
		},
		{
			name: "bad resource interval",
			yamlContent: `
polling:
  resources:
    - name: market_clock
      path: /api/market/clock
      interval: soon
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: "api: [unterminated",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("load from env when no config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("DESK_API_URL", "http://desk.local:8080")

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.APIURL != "http://desk.local:8080" {
			t.Errorf("expected APIURL from env, got %s", settings.APIURL)
		}
	})

	t.Run("load from YAML when config file specified", func(t *testing.T) {
		clearTestEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "api:\n  wsURL: \"ws://desk.local:8080/ws\"\n"
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write test config file: %v", err)
		}
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.WsURL != "ws://desk.local:8080/ws" {
			t.Errorf("expected WsURL from YAML, got %s", settings.WsURL)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "DESK_API_URL", "DESK_WS_URL", "RECONNECT_DELAY", "PING_INTERVAL",
		"REST_TIMEOUT", "METRICS_PORT", "DATA_PATH", "JOURNAL_RETENTION", "LOG_LEVEL",
		"LOG_FILE", "CLIPBOARD_SUCCESS_DISPLAY", "CLIPBOARD_FAILURE_DISPLAY", "MANUAL_COPY_DIR",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
