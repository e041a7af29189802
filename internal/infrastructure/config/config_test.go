package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
influxdb:
  enabled: true
  url: "http://localhost:8086"
  org: "test-org"
  bucket: "test-bucket"
api:
  host: "0.0.0.0"
  port: 8090
history:
  backend: "influxdb"
  query_timeout: 15
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.History.Backend != HistoryBackendInfluxDB {
		t.Errorf("History.Backend = %q, want %q", cfg.History.Backend, HistoryBackendInfluxDB)
	}

	if cfg.History.QueryTimeout != 15 {
		t.Errorf("History.QueryTimeout = %d, want 15", cfg.History.QueryTimeout)
	}

	if cfg.InfluxDB.Org != "test-org" {
		t.Errorf("InfluxDB.Org = %q, want %q", cfg.InfluxDB.Org, "test-org")
	}

	// Measurement falls back to the default when not set in the file.
	if cfg.InfluxDB.Measurement != "device_readings" {
		t.Errorf("InfluxDB.Measurement = %q, want %q", cfg.InfluxDB.Measurement, "device_readings")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown history backend",
			mutate:  func(c *Config) { c.History.Backend = "postgres" },
			wantErr: true,
		},
		{
			name:    "influxdb backend with influxdb disabled",
			mutate:  func(c *Config) { c.History.Backend = HistoryBackendInfluxDB },
			wantErr: true,
		},
		{
			name: "influxdb backend with influxdb enabled",
			mutate: func(c *Config) {
				c.History.Backend = HistoryBackendInfluxDB
				c.InfluxDB.Enabled = true
			},
			wantErr: false,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = ""
			},
			wantErr: true,
		},
		{
			name:    "non-positive query timeout",
			mutate:  func(c *Config) { c.History.QueryTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		History: HistoryConfig{QueryTimeout: 15},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}

	if got := cfg.GetQueryTimeout().Seconds(); got != 15 {
		t.Errorf("GetQueryTimeout() = %v, want 15", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("KASA_DATABASE_PATH", "/custom/path.db")
	t.Setenv("KASA_API_HOST", "192.168.1.1")
	t.Setenv("KASA_API_PORT", "9001")
	t.Setenv("KASA_INFLUXDB_URL", "http://influx.example.com:8086")
	t.Setenv("KASA_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("KASA_HISTORY_BACKEND", "influxdb")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.API.Port != 9001 {
		t.Errorf("API.Port = %d, want 9001", cfg.API.Port)
	}

	if cfg.InfluxDB.URL != "http://influx.example.com:8086" {
		t.Errorf("InfluxDB.URL = %q, want %q", cfg.InfluxDB.URL, "http://influx.example.com:8086")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.History.Backend != HistoryBackendInfluxDB {
		t.Errorf("History.Backend = %q, want %q", cfg.History.Backend, HistoryBackendInfluxDB)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}

	if cfg.History.Backend != HistoryBackendSQLite {
		t.Errorf("defaultConfig History.Backend = %q, want %q", cfg.History.Backend, HistoryBackendSQLite)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
