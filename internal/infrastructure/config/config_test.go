package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  id: "gw-test"
bridges:
  - id: "0a1b2c3d"
    address: "192.168.1.40"
  - id: "00C0FFEE"
    type: "lutrontelnet"
    address: "192.168.1.41"
    lip_port: 2323
    telnet:
      login: "lutron"
      password: "integration"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
security:
  jwt:
    secret: "`+validJWTSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.ID != "gw-test" {
		t.Errorf("Gateway.ID = %q, want %q", cfg.Gateway.ID, "gw-test")
	}
	if len(cfg.Bridges) != 2 {
		t.Fatalf("len(Bridges) = %d, want 2", len(cfg.Bridges))
	}

	hybrid := cfg.Bridges[0]
	if hybrid.ID != "0A1B2C3D" {
		t.Errorf("Bridges[0].ID = %q, want upper-cased", hybrid.ID)
	}
	if hybrid.Type != BridgeTypeLutron || hybrid.LEAPPort != 8081 || hybrid.LIPPort != 23 {
		t.Errorf("Bridges[0] defaults = %+v", hybrid)
	}

	telnet, ok := cfg.Bridge("00c0ffee")
	if !ok {
		t.Fatal("Bridge(00c0ffee) not found")
	}
	if telnet.LIPPort != 2323 || telnet.Telnet.Login != "lutron" {
		t.Errorf("telnet bridge = %+v", telnet)
	}

	if cfg.MQTT.TopicPrefix != "lutron" {
		t.Errorf("MQTT.TopicPrefix = %q, want default lutron", cfg.MQTT.TopicPrefix)
	}
	if cfg.Credentials.Backend != BackendSQLite {
		t.Errorf("Credentials.Backend = %q, want sqlite", cfg.Credentials.Backend)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
security:
  jwt:
    secret: "too-short"
`)
	t.Setenv("LUTRONGW_JWT_SECRET", validJWTSecret)
	t.Setenv("LUTRONGW_MQTT_HOST", "broker.lan")
	t.Setenv("LUTRONGW_API_PORT", "9000")
	t.Setenv("LUTRONGW_CREDENTIALS_BACKEND", "bolt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Error("JWT secret not taken from environment")
	}
	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT.Broker.Host = %q, want broker.lan", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Credentials.Backend != BackendBolt {
		t.Errorf("Credentials.Backend = %q, want bolt", cfg.Credentials.Backend)
	}
}

func TestLoad_BadPortEnv(t *testing.T) {
	path := writeConfig(t, "gateway:\n  id: x\n")
	t.Setenv("LUTRONGW_JWT_SECRET", validJWTSecret)
	t.Setenv("LUTRONGW_API_PORT", "eighty")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "LUTRONGW_API_PORT") {
		t.Errorf("Load() error = %v, want LUTRONGW_API_PORT error", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("LUTRONGW_JWT_SECRET", validJWTSecret)

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Bridges) != 2 {
		t.Fatalf("len(Bridges) = %d, want 2", len(cfg.Bridges))
	}
	if b, ok := cfg.Bridge("00c0ffee"); !ok || b.Type != BridgeTypeTelnet {
		t.Errorf("Bridge(00c0ffee) = %+v, %v", b, ok)
	}
	if cfg.Credentials.Backend != BackendSQLite {
		t.Errorf("Credentials.Backend = %q, want %q", cfg.Credentials.Backend, BackendSQLite)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	cfg.Bridges = []BridgeConfig{{ID: "0A1B2C3D", Type: BridgeTypeLutron, Address: "10.0.0.5"}}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing gateway id",
			mutate:  func(c *Config) { c.Gateway.ID = "" },
			wantErr: "gateway.id is required",
		},
		{
			name: "duplicate bridge",
			mutate: func(c *Config) {
				c.Bridges = append(c.Bridges, c.Bridges[0])
			},
			wantErr: "is duplicated",
		},
		{
			name:    "unknown bridge type",
			mutate:  func(c *Config) { c.Bridges[0].Type = "hue" },
			wantErr: "bridges[0].type",
		},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Bridges[0].Address = "" },
			wantErr: "bridges[0].address is required",
		},
		{
			name:    "telnet login without password",
			mutate:  func(c *Config) { c.Bridges[0].Telnet.Login = "lutron" },
			wantErr: "needs both login and password",
		},
		{
			name:    "tls ca without key pair",
			mutate:  func(c *Config) { c.Bridges[0].TLS.CAFile = "/etc/ca.pem" },
			wantErr: "needs key_file and cert_file",
		},
		{
			name:    "unknown credential backend",
			mutate:  func(c *Config) { c.Credentials.Backend = "vault" },
			wantErr: "credentials.backend",
		},
		{
			name: "bolt without path",
			mutate: func(c *Config) {
				c.Credentials.Backend = BackendBolt
				c.Credentials.BoltPath = ""
			},
			wantErr: "credentials.bolt_path",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "LUTRONGW_JWT_SECRET",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.ID = ""
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"gateway.id", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Auth.Password = "mqtt-pass"
	cfg.InfluxDB.Token = "influx-token"
	cfg.Bridges[0].Telnet = BridgeTelnetConfig{Login: "lutron", Password: "integration"}

	r := cfg.Redacted()
	if r.MQTT.Auth.Password != redacted || r.InfluxDB.Token != redacted || r.Security.JWT.Secret != redacted {
		t.Errorf("Redacted() left secrets: %+v", r)
	}
	if r.Bridges[0].Telnet.Password != redacted || r.Bridges[0].Telnet.Login != "lutron" {
		t.Errorf("Redacted() bridge telnet = %+v", r.Bridges[0].Telnet)
	}
	if cfg.Bridges[0].Telnet.Password != "integration" {
		t.Error("Redacted() modified the original bridges")
	}
	if r.MQTT.Auth.Username != "" || cfg.MQTT.Auth.Password != "mqtt-pass" {
		t.Error("Redacted() changed non-secret or original fields")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.HealthInterval().Seconds(); got != 30 {
		t.Errorf("HealthInterval() = %vs, want 30s", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %vs, want 60s", got)
	}
}
