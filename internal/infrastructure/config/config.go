package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bridge type tags accepted in the bridges list.
const (
	BridgeTypeLutron = "lutron"
	BridgeTypeTelnet = "lutrontelnet"
)

// Credential store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// redacted replaces secrets in Redacted copies.
const redacted = "[REDACTED]"

// Config is the root configuration of the Lutron gateway.
// Values are loaded from YAML and can be overridden by LUTRONGW_* variables.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Bridges     []BridgeConfig    `yaml:"bridges"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// HealthInterval is the bridge health publish period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// InitTimeout bounds each bridge's first initialization in seconds.
	// Bridges that miss it keep retrying in the background.
	InitTimeout int `yaml:"init_timeout"`
}

// BridgeConfig describes one Lutron bridge or processor.
type BridgeConfig struct {
	// ID is the bridge ID: the serial number as eight hex digits.
	ID string `yaml:"id"`

	// Type is "lutron" (LEAP, plus Telnet on Pro) or "lutrontelnet".
	Type string `yaml:"type"`

	Address  string `yaml:"address"`
	Model    string `yaml:"model"`
	LEAPPort int    `yaml:"leap_port"`
	LIPPort  int    `yaml:"lip_port"`

	// Telnet and TLS seed the credential store at startup when set.
	Telnet BridgeTelnetConfig `yaml:"telnet"`
	TLS    BridgeTLSConfig    `yaml:"tls"`
}

// BridgeTelnetConfig holds Telnet integration login details.
type BridgeTelnetConfig struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// BridgeTLSConfig points at PEM files from a completed pairing.
type BridgeTLSConfig struct {
	KeyFile  string `yaml:"key_file"`
	CertFile string `yaml:"cert_file"`
	CAFile   string `yaml:"ca_file"`
}

// HasFiles reports whether any PEM file is configured.
func (t BridgeTLSConfig) HasFiles() bool {
	return t.KeyFile != "" || t.CertFile != "" || t.CAFile != ""
}

// CredentialsConfig selects where bridge credential bundles are stored.
type CredentialsConfig struct {
	// Backend is "sqlite" (the database) or "bolt".
	Backend  string `yaml:"backend"`
	BoltPath string `yaml:"bolt_path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP front door settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DiscoveryConfig controls mDNS bridge discovery.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Domain  string `yaml:"domain"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains front door security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`

	// AccessTokenTTL is the lifetime of issued tokens in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. LUTRONGW_* environment variables
//  4. Validate
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyBridgeDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with working defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:             "lutrongw",
			Name:           "Lutron Gateway",
			HealthInterval: 30,
			InitTimeout:    60,
		},
		Credentials: CredentialsConfig{
			Backend:  BackendSQLite,
			BoltPath: "./data/credentials.bolt",
		},
		Database: DatabaseConfig{
			Path:        "./data/lutrongw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lutrongw",
			},
			QoS:         1,
			TopicPrefix: "lutron",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodyBytes: 64 << 10,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Discovery: DiscoveryConfig{
			Service: "_lutron._tcp",
			Domain:  "local.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "lutrongw",
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies LUTRONGW_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LUTRONGW_GATEWAY_ID"); v != "" {
		cfg.Gateway.ID = v
	}

	if v := os.Getenv("LUTRONGW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LUTRONGW_CREDENTIALS_BACKEND"); v != "" {
		cfg.Credentials.Backend = v
	}
	if v := os.Getenv("LUTRONGW_CREDENTIALS_BOLT_PATH"); v != "" {
		cfg.Credentials.BoltPath = v
	}

	if v := os.Getenv("LUTRONGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUTRONGW_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LUTRONGW_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("LUTRONGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUTRONGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LUTRONGW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LUTRONGW_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LUTRONGW_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv("LUTRONGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("LUTRONGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// always override in production
	if v := os.Getenv("LUTRONGW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	return nil
}

// applyBridgeDefaults fills the type and ports of each bridge entry.
func (c *Config) applyBridgeDefaults() {
	for i := range c.Bridges {
		b := &c.Bridges[i]
		b.ID = strings.ToUpper(strings.TrimSpace(b.ID))
		if b.Type == "" {
			b.Type = BridgeTypeLutron
		}
		if b.LEAPPort == 0 {
			b.LEAPPort = 8081
		}
		if b.LIPPort == 0 {
			b.LIPPort = 23
		}
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	seen := make(map[string]bool, len(c.Bridges))
	for i, b := range c.Bridges {
		field := fmt.Sprintf("bridges[%d]", i)
		switch {
		case b.ID == "":
			errs = append(errs, field+".id is required")
		case seen[b.ID]:
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", field, b.ID))
		}
		seen[b.ID] = true
		if b.Type != BridgeTypeLutron && b.Type != BridgeTypeTelnet {
			errs = append(errs, fmt.Sprintf("%s.type must be %q or %q", field, BridgeTypeLutron, BridgeTypeTelnet))
		}
		if b.Address == "" {
			errs = append(errs, field+".address is required")
		}
		if (b.Telnet.Login == "") != (b.Telnet.Password == "") {
			errs = append(errs, field+".telnet needs both login and password")
		}
		if b.TLS.HasFiles() && (b.TLS.KeyFile == "" || b.TLS.CertFile == "") {
			errs = append(errs, field+".tls needs key_file and cert_file")
		}
	}

	switch c.Credentials.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite credential backend")
		}
	case BackendBolt:
		if c.Credentials.BoltPath == "" {
			errs = append(errs, "credentials.bolt_path is required for the bolt backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("credentials.backend must be %q or %q", BackendSQLite, BackendBolt))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	// a forged token can switch every light in the building
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set LUTRONGW_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Bridge returns the configuration of the bridge with id.
func (c *Config) Bridge(id string) (BridgeConfig, bool) {
	id = strings.ToUpper(id)
	for _, b := range c.Bridges {
		if b.ID == id {
			return b, true
		}
	}
	return BridgeConfig{}, false
}

// Redacted returns a copy safe to log: passwords, tokens and the JWT secret
// are replaced.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.MQTT.Auth.Password = mask(c.MQTT.Auth.Password)
	c.InfluxDB.Token = mask(c.InfluxDB.Token)
	c.Security.JWT.Secret = mask(c.Security.JWT.Secret)

	bridges := make([]BridgeConfig, len(c.Bridges))
	copy(bridges, c.Bridges)
	for i := range bridges {
		bridges[i].Telnet.Password = mask(bridges[i].Telnet.Password)
	}
	c.Bridges = bridges
	return c
}

// HealthInterval returns the bridge health publish period.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Gateway.HealthInterval) * time.Second
}

// InitTimeout returns the first-initialization bound per bridge.
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.Gateway.InitTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
