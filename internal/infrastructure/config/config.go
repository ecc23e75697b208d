package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rediscovery policies for a component name that is already pending.
const (
	// RediscoveryOverwrite replaces the pending descriptor (last writer wins).
	RediscoveryOverwrite = "overwrite"

	// RediscoveryReject refuses the new submission while one is pending.
	RediscoveryReject = "reject"
)

// Config is the root configuration structure for TrackerLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Pairing   PairingConfig   `yaml:"pairing"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Advertise AdvertiseConfig `yaml:"advertise"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// PairingConfig contains discovery and pairing flow settings.
type PairingConfig struct {
	// Domain prefixes every configuration entry unique identifier
	// ("{domain}_{component_name}").
	Domain string `yaml:"domain"`

	// DefaultVendor is used when a discovery submission omits the vendor.
	DefaultVendor string `yaml:"default_vendor"`

	// Rediscovery decides what happens when a component name that is already
	// pending is submitted again: "overwrite" or "reject".
	Rediscovery string `yaml:"rediscovery"`

	// RestoreOnCreationFailure puts a confirmed descriptor back into the
	// discovery registry when the entry store rejects it.
	// Default: false (the tracker must be discovered again).
	RestoreOnCreationFailure bool `yaml:"restore_on_creation_failure"`

	// FlowTimeout is how long a flow may wait for operator input (seconds).
	FlowTimeout int `yaml:"flow_timeout"`

	// FlowRetention is how long a finished flow stays queryable (seconds).
	FlowRetention int `yaml:"flow_retention"`

	// DiscoveryTopicPrefix is the MQTT topic prefix producers publish to.
	// Trackers announce themselves on "{prefix}/{component_name}/config".
	DiscoveryTopicPrefix string `yaml:"discovery_topic_prefix"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
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

// AdvertiseConfig controls mDNS advertisement of the service on the local
// network, so producers can find the API and broker without configuration.
type AdvertiseConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`  // mDNS instance name
	Interface string `yaml:"interface"` // empty means every interface
	TTL       int    `yaml:"ttl"`       // record TTL in seconds, 0 uses the library default
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT      JWTConfig      `yaml:"jwt"`
	Operator OperatorConfig `yaml:"operator"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// OperatorConfig holds the credentials of the operator allowed to review
// discoveries. PasswordHash is an Argon2id PHC string.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TRACKERLINK_SECTION_KEY
// For example: TRACKERLINK_DATABASE_PATH, TRACKERLINK_PAIRING_DOMAIN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Pairing: PairingConfig{
			Domain:               "import_statistics",
			DefaultVendor:        "Fitness Tracker",
			Rediscovery:          RediscoveryOverwrite,
			FlowTimeout:          900,
			FlowRetention:        300,
			DiscoveryTopicPrefix: "trackerlink/discovery",
		},
		Database: DatabaseConfig{
			Path:        "./data/trackerlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "trackerlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Advertise: AdvertiseConfig{
			Instance: "TrackerLink",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			Operator: OperatorConfig{
				Username: "admin",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TRACKERLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Pairing
	if v := os.Getenv("TRACKERLINK_PAIRING_DOMAIN"); v != "" {
		cfg.Pairing.Domain = v
	}

	// Database
	if v := os.Getenv("TRACKERLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TRACKERLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TRACKERLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TRACKERLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TRACKERLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("TRACKERLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("TRACKERLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("TRACKERLINK_OPERATOR_PASSWORD_HASH"); v != "" {
		cfg.Security.Operator.PasswordHash = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Pairing validation
	if c.Pairing.Domain == "" {
		errs = append(errs, "pairing.domain is required")
	}
	if c.Pairing.DefaultVendor == "" {
		errs = append(errs, "pairing.default_vendor is required")
	}
	switch c.Pairing.Rediscovery {
	case RediscoveryOverwrite, RediscoveryReject:
	default:
		errs = append(errs, "pairing.rediscovery must be \"overwrite\" or \"reject\"")
	}
	if c.Pairing.FlowTimeout < 0 {
		errs = append(errs, "pairing.flow_timeout must not be negative")
	}
	if c.Pairing.FlowRetention < 0 {
		errs = append(errs, "pairing.flow_retention must not be negative")
	}
	if c.MQTT.Enabled && c.Pairing.DiscoveryTopicPrefix == "" {
		errs = append(errs, "pairing.discovery_topic_prefix is required when mqtt is enabled")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Advertise validation
	if c.Advertise.Enabled && c.Advertise.Instance == "" {
		errs = append(errs, "advertise.instance is required when advertise is enabled")
	}
	if c.Advertise.TTL < 0 {
		errs = append(errs, "advertise.ttl must not be negative")
	}

	// Security validation - the JWT secret protects every operator endpoint.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set TRACKERLINK_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}
	if c.Security.Operator.Username == "" {
		errs = append(errs, "security.operator.username is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetFlowTimeout returns the pairing flow timeout as a Duration.
// Zero disables flow timeouts.
func (p PairingConfig) GetFlowTimeout() time.Duration {
	return time.Duration(p.FlowTimeout) * time.Second
}

// GetFlowRetention returns how long finished flows are kept as a Duration.
func (p PairingConfig) GetFlowRetention() time.Duration {
	return time.Duration(p.FlowRetention) * time.Second
}
