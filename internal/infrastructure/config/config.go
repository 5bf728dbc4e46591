package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Tuya bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Tuya     TuyaConfig     `yaml:"tuya"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains bridge identity and behaviour settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in health and discovery messages.
	ID string `yaml:"id"`

	// HealthInterval is how often health status is published (seconds).
	HealthInterval int `yaml:"health_interval"`

	// PollDelay is the pause between per-device status polls during the
	// initial sequential fan-out (milliseconds).
	PollDelay int `yaml:"poll_delay"`
}

// TuyaConfig contains the cloud platform account and application credentials.
//
// AccessID/AccessKey are the cloud project credentials; Username/Password
// and CountryCode identify the linked app account used for the
// authorized-login flow.
type TuyaConfig struct {
	// Datacenter selects the initial regional endpoint: "eu", "us", "cn", "in".
	// The platform may redirect to a different datacenter after login.
	Datacenter string `yaml:"datacenter"`

	// AccessID is the cloud project client id used in request signing.
	AccessID string `yaml:"access_id"`

	// AccessKey is the cloud project client secret (HMAC signing key).
	AccessKey string `yaml:"access_key"`

	// CountryCode is the app account's country dialling code (e.g. "44").
	CountryCode string `yaml:"country_code"`

	// Username is the app account (email or phone number).
	Username string `yaml:"username"`

	// Password is the app account password.
	Password string `yaml:"password"`

	// AppSchema identifies which vendor app the account belongs to
	// ("tuyaSmart" or "smartlife").
	AppSchema string `yaml:"app_schema"`

	// Lang is the preferred language for platform responses.
	Lang string `yaml:"lang"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains local broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains local broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains local broker authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains local broker reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the read-only status HTTP API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// InfluxDBConfig contains event-history recording settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// datacenterEndpoints maps a datacenter name to its regional base endpoint.
var datacenterEndpoints = map[string]string{
	"eu": "https://openapi.tuyaeu.com",
	"us": "https://openapi.tuyaus.com",
	"cn": "https://openapi.tuyacn.com",
	"in": "https://openapi.tuyain.com",
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_TUYA_SECTION_KEY
// For example: GRAYLOGIC_TUYA_ACCESS_KEY, GRAYLOGIC_TUYA_MQTT_HOST
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
		Bridge: BridgeConfig{
			ID:             "tuya-bridge-01",
			HealthInterval: 30,
			PollDelay:      250,
		},
		Tuya: TuyaConfig{
			Datacenter: "eu",
			AppSchema:  "tuyaSmart",
			Lang:       "en",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-tuya.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-tuya",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8091,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_TUYA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Tuya credentials (the usual deployment path for secrets)
	if v := os.Getenv("GRAYLOGIC_TUYA_ACCESS_ID"); v != "" {
		cfg.Tuya.AccessID = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_ACCESS_KEY"); v != "" {
		cfg.Tuya.AccessKey = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_USERNAME"); v != "" {
		cfg.Tuya.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_PASSWORD"); v != "" {
		cfg.Tuya.Password = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_TUYA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Local MQTT broker
	if v := os.Getenv("GRAYLOGIC_TUYA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_TUYA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Cloud account fields are deliberately NOT required here: a bridge with no
// credentials starts, reports "not configured" through its health status, and
// waits. Requiring them would turn a provisioning state into a crash loop.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if _, ok := datacenterEndpoints[c.Tuya.Datacenter]; !ok {
		errs = append(errs, fmt.Sprintf("tuya.datacenter must be one of eu, us, cn, in (got %q)", c.Tuya.Datacenter))
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Endpoint returns the regional base endpoint for the configured datacenter.
func (c *TuyaConfig) Endpoint() string {
	return datacenterEndpoints[c.Datacenter]
}

// Configured reports whether the cloud account fields needed for
// authorized-login are all present.
func (c *TuyaConfig) Configured() bool {
	return c.AccessID != "" && c.AccessKey != "" &&
		c.CountryCode != "" && c.Username != "" && c.Password != ""
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *BridgeConfig) GetHealthInterval() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}

// GetPollDelay returns the inter-device poll delay as a Duration.
func (c *BridgeConfig) GetPollDelay() time.Duration {
	return time.Duration(c.PollDelay) * time.Millisecond
}
