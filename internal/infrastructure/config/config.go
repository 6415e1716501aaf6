package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the device configuration lives on an installed unit.
const DefaultPath = "/opt/rpigarage/conf.json"

// Hardware drivers.
const (
	DriverPeriph = "periph"
	DriverSim    = "sim"
)

// Config is the root configuration structure for the garage agent.
// The identity and hardware keys sit at the top level for compatibility
// with existing device files; everything else is grouped in sections.
type Config struct {
	ID              string `yaml:"id" json:"id"`
	ThingName       string `yaml:"thingName" json:"thingName"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	CertificatePath string `yaml:"certificatePath" json:"certificatePath"`
	PrivateKeyPath  string `yaml:"privateKeyPath" json:"privateKeyPath"`
	RootCAPath      string `yaml:"rootCAPath" json:"rootCAPath"`
	RelayPin        int    `yaml:"relayPin" json:"relayPin"`
	ReedPin         int    `yaml:"reedPin" json:"reedPin"`

	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Actuator ActuatorConfig `yaml:"actuator" json:"actuator"`
	Hardware HardwareConfig `yaml:"hardware" json:"hardware"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" json:"influxdb"`
	API      APIConfig      `yaml:"api" json:"api"`
}

// MQTTConfig contains the shadow service connection settings.
type MQTTConfig struct {
	Port           int                 `yaml:"port" json:"port"`
	TLS            bool                `yaml:"tls" json:"tls"`
	ClientIDPrefix string              `yaml:"clientIdPrefix" json:"clientIdPrefix"`
	QoS            int                 `yaml:"qos" json:"qos"`
	KeepAlive      time.Duration       `yaml:"keepAlive" json:"keepAlive"`
	CleanSession   bool                `yaml:"cleanSession" json:"cleanSession"`
	ConnectTimeout time.Duration       `yaml:"connectTimeout" json:"connectTimeout"`
	AckTimeout     time.Duration       `yaml:"ackTimeout" json:"ackTimeout"`
	StatusTopic    string              `yaml:"statusTopic" json:"statusTopic"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect" json:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initialDelay" json:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay" json:"maxDelay"`
}

// ActuatorConfig contains relay settings.
type ActuatorConfig struct {
	// PulseDuration is how long the relay stays closed per button press.
	PulseDuration time.Duration `yaml:"pulseDuration" json:"pulseDuration"`
}

// HardwareConfig selects and tunes the GPIO driver.
type HardwareConfig struct {
	// Driver is "periph" for real pins or "sim" for the in-memory door.
	Driver string `yaml:"driver" json:"driver"`

	// EdgePollInterval bounds how long the sensor watcher blocks waiting
	// for an edge before checking for shutdown.
	EdgePollInterval time.Duration `yaml:"edgePollInterval" json:"edgePollInterval"`

	// SimTravelTime is how long the simulated door takes to move.
	SimTravelTime time.Duration `yaml:"simTravelTime" json:"simTravelTime"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// HistoryConfig contains the local door event journal settings.
type HistoryConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Path        string        `yaml:"path" json:"path"`
	BusyTimeout int           `yaml:"busyTimeout" json:"busyTimeout"`
	Retention   time.Duration `yaml:"retention" json:"retention"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	Token         string `yaml:"token" json:"token"`
	Org           string `yaml:"org" json:"org"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	BatchSize     int    `yaml:"batchSize" json:"batchSize"`
	FlushInterval int    `yaml:"flushInterval" json:"flushInterval"`
}

// APIConfig contains the local status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" json:"enabled"`
	Host     string           `yaml:"host" json:"host"`
	Port     int              `yaml:"port" json:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" json:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth" json:"auth"`
}

// APIAuthConfig protects the door endpoints with HS256 bearer tokens.
// An empty secret leaves the API open, which is only sensible on localhost.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" json:"jwtSecret"`
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" json:"read"`
	Write int `yaml:"write" json:"write"`
	Idle  int `yaml:"idle" json:"idle"`
}

// envOverrides lists the environment variables that may replace file values.
type envOverrides struct {
	Endpoint        string `env:"RPIGARAGE_ENDPOINT"`
	ThingName       string `env:"RPIGARAGE_THING_NAME"`
	CertificatePath string `env:"RPIGARAGE_CERTIFICATE_PATH"`
	PrivateKeyPath  string `env:"RPIGARAGE_PRIVATE_KEY_PATH"`
	RootCAPath      string `env:"RPIGARAGE_ROOT_CA_PATH"`
	HardwareDriver  string `env:"RPIGARAGE_HARDWARE_DRIVER"`
	LogLevel        string `env:"RPIGARAGE_LOG_LEVEL"`
	HistoryPath     string `env:"RPIGARAGE_HISTORY_PATH"`
	InfluxDBToken   string `env:"RPIGARAGE_INFLUXDB_TOKEN"`
	APIJWTSecret    string `env:"RPIGARAGE_API_JWT_SECRET"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults)
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the JSON or YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("reading config file: %s is empty", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port:           8883,
			TLS:            true,
			ClientIDPrefix: "GaragePiController",
			QoS:            1,
			KeepAlive:      6 * time.Second,
			ConnectTimeout: 10 * time.Second,
			AckTimeout:     10 * time.Second,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     time.Minute,
			},
		},
		Actuator: ActuatorConfig{
			PulseDuration: 500 * time.Millisecond,
		},
		Hardware: HardwareConfig{
			Driver:           DriverPeriph,
			EdgePollInterval: time.Second,
			SimTravelTime:    3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		History: HistoryConfig{
			Path:        "/var/lib/rpigarage/events.db",
			BusyTimeout: 5,
			Retention:   30 * 24 * time.Hour,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     20,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Having none of the variables set is the normal case and not an error.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}

	setIfNotEmpty(&cfg.Endpoint, env.Endpoint)
	setIfNotEmpty(&cfg.ThingName, env.ThingName)
	setIfNotEmpty(&cfg.CertificatePath, env.CertificatePath)
	setIfNotEmpty(&cfg.PrivateKeyPath, env.PrivateKeyPath)
	setIfNotEmpty(&cfg.RootCAPath, env.RootCAPath)
	setIfNotEmpty(&cfg.Hardware.Driver, env.HardwareDriver)
	setIfNotEmpty(&cfg.Logging.Level, env.LogLevel)
	setIfNotEmpty(&cfg.History.Path, env.HistoryPath)
	setIfNotEmpty(&cfg.InfluxDB.Token, env.InfluxDBToken)
	setIfNotEmpty(&cfg.API.Auth.JWTSecret, env.APIJWTSecret)

	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the configuration against the schema and for
// combinations the schema cannot express.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	errs, err := schemaErrors(c)
	if err != nil {
		return err
	}

	if c.RelayPin == c.ReedPin {
		errs = append(errs, "relayPin and reedPin must be different pins")
	}

	if c.MQTT.TLS {
		if c.CertificatePath == "" {
			errs = append(errs, "certificatePath is required when mqtt.tls is enabled")
		}
		if c.PrivateKeyPath == "" {
			errs = append(errs, "privateKeyPath is required when mqtt.tls is enabled")
		}
		if c.RootCAPath == "" {
			errs = append(errs, "rootCAPath is required when mqtt.tls is enabled")
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if secret := c.API.Auth.JWTSecret; secret != "" && len(secret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwtSecret must be at least %d characters", minJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ClientID returns the MQTT client identifier for this device.
func (c *Config) ClientID() string {
	return fmt.Sprintf("%s-%s", c.MQTT.ClientIDPrefix, c.ID)
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
