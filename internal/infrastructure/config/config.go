package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Halcyon Core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Beamline   BeamlineConfig   `yaml:"beamline"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logging    LoggingConfig    `yaml:"logging"`
	Instrument InstrumentConfig `yaml:"instrument"`
}

// BeamlineConfig identifies the beamline this core instance controls.
type BeamlineConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains reading-history storage settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains the live-readings stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InstrumentConfig declares the control points and devices to load at
// startup. The instrument is declared here, not created at runtime: the
// beamline's geometry does not change between restarts.
type InstrumentConfig struct {
	Motors      []MotorConfig      `yaml:"motors"`
	SoftSignals []SoftSignalConfig `yaml:"soft_signals"`
	Energy      EnergyConfig       `yaml:"energy"`
}

// MotorConfig declares one motor axis backed by MQTT topics.
type MotorConfig struct {
	// Name is the registry name, e.g. "mono_bragg".
	Name string `yaml:"name"`

	// Labels group devices for lookup, e.g. ["motors", "monochromator"].
	Labels []string `yaml:"labels"`

	// ReadbackTopic carries the axis readback as JSON reading payloads.
	ReadbackTopic string `yaml:"readback_topic"`

	// SetpointTopic receives target values.
	SetpointTopic string `yaml:"setpoint_topic"`

	// Tolerance is how close the readback must come to the setpoint for
	// a move to count as done.
	Tolerance float64 `yaml:"tolerance"`

	Units     string `yaml:"units"`
	Precision int    `yaml:"precision"`
}

// SoftSignalConfig declares one in-memory control point.
type SoftSignalConfig struct {
	Name     string   `yaml:"name"`
	Labels   []string `yaml:"labels"`
	Datatype string   `yaml:"datatype"`
	Initial  float64  `yaml:"initial"`
	Units    string   `yaml:"units"`
}

// EnergyConfig declares the beamline energy pseudo-axis derived from the
// monochromator Bragg angle.
type EnergyConfig struct {
	Enabled bool `yaml:"enabled"`

	// MonoMotor names the Bragg-axis motor in the registry.
	MonoMotor string `yaml:"mono_motor"`

	// DSpacing is the monochromator crystal d-spacing in Angstrom,
	// e.g. 3.1356 for Si(111).
	DSpacing float64 `yaml:"d_spacing"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern HALCYON_SECTION_KEY, for
// example HALCYON_DATABASE_PATH or HALCYON_MQTT_HOST.
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
		Beamline: BeamlineConfig{
			ID:       "beamline-001",
			Name:     "Halcyon",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/halcyon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "halcyon-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies HALCYON_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HALCYON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HALCYON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HALCYON_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HALCYON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HALCYON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HALCYON_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HALCYON_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("HALCYON_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("HALCYON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("HALCYON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for internal consistency. It catches
// the mistakes that would otherwise surface as confusing runtime errors
// long after startup.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host must not be empty")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		return fmt.Errorf("mqtt.broker.port %d out of range", c.MQTT.Broker.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d out of range (0-2)", c.MQTT.QoS)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url must not be empty when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket must not be empty when influxdb is enabled")
		}
	}

	seen := make(map[string]bool)
	for _, m := range c.Instrument.Motors {
		if m.Name == "" {
			return fmt.Errorf("instrument.motors: motor with empty name")
		}
		if seen[m.Name] {
			return fmt.Errorf("instrument: duplicate device name %q", m.Name)
		}
		seen[m.Name] = true
		if m.ReadbackTopic == "" || m.SetpointTopic == "" {
			return fmt.Errorf("instrument.motors.%s: readback_topic and setpoint_topic are required", m.Name)
		}
	}
	for _, s := range c.Instrument.SoftSignals {
		if s.Name == "" {
			return fmt.Errorf("instrument.soft_signals: signal with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("instrument: duplicate device name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Instrument.Energy.Enabled {
		if c.Instrument.Energy.MonoMotor == "" {
			return fmt.Errorf("instrument.energy.mono_motor is required when energy is enabled")
		}
		if !seen[c.Instrument.Energy.MonoMotor] {
			return fmt.Errorf("instrument.energy.mono_motor %q is not a declared device", c.Instrument.Energy.MonoMotor)
		}
		if c.Instrument.Energy.DSpacing <= 0 {
			return fmt.Errorf("instrument.energy.d_spacing must be positive")
		}
	}
	return nil
}
