// Package config provides configuration management for go-pdr
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-pdr/internal/pdr"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	PDR     PDRConfig     `mapstructure:"pdr"`
	Area    AreaConfig    `mapstructure:"area"`
	Map     MapConfig     `mapstructure:"map"`
	Source  SourceConfig  `mapstructure:"source"`
	Session SessionConfig `mapstructure:"session"`
	Uplink  UplinkConfig  `mapstructure:"uplink"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// PDRConfig configures step, stride and segmentation thresholds
type PDRConfig struct {
	StepThreshold       float64 `mapstructure:"step_threshold"`
	StepCooldownMs      int64   `mapstructure:"step_cooldown_ms"`
	DefaultStrideLength float64 `mapstructure:"default_stride_length"`
	HeadingTolerance    float64 `mapstructure:"heading_tolerance"`
}

// Processor converts to the processor's config type
func (c PDRConfig) Processor() pdr.Config {
	return pdr.Config{
		StepThreshold:       c.StepThreshold,
		StepCooldownMs:      c.StepCooldownMs,
		DefaultStrideLength: c.DefaultStrideLength,
		HeadingTolerance:    c.HeadingTolerance,
	}
}

// AreaConfig configures the rectangular tracking area (meters)
type AreaConfig struct {
	Width    float64 `mapstructure:"width"`
	Height   float64 `mapstructure:"height"`
	Centered bool    `mapstructure:"centered"` // span ±size/2 around the origin
}

// Bounds returns the configured rectangle
func (c AreaConfig) Bounds() pdr.AreaBounds {
	if c.Centered {
		return pdr.NewCenteredArea(c.Width, c.Height)
	}
	return pdr.NewArea(c.Width, c.Height)
}

// MapConfig points at an optional warehouse floor plan
type MapConfig struct {
	Path string `mapstructure:"path"` // CSV grid; empty uses the area
}

// SourceConfig selects and configures the sensor feed
type SourceConfig struct {
	Type string `mapstructure:"type"` // mock, mqtt, none

	Mock MockConfig `mapstructure:"mock"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// MockConfig configures the simulated walker
type MockConfig struct {
	RateHz  int     `mapstructure:"rate_hz"`
	StepHz  float64 `mapstructure:"step_hz"`
	Heading float64 `mapstructure:"heading"`
}

// MQTTConfig configures the MQTT sensor feed
type MQTTConfig struct {
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	AccelTopic    string `mapstructure:"accel_topic"`
	RotationTopic string `mapstructure:"rotation_topic"`
	QoS           byte   `mapstructure:"qos"`
}

// SessionConfig configures session persistence
type SessionConfig struct {
	Dir string `mapstructure:"dir"`
}

// UplinkConfig configures the remote snapshot collector
type UplinkConfig struct {
	URL              string        `mapstructure:"url"` // empty disables
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9100,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		PDR: PDRConfig{
			StepThreshold:       12.0,
			StepCooldownMs:      450,
			DefaultStrideLength: 0.7,
			HeadingTolerance:    30,
		},
		Area: AreaConfig{
			Width:  10,
			Height: 10,
		},
		Source: SourceConfig{
			Type: "mock",
			Mock: MockConfig{
				RateHz:  50,
				StepHz:  1.8,
				Heading: 90,
			},
			MQTT: MQTTConfig{
				Broker:        "tcp://localhost:1883",
				ClientID:      "go-pdr",
				AccelTopic:    "pdr/sensor/accel",
				RotationTopic: "pdr/sensor/rotation",
				QoS:           0,
			},
		},
		Session: SessionConfig{
			Dir: "/var/lib/go-pdr/sessions",
		},
		Uplink: UplinkConfig{
			ReconnectBackoff: 1 * time.Second,
			MaxBackoff:       30 * time.Second,
			PingInterval:     10 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Config file not found is okay, use defaults
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Printf("Warning: config file not found at %s, using defaults\n", path)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("GOPDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// PDR defaults
	v.SetDefault("pdr.step_threshold", d.PDR.StepThreshold)
	v.SetDefault("pdr.step_cooldown_ms", d.PDR.StepCooldownMs)
	v.SetDefault("pdr.default_stride_length", d.PDR.DefaultStrideLength)
	v.SetDefault("pdr.heading_tolerance", d.PDR.HeadingTolerance)

	// Area defaults
	v.SetDefault("area.width", d.Area.Width)
	v.SetDefault("area.height", d.Area.Height)
	v.SetDefault("area.centered", d.Area.Centered)

	v.SetDefault("map.path", "")

	// Source defaults
	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.mock.rate_hz", d.Source.Mock.RateHz)
	v.SetDefault("source.mock.step_hz", d.Source.Mock.StepHz)
	v.SetDefault("source.mock.heading", d.Source.Mock.Heading)
	v.SetDefault("source.mqtt.broker", d.Source.MQTT.Broker)
	v.SetDefault("source.mqtt.client_id", d.Source.MQTT.ClientID)
	v.SetDefault("source.mqtt.accel_topic", d.Source.MQTT.AccelTopic)
	v.SetDefault("source.mqtt.rotation_topic", d.Source.MQTT.RotationTopic)
	v.SetDefault("source.mqtt.qos", d.Source.MQTT.QoS)

	v.SetDefault("session.dir", d.Session.Dir)

	// Uplink defaults
	v.SetDefault("uplink.url", "")
	v.SetDefault("uplink.reconnect_backoff", "1s")
	v.SetDefault("uplink.max_backoff", "30s")
	v.SetDefault("uplink.ping_interval", "10s")
	v.SetDefault("uplink.write_timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := c.PDR.Processor().Validate(); err != nil {
		return fmt.Errorf("invalid pdr config: %w", err)
	}

	if c.Area.Width <= 0 || c.Area.Height <= 0 {
		return fmt.Errorf("area must have positive size, got %fx%f", c.Area.Width, c.Area.Height)
	}

	switch c.Source.Type {
	case "mock":
		if c.Source.Mock.RateHz < 1 || c.Source.Mock.RateHz > 1000 {
			return fmt.Errorf("mock rate_hz must be between 1 and 1000, got %d", c.Source.Mock.RateHz)
		}
	case "mqtt":
		if c.Source.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required for the mqtt source")
		}
	case "none":
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	return nil
}
