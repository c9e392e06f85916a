package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}

	if cfg.PDR.StepThreshold != 12.0 {
		t.Errorf("expected step_threshold 12, got %f", cfg.PDR.StepThreshold)
	}

	if cfg.PDR.StepCooldownMs != 450 {
		t.Errorf("expected step_cooldown_ms 450, got %d", cfg.PDR.StepCooldownMs)
	}

	if cfg.PDR.DefaultStrideLength != 0.7 {
		t.Errorf("expected default_stride_length 0.7, got %f", cfg.PDR.DefaultStrideLength)
	}

	if cfg.PDR.HeadingTolerance != 30 {
		t.Errorf("expected heading_tolerance 30, got %f", cfg.PDR.HeadingTolerance)
	}

	if cfg.Source.Type != "mock" {
		t.Errorf("expected source mock, got %s", cfg.Source.Type)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Logging.Level)
	}
}

func TestLoad_NoFile(t *testing.T) {
	// Load with non-existent file should use defaults
	cfg, err := Load("/nonexistent/path.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected default port 9100, got %d", cfg.Server.Port)
	}

	if cfg.PDR.StepCooldownMs != 450 {
		t.Errorf("expected default cooldown 450, got %d", cfg.PDR.StepCooldownMs)
	}
}

func TestLoad_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
pdr:
  step_threshold: 11.5
  step_cooldown_ms: 300
  heading_tolerance: 20
area:
  width: 40
  height: 25
  centered: true
source:
  type: mqtt
  mqtt:
    broker: tcp://broker:1883
    accel_topic: floor/accel
uplink:
  url: ws://collector:8080/ws
  max_backoff: 1m
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}

	if cfg.PDR.StepThreshold != 11.5 {
		t.Errorf("expected step_threshold 11.5, got %f", cfg.PDR.StepThreshold)
	}

	if cfg.PDR.StepCooldownMs != 300 {
		t.Errorf("expected step_cooldown_ms 300, got %d", cfg.PDR.StepCooldownMs)
	}

	// Untouched keys keep their defaults
	if cfg.PDR.DefaultStrideLength != 0.7 {
		t.Errorf("expected default_stride_length 0.7, got %f", cfg.PDR.DefaultStrideLength)
	}

	if !cfg.Area.Centered || cfg.Area.Width != 40 {
		t.Errorf("unexpected area %+v", cfg.Area)
	}

	if cfg.Source.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("expected broker tcp://broker:1883, got %s", cfg.Source.MQTT.Broker)
	}

	if cfg.Source.MQTT.RotationTopic != "pdr/sensor/rotation" {
		t.Errorf("expected default rotation topic, got %s", cfg.Source.MQTT.RotationTopic)
	}

	if cfg.Uplink.MaxBackoff != time.Minute {
		t.Errorf("expected max_backoff 1m, got %v", cfg.Uplink.MaxBackoff)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GOPDR_SERVER_PORT", "7777")
	t.Setenv("GOPDR_PDR_STEP_THRESHOLD", "14")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}

	if cfg.PDR.StepThreshold != 14 {
		t.Errorf("expected step_threshold 14 from env, got %f", cfg.PDR.StepThreshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid port too low",
			modify: func(c *Config) {
				c.Server.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid port too high",
			modify: func(c *Config) {
				c.Server.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "zero step threshold",
			modify: func(c *Config) {
				c.PDR.StepThreshold = 0
			},
			wantErr: true,
		},
		{
			name: "negative cooldown",
			modify: func(c *Config) {
				c.PDR.StepCooldownMs = -1
			},
			wantErr: true,
		},
		{
			name: "zero cooldown allowed",
			modify: func(c *Config) {
				c.PDR.StepCooldownMs = 0
			},
			wantErr: false,
		},
		{
			name: "heading tolerance too wide",
			modify: func(c *Config) {
				c.PDR.HeadingTolerance = 200
			},
			wantErr: true,
		},
		{
			name: "empty area",
			modify: func(c *Config) {
				c.Area.Width = 0
			},
			wantErr: true,
		},
		{
			name: "mqtt without broker",
			modify: func(c *Config) {
				c.Source.Type = "mqtt"
				c.Source.MQTT.Broker = ""
			},
			wantErr: true,
		},
		{
			name: "unknown source",
			modify: func(c *Config) {
				c.Source.Type = "serial"
			},
			wantErr: true,
		},
		{
			name: "no source",
			modify: func(c *Config) {
				c.Source.Type = "none"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPDRConfig_Processor(t *testing.T) {
	pc := Default().PDR.Processor()

	if pc.StepThreshold != 12.0 || pc.StepCooldownMs != 450 || pc.DefaultStrideLength != 0.7 || pc.HeadingTolerance != 30 {
		t.Errorf("unexpected processor config %+v", pc)
	}
}

func TestAreaConfig_Bounds(t *testing.T) {
	area := AreaConfig{Width: 10, Height: 6}

	b := area.Bounds()
	if b.MinX != 0 || b.MaxX != 10 || b.MinY != 0 || b.MaxY != 6 {
		t.Errorf("unexpected bounds %+v", b)
	}

	area.Centered = true
	b = area.Bounds()
	if b.MinX != -5 || b.MaxX != 5 || b.MinY != -3 || b.MaxY != 3 {
		t.Errorf("unexpected centered bounds %+v", b)
	}
}

func TestServerConfig_Timeouts(t *testing.T) {
	cfg := Default()

	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout 10s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.Server.GracefulTimeout != 5*time.Second {
		t.Errorf("expected graceful_timeout 5s, got %v", cfg.Server.GracefulTimeout)
	}
}
