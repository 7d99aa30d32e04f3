// Package config loads pulse-gen daemon settings from an optional YAML file.
// Command-line flags override the file; see cmd/pulse-gen.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-gen/internal/gpio"
	"github.com/sweeney/pulse-gen/internal/serial"
)

// Config is the daemon configuration.
type Config struct {
	Serial    string        `yaml:"serial"`
	Baud      int           `yaml:"baud"`
	Chip      string        `yaml:"chip"`
	Pin1      int           `yaml:"pin1"`
	Pin2      int           `yaml:"pin2"` // negative leaves output 2 unwired
	Broker    string        `yaml:"broker"`
	HTTPAddr  string        `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Serial:    serial.Console,
		Baud:      serial.DefaultBaud,
		Chip:      "gpiochip0",
		Pin1:      gpio.DefaultPin1,
		Pin2:      gpio.DefaultPin2,
		Broker:    "",
		HTTPAddr:  ":8080",
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that cannot be fixed up at runtime.
func (c Config) Validate() error {
	if c.Serial == "" {
		return fmt.Errorf("serial device is empty")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud %d", c.Baud)
	}
	if c.Pin1 < 0 {
		return fmt.Errorf("invalid pin1 %d", c.Pin1)
	}
	if c.Pin2 >= 0 && c.Pin2 == c.Pin1 {
		return fmt.Errorf("pin1 and pin2 are both %d", c.Pin1)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("negative heartbeat %v", c.Heartbeat)
	}
	return nil
}

// Channels returns the number of wired outputs: 2 unless pin2 is negative,
// matching the lines gpio.NewRealWriter requests.
func (c Config) Channels() int {
	if c.Pin2 < 0 {
		return 1
	}
	return 2
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
