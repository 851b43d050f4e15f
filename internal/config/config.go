// Package config loads the backend configuration from YAML with
// environment variable overrides, and builds the value mappers each analog
// channel declares.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfsae/dds-backend/internal/canbus"
	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/pcc"
	"github.com/openfsae/dds-backend/internal/server"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Config holds all backend configuration.
type Config struct {
	Demo bool `yaml:"demo"`

	Logging telemetry.Config `yaml:"logging"`
	CAN     canbus.Config    `yaml:"can"`
	I2C     I2CConfig        `yaml:"i2c"`
	GPS     GPSConfig        `yaml:"gps"`
	PCC     pcc.Config       `yaml:"pcc"`
	Server  server.Config    `yaml:"server"`

	// RulesPath locates the parameter limit table.
	RulesPath string `yaml:"rules_path"`
}

type I2CConfig struct {
	Enabled bool   `yaml:"enabled"`
	BusPath string `yaml:"bus_path"` // e.g. /dev/i2c-2

	ADC           ADCConfig           `yaml:"adc"`
	Accelerometer AccelerometerConfig `yaml:"accelerometer"`
}

type ADCConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Name     string          `yaml:"name"`
	Address  uint16          `yaml:"address"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one analog input pin and its mapping into
// engineering units.
type ChannelConfig struct {
	Name      string       `yaml:"name"`
	Units     string       `yaml:"units"`
	Tolerance float64      `yaml:"tolerance"`
	Mapper    MapperConfig `yaml:"mapper"`
}

// MapperConfig selects and parameterizes a value mapper. Kind is "linear"
// or "table".
type MapperConfig struct {
	Kind string `yaml:"kind"`

	// linear.
	VoltageRange [2]float64 `yaml:"voltage_range"`
	OutputRange  [2]float64 `yaml:"output_range"`

	// table: resistance-based interpolation behind a voltage divider.
	Resistances   []float64 `yaml:"resistances"`
	Outputs       []float64 `yaml:"outputs"`
	SupplyVoltage float64   `yaml:"supply_voltage"`
	FixedResistor float64   `yaml:"fixed_resistor"`
}

type AccelerometerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Name       string `yaml:"name"`
	Address    uint16 `yaml:"address"`
	GRange     int    `yaml:"g_range"`
	SampleRate int    `yaml:"sample_rate"`
}

type GPSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Name     string `yaml:"name"`
	PortPath string `yaml:"port_path"`
	BaudRate int    `yaml:"baud_rate"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Demo: false,
		Logging: telemetry.Config{
			Enabled:  true,
			Dir:      "./logs",
			MinLevel: "info",
		},
		CAN: canbus.Config{
			Enabled:    true,
			Channel:    "can0",
			Bitrate:    1_000_000,
			TxQueueLen: 1000,
		},
		I2C: I2CConfig{
			Enabled: true,
			BusPath: "/dev/i2c-2",
			ADC: ADCConfig{
				Enabled: true,
				Name:    "coolingLoop",
				Address: 0x48,
			},
			Accelerometer: AccelerometerConfig{
				Enabled:    true,
				Name:       "accelerometer",
				Address:    0x53,
				GRange:     8,
				SampleRate: 200,
			},
		},
		GPS: GPSConfig{
			Enabled:  false,
			Name:     "gpsReceiver",
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
		},
		PCC: pcc.Config{
			Enabled:           false,
			Host:              "192.168.0.10",
			Port:              5000,
			SocketTimeoutSec:  10,
			ConnectTimeoutSec: 3,
		},
		Server: server.Config{
			ListenAddr:  ":8080",
			PollHz:      100,
			BroadcastHz: 10,
		},
		RulesPath: "./config/limits.yaml",
	}
}

// Load reads config from a YAML file, applies .env and environment
// overrides, then validates. Missing file falls back to defaults; a
// malformed file or invalid values fail the load.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// A .env beside the config file, or in CWD, feeds the overrides.
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Real environment variables take precedence.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config
// values. Supported: DDS_DEMO, CAN_CHANNEL, CAN_BITRATE, I2C_BUS,
// GPS_PORT, GPS_BAUD, PCC_HOST, PCC_PORT, LISTEN_ADDR, LOG_DIR,
// LOG_LEVEL, RULES_PATH.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DDS_DEMO"); v != "" {
		c.Demo = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("CAN_CHANNEL"); v != "" {
		c.CAN.Channel = v
	}
	if v := os.Getenv("CAN_BITRATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CAN.Bitrate = n
		}
	}
	if v := os.Getenv("I2C_BUS"); v != "" {
		c.I2C.BusPath = v
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.GPS.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPS.BaudRate = n
		}
	}
	if v := os.Getenv("PCC_HOST"); v != "" {
		c.PCC.Host = v
	}
	if v := os.Getenv("PCC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PCC.Port = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.MinLevel = v
	}
	if v := os.Getenv("RULES_PATH"); v != "" {
		c.RulesPath = v
	}
}

// Validate fails fast on configuration a later stage could only discover
// mid-operation.
func (c *Config) Validate() error {
	if c.CAN.Enabled {
		if c.CAN.Channel == "" {
			return fmt.Errorf("config: can.channel is required")
		}
		if c.CAN.Bitrate <= 0 {
			return fmt.Errorf("config: can.bitrate must be positive")
		}
	}
	if c.I2C.Enabled && c.I2C.BusPath == "" {
		return fmt.Errorf("config: i2c.bus_path is required")
	}
	if c.PCC.Enabled {
		if c.PCC.Host == "" {
			return fmt.Errorf("config: pcc.host is required")
		}
		if c.PCC.Port <= 0 || c.PCC.Port > 65535 {
			return fmt.Errorf("config: pcc.port %d out of range", c.PCC.Port)
		}
	}
	for _, ch := range c.I2C.ADC.Channels {
		if ch.Name == "" {
			return fmt.Errorf("config: every adc channel needs a name")
		}
		if _, err := ch.Mapper.Build(); err != nil {
			return fmt.Errorf("config: channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

// Build constructs the mapper the config describes.
func (m MapperConfig) Build() (device.Mapper, error) {
	switch m.Kind {
	case "linear":
		return device.NewLinearMapper(m.VoltageRange, m.OutputRange)
	case "table":
		return device.NewTableMapper(m.Resistances, m.Outputs, m.SupplyVoltage, m.FixedResistor)
	}
	return nil, fmt.Errorf("unsupported mapper kind %q", m.Kind)
}

// BuildChannels constructs the AnalogChannel list for the ADC device.
func (a ADCConfig) BuildChannels() ([]*device.AnalogChannel, error) {
	out := make([]*device.AnalogChannel, 0, len(a.Channels))
	for _, ch := range a.Channels {
		mapper, err := ch.Mapper.Build()
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		out = append(out, &device.AnalogChannel{
			Name:      ch.Name,
			Units:     ch.Units,
			Mapper:    mapper,
			Tolerance: ch.Tolerance,
		})
	}
	return out, nil
}
