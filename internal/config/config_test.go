package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "can0", cfg.CAN.Channel)
	assert.Equal(t, 1_000_000, cfg.CAN.Bitrate)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
demo: true
can:
  enabled: true
  channel: can1
  bitrate: 500000
server:
  listen_addr: ":9090"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Demo)
	assert.Equal(t, "can1", cfg.CAN.Channel)
	assert.Equal(t, 500_000, cfg.CAN.Bitrate)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/dev/i2c-2", cfg.I2C.BusPath)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("can: [not a mapping"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAN_CHANNEL", "vcan0")
	t.Setenv("PCC_HOST", "10.0.0.5")
	t.Setenv("PCC_PORT", "6000")
	t.Setenv("DDS_DEMO", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "vcan0", cfg.CAN.Channel)
	assert.Equal(t, "10.0.0.5", cfg.PCC.Host)
	assert.Equal(t, 6000, cfg.PCC.Port)
	assert.True(t, cfg.Demo)
}

func TestValidateFailsFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CAN.Bitrate = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PCC.Enabled = true
	cfg.PCC.Port = 99_999
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.I2C.ADC.Channels = []ChannelConfig{{
		Name:   "oilPressure",
		Mapper: MapperConfig{Kind: "polynomial"},
	}}
	assert.Error(t, cfg.Validate())
}

func TestMapperBuild(t *testing.T) {
	linear := MapperConfig{
		Kind:         "linear",
		VoltageRange: [2]float64{0.5, 4.5},
		OutputRange:  [2]float64{0, 17},
	}
	m, err := linear.Build()
	require.NoError(t, err)
	assert.InDelta(t, 8.5, m.VoltageToValue(2.5), 1e-9)

	table := MapperConfig{
		Kind:          "table",
		Resistances:   []float64{1000, 2000},
		Outputs:       []float64{100, 80},
		SupplyVoltage: 5.0,
		FixedResistor: 10_000,
	}
	_, err = table.Build()
	require.NoError(t, err)

	_, err = MapperConfig{Kind: "polynomial"}.Build()
	assert.Error(t, err)
}

func TestBuildChannels(t *testing.T) {
	adc := ADCConfig{
		Channels: []ChannelConfig{
			{
				Name:      "oilPressure",
				Units:     "bar",
				Tolerance: 0.1,
				Mapper: MapperConfig{
					Kind:         "linear",
					VoltageRange: [2]float64{0.5, 4.5},
					OutputRange:  [2]float64{0, 17},
				},
			},
		},
	}
	channels, err := adc.BuildChannels()
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "oilPressure", channels[0].Name)
	assert.Equal(t, 0.1, channels[0].Tolerance)
}
