package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
oilPressure:
  type: numeric
  min: 0.8
  max: 2.5
driveMode:
  type: categorical
  valid: [race, endurance, pit]
inverterFault:
  type: mappedError
  typical: 0
  codes:
    1: overcurrent
    2: overtemperature
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, KindNumeric, rules["oilPressure"].Kind)
	assert.Equal(t, 0.8, *rules["oilPressure"].Min)
	assert.Equal(t, "overcurrent", rules["inverterFault"].Codes[1])
}

func TestLoadRulesFailsOnUnknownType(t *testing.T) {
	path := writeRules(t, `
rpm:
  type: sinusoidal
`)
	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported rule type")
}

func TestLoadRulesFailsOnMissingFields(t *testing.T) {
	path := writeRules(t, `
rpm:
  type: numeric
  min: 0
`)
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesFailsOnInvertedBounds(t *testing.T) {
	path := writeRules(t, `
rpm:
  type: numeric
  min: 10
  max: 5
`)
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesFailsOnBadTimestampBound(t *testing.T) {
	path := writeRules(t, `
lapStamp:
  type: timestamp
  before: yesterday
`)
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
