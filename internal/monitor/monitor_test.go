package monitor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
func intPtr(i int) *int           { return &i }

func newTestMonitor(rules map[string]*Rule) *Monitor {
	var buf bytes.Buffer
	return New(telemetry.NewTest(&buf), rules)
}

func TestWarningDedup(t *testing.T) {
	m := newTestMonitor(nil)

	m.CreateWarning(Warning{Param: "rpm", Message: "first"})
	m.CreateWarning(Warning{Param: "rpm", Message: "second"})

	warnings := m.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "first", warnings[0].Message)

	m.ClearWarning("rpm")
	assert.Empty(t, m.Warnings())

	m.CreateWarning(Warning{Param: "rpm", Message: "second"})
	warnings = m.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "second", warnings[0].Message)
}

func TestWarningsInsertionOrder(t *testing.T) {
	m := newTestMonitor(nil)

	m.CreateWarning(Warning{Param: "c", Message: "1"})
	m.CreateWarning(Warning{Param: "a", Message: "2"})
	m.CreateWarning(Warning{Param: "b", Message: "3"})
	m.ClearWarning("a")
	m.CreateWarning(Warning{Param: "a", Message: "4"})

	var params []string
	for _, w := range m.Warnings() {
		params = append(params, w.Param)
	}
	assert.Equal(t, []string{"c", "b", "a"}, params)
}

func TestNumericBoundariesInclusive(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"oilPressure": {Kind: KindNumeric, Min: floatPtr(0.8), Max: floatPtr(2.5)},
	})

	m.CheckValue("oilPressure", 0.8)
	assert.Empty(t, m.Warnings())
	m.CheckValue("oilPressure", 2.5)
	assert.Empty(t, m.Warnings())

	m.CheckValue("oilPressure", 0.79999)
	assert.Len(t, m.Warnings(), 1)
	m.ClearWarning("oilPressure")

	m.CheckValue("oilPressure", 2.50001)
	assert.Len(t, m.Warnings(), 1)
}

func TestNumericRejectsBoolean(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"rpm": {Kind: KindNumeric, Min: floatPtr(0), Max: floatPtr(10_000)},
	})

	m.CheckValue("rpm", true)
	assert.Len(t, m.Warnings(), 1)
}

func TestPassingCheckClearsWarning(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"rpm": {Kind: KindNumeric, Min: floatPtr(0), Max: floatPtr(10_000)},
	})

	m.CheckValue("rpm", 12_000.0)
	assert.Len(t, m.Warnings(), 1)

	m.CheckValue("rpm", 8_000.0)
	assert.Empty(t, m.Warnings())
}

func TestUnknownParameterIgnored(t *testing.T) {
	m := newTestMonitor(nil)
	m.CheckValue("ghost", 1e9)
	assert.Empty(t, m.Warnings())
}

func TestBooleanRule(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"brakeCircuitOK": {Kind: KindBoolean, Expected: boolPtr(true)},
	})

	m.CheckValue("brakeCircuitOK", true)
	assert.Empty(t, m.Warnings())

	m.CheckValue("brakeCircuitOK", false)
	assert.Len(t, m.Warnings(), 1)
	m.ClearWarning("brakeCircuitOK")

	m.CheckValue("brakeCircuitOK", 1)
	assert.Len(t, m.Warnings(), 1)
}

func TestCategoricalRule(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"driveMode": {Kind: KindCategorical, Valid: []string{"race", "endurance", "pit"}},
	})

	m.CheckValue("driveMode", "race")
	assert.Empty(t, m.Warnings())

	m.CheckValue("driveMode", "reverse")
	assert.Len(t, m.Warnings(), 1)
}

func TestArrayRule(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"acceleration": {Kind: KindArray, Min: floatPtr(-4), Max: floatPtr(4)},
	})

	m.CheckValue("acceleration", []float64{0.1, -0.8, 1.0})
	assert.Empty(t, m.Warnings())

	m.CheckValue("acceleration", []float64{0.1, 9.0, 1.0})
	assert.Len(t, m.Warnings(), 1)
}

func TestTimestampRule(t *testing.T) {
	rule := &Rule{Kind: KindTimestamp, Before: "2026-01-01T00:00:00Z"}
	require.NoError(t, rule.validate("lapStamp"))
	m := newTestMonitor(map[string]*Rule{"lapStamp": rule})

	m.CheckValue("lapStamp", "2025-06-01T12:00:00Z")
	assert.Empty(t, m.Warnings())

	// The bound is exclusive.
	m.CheckValue("lapStamp", "2026-01-01T00:00:00Z")
	assert.Len(t, m.Warnings(), 1)
	m.ClearWarning("lapStamp")

	m.CheckValue("lapStamp", "not a timestamp")
	assert.Len(t, m.Warnings(), 1)
}

func TestMappedErrorRule(t *testing.T) {
	m := newTestMonitor(map[string]*Rule{
		"inverterFault": {
			Kind:    KindMappedError,
			Typical: intPtr(0),
			Codes:   map[int]string{1: "overcurrent", 2: "overtemperature"},
		},
	})

	m.CheckValue("inverterFault", 0)
	assert.Empty(t, m.Warnings())

	m.CheckValue("inverterFault", 2)
	warnings := m.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "overtemperature", warnings[0].Message)
	m.ClearWarning("inverterFault")

	m.CheckValue("inverterFault", 99)
	warnings = m.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "unknown error code")
}
