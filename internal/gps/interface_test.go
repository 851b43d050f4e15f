package gps

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// fakeReceiver feeds fixes to the acquisition worker through a channel. A
// closed channel makes ReadFix error so the worker never blocks a join.
type fakeReceiver struct {
	fixes      chan *Fix
	connectErr error
	connects   int
	closes     int
}

func (f *fakeReceiver) Connect() error { f.connects++; return f.connectErr }

func (f *fakeReceiver) ReadFix() (*Fix, error) {
	fix, ok := <-f.fixes
	if !ok {
		return nil, fmt.Errorf("port closed")
	}
	return fix, nil
}

func (f *fakeReceiver) Close() error { f.closes++; return nil }

func testFix() *Fix {
	return &Fix{
		Valid:      true,
		Latitude:   48.1173,
		Longitude:  11.5167,
		Speed:      41.5,
		Heading:    84.4,
		Altitude:   545.4,
		Satellites: 8,
	}
}

func pumpFix(t *testing.T, g *GPSInterface, r *fakeReceiver, fix *Fix) {
	t.Helper()
	r.fixes <- fix
	require.Eventually(t, func() bool {
		require.NoError(t, g.Update())
		v, ok := g.GetData("latitude").(float64)
		return ok && v == fix.Latitude
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGPSUpdateCachesWholeFix(t *testing.T) {
	var buf bytes.Buffer
	r := &fakeReceiver{fixes: make(chan *Fix, 1)}
	g := NewInterface("gpsReceiver", telemetry.NewTest(&buf), r)
	require.NoError(t, g.Initialize())
	defer func() {
		close(r.fixes)
		g.Close()
	}()

	pumpFix(t, g, r, testFix())

	assert.InDelta(t, 48.1173, g.GetData("latitude").(float64), 1e-9)
	assert.InDelta(t, 11.5167, g.GetData("longitude").(float64), 1e-9)
	assert.InDelta(t, 41.5, g.GetData("speedKph").(float64), 1e-9)
	assert.InDelta(t, 84.4, g.GetData("heading").(float64), 1e-9)
	assert.InDelta(t, 545.4, g.GetData("altitude").(float64), 1e-9)
	assert.Equal(t, 8, g.GetData("satellites"))
	assert.Equal(t, true, g.GetData("fixValid"))
}

func TestGPSTelemetryCoversEveryParameter(t *testing.T) {
	dir := t.TempDir()
	log, err := telemetry.New(telemetry.Config{Enabled: true, Dir: dir, MinLevel: "critical"})
	require.NoError(t, err)
	defer log.Close()

	r := &fakeReceiver{fixes: make(chan *Fix, 1)}
	g := NewInterface("gpsReceiver", log, r)
	require.NoError(t, g.Initialize())

	pumpFix(t, g, r, testFix())
	close(r.fixes)
	require.NoError(t, g.Close())
	log.Close()

	files, err := filepath.Glob(filepath.Join(dir, "telemetry_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	logged := make(map[string]bool)
	for _, row := range rows[1:] {
		logged[row[2]] = true
	}
	for _, param := range []string{
		"latitude", "longitude", "speedKph", "heading", "altitude", "satellites", "fixValid",
	} {
		assert.True(t, logged[param], "parameter %s missing from telemetry", param)
	}
}

func TestGPSCloseTwice(t *testing.T) {
	var buf bytes.Buffer
	r := &fakeReceiver{fixes: make(chan *Fix)}
	g := NewInterface("gpsReceiver", telemetry.NewTest(&buf), r)
	require.NoError(t, g.Initialize())

	close(r.fixes)
	require.NoError(t, g.Close())
	assert.NotPanics(t, func() { g.Close() })
	assert.Equal(t, device.Disabled, g.Status())
	assert.Equal(t, 2, r.closes)
}

func TestGPSReinitializeAfterClose(t *testing.T) {
	var buf bytes.Buffer
	r := &fakeReceiver{fixes: make(chan *Fix, 1)}
	g := NewInterface("gpsReceiver", telemetry.NewTest(&buf), r)

	require.NoError(t, g.Initialize())
	close(r.fixes)
	require.NoError(t, g.Close())

	// A fresh worker must come up and deliver fixes again.
	r.fixes = make(chan *Fix, 1)
	require.NoError(t, g.Initialize())
	assert.Equal(t, device.Active, g.Status())
	second := testFix()
	second.Latitude = 50.0
	pumpFix(t, g, r, second)

	close(r.fixes)
	require.NoError(t, g.Close())
	assert.Equal(t, 2, r.connects)
}
