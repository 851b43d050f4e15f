package ddsio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/monitor"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// fakeInterface is an Interface that is also its own single device,
// mirroring the CAN and GPS backends.
type fakeInterface struct {
	*device.State
	initErr   error
	updateErr error
	updates   int
}

func newFakeInterface(name string, log *telemetry.Logger) *fakeInterface {
	return &fakeInterface{State: device.NewState(name, log)}
}

func (f *fakeInterface) Initialize() error {
	if f.initErr != nil {
		return f.initErr
	}
	f.SetStatus(device.Active)
	return nil
}

func (f *fakeInterface) Update() error {
	f.updates++
	return f.updateErr
}

func (f *fakeInterface) Close() error {
	f.SetStatus(device.Disabled)
	return nil
}

func (f *fakeInterface) DeviceNames() []string { return []string{f.Name()} }

func (f *fakeInterface) Device(name string) device.Device {
	if name == f.Name() {
		return f
	}
	return nil
}

func newTestIO(t *testing.T) (*IO, *telemetry.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := telemetry.NewTest(&buf)
	return New(log, monitor.New(log, nil), false), log, &buf
}

func TestUnknownDeviceSentinel(t *testing.T) {
	io, _, _ := newTestIO(t)
	assert.Equal(t, UnknownDevice, io.GetDeviceData("ghost", "x", "test"))
}

func TestStatusSentinels(t *testing.T) {
	io, log, _ := newTestIO(t)
	f := newFakeInterface("engine", log)
	require.NoError(t, io.Register(f))

	assert.Equal(t, NotInitialized, io.GetDeviceData("engine", "rpm", "test"))

	f.SetStatus(device.Disabled)
	assert.Equal(t, DeviceDisabled, io.GetDeviceData("engine", "rpm", "test"))

	f.SetStatus(device.StatusError)
	assert.Equal(t, DeviceError, io.GetDeviceData("engine", "rpm", "test"))

	f.SetStatus(device.Active)
	assert.Equal(t, NoData, io.GetDeviceData("engine", "rpm", "test"))

	f.Put("rpm", 4500.0)
	assert.Equal(t, 4500.0, io.GetDeviceData("engine", "rpm", "test"))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	io, log, _ := newTestIO(t)
	require.NoError(t, io.Register(newFakeInterface("engine", log)))
	assert.Error(t, io.Register(newFakeInterface("engine", log)))
}

func TestInitializeFailureForcesErrorAndWarns(t *testing.T) {
	io, log, _ := newTestIO(t)
	f := newFakeInterface("engine", log)
	f.initErr = errors.New("bus not present")
	require.NoError(t, io.Register(f))

	io.Initialize()
	assert.Equal(t, device.StatusError, f.Status())
	require.Len(t, io.Warnings(), 1)
	assert.Contains(t, io.Warnings()[0], "engine")
}

func TestUpdateSkipsInactiveInterfaces(t *testing.T) {
	io, log, _ := newTestIO(t)
	active := newFakeInterface("engine", log)
	disabled := newFakeInterface("spare", log)
	require.NoError(t, io.Register(active))
	require.NoError(t, io.Register(disabled))

	io.Initialize()
	disabled.SetStatus(device.Disabled)

	io.Update()
	assert.Equal(t, 1, active.updates)
	assert.Equal(t, 0, disabled.updates)
}

func TestUpdateErrorForcesErrorStatus(t *testing.T) {
	io, log, _ := newTestIO(t)
	f := newFakeInterface("engine", log)
	require.NoError(t, io.Register(f))
	io.Initialize()

	f.updateErr = errors.New("bus gone")
	io.Update()
	assert.Equal(t, device.StatusError, f.Status())

	// ERROR interfaces are skipped until the explicit maintenance pass.
	io.Update()
	assert.Equal(t, 1, f.updates)
}

func TestReinitializeErrored(t *testing.T) {
	io, log, _ := newTestIO(t)
	f := newFakeInterface("engine", log)
	f.initErr = errors.New("bus not present")
	require.NoError(t, io.Register(f))

	io.Initialize()
	require.Equal(t, device.StatusError, f.Status())
	require.Len(t, io.Warnings(), 1)

	f.initErr = nil
	io.ReinitializeErrored()
	assert.Equal(t, device.Active, f.Status())
	assert.Empty(t, io.Warnings())
}

func TestDeviceEnumeration(t *testing.T) {
	io, log, _ := newTestIO(t)
	engine := newFakeInterface("engine", log)
	cooling := newFakeInterface("cooling", log)
	require.NoError(t, io.Register(engine))
	require.NoError(t, io.Register(cooling))

	engine.Put("rpm", 1.0)
	engine.Put("coolantTemp", 2.0)

	assert.Equal(t, []string{"engine", "cooling"}, io.DeviceNames())
	assert.Equal(t, []string{"rpm", "coolantTemp"}, io.DeviceParameters("engine"))
	assert.Nil(t, io.DeviceParameters("ghost"))
}

func TestDemoModeBypassesHardware(t *testing.T) {
	var buf bytes.Buffer
	log := telemetry.NewTest(&buf)
	io := New(log, monitor.New(log, nil), true)

	f := newFakeInterface("engine", log)
	require.NoError(t, io.Register(f))

	io.Initialize()
	io.Update()
	assert.Equal(t, device.NotInitialized, f.Status(), "demo mode must not touch real interfaces")
	assert.Equal(t, 0, f.updates)

	names := io.DeviceNames()
	require.NotEmpty(t, names)
	v := io.GetDeviceData(names[0], io.DeviceParameters(names[0])[0], "test")
	_, isFloat := v.(float64)
	assert.True(t, isFloat)

	assert.Equal(t, UnknownDevice, io.GetDeviceData("ghost", "x", "test"))
}

func TestMonitorDrivenByUpdate(t *testing.T) {
	var buf bytes.Buffer
	log := telemetry.NewTest(&buf)
	min, max := 0.0, 10_000.0
	mon := monitor.New(log, map[string]*monitor.Rule{
		"rpm": {Kind: monitor.KindNumeric, Min: &min, Max: &max},
	})
	io := New(log, mon, false)

	f := newFakeInterface("engine", log)
	require.NoError(t, io.Register(f))
	io.Initialize()

	f.Put("rpm", 12_000.0)
	io.Update()
	require.Len(t, io.Warnings(), 1)

	f.Put("rpm", 8_000.0)
	io.Update()
	assert.Empty(t, io.Warnings())
}
