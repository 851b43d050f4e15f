package canbus

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

type fakeChannel struct {
	frames  []*Frame
	openErr error
	closed  bool
}

func (f *fakeChannel) Open() error { return f.openErr }

func (f *fakeChannel) Receive(timeout time.Duration) (*Frame, error) {
	if len(f.frames) == 0 {
		return nil, nil
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestCAN(t *testing.T, ch Channel) (*CANInterface, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	db := NewDatabase()
	db.messages[0x100] = Message{
		ID: 0x100,
		Signals: []Signal{
			{Name: "rpm", Start: 0, Length: 16, Factor: 0.25, Unit: "rpm"},
		},
	}
	db.units["rpm"] = "rpm"
	cfg := Config{Enabled: true, Channel: "can0", Bitrate: 1_000_000}
	return NewInterface(telemetry.NewTest(&buf), cfg, ch, db), &buf
}

func TestCANInitialize(t *testing.T) {
	c, _ := newTestCAN(t, &fakeChannel{})
	require.NoError(t, c.Initialize())
	assert.Equal(t, device.Active, c.Status())
}

func TestCANUpdateNonBlockingWithNoFrame(t *testing.T) {
	c, _ := newTestCAN(t, &fakeChannel{})
	require.NoError(t, c.Initialize())

	start := time.Now()
	require.NoError(t, c.Update())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, c.Parameters())
}

func TestCANUpdateDecodesFrame(t *testing.T) {
	ch := &fakeChannel{frames: []*Frame{{ID: 0x100, Data: []byte{0x40, 0x1f}}}}
	c, _ := newTestCAN(t, ch)
	require.NoError(t, c.Initialize())

	require.NoError(t, c.Update())
	v := c.GetData("rpm")
	require.NotNil(t, v)
	assert.InDelta(t, 2000.0, v.(float64), 1e-9)
}

func TestCANUpdateUnknownIDIsNonFatal(t *testing.T) {
	ch := &fakeChannel{frames: []*Frame{{ID: 0x7ff, Data: []byte{1}}}}
	c, buf := newTestCAN(t, ch)
	require.NoError(t, c.Initialize())

	buf.Reset()
	require.NoError(t, c.Update())
	assert.Contains(t, buf.String(), "WARNING")
	assert.Equal(t, device.Active, c.Status())
}

func TestCANStaleCacheClearsUnderUnknownFrames(t *testing.T) {
	ch := &fakeChannel{frames: []*Frame{{ID: 0x100, Data: []byte{0x40, 0x00}}}}
	c, _ := newTestCAN(t, ch)
	require.NoError(t, c.Initialize())

	require.NoError(t, c.Update())
	require.InDelta(t, 16.0, c.GetData("rpm").(float64), 1e-9)

	// The bus keeps delivering traffic the database has no message for, so
	// the cached signals never refresh and must still expire.
	time.Sleep(device.CacheTimeout + 100*time.Millisecond)
	for i := 0; i < 5; i++ {
		ch.frames = append(ch.frames, &Frame{ID: 0x7ff, Data: []byte{1}})
		require.NoError(t, c.Update())
	}
	assert.Nil(t, c.GetData("rpm"))
}

func TestCANSelfDevice(t *testing.T) {
	c, _ := newTestCAN(t, &fakeChannel{})

	assert.Equal(t, []string{"can0"}, c.DeviceNames())
	assert.NotNil(t, c.Device("can0"))
	assert.Nil(t, c.Device("ghost"))
}

func TestCANClose(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := newTestCAN(t, ch)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Close())

	assert.True(t, ch.closed)
	assert.Equal(t, device.Disabled, c.Status())
}
