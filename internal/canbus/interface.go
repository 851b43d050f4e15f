package canbus

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// receiveTimeout bounds the per-tick wait for a pending frame. The polling
// loop runs much faster than any message period, so a short wait suffices.
const receiveTimeout = 100 * time.Microsecond

// linkTimeout bounds each OS command during link bring-up.
const linkTimeout = 3 * time.Second

// Config holds the CAN interface settings.
type Config struct {
	Enabled    bool     `yaml:"enabled"`
	Channel    string   `yaml:"channel"`
	Bitrate    int      `yaml:"bitrate"`
	TxQueueLen int      `yaml:"txqueuelen"`
	Databases  []string `yaml:"databases"`
}

// CANInterface is the vehicle CAN network as one polled unit. Unlike the
// I2C backend there is no per-chip device layer: the network itself is both
// the interface and its single logical device, with one cached parameter
// per decoded signal.
type CANInterface struct {
	*device.State
	log *telemetry.Logger
	cfg Config
	ch  Channel
	db  *Database
}

// NewInterface creates a CAN interface reading ch and decoding with db.
func NewInterface(log *telemetry.Logger, cfg Config, ch Channel, db *Database) *CANInterface {
	return &CANInterface{
		State: device.NewState(cfg.Channel, log),
		log:   log,
		cfg:   cfg,
		ch:    ch,
		db:    db,
	}
}

// Initialize opens the channel, bringing the link up through the OS when
// the first open attempt fails.
func (c *CANInterface) Initialize() error {
	if err := c.ch.Open(); err != nil {
		c.log.Warnf(c.Name(), "open failed (%v), attempting link bring-up", err)
		if upErr := c.bringUpLink(); upErr != nil {
			return fmt.Errorf("can %s: bring up link: %w", c.Name(), upErr)
		}
		if err := c.ch.Open(); err != nil {
			return fmt.Errorf("can %s: open after bring-up: %w", c.Name(), err)
		}
	}
	c.SetStatus(device.Active)
	return nil
}

// bringUpLink configures and enables the SocketCAN link with ip(8).
func (c *CANInterface) bringUpLink() error {
	ctx, cancel := context.WithTimeout(context.Background(), linkTimeout)
	defer cancel()
	up := exec.CommandContext(ctx, "ip", "link", "set", c.cfg.Channel,
		"up", "type", "can", "bitrate", strconv.Itoa(c.cfg.Bitrate))
	if out, err := up.CombinedOutput(); err != nil {
		return fmt.Errorf("ip link set up: %w (%s)", err, out)
	}

	if c.cfg.TxQueueLen > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), linkTimeout)
		defer cancel()
		ql := exec.CommandContext(ctx, "ip", "link", "set", c.cfg.Channel,
			"txqueuelen", strconv.Itoa(c.cfg.TxQueueLen))
		if out, err := ql.CombinedOutput(); err != nil {
			return fmt.Errorf("ip link set txqueuelen: %w (%s)", err, out)
		}
	}
	c.log.Infof(c.Name(), "link %s up at %d bit/s", c.cfg.Channel, c.cfg.Bitrate)
	return nil
}

// Update drains at most one pending frame. No pending frame only ages the
// cache; an id missing from the database logs a WARNING and is skipped.
func (c *CANInterface) Update() error {
	frame, err := c.ch.Receive(receiveTimeout)
	if err != nil {
		return fmt.Errorf("can %s: %w", c.Name(), err)
	}
	if frame == nil {
		c.CheckTimeout()
		return nil
	}

	signals, err := c.db.Decode(frame.ID, frame.Data)
	if err != nil {
		c.log.Warnf(c.Name(), "cannot decode frame 0x%X: %v", frame.ID, err)
		// An undecodable frame refreshed nothing, so the cache still ages.
		c.CheckTimeout()
		return nil
	}
	for name, value := range signals {
		c.Put(name, value)
		c.log.Telemetry(c.Name(), name, value, c.db.SignalUnit(name))
	}
	c.MarkFresh()
	return nil
}

// Close disconnects from the channel.
func (c *CANInterface) Close() error {
	c.SetStatus(device.Disabled)
	return c.ch.Close()
}

// DeviceNames reports the network as its own single device.
func (c *CANInterface) DeviceNames() []string { return []string{c.Name()} }

// Device returns the interface itself when name matches.
func (c *CANInterface) Device(name string) device.Device {
	if name == c.Name() {
		return c
	}
	return nil
}
