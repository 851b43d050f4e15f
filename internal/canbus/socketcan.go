package canbus

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/brutella/can"
)

// Channel is one CAN channel the interface can poll. Receive returns a nil
// frame with a nil error when nothing arrived inside the timeout.
type Channel interface {
	Open() error
	Receive(timeout time.Duration) (*Frame, error)
	Close() error
}

// Frame is one received CAN frame.
type Frame struct {
	ID   uint32
	Data []byte
}

// receiveBuffer bounds how many undrained frames a channel holds before the
// oldest are dropped.
const receiveBuffer = 256

// SocketCANChannel reads frames from a Linux SocketCAN interface. The
// brutella/can bus delivers frames on its own goroutine; they are staged in
// a bounded channel so Receive stays a cheap bounded wait.
type SocketCANChannel struct {
	name string

	mu     sync.Mutex
	bus    *can.Bus
	frames chan *Frame
	done   chan struct{}
}

// NewSocketCANChannel creates a channel for the named network interface,
// e.g. "can0".
func NewSocketCANChannel(name string) *SocketCANChannel {
	return &SocketCANChannel{name: name}
}

// Open connects to the SocketCAN interface and starts receiving.
func (c *SocketCANChannel) Open() error {
	iface, err := net.InterfaceByName(c.name)
	if err != nil {
		return fmt.Errorf("canbus: interface %s: %w", c.name, err)
	}
	conn, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return fmt.Errorf("canbus: open %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bus = can.NewBus(conn)
	c.frames = make(chan *Frame, receiveBuffer)
	c.done = make(chan struct{})
	c.bus.SubscribeFunc(c.handleFrame)

	go func() {
		c.bus.ConnectAndPublish()
		close(c.done)
	}()
	return nil
}

func (c *SocketCANChannel) handleFrame(f can.Frame) {
	data := make([]byte, f.Length)
	copy(data, f.Data[:f.Length])
	frame := &Frame{ID: f.ID, Data: data}
	for {
		select {
		case c.frames <- frame:
			return
		default:
		}
		// Buffer full: drop the oldest frame, fresh data wins.
		select {
		case <-c.frames:
		default:
		}
	}
}

// Receive returns the next staged frame, waiting at most timeout. Nothing
// pending is (nil, nil).
func (c *SocketCANChannel) Receive(timeout time.Duration) (*Frame, error) {
	c.mu.Lock()
	frames, done := c.frames, c.done
	c.mu.Unlock()
	if frames == nil {
		return nil, fmt.Errorf("canbus: channel %s not open", c.name)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-frames:
		return f, nil
	case <-done:
		return nil, fmt.Errorf("canbus: channel %s receive loop exited", c.name)
	case <-timer.C:
		return nil, nil
	}
}

// Close disconnects from the interface.
func (c *SocketCANChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return nil
	}
	err := c.bus.Disconnect()
	c.bus = nil
	return err
}
