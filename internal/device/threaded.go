package device

import (
	"sync"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Collector is the background half of a threaded-acquisition device: one
// dedicated worker goroutine absorbs the blocking physical read and hands
// the newest full reading to the polling loop through a capacity-1
// overwrite-latest channel. A single failed read never kills acquisition;
// only loop exit while still ACTIVE is fatal.
type Collector[T any] struct {
	name string
	log  *telemetry.Logger
	read func() (T, error)

	// active reports whether the owning device is still ACTIVE; the worker
	// polls it each iteration.
	active func() bool
	// onFatal runs when the worker exits while the device is still ACTIVE.
	onFatal func()

	out      chan T
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a stopped collector. Channels are fresh per
// collector, so a device that wants to restart acquisition builds a new one.
func NewCollector[T any](name string, log *telemetry.Logger, read func() (T, error), active func() bool, onFatal func()) *Collector[T] {
	return &Collector[T]{
		name:    name,
		log:     log,
		read:    read,
		active:  active,
		onFatal: onFatal,
		out:     make(chan T, 1),
		stop:    make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (c *Collector[T]) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *Collector[T]) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if !c.active() {
			// Device left ACTIVE underneath us without a close.
			c.log.Criticalf(c.name, "data collection worker stopped")
			c.onFatal()
			return
		}

		reading, err := c.read()
		if err != nil {
			c.log.Errorf(c.name, "failed to read sensor data: %v", err)
			continue
		}
		c.push(reading)
	}
}

// push replaces any pending reading so the consumer always dequeues the
// freshest sample and memory stays bounded.
func (c *Collector[T]) push(reading T) {
	for {
		select {
		case c.out <- reading:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}

// Latest performs the non-blocking dequeue for the polling loop.
func (c *Collector[T]) Latest() (T, bool) {
	select {
	case r := <-c.out:
		return r, true
	default:
		var zero T
		return zero, false
	}
}

// Close signals the worker to exit and joins it. Safe to call twice.
func (c *Collector[T]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}
