// Package pcc implements the pit-side remote query protocol: a background
// TCP client that handshakes with the Pit Control Center and answers
// parameter requests from the orchestrator's cache.
package pcc

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Protocol literals exchanged during the handshake.
const (
	helloRequest  = "START_COMMUNICATION_DDS"
	helloResponse = "GOOD_TO_START_COMMUNICATION_PCC"
)

// recvBuffer is the fixed receive size; the protocol has no framing beyond
// one request per recv.
const recvBuffer = 1024

// reconnectDelay is the pause before a fresh connection attempt.
const reconnectDelay = 1 * time.Second

// LookupFunc resolves one (device, parameter) request. It runs inline on
// the client's worker and must not block for long.
type LookupFunc func(deviceName, param, callerTag string) any

// Config holds the pit connection settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// SocketTimeoutSec bounds steady-state reads and writes.
	SocketTimeoutSec int `yaml:"socket_timeout_sec"`
	// ConnectTimeoutSec bounds each dial and handshake step; kept shorter
	// so a dead pit box does not stall the retry loop.
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// Client maintains the connection to the pit and serves its requests.
type Client struct {
	log    *telemetry.Logger
	cfg    Config
	lookup LookupFunc

	socketTimeout  time.Duration
	connectTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a pit client. Zero timeouts get seconds-scale defaults.
func New(log *telemetry.Logger, cfg Config, lookup LookupFunc) *Client {
	if cfg.SocketTimeoutSec <= 0 {
		cfg.SocketTimeoutSec = 10
	}
	if cfg.ConnectTimeoutSec <= 0 {
		cfg.ConnectTimeoutSec = 3
	}
	return &Client{
		log:            log,
		cfg:            cfg,
		lookup:         lookup,
		socketTimeout:  time.Duration(cfg.SocketTimeoutSec) * time.Second,
		connectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		stop:           make(chan struct{}),
	}
}

// Start launches the background connection loop.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the loop to exit, closes any live connection so a pending
// read unblocks immediately, and joins the loop.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) run() {
	defer c.wg.Done()
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		conn, err := c.connect(addr)
		if err != nil {
			c.log.Debugf("pcc", "connect to %s failed: %v", addr, err)
			if !c.sleep(reconnectDelay) {
				return
			}
			continue
		}

		c.log.Infof("pcc", "connected to pit at %s", addr)
		c.setConn(conn)
		err = c.serve(conn)
		c.setConn(nil)
		conn.Close()

		select {
		case <-c.stop:
			return
		default:
		}
		c.log.Warnf("pcc", "connection lost: %v", err)

		if !c.sleep(reconnectDelay) {
			return
		}
	}
}

// connect dials the pit and performs the handshake. Any deviation from the
// expected reply aborts the attempt.
func (c *Client) connect(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, c.connectTimeout)
	if err != nil {
		return nil, err
	}

	conn.SetDeadline(time.Now().Add(c.connectTimeout))
	if _, err := conn.Write([]byte(helloRequest)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	buf := make([]byte, recvBuffer)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	if reply := strings.TrimSpace(string(buf[:n])); reply != helloResponse {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake reply %q", reply)
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}

// serve answers requests until the connection fails. Parse failures count
// as protocol corruption and force a reconnect too.
func (c *Client) serve(conn net.Conn) error {
	buf := make([]byte, recvBuffer)
	for {
		select {
		case <-c.stop:
			return fmt.Errorf("shutting down")
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.socketTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			// An idle pit is not a fault; the deadline only exists so the
			// loop can notice a shutdown request.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("receive request: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("connection closed by pit")
		}

		deviceName, param, err := parseRequest(string(buf[:n]))
		if err != nil {
			c.log.Errorf("pcc", "bad request: %v", err)
			return err
		}

		value := c.lookup(deviceName, param, "pcc")
		reply, err := json.Marshal(value)
		if err != nil {
			reply = []byte("null")
		}

		conn.SetWriteDeadline(time.Now().Add(c.socketTimeout))
		if _, err := conn.Write(reply); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
}

// parseRequest splits "<device>|<parameter>". Exactly one pipe with both
// sides non-empty after trimming is required.
func parseRequest(raw string) (deviceName, param string, err error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, "|")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("request %q: want exactly one '|'", raw)
	}
	deviceName = strings.TrimSpace(parts[0])
	param = strings.TrimSpace(parts[1])
	if deviceName == "" || param == "" {
		return "", "", fmt.Errorf("request %q: empty device or parameter", raw)
	}
	return deviceName, param, nil
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stop:
		return false
	}
}
