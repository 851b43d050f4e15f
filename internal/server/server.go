// Package server drives the polling loop and publishes the acquired data
// to dashboard clients over WebSocket and a small REST API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openfsae/dds-backend/internal/ddsio"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// PollHz is the orchestrator tick rate.
	PollHz int `yaml:"poll_hz"`
	// BroadcastHz is the dashboard snapshot rate; decoupled from the poll
	// rate so a fast tick does not flood clients.
	BroadcastHz int `yaml:"broadcast_hz"`
}

// Server coordinates the acquisition tick and broadcasts snapshots to
// WebSocket clients.
type Server struct {
	cfg Config
	io  *ddsio.IO
	log *telemetry.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Devices  map[string]map[string]any `json:"devices"`
	Warnings []string                  `json:"warnings"`
	Stamp    int64                     `json:"stamp"` // Unix ms
}

// New creates a Server over io.
func New(cfg Config, io *ddsio.IO, log *telemetry.Logger) *Server {
	if cfg.PollHz <= 0 {
		cfg.PollHz = 100
	}
	if cfg.BroadcastHz <= 0 {
		cfg.BroadcastHz = 10
	}
	return &Server{
		cfg:     cfg,
		io:      io,
		log:     log,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the polling loop and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/data", s.handleData)
	mux.HandleFunc("/api/warnings", s.handleWarnings)

	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Infof("server", "listening on %s", s.cfg.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// pollLoop drives the orchestrator tick and periodically broadcasts a full
// snapshot to connected clients.
func (s *Server) pollLoop(ctx context.Context) {
	pollTicker := time.NewTicker(time.Second / time.Duration(s.cfg.PollHz))
	broadcastTicker := time.NewTicker(time.Second / time.Duration(s.cfg.BroadcastHz))
	defer pollTicker.Stop()
	defer broadcastTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			s.io.Update()
		case <-broadcastTicker.C:
			s.broadcast(s.snapshot())
		}
	}
}

// snapshot renders every device's parameters through the orchestrator's
// lookup path, so clients see the same sentinels the pit does.
func (s *Server) snapshot() Frame {
	devices := make(map[string]map[string]any)
	for _, name := range s.io.DeviceNames() {
		params := make(map[string]any)
		for _, p := range s.io.DeviceParameters(name) {
			params[p] = s.io.GetDeviceData(name, p, "dashboard")
		}
		devices[name] = params
	}
	return Frame{
		Devices:  devices,
		Warnings: s.io.Warnings(),
		Stamp:    time.Now().UnixMilli(),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("server", "websocket upgrade: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	s.log.Infof("server", "dashboard client connected (%d total)", total)

	// Send an immediate snapshot so the dashboard renders without waiting
	// for the next broadcast tick.
	if data, err := json.Marshal(s.snapshot()); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive / disconnect detection)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			s.log.Infof("server", "dashboard client disconnected (%d total)", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	type deviceInfo struct {
		Name       string   `json:"name"`
		Parameters []string `json:"parameters"`
	}
	var out []deviceInfo
	for _, name := range s.io.DeviceNames() {
		out = append(out, deviceInfo{Name: name, Parameters: s.io.DeviceParameters(name)})
	}
	writeJSON(w, out)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	deviceName := r.URL.Query().Get("device")
	param := r.URL.Query().Get("parameter")
	if deviceName == "" || param == "" {
		http.Error(w, "device and parameter are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"device":    deviceName,
		"parameter": param,
		"value":     s.io.GetDeviceData(deviceName, param, "rest"),
	})
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	warnings := s.io.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, warnings)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
