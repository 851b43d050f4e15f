package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Severity levels for the system log. Values mirror the operator impact:
// CRITICAL for initialization failures, WARNING for transient data loss,
// DEBUG for routine cache misses.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Config holds logger configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	// MinLevel is the lowest severity written to the system log ("debug",
	// "info", "warning", "error", "critical").
	MinLevel string `yaml:"min_level" json:"minLevel"`
}

const (
	maxRowsPerFile = 100_000 // Rotate telemetry after 100k rows
	// Identical (component, message) pairs inside this window are dropped so
	// a stuck sensor cannot flood the system log.
	dedupWindow = 1 * time.Second
)

var telemetryHeader = []string{"timestamp", "device", "parameter", "value", "units"}

// Logger is the dual-sink data logger shared by every component: an
// append-only CSV telemetry file with automatic rotation, and a leveled
// system log. The handle is passed explicitly to each component at
// construction; there is no package-level instance.
type Logger struct {
	mu       sync.Mutex
	dir      string
	enabled  bool
	minLevel Severity

	sys     *log.Logger
	sysFile *os.File

	telFile   *os.File
	telWriter *csv.Writer
	telRows   int

	lastLogged map[string]time.Time
}

// New creates a Logger writing under cfg.Dir. The directory is created if
// missing. A nil error always leaves both sinks usable.
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "./logs"
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("telemetry: mkdir %s: %w", cfg.Dir, err)
	}

	sysPath := filepath.Join(cfg.Dir, "system.log")
	sysFile, err := os.OpenFile(sysPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", sysPath, err)
	}

	l := &Logger{
		dir:        cfg.Dir,
		enabled:    cfg.Enabled,
		minLevel:   parseLevel(cfg.MinLevel),
		sysFile:    sysFile,
		sys:        log.New(io.MultiWriter(os.Stderr, sysFile), "", log.LstdFlags|log.Lmicroseconds),
		lastLogged: make(map[string]time.Time),
	}
	return l, nil
}

// NewTest creates a Logger that writes the system log to w and discards
// telemetry. Used by unit tests to count emitted lines.
func NewTest(w io.Writer) *Logger {
	return &Logger{
		minLevel:   Debug,
		sys:        log.New(w, "", 0),
		lastLogged: make(map[string]time.Time),
	}
}

func parseLevel(s string) Severity {
	switch s {
	case "debug":
		return Debug
	case "warning":
		return Warning
	case "error":
		return Error
	case "critical":
		return Critical
	default:
		return Info
	}
}

// Log writes one system log line attributed to component.
func (l *Logger) Log(sev Severity, component, format string, args ...any) {
	if sev < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := component + "\x00" + msg
	now := time.Now()
	if last, ok := l.lastLogged[key]; ok && now.Sub(last) < dedupWindow {
		return
	}
	l.lastLogged[key] = now

	l.sys.Printf("[%s] %s - %s", component, sev, msg)
}

func (l *Logger) Debugf(component, format string, args ...any) {
	l.Log(Debug, component, format, args...)
}

func (l *Logger) Infof(component, format string, args ...any) {
	l.Log(Info, component, format, args...)
}

func (l *Logger) Warnf(component, format string, args ...any) {
	l.Log(Warning, component, format, args...)
}

func (l *Logger) Errorf(component, format string, args ...any) {
	l.Log(Error, component, format, args...)
}

func (l *Logger) Criticalf(component, format string, args ...any) {
	l.Log(Critical, component, format, args...)
}

// Telemetry appends one timestamped row to the telemetry CSV.
func (l *Logger) Telemetry(device, parameter string, value any, units string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if l.telWriter == nil || l.telRows >= maxRowsPerFile {
		if err := l.rotateTelemetry(time.Now()); err != nil {
			l.sys.Printf("[telemetry] rotate failed: %v", err)
			return
		}
	}

	row := []string{
		time.Now().Format(time.RFC3339Nano),
		device,
		parameter,
		fmt.Sprintf("%v", value),
		units,
	}
	if err := l.telWriter.Write(row); err != nil {
		l.sys.Printf("[telemetry] write failed: %v", err)
		return
	}
	l.telWriter.Flush()
	l.telRows++
}

// SetEnabled toggles telemetry recording at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on {
		l.closeTelemetry()
	}
}

// Close flushes and closes both sinks.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeTelemetry()
	if l.sysFile != nil {
		l.sysFile.Close()
		l.sysFile = nil
	}
}

func (l *Logger) rotateTelemetry(now time.Time) error {
	l.closeTelemetry()

	filename := fmt.Sprintf("telemetry_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	l.telFile = f
	l.telWriter = csv.NewWriter(f)
	l.telRows = 0

	if err := l.telWriter.Write(telemetryHeader); err != nil {
		return err
	}
	l.telWriter.Flush()

	l.sys.Printf("[telemetry] opened %s", path)
	return nil
}

func (l *Logger) closeTelemetry() {
	if l.telWriter != nil {
		l.telWriter.Flush()
		l.telWriter = nil
	}
	if l.telFile != nil {
		l.telFile.Close()
		l.telFile = nil
	}
}
