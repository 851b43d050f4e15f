// Package gps reads NMEA 0183 sentences from a UART receiver and exposes
// the fix as a cached device. Compatible with u-blox NEO-M8N and any
// standard NMEA GPS.
package gps

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Fix holds one decoded GPS fix.
type Fix struct {
	Valid      bool
	Latitude   float64 // decimal degrees
	Longitude  float64 // decimal degrees
	Speed      float64 // km/h
	Heading    float64 // degrees true
	Altitude   float64 // meters
	Satellites int
	FixQuality int // 0=none, 1=GPS, 2=DGPS
	HDOP       float64
	Timestamp  string // UTC hhmmss.ss
}

// Receiver is the serial transport beneath the GPS device.
type Receiver interface {
	Connect() error
	// ReadFix blocks briefly, scanning sentences until an RMC/GGA pair is
	// decoded or the line budget runs out.
	ReadFix() (*Fix, error)
	Close() error
}

// NMEAReceiver reads sentences from a serial port.
type NMEAReceiver struct {
	portPath string
	baudRate int
	port     serial.Port
	scanner  *bufio.Scanner
	last     Fix
}

// NewNMEAReceiver creates a receiver on portPath. A zero baud rate uses the
// NMEA default of 9600.
func NewNMEAReceiver(portPath string, baudRate int) *NMEAReceiver {
	if baudRate == 0 {
		baudRate = 9600
	}
	return &NMEAReceiver{portPath: portPath, baudRate: baudRate}
}

func (n *NMEAReceiver) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)
	n.port = port
	n.scanner = bufio.NewScanner(port)
	return nil
}

func (n *NMEAReceiver) Close() error {
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}

// ReadFix reads up to 20 lines looking for an RMC + GGA pair. Fields that
// did not arrive keep their previous values.
func (n *NMEAReceiver) ReadFix() (*Fix, error) {
	if n.scanner == nil {
		return nil, fmt.Errorf("gps: not connected")
	}

	gotRMC := false
	gotGGA := false
	for i := 0; i < 20 && !(gotRMC && gotGGA); i++ {
		if !n.scanner.Scan() {
			if err := n.scanner.Err(); err != nil {
				return nil, fmt.Errorf("gps: read %s: %w", n.portPath, err)
			}
			break
		}
		line := strings.TrimSpace(n.scanner.Text())
		if !strings.HasPrefix(line, "$") || !validateChecksum(line) {
			continue
		}

		if strings.HasPrefix(line, "$GPRMC") || strings.HasPrefix(line, "$GNRMC") {
			n.parseRMC(line)
			gotRMC = true
		} else if strings.HasPrefix(line, "$GPGGA") || strings.HasPrefix(line, "$GNGGA") {
			n.parseGGA(line)
			gotGGA = true
		}
	}

	fix := n.last
	return &fix, nil
}

func (n *NMEAReceiver) parseRMC(line string) {
	// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
	parts := splitSentence(line)
	if len(parts) < 10 {
		return
	}

	n.last.Timestamp = parts[1]
	n.last.Valid = parts[2] == "A"

	if n.last.Valid {
		n.last.Latitude = parseCoord(parts[3], parts[4])
		n.last.Longitude = parseCoord(parts[5], parts[6])

		if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
			n.last.Speed = spd * 1.852 // knots to km/h
		}
		if hdg, err := strconv.ParseFloat(parts[8], 64); err == nil {
			n.last.Heading = hdg
		}
	}
}

func (n *NMEAReceiver) parseGGA(line string) {
	// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
	parts := splitSentence(line)
	if len(parts) < 11 {
		return
	}

	if fix, err := strconv.Atoi(parts[6]); err == nil {
		n.last.FixQuality = fix
	}
	if sats, err := strconv.Atoi(parts[7]); err == nil {
		n.last.Satellites = sats
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		n.last.HDOP = hdop
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		n.last.Altitude = alt
	}
}

// splitSentence splits a sentence and strips the $ prefix and checksum
// suffix.
func splitSentence(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// parseCoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseCoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(val / 100)
	min := val - deg*100
	result := deg + min/60

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// validateChecksum checks the XOR checksum after *.
func validateChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx]
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
