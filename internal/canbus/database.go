// Package canbus decodes frames from the vehicle CAN network into named
// parameters using a YAML signal database, and exposes the whole network as
// one polled interface.
package canbus

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownID is returned by Decode for an arbitration id the database has
// no message for. Unknown ids are expected traffic, not a fault.
var ErrUnknownID = errors.New("canbus: unknown arbitration id")

// Signal describes one field packed into a message's data bytes. Start and
// Length are in bits; ByteOrder is "little" (default) or "big".
type Signal struct {
	Name      string  `yaml:"name"`
	Start     int     `yaml:"start"`
	Length    int     `yaml:"length"`
	ByteOrder string  `yaml:"byte_order"`
	Signed    bool    `yaml:"signed"`
	Factor    float64 `yaml:"factor"`
	Offset    float64 `yaml:"offset"`
	Unit      string  `yaml:"unit"`
}

// Message is one arbitration id and the signals packed into it.
type Message struct {
	ID      uint32   `yaml:"id"`
	Name    string   `yaml:"name"`
	Signals []Signal `yaml:"signals"`
}

// Database maps arbitration ids to message layouts.
type Database struct {
	messages map[uint32]Message
	units    map[string]string
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{
		messages: make(map[uint32]Message),
		units:    make(map[string]string),
	}
}

type databaseFile struct {
	Messages []Message `yaml:"messages"`
}

// LoadFile merges the messages from one YAML database file. A message id
// already present is replaced, so later files override earlier ones.
func (db *Database) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("canbus: read database %s: %w", path, err)
	}
	var file databaseFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("canbus: parse database %s: %w", path, err)
	}
	for _, msg := range file.Messages {
		if len(msg.Signals) == 0 {
			return fmt.Errorf("canbus: message %s (0x%X) in %s has no signals", msg.Name, msg.ID, path)
		}
		for _, sig := range msg.Signals {
			if sig.Name == "" {
				return fmt.Errorf("canbus: message 0x%X in %s has an unnamed signal", msg.ID, path)
			}
			if sig.Length <= 0 || sig.Length > 64 {
				return fmt.Errorf("canbus: signal %s: bad length %d", sig.Name, sig.Length)
			}
			if sig.ByteOrder != "" && sig.ByteOrder != "little" && sig.ByteOrder != "big" {
				return fmt.Errorf("canbus: signal %s: bad byte order %q", sig.Name, sig.ByteOrder)
			}
			db.units[sig.Name] = sig.Unit
		}
		db.messages[msg.ID] = msg
	}
	return nil
}

// Len reports how many message ids the database knows.
func (db *Database) Len() int { return len(db.messages) }

// SignalUnit returns the unit string for a signal name, or "".
func (db *Database) SignalUnit(name string) string { return db.units[name] }

// Decode extracts every signal of the message with arbitration id from
// data. Returns ErrUnknownID when the id has no message definition.
func (db *Database) Decode(id uint32, data []byte) (map[string]float64, error) {
	msg, ok := db.messages[id]
	if !ok {
		return nil, ErrUnknownID
	}
	out := make(map[string]float64, len(msg.Signals))
	for _, sig := range msg.Signals {
		raw, err := extractBits(data, sig.Start, sig.Length, sig.ByteOrder == "big")
		if err != nil {
			return nil, fmt.Errorf("canbus: signal %s of 0x%X: %w", sig.Name, id, err)
		}
		value := float64(raw)
		if sig.Signed && raw&(1<<(sig.Length-1)) != 0 {
			value = float64(int64(raw) - (1 << sig.Length))
		}
		factor := sig.Factor
		if factor == 0 {
			factor = 1
		}
		out[sig.Name] = value*factor + sig.Offset
	}
	return out, nil
}

// extractBits pulls an unsigned field of length bits starting at bit start
// out of data. Little-endian fields count bits LSB-first from byte 0;
// big-endian fields count from the MSB of the start byte (Motorola order).
func extractBits(data []byte, start, length int, bigEndian bool) (uint64, error) {
	if start < 0 || length <= 0 || start+length > len(data)*8 {
		return 0, fmt.Errorf("field [%d,%d) exceeds %d data bytes", start, start+length, len(data))
	}
	var raw uint64
	if bigEndian {
		for i := 0; i < length; i++ {
			bit := start + i
			byteIdx := bit / 8
			bitIdx := 7 - bit%8
			raw = raw<<1 | uint64(data[byteIdx]>>bitIdx&1)
		}
		return raw, nil
	}
	for i := length - 1; i >= 0; i-- {
		bit := start + i
		raw = raw<<1 | uint64(data[bit/8]>>(bit%8)&1)
	}
	return raw, nil
}
