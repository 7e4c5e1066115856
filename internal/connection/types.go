package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrBadMessage      = errors.New("malformed message")
)

// Inbound event names.
const (
	EventSelectCell = "select_cell"
)

// Message is an inbound frame: {"event": "...", "data": {...}}.
type Message struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"-"`
}

// SelectCell is the payload of a select_cell event.
// Pointers distinguish a missing coordinate from zero.
type SelectCell struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

// DecodeSelectCell parses a select_cell payload.
func DecodeSelectCell(data json.RawMessage) (row, col int, err error) {
	var p SelectCell
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	if p.Row == nil || p.Col == nil {
		return 0, 0, fmt.Errorf("%w: row and col are required", ErrBadMessage)
	}
	return *p.Row, *p.Col, nil
}

// Config configures observer connections.
type Config struct {
	WriteTimeout time.Duration // Write deadline for sends
	PingInterval time.Duration // How often the server pings
	PongTimeout  time.Duration // Max time without a pong before the peer is dropped
	MaxMessage   int64         // Max inbound frame size in bytes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		MaxMessage:   4096,
	}
}
