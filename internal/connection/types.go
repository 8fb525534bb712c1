package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrInvalidState    = errors.New("invalid state")
	ErrNotConnected    = errors.New("not connected")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrSendQueueFull   = errors.New("send queue full")
	ErrManagerClosed   = errors.New("manager closed")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// TransportError reports a failure of the underlying stream: the handshake,
// a read, a write, or the heartbeat.
type TransportError struct {
	Op      string // "dial", "read", "write", "ping"
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State is the lifecycle state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// canTransition reports whether from -> to is an edge of the lifecycle.
func canTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateDisconnected
	case StateConnected:
		return to == StateDisconnected
	}
	return false
}

// MessageType is the WebSocket data frame type of a message.
type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Message is an inbound message with its local receive timestamp.
type Message struct {
	Type       MessageType
	Data       []byte    // Raw payload bytes
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// CloseReason describes how a connection ended.
type CloseReason struct {
	Code   int    // RFC 6455 close code
	Text   string // Close frame reason, if any
	Remote bool   // True if the peer (or the network) ended the connection
}

func (r CloseReason) String() string {
	side := "local"
	if r.Remote {
		side = "remote"
	}
	if r.Text == "" {
		return fmt.Sprintf("%s close %d", side, r.Code)
	}
	return fmt.Sprintf("%s close %d: %s", side, r.Code, r.Text)
}

// StateEvent is published on every lifecycle transition.
type StateEvent struct {
	ConnID      string // Handle ID of the attempt this transition belongs to
	Address     string
	Subprotocol string // Negotiated subprotocol (Connected only)
	Old         State
	New         State
	Err         error // Cause of a transition to Disconnected, if any
	At          time.Time
}

// ManagerConfig configures a Manager and the connections it opens.
type ManagerConfig struct {
	Header           http.Header   // Extra handshake headers
	Subprotocols     []string      // Requested subprotocols, in preference order
	HandshakeTimeout time.Duration // Bound on the opening handshake
	WriteTimeout     time.Duration // Write deadline for each outbound frame
	PingInterval     time.Duration // Keepalive ping period (0 disables pings)
	PongTimeout      time.Duration // Max silence before the connection is stale (0 disables)
	SendQueueSize    int           // Outbound messages buffered per connection
	NotifyQueueSize  int           // Pending observer notifications before reads stall
	ReadLimit        int64         // Max inbound message size in bytes (0 = unlimited)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		SendQueueSize:    256,
		NotifyQueueSize:  1024,
		ReadLimit:        1 << 20,
	}
}

// withDefaults fills zero sizes that would make the manager unusable.
func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendQueueSize < 1 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.NotifyQueueSize < 1 {
		c.NotifyQueueSize = d.NotifyQueueSize
	}
	return c
}

// ManagerStats provides counters about a manager's connections.
type ManagerStats struct {
	State            State
	ConnectAttempts  int64
	ConnectFailures  int64
	Disconnects      int64
	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64
	TransportErrors  int64
}
