package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/wsclient/internal/version"
)

// eventKind enumerates what transport goroutines report to the manager loop.
type eventKind int

const (
	eventDialed  eventKind = iota // handshake finished (conn or err set)
	eventMessage                  // inbound data message
	eventFailed                   // read, write or heartbeat failure
)

// event is posted by transport goroutines to the manager loop.
type event struct {
	kind   eventKind
	connID string
	conn   *websocket.Conn // eventDialed only
	msg    Message
	op     string
	err    error
}

// outbound is a queued data frame.
type outbound struct {
	typ  MessageType
	data []byte
}

// counters are shared between the manager loop and its handles.
type counters struct {
	connectAttempts  atomic.Int64
	connectFailures  atomic.Int64
	disconnects      atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	transportErrors  atomic.Int64
}

// validateAddress checks that address is a ws or wss URL with a host.
func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q (want ws or wss)", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}
	return nil
}

// dial performs the opening handshake.
func dial(ctx context.Context, cfg ManagerConfig, address string) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", version.UserAgent())
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     cfg.Subprotocols,
	}

	conn, resp, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// handle is one open WebSocket connection, exclusively owned by a Manager.
type handle struct {
	id      string
	address string
	cfg     ManagerConfig
	logger  *slog.Logger
	conn    *websocket.Conn
	stats   *counters

	events chan<- event
	out    chan outbound
	done   chan struct{}
	once   sync.Once

	// Unix nanos of the last pong, ping or data frame from the peer.
	lastSeen atomic.Int64
}

func newHandle(id, address string, conn *websocket.Conn, cfg ManagerConfig, events chan<- event, stats *counters, logger *slog.Logger) *handle {
	h := &handle{
		id:      id,
		address: address,
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		stats:   stats,
		events:  events,
		out:     make(chan outbound, cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
	h.touch(time.Now())

	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		h.touch(time.Now())
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		h.touch(time.Now())
		return nil
	})

	return h
}

// start launches the read, write and heartbeat goroutines.
func (h *handle) start() {
	go h.readLoop()
	go h.writeLoop()
	go h.heartbeatLoop()
}

func (h *handle) touch(t time.Time) {
	h.lastSeen.Store(t.UnixNano())
}

// post hands an event to the manager loop unless the handle is closed.
func (h *handle) post(ev event) {
	ev.connID = h.id
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// enqueue queues a data frame without blocking.
func (h *handle) enqueue(typ MessageType, data []byte) error {
	select {
	case h.out <- outbound{typ: typ, data: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// close stops the goroutines and closes the socket. A non-zero code sends a
// close frame first.
func (h *handle) close(code int, text string) {
	h.once.Do(func() {
		close(h.done)

		if code != 0 {
			msg := websocket.FormatCloseMessage(code, text)
			if err := h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
				h.logger.Debug("failed to send close frame", "error", err)
			}
		}
		if err := h.conn.Close(); err != nil {
			h.logger.Debug("close socket", "error", err)
		}
	})
}

// readLoop reads messages from the WebSocket and posts them to the manager.
func (h *handle) readLoop() {
	for {
		typ, data, err := h.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			h.post(event{kind: eventFailed, op: "read", err: err})
			return
		}

		h.touch(receivedAt)
		h.stats.messagesReceived.Add(1)
		h.stats.bytesReceived.Add(int64(len(data)))

		h.post(event{
			kind: eventMessage,
			msg: Message{
				Type:       MessageType(typ),
				Data:       data,
				ReceivedAt: receivedAt,
			},
		})

		select {
		case <-h.done:
			return
		default:
		}
	}
}

// writeLoop is the only writer of data frames on the socket.
func (h *handle) writeLoop() {
	for {
		select {
		case <-h.done:
			return
		case m := <-h.out:
			if err := h.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.post(event{kind: eventFailed, op: "write", err: err})
				return
			}
			if err := h.conn.WriteMessage(int(m.typ), m.data); err != nil {
				h.post(event{kind: eventFailed, op: "write", err: err})
				return
			}
			h.stats.messagesSent.Add(1)
			h.stats.bytesSent.Add(int64(len(m.data)))
		}
	}
}

// heartbeatLoop pings the peer and detects stale connections.
func (h *handle) heartbeatLoop() {
	if h.cfg.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := h.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "error", err)
			}

			if h.cfg.PongTimeout <= 0 {
				continue
			}
			lastSeen := time.Unix(0, h.lastSeen.Load())
			if time.Since(lastSeen) > h.cfg.PongTimeout {
				h.logger.Warn("no pong received, connection stale",
					"last_seen", lastSeen,
					"timeout", h.cfg.PongTimeout,
				)
				h.post(event{kind: eventFailed, op: "ping", err: ErrStaleConnection})
				return
			}
		}
	}
}
