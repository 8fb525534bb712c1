package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TopicState is the event bus topic carrying a StateEvent per transition.
const TopicState = "connection:state"

// Manager owns at most one WebSocket connection at a time.
//
// All lifecycle state lives in a single loop goroutine. Public methods post a
// request to the loop and wait for its reply; transport goroutines post events
// tagged with the ID of the handle they belong to, and events from a handle
// that is no longer live are dropped.
type Manager struct {
	cfg      ManagerConfig
	observer Observer
	logger   *slog.Logger
	bus      EventBus.Bus

	requests   chan request
	events     chan event
	dispatch   chan notification
	dispatched chan struct{}
	quit       chan struct{}
	done       chan struct{}

	closeMu sync.Mutex
	closed  bool

	// Cancelled on Close; bounds in-flight handshakes.
	lifetime context.Context
	cancel   context.CancelFunc

	state atomic.Int32 // mirror of cur for State()
	stats counters

	// Owned by the loop goroutine.
	cur     State
	handle  *handle
	attempt *attempt
	liveID  string
	pending []notification
	busy    bool
}

// attempt is an in-flight Connect.
type attempt struct {
	id      string
	address string
	reply   chan error
}

type requestKind int

const (
	reqConnect requestKind = iota
	reqDisconnect
	reqSend
)

type request struct {
	kind    requestKind
	address string
	msgType MessageType
	data    []byte
	reply   chan error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEventBus publishes state events on bus instead of a private one.
func WithEventBus(bus EventBus.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager creates a Manager in the Disconnected state and starts its loop.
// Close must be called to release it.
func NewManager(cfg ManagerConfig, observer Observer, opts ...Option) *Manager {
	if observer == nil {
		observer = ObserverFuncs{}
	}

	m := &Manager{
		cfg:        cfg.withDefaults(),
		observer:   observer,
		logger:     slog.Default(),
		requests:   make(chan request),
		events:     make(chan event, 64),
		dispatch:   make(chan notification),
		dispatched: make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.bus == nil {
		m.bus = EventBus.New()
	}
	m.lifetime, m.cancel = context.WithCancel(context.Background())

	go m.dispatchLoop()
	go m.run()

	return m
}

// Connect opens a connection to address and waits for the handshake to
// finish. It fails with ErrInvalidState unless the manager is Disconnected.
// A failed handshake returns the *TransportError that is also reported to
// OnError. Cancelling ctx abandons the wait, not the attempt.
func (m *Manager) Connect(ctx context.Context, address string) error {
	req := request{kind: reqConnect, address: address, reply: make(chan error, 1)}

	select {
	case m.requests <- req:
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the live connection with a normal-closure frame. It fails
// with ErrInvalidState when Disconnected or Connecting.
func (m *Manager) Disconnect() error {
	return m.call(request{kind: reqDisconnect})
}

// Send queues a message on the live connection and returns without waiting
// for it to be written. It fails with ErrNotConnected unless Connected.
func (m *Manager) Send(typ MessageType, data []byte) error {
	if typ != TextMessage && typ != BinaryMessage {
		return fmt.Errorf("unsupported message type %v", typ)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return m.call(request{kind: reqSend, msgType: typ, data: payload})
}

// SendText sends a text message.
func (m *Manager) SendText(text string) error {
	return m.Send(TextMessage, []byte(text))
}

// SendBinary sends a binary message.
func (m *Manager) SendBinary(data []byte) error {
	return m.Send(BinaryMessage, data)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns current counters.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		State:            m.State(),
		ConnectAttempts:  m.stats.connectAttempts.Load(),
		ConnectFailures:  m.stats.connectFailures.Load(),
		Disconnects:      m.stats.disconnects.Load(),
		MessagesSent:     m.stats.messagesSent.Load(),
		MessagesReceived: m.stats.messagesReceived.Load(),
		BytesSent:        m.stats.bytesSent.Load(),
		BytesReceived:    m.stats.bytesReceived.Load(),
		TransportErrors:  m.stats.transportErrors.Load(),
	}
}

// Events returns the bus on which a StateEvent is published to TopicState
// for every transition.
func (m *Manager) Events() EventBus.BusSubscriber {
	return m.bus
}

// Close closes any live connection with "going away", delivers the remaining
// notifications and stops the manager. It must not be called from an Observer.
func (m *Manager) Close() error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	m.closeMu.Unlock()

	close(m.quit)
	<-m.done
	return nil
}

// call posts a request to the loop and waits for the reply.
func (m *Manager) call(req request) error {
	req.reply = make(chan error, 1)

	select {
	case m.requests <- req:
	case <-m.done:
		return ErrManagerClosed
	}
	return <-req.reply
}

// run is the event loop.
func (m *Manager) run() {
	defer close(m.done)

	quitting := false
	for {
		var dispatch chan<- notification
		var next notification
		if !m.busy {
			if n, ok := m.nextNotification(); ok {
				dispatch = m.dispatch
				next = n
			}
		}

		if quitting && !m.busy && len(m.pending) == 0 {
			close(m.dispatch)
			return
		}

		// Stop taking transport events while observers are behind.
		events := m.events
		if len(m.pending) >= m.cfg.NotifyQueueSize {
			events = nil
		}

		quit := m.quit
		if quitting {
			quit = nil
		}

		select {
		case req := <-m.requests:
			if quitting {
				req.reply <- ErrManagerClosed
				continue
			}
			m.handleRequest(req)

		case ev := <-events:
			m.handleEvent(ev)

		case dispatch <- next:
			m.pending[0] = notification{}
			m.pending = m.pending[1:]
			m.busy = true

		case <-m.dispatched:
			m.busy = false

		case <-quit:
			quitting = true
			m.shutdown()
		}
	}
}

// dispatchLoop delivers notifications one at a time.
func (m *Manager) dispatchLoop() {
	for n := range m.dispatch {
		m.deliver(n)
		m.dispatched <- struct{}{}
	}
}

func (m *Manager) deliver(n notification) {
	switch n.kind {
	case notifyOpen:
		m.observer.OnOpen()
	case notifyClose:
		m.observer.OnClose(n.reason)
	case notifyMessage:
		m.observer.OnMessage(n.msg)
	case notifyError:
		m.observer.OnError(n.err)
	case notifyState:
		m.bus.Publish(TopicState, n.state)
	}
}

// nextNotification returns the head of the queue, skipping messages from
// connections that are no longer live.
func (m *Manager) nextNotification() (notification, bool) {
	for len(m.pending) > 0 {
		n := m.pending[0]
		if n.kind == notifyMessage && n.connID != m.liveID {
			m.pending[0] = notification{}
			m.pending = m.pending[1:]
			continue
		}
		return n, true
	}
	return notification{}, false
}

func (m *Manager) notify(n notification) {
	m.pending = append(m.pending, n)
}

func (m *Manager) handleRequest(req request) {
	switch req.kind {
	case reqConnect:
		m.connect(req)
	case reqDisconnect:
		req.reply <- m.disconnect()
	case reqSend:
		req.reply <- m.send(req.msgType, req.data)
	}
}

func (m *Manager) handleEvent(ev event) {
	switch ev.kind {
	case eventDialed:
		m.dialed(ev)

	case eventMessage:
		if ev.connID != m.liveID {
			return
		}
		m.notify(notification{kind: notifyMessage, connID: ev.connID, msg: ev.msg})

	case eventFailed:
		if ev.connID != m.liveID {
			return
		}
		m.fail(ev.op, ev.err)
	}
}

func (m *Manager) connect(req request) {
	if m.cur != StateDisconnected {
		req.reply <- fmt.Errorf("%w: connect while %s", ErrInvalidState, m.cur)
		return
	}
	if err := validateAddress(req.address); err != nil {
		req.reply <- err
		return
	}

	a := &attempt{
		id:      uuid.NewString(),
		address: req.address,
		reply:   req.reply,
	}
	m.attempt = a
	m.stats.connectAttempts.Add(1)
	m.transition(StateConnecting, a.id, a.address, "", nil)

	m.logger.Debug("connecting", "conn_id", a.id, "address", a.address)

	go m.dial(a.id, a.address)
}

// dial runs the handshake off the loop and reports the result.
func (m *Manager) dial(id, address string) {
	conn, err := dial(m.lifetime, m.cfg, address)

	select {
	case m.events <- event{kind: eventDialed, connID: id, conn: conn, err: err}:
	case <-m.done:
		if conn != nil {
			conn.Close()
		}
	}
}

func (m *Manager) dialed(ev event) {
	a := m.attempt
	if a == nil || a.id != ev.connID {
		// Abandoned by shutdown.
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}
	m.attempt = nil

	if ev.err != nil {
		terr := &TransportError{Op: "dial", Address: a.address, Err: ev.err}
		m.stats.connectFailures.Add(1)
		m.stats.transportErrors.Add(1)
		m.logger.Warn("connect failed", "conn_id", a.id, "address", a.address, "error", ev.err)

		m.transition(StateDisconnected, a.id, a.address, "", terr)
		m.notify(notification{kind: notifyError, connID: a.id, err: terr})
		a.reply <- terr
		return
	}

	h := newHandle(a.id, a.address, ev.conn, m.cfg, m.events, &m.stats, m.logger.With("conn_id", a.id))
	m.handle = h
	m.liveID = a.id

	m.transition(StateConnected, a.id, a.address, ev.conn.Subprotocol(), nil)
	m.notify(notification{kind: notifyOpen, connID: a.id})
	h.start()

	m.logger.Debug("websocket connected", "conn_id", a.id, "address", a.address, "subprotocol", ev.conn.Subprotocol())
	a.reply <- nil
}

func (m *Manager) disconnect() error {
	if m.cur != StateConnected {
		return fmt.Errorf("%w: disconnect while %s", ErrInvalidState, m.cur)
	}
	m.teardown(CloseReason{Code: websocket.CloseNormalClosure}, nil, websocket.CloseNormalClosure)
	return nil
}

func (m *Manager) send(typ MessageType, data []byte) error {
	if m.cur != StateConnected {
		return ErrNotConnected
	}
	return m.handle.enqueue(typ, data)
}

// fail tears down the live connection after a transport failure. A close
// frame from the peer is an orderly remote closure, not an error.
func (m *Manager) fail(op string, err error) {
	h := m.handle
	reason := CloseReason{Code: websocket.CloseAbnormalClosure, Remote: true}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		reason.Code = ce.Code
		reason.Text = ce.Text
		if ce.Code != websocket.CloseAbnormalClosure {
			m.logger.Info("connection closed by peer", "conn_id", h.id, "code", ce.Code, "text", ce.Text)
			m.teardown(reason, nil, 0)
			return
		}
	}

	terr := &TransportError{Op: op, Address: h.address, Err: err}
	m.stats.transportErrors.Add(1)
	m.logger.Warn("connection error", "conn_id", h.id, "op", op, "error", err)

	m.notify(notification{kind: notifyError, connID: h.id, err: terr})
	m.teardown(reason, terr, 0)
}

// teardown releases the live handle and moves to Disconnected.
func (m *Manager) teardown(reason CloseReason, cause error, code int) {
	h := m.handle
	m.handle = nil
	m.liveID = ""

	h.close(code, reason.Text)
	m.stats.disconnects.Add(1)

	m.transition(StateDisconnected, h.id, h.address, "", cause)
	m.notify(notification{kind: notifyClose, connID: h.id, reason: reason})
}

// shutdown abandons any attempt and closes any live connection.
func (m *Manager) shutdown() {
	m.cancel()

	if a := m.attempt; a != nil {
		m.attempt = nil
		m.transition(StateDisconnected, a.id, a.address, "", ErrManagerClosed)
		a.reply <- ErrManagerClosed
	}
	if m.handle != nil {
		m.teardown(CloseReason{Code: websocket.CloseGoingAway}, nil, websocket.CloseGoingAway)
	}

	m.logger.Debug("connection manager stopped")
}

// transition moves to the next state and queues a StateEvent.
func (m *Manager) transition(to State, connID, address, subprotocol string, cause error) {
	from := m.cur
	if !canTransition(from, to) {
		panic(fmt.Sprintf("connection: illegal transition %s -> %s", from, to))
	}
	m.cur = to
	m.state.Store(int32(to))

	m.notify(notification{
		kind: notifyState,
		state: StateEvent{
			ConnID:      connID,
			Address:     address,
			Subprotocol: subprotocol,
			Old:         from,
			New:         to,
			Err:         cause,
			At:          time.Now(),
		},
	})
}
