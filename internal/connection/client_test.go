package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return mockWSServerWith(t, websocket.Upgrader{}, handler)
}

// mockWSServerWith creates a test WebSocket server using upgrader.
func mockWSServerWith(t *testing.T, upgrader websocket.Upgrader, handler func(*websocket.Conn)) *httptest.Server {
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain reads until the connection fails.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "ws", address: "ws://localhost:8090/ws"},
		{name: "wss", address: "wss://example.com/stream"},
		{name: "http scheme", address: "http://localhost:8090/ws", wantErr: true},
		{name: "no scheme", address: "localhost:8090", wantErr: true},
		{name: "missing host", address: "ws:///ws", wantErr: true},
		{name: "unparseable", address: "ws://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddress(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("validateAddress(%q) = %v, want ErrInvalidAddress", tt.address, err)
				}
				return
			}
			if err != nil {
				t.Errorf("validateAddress(%q) = %v, want nil", tt.address, err)
			}
		})
	}
}

func TestDial_Headers(t *testing.T) {
	headers := make(chan http.Header, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{"chat"}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		drain(conn)
	}))
	defer server.Close()

	cfg := DefaultManagerConfig()
	cfg.Header = http.Header{"X-Token": []string{"abc"}}
	cfg.Subprotocols = []string{"superchat", "chat"}

	conn, err := dial(context.Background(), cfg, wsURL(server))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	got := <-headers
	gotUA, gotToken := got.Get("User-Agent"), got.Get("X-Token")
	if !strings.HasPrefix(gotUA, "wsclient/") {
		t.Errorf("User-Agent = %q, want wsclient/ prefix", gotUA)
	}
	if gotToken != "abc" {
		t.Errorf("X-Token = %q, want abc", gotToken)
	}
	if conn.Subprotocol() != "chat" {
		t.Errorf("Subprotocol = %q, want chat", conn.Subprotocol())
	}
}

func TestDial_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := dial(context.Background(), DefaultManagerConfig(), wsURL(server))
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Errorf("err = %v, want ErrBadHandshake", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestHandle_SendQueueFull(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	cfg := DefaultManagerConfig()
	cfg.SendQueueSize = 1

	conn, err := dial(context.Background(), cfg, wsURL(server))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	// Not started: nothing drains the queue.
	h := newHandle("test", wsURL(server), conn, cfg, make(chan event, 1), &counters{}, discardLogger())
	defer h.close(websocket.CloseNormalClosure, "")

	if err := h.enqueue(TextMessage, []byte("one")); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := h.enqueue(TextMessage, []byte("two")); err != ErrSendQueueFull {
		t.Errorf("second enqueue = %v, want ErrSendQueueFull", err)
	}
}

func TestHandle_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	conn, err := dial(context.Background(), DefaultManagerConfig(), wsURL(server))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	h := newHandle("test", wsURL(server), conn, DefaultManagerConfig(), make(chan event, 1), &counters{}, discardLogger())
	h.start()

	h.close(websocket.CloseNormalClosure, "")
	h.close(websocket.CloseNormalClosure, "") // second close is a no-op

	select {
	case <-h.done:
	default:
		t.Error("expected done to be closed")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateDisconnected, StateConnecting}: true,
		{StateConnecting, StateConnected}:    true,
		{StateConnecting, StateDisconnected}: true,
		{StateConnected, StateDisconnected}:  true,
	}
	states := []State{StateDisconnected, StateConnecting, StateConnected}

	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]State{from, to}]
			if got := canTransition(from, to); got != want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Op: "write", Address: "ws://localhost/ws", Err: io.ErrClosedPipe}

	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("expected TransportError to unwrap to its cause")
	}
	want := "transport write ws://localhost/ws: io: read/write on closed pipe"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCloseReason_String(t *testing.T) {
	if got := (CloseReason{Code: 1000}).String(); got != "local close 1000" {
		t.Errorf("got %q", got)
	}
	if got := (CloseReason{Code: 4000, Text: "bye", Remote: true}).String(); got != "remote close 4000: bye" {
		t.Errorf("got %q", got)
	}
}

func TestDefaultManagerConfig(t *testing.T) {
	cfg := DefaultManagerConfig()
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
	if cfg.PongTimeout != 60*time.Second {
		t.Errorf("PongTimeout = %v, want 60s", cfg.PongTimeout)
	}
	if cfg.SendQueueSize != 256 {
		t.Errorf("SendQueueSize = %d, want 256", cfg.SendQueueSize)
	}

	filled := ManagerConfig{}.withDefaults()
	if filled.SendQueueSize != cfg.SendQueueSize || filled.NotifyQueueSize != cfg.NotifyQueueSize {
		t.Errorf("withDefaults did not fill queue sizes: %+v", filled)
	}
	if filled.PingInterval != 0 {
		t.Errorf("withDefaults should leave PingInterval disabled, got %v", filled.PingInterval)
	}
}
