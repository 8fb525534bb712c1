package echo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/wsclient/internal/config"
	"github.com/rickgao/wsclient/internal/metrics"
	"github.com/rickgao/wsclient/internal/version"
)

// Server is the echo WebSocket server.
type Server struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	metrics *metrics.ServerMetrics

	registry    *prometheus.Registry
	metricsPath string

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]string // conn -> id
	closing  bool
	handlers sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics registers the server metrics with reg. A non-empty path also
// serves reg on the server's own router.
func WithMetrics(reg *prometheus.Registry, path string) Option {
	return func(s *Server) {
		s.registry = reg
		s.metricsPath = path
	}
}

// NewServer creates a server from cfg.
func NewServer(cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		conns:  make(map[*websocket.Conn]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	var reg prometheus.Registerer
	if s.registry != nil {
		reg = s.registry
	}
	s.metrics = metrics.NewServerMetrics(reg)

	// Subprotocols stays nil: the negotiated value is passed as a response
	// header so server preference order applies.
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			s.metrics.UpgradeFailures.Inc()
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "status", status, "error", reason)
			http.Error(w, http.StatusText(status), status)
		},
	}

	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.logger))

	r.GET(s.cfg.Path, s.handleWebSocket)
	r.GET("/healthz", s.handleHealth)
	if s.registry != nil && s.metricsPath != "" {
		r.GET(s.metricsPath, gin.WrapH(metrics.Handler(s.registry)))
	}

	return r
}

// Run serves on cfg.Listen until ctx is cancelled, then closes every open
// connection with "going away".
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting echo server",
			"listen", s.cfg.Listen,
			"path", s.cfg.Path,
			"subprotocols", s.cfg.Subprotocols,
			"echo", s.cfg.EchoEnabled(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Shutdown(shutdownCtx)
	if lerr := <-errCh; !errors.Is(lerr, http.ErrServerClosed) && err == nil {
		err = lerr
	}
	return err
}

// Shutdown closes every open connection with "going away" and waits for
// their handlers to return, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("echo server shutdown timed out")
	}
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.ActiveConnections(),
		"version":     version.Version,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	requested := websocket.Subprotocols(c.Request)
	protocol := negotiateSubprotocol(s.cfg.Subprotocols, requested)

	var header http.Header
	if protocol != "" {
		header = http.Header{"Sec-Websocket-Protocol": []string{protocol}}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		// The upgrader has already replied.
		return
	}

	id := uuid.NewString()
	if !s.track(conn, id) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer s.untrack(conn)

	logger := s.logger.With("conn_id", id, "remote", conn.RemoteAddr().String())
	logger.Info("client connected", "requested", requested, "subprotocol", protocol)

	start := time.Now()
	s.metrics.Opened(protocol)
	defer s.metrics.Closed(start)

	s.serve(conn, logger)
}

// serve reads until the connection ends, echoing data messages.
func (s *Server) serve(conn *websocket.Conn, logger *slog.Logger) {
	defer conn.Close()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
				logger.Info("client disconnected", "code", ce.Code, "text", ce.Text)
			} else {
				logger.Info("client connection lost", "error", err)
			}
			return
		}

		kind := messageKind(typ)
		s.metrics.Received(kind, len(data))
		if typ == websocket.TextMessage {
			logger.Info("text message", "payload", string(data))
		} else {
			logger.Info("binary message", "bytes", len(data))
		}

		if !s.cfg.EchoEnabled() {
			continue
		}

		if s.cfg.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := conn.WriteMessage(typ, data); err != nil {
			logger.Warn("echo write failed", "error", err)
			return
		}
		s.metrics.Sent(kind, len(data))
	}
}

func (s *Server) track(conn *websocket.Conn, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = id
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.handlers.Done()
}

func messageKind(typ int) string {
	if typ == websocket.BinaryMessage {
		return "binary"
	}
	return "text"
}

// accessLog logs each HTTP request once it completes.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		if status >= 500 {
			logger.Error("request completed with error", attrs...)
		} else if status >= 400 {
			logger.Warn("request completed with client error", attrs...)
		} else {
			logger.Debug("request completed", attrs...)
		}
	}
}
