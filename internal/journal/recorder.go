package journal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/rickgao/wsclient/internal/connection"
	"github.com/rickgao/wsclient/internal/metrics"
)

// Recorder turns manager notifications into journal entries.
// It implements connection.Observer.
type Recorder struct {
	sessionID string
	queue     *Queue[Entry]
	logger    *slog.Logger
	metrics   *metrics.JournalMetrics
	now       func() time.Time

	mu      sync.Mutex
	connID  string
	seq     int64
	dropped int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRecorderMetrics counts dropped entries.
func WithRecorderMetrics(m *metrics.JournalMetrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates a Recorder with a fresh session ID that pushes onto queue.
func NewRecorder(queue *Queue[Entry], opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sessionID: uuid.NewString(),
		queue:     queue,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionID returns the session this recorder writes under.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Subscribe records state events published on bus.
func (r *Recorder) Subscribe(bus EventBus.BusSubscriber) error {
	return bus.Subscribe(connection.TopicState, r.OnState)
}

// OnState records a lifecycle transition.
func (r *Recorder) OnState(ev connection.StateEvent) {
	e := Entry{Kind: KindState, State: ev.New.String(), At: ev.At}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}

	r.mu.Lock()
	if ev.New == connection.StateConnecting {
		r.connID = ev.ConnID
	}
	r.mu.Unlock()

	r.record(e)
}

func (r *Recorder) OnOpen() {
	r.record(Entry{Kind: KindOpen})
}

func (r *Recorder) OnClose(reason connection.CloseReason) {
	r.record(Entry{
		Kind:      KindClose,
		CloseCode: reason.Code,
		CloseText: reason.Text,
		Remote:    reason.Remote,
	})
}

func (r *Recorder) OnMessage(msg connection.Message) {
	r.record(Entry{
		Kind:        KindMessage,
		MessageType: msg.Type.String(),
		Payload:     msg.Data,
		At:          msg.ReceivedAt,
	})
}

func (r *Recorder) OnError(err error) {
	r.record(Entry{Kind: KindError, Error: err.Error()})
}

func (r *Recorder) record(e Entry) {
	r.mu.Lock()
	r.seq++
	e.SessionID = r.sessionID
	e.ConnID = r.connID
	e.Seq = r.seq
	if e.At.IsZero() {
		e.At = r.now()
	}
	r.mu.Unlock()

	if r.queue.Push(e) {
		return
	}

	r.mu.Lock()
	r.dropped++
	dropped := r.dropped
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Dropped.Inc()
	}
	// Log the first drop and then every 1000th.
	if dropped == 1 || dropped%1000 == 0 {
		r.logger.Warn("journal queue full, dropping entries", "dropped", dropped)
	}
}
