package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsclient/internal/config"
	"github.com/rickgao/wsclient/internal/connection"
	"github.com/rickgao/wsclient/internal/database"
	"github.com/rickgao/wsclient/internal/journal"
	"github.com/rickgao/wsclient/internal/metrics"
)

// shutdownTimeout bounds the final journal flush and metrics shutdown.
const shutdownTimeout = 10 * time.Second

// client is a connection manager plus the journal and metrics endpoint
// configured for it.
type client struct {
	manager *connection.Manager
	logger  *slog.Logger

	pool     *pgxpool.Pool
	queue    *journal.Queue[journal.Entry]
	recorder *journal.Recorder
	writer   *journal.Writer

	stopMetrics context.CancelFunc
	group       *errgroup.Group
}

// newClient builds the client stack. observer receives every notification
// ahead of the journal recorder.
func newClient(ctx context.Context, cfg *config.Config, metricsAddr string, observer connection.Observer, logger *slog.Logger) (*client, error) {
	cl := &client{logger: logger}

	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = fmt.Sprintf(":%d", cfg.Metrics.Port)
	}
	var reg *prometheus.Registry
	if metricsAddr != "" {
		reg = metrics.NewRegistry()
	}

	observers := connection.MultiObserver{observer}

	if cfg.Journal.Enabled {
		var registerer prometheus.Registerer
		if reg != nil {
			registerer = reg
		}
		if err := cl.openJournal(ctx, cfg.Journal, registerer); err != nil {
			cl.close()
			return nil, err
		}
		observers = append(observers, cl.recorder)
	}

	cl.manager = connection.NewManager(
		cfg.Connection.ManagerConfig(),
		observers,
		connection.WithLogger(logger),
	)

	if cl.recorder != nil {
		if err := cl.recorder.Subscribe(cl.manager.Events()); err != nil {
			cl.close()
			return nil, fmt.Errorf("subscribe journal: %w", err)
		}
	}

	if reg != nil {
		reg.MustRegister(metrics.NewClientCollector(cl.manager))

		mctx, cancel := context.WithCancel(context.Background())
		cl.stopMetrics = cancel
		cl.group = &errgroup.Group{}
		cl.group.Go(func() error {
			err := metrics.Serve(mctx, metricsAddr, cfg.Metrics.Path, reg, logger)
			if err != nil {
				logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
			return err
		})
	}

	return cl, nil
}

// openJournal connects to PostgreSQL, creates the table and starts the writer.
func (cl *client) openJournal(ctx context.Context, cfg config.JournalConfig, reg prometheus.Registerer) error {
	cl.logger.Info("connecting to journal database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("journal database: %w", err)
	}
	cl.pool = pool

	if err := journal.EnsureSchema(ctx, pool, cfg.Table); err != nil {
		return err
	}

	jm := metrics.NewJournalMetrics(reg)

	initial := cfg.BufferSize / 4
	cl.queue = journal.NewQueue[journal.Entry](initial, cfg.BufferSize)
	if reg != nil {
		reg.MustRegister(metrics.NewQueueCollector(cl.queue))
	}
	cl.recorder = journal.NewRecorder(cl.queue,
		journal.WithRecorderLogger(cl.logger),
		journal.WithRecorderMetrics(jm),
	)

	cl.writer = journal.NewWriter(journal.WriterConfig{
		Table:         cfg.Table,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, cl.queue, pool, jm, cl.logger)

	if err := cl.writer.Start(context.Background()); err != nil {
		return fmt.Errorf("start journal writer: %w", err)
	}

	cl.logger.Info("journal enabled", "session_id", cl.recorder.SessionID(), "table", cfg.Table)
	return nil
}

// close stops the manager first so its last notifications reach the journal,
// then flushes the journal and stops the metrics endpoint.
func (cl *client) close() error {
	var errs []error

	if cl.manager != nil {
		if err := cl.manager.Close(); err != nil && !errors.Is(err, connection.ErrManagerClosed) {
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if cl.writer != nil {
		if err := cl.writer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop journal writer: %w", err))
		}
		if dropped := cl.recorder.Dropped(); dropped > 0 {
			cl.logger.Warn("journal entries dropped", "count", dropped)
		}
		if left := cl.queue.Len(); left > 0 {
			cl.logger.Warn("journal entries left unwritten", "count", left)
		}
	}
	if cl.queue != nil {
		cl.queue.Close()
	}
	if cl.pool != nil {
		cl.pool.Close()
	}

	if cl.stopMetrics != nil {
		cl.stopMetrics()
		if err := cl.group.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitSent polls until the manager has written target messages, the
// connection drops, or timeout elapses. Send only queues; this lets a
// one-shot caller disconnect without cutting off its own writes.
func waitSent(ctx context.Context, m *connection.Manager, target int64, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		stats := m.Stats()
		if stats.MessagesSent >= target {
			return true
		}
		if stats.State != connection.StateConnected {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}
