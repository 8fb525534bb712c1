package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/wsclient/internal/metrics"
)

// BatchSender sends a batch of queries. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig contains configuration for the journal writer.
type WriterConfig struct {
	// Table is the journal table name.
	Table string

	// BatchSize is the number of entries to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// WriteTimeout bounds one batch insert made by the background loops.
	WriteTimeout time.Duration
}

// maxRetainedBatches bounds how many batches of failed rows are kept for
// the next flush.
const maxRetainedBatches = 10

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Table:         "ws_journal",
		BatchSize:     500,
		FlushInterval: time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

// WriterStats holds counters for a writer.
type WriterStats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// Writer drains a Queue of entries into the journal table.
type Writer struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.JournalMetrics

	input *Queue[Entry]
	db    BatchSender

	insertSQL string

	// Batching
	batch   []Entry
	batchMu sync.Mutex
	flushMu sync.Mutex // serializes flushes so rows keep their order

	// Lifecycle. ctx stops the loops; writeCtx carries its values to inserts
	// but is not cancelled by Stop, so an in-flight flush can finish.
	ctx      context.Context
	cancel   context.CancelFunc
	writeCtx context.Context
	wg       sync.WaitGroup

	stats WriterStats
}

// NewWriter creates a Writer. Metrics may be nil.
func NewWriter(cfg WriterConfig, input *Queue[Entry], db BatchSender, m *metrics.JournalMetrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultWriterConfig()
	if cfg.Table == "" {
		cfg.Table = d.Table
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}

	return &Writer{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		input:     input,
		db:        db,
		insertSQL: insertSQL(cfg.Table),
		batch:     make([]Entry, 0, cfg.BatchSize),
	}
}

func insertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (session_id, conn_id, seq, kind, msg_type, payload, close_code, close_text, remote, error, state, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, pgx.Identifier{table}.Sanitize())
}

// Start begins consuming entries and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.writeCtx = context.WithoutCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"table", w.cfg.Table,
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops the loops and writes everything still queued, bounded by ctx.
// A flush already running in a loop is allowed to finish first. Stop returns
// an error if any row could not be written.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out", "queued", w.input.Len())
		return ctx.Err()
	}

	// Final flush of the batch and the queue
	var errs []error
	for _, e := range w.input.DrainTo(0) {
		if w.add(e) {
			if err := w.flush(ctx, true); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := w.flush(ctx, true); err != nil {
		errs = append(errs, err)
	}

	w.logger.Info("journal writer stopped", "inserts", w.Stats().Inserts)
	return errors.Join(errs...)
}

// Stats returns current counters.
func (w *Writer) Stats() WriterStats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves entries from the queue into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		entries := w.input.DrainTo(w.cfg.BatchSize)
		if len(entries) == 0 {
			// Queue empty, wait a bit before trying again
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		for _, e := range entries {
			if w.add(e) {
				w.flushBackground()
			}
		}

		select {
		case <-w.ctx.Done():
			return
		default:
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushBackground()
		}
	}
}

// flushBackground flushes from a loop. Failed rows stay in the batch for
// the next attempt.
func (w *Writer) flushBackground() {
	ctx, cancel := context.WithTimeout(w.writeCtx, w.cfg.WriteTimeout)
	defer cancel()
	w.flush(ctx, false)
}

// add appends an entry and reports whether the batch is full.
func (w *Writer) add(e Entry) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, e)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database. When final is false, a
// failed batch is put back ahead of newer entries, up to maxRetainedBatches;
// otherwise its rows are counted as failed.
func (w *Writer) flush(ctx context.Context, final bool) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Entry, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	elapsed := time.Since(start)

	if err != nil {
		w.batchMu.Lock()
		w.stats.Errors++
		retained := !final && len(batch)+len(w.batch) <= w.cfg.BatchSize*maxRetainedBatches
		if retained {
			w.batch = append(batch, w.batch...)
		}
		w.batchMu.Unlock()

		failed := len(batch)
		if retained {
			failed = 0
		}
		w.logger.Error("journal batch insert failed",
			"error", err,
			"count", len(batch),
			"retained", retained,
		)
		if w.metrics != nil {
			w.metrics.ObserveFlush(failed, failed, elapsed)
		}
		return fmt.Errorf("insert %d journal entries: %w", len(batch), err)
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	if w.metrics != nil {
		w.metrics.ObserveFlush(len(batch), 0, elapsed)
	}

	w.logger.Debug("flushed journal entries",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", elapsed,
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []Entry) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, e := range rows {
		batch.Queue(w.insertSQL, insertArgs(e)...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// insertArgs maps an entry to the insert parameters, using NULL for absent
// optional columns.
func insertArgs(e Entry) []any {
	var remote any
	if e.Kind == KindClose {
		remote = e.Remote
	}
	return []any{
		e.SessionID,
		nullString(e.ConnID),
		e.Seq,
		string(e.Kind),
		nullString(e.MessageType),
		e.Payload,
		nullInt(e.CloseCode),
		nullString(e.CloseText),
		remote,
		nullString(e.Error),
		nullString(e.State),
		e.At,
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
