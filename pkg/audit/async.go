package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// BatchWriter stores entries in bulk. It should be idempotent on Entry.ID,
// since a batch may be written again after a partial failure.
type BatchWriter interface {
	StoreBatch(ctx context.Context, entries []Entry) error
}

// BatchWriterFunc adapts a function to BatchWriter.
type BatchWriterFunc func(ctx context.Context, entries []Entry) error

func (f BatchWriterFunc) StoreBatch(ctx context.Context, entries []Entry) error {
	return f(ctx, entries)
}

// Config controls batching and buffering.
type Config struct {
	Service        string        `env:"AUDIT_SERVICE" envDefault:"dispatchd"`
	BufferSize     int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	BatchTimeout   time.Duration `env:"AUDIT_BATCH_TIMEOUT" envDefault:"100ms"`
	StorageTimeout time.Duration `env:"AUDIT_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	return c
}

// AsyncWriter is a tracker.EventSink that ships events to a BatchWriter in
// the background. Record never waits on storage unless the buffer is full,
// in which case the entry is written synchronously so it is not lost.
type AsyncWriter struct {
	writer   BatchWriter
	cfg      Config
	redactor Redactor
	log      *slog.Logger

	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ tracker.EventSink = (*AsyncWriter)(nil)

// Option configures an AsyncWriter.
type Option func(*AsyncWriter)

func WithLogger(log *slog.Logger) Option {
	return func(w *AsyncWriter) {
		if log != nil {
			w.log = log
		}
	}
}

func WithRedactor(r Redactor) Option {
	return func(w *AsyncWriter) { w.redactor = r }
}

// NewAsyncWriter starts the background flusher. Close must be called to
// flush pending entries.
func NewAsyncWriter(bw BatchWriter, cfg Config, opts ...Option) (*AsyncWriter, error) {
	if bw == nil {
		return nil, ErrNilWriter
	}
	cfg = cfg.withDefaults()
	w := &AsyncWriter{
		writer:   bw,
		cfg:      cfg,
		redactor: DefaultRedactor(),
		log:      slog.Default(),
		entries:  make(chan Entry, cfg.BufferSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.worker()
	return w, nil
}

// Record implements tracker.EventSink.
func (w *AsyncWriter) Record(ctx context.Context, ev tracker.Event) {
	ev.Error = w.redactor.Redact(ev.Error)
	entry := NewEntry(ev, w.cfg.Service)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.LogAttrs(ctx, slog.LevelWarn, "audit writer closed, event dropped",
			logger.RequestID(ev.RequestID), logger.Event(string(ev.Trigger)))
		return
	}

	select {
	case w.entries <- entry:
	default:
		w.store(context.WithoutCancel(ctx), []Entry{entry})
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	batch := make([]Entry, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.store(context.Background(), batch)
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.entries:
			batch = append(batch, e)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case e := <-w.entries:
					batch = append(batch, e)
					if len(batch) >= w.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) store(ctx context.Context, entries []Entry) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StorageTimeout)
	defer cancel()

	if err := w.writer.StoreBatch(ctx, entries); err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "audit batch write failed",
			logger.Count(len(entries)), logger.Error(err))
	}
}

// Close stops accepting events and flushes what is buffered. If ctx ends
// first, the flush continues in the background and ctx.Err() is returned.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
