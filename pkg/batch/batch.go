package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// FlushFunc hands a batch for one channel to the sender.
type FlushFunc[T any] func(ctx context.Context, ch channel.Name, items []T)

// SizeFunc returns the maximum batch size of a channel.
type SizeFunc func(ch channel.Name) int

type group[T any] struct {
	items []T
	timer *time.Timer
	// gen identifies the current window so a stale timer does not flush a
	// newer group.
	gen uint64
}

// Coordinator groups items per channel into batches of at most the channel's
// size. A batch is flushed when it is full or when the window since its first
// item has passed, whichever comes first.
type Coordinator[T any] struct {
	mu     sync.Mutex
	groups map[channel.Name]*group[T]
	size   SizeFunc
	window time.Duration
	flush  FlushFunc[T]
	wg     sync.WaitGroup
	gen    uint64
	closed bool
	log    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	window time.Duration
	log    *slog.Logger
}

// WithWindow sets how long a partial batch may wait. Default 100ms.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns a Coordinator that calls flush for every batch.
func New[T any](size SizeFunc, flush FlushFunc[T], opts ...Option) *Coordinator[T] {
	o := options{window: 100 * time.Millisecond, log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator[T]{
		groups: make(map[channel.Name]*group[T]),
		size:   size,
		window: o.window,
		flush:  flush,
		log:    o.log.With(logger.Component("batch")),
	}
}

// Add queues item for ch. When the batch becomes full it is flushed on the
// caller's goroutine before Add returns; otherwise the window timer flushes
// it later. Add after Close flushes item alone.
func (c *Coordinator[T]) Add(ctx context.Context, ch channel.Name, item T) {
	size := max(c.size(ch), 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.flush(ctx, ch, []T{item})
		return
	}

	g := c.groups[ch]
	if g == nil {
		c.gen++
		g = &group[T]{gen: c.gen, items: make([]T, 0, size)}
		c.groups[ch] = g
		if size > 1 {
			gen := g.gen
			flushCtx := context.WithoutCancel(ctx)
			c.wg.Add(1)
			g.timer = time.AfterFunc(c.window, func() {
				defer c.wg.Done()
				c.expire(flushCtx, ch, gen)
			})
		}
	}
	g.items = append(g.items, item)

	var full []T
	if len(g.items) >= size {
		full = c.take(ch, g)
	}
	c.mu.Unlock()

	if full != nil {
		c.log.LogAttrs(ctx, slog.LevelDebug, "batch full", logger.Channel(string(ch)), logger.Count(len(full)))
		c.flush(ctx, ch, full)
	}
}

// Flush sends every pending batch now.
func (c *Coordinator[T]) Flush(ctx context.Context) {
	c.mu.Lock()
	batches := make(map[channel.Name][]T, len(c.groups))
	for ch, g := range c.groups {
		batches[ch] = c.take(ch, g)
	}
	c.mu.Unlock()

	for ch, items := range batches {
		c.flush(ctx, ch, items)
	}
}

// Close flushes pending batches and waits for window flushes in progress.
func (c *Coordinator[T]) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Flush(ctx)
	c.wg.Wait()
}

// Pending returns how many items wait for ch.
func (c *Coordinator[T]) Pending(ch channel.Name) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g := c.groups[ch]; g != nil {
		return len(g.items)
	}
	return 0
}

func (c *Coordinator[T]) expire(ctx context.Context, ch channel.Name, gen uint64) {
	c.mu.Lock()
	g := c.groups[ch]
	if g == nil || g.gen != gen {
		c.mu.Unlock()
		return
	}
	items := c.take(ch, g)
	c.mu.Unlock()

	c.log.LogAttrs(ctx, slog.LevelDebug, "batch window elapsed", logger.Channel(string(ch)), logger.Count(len(items)))
	c.flush(ctx, ch, items)
}

// take detaches g. Must hold c.mu.
func (c *Coordinator[T]) take(ch channel.Name, g *group[T]) []T {
	delete(c.groups, ch)
	if g.timer != nil && g.timer.Stop() {
		c.wg.Done()
	}
	return g.items
}

// Plan splits items into consecutive batches of at most size.
func Plan[T any](items []T, size int) [][]T {
	size = max(size, 1)
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
