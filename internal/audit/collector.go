// Package audit buffers audit events off the request path and flushes them to
// the AuditStore in batches.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	defaultBatchSize     = 200
)

// Emitter accepts audit events without blocking.
type Emitter interface {
	Emit(ev store.AuditEvent)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(store.AuditEvent) {}

// Collector buffers events in memory and periodically batch-inserts them.
// Emit never blocks: when the buffer is full the event is dropped and logged.
type Collector struct {
	store store.AuditStore

	eventCh  chan store.AuditEvent
	stopCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	dropped int
}

// Option customizes a Collector.
type Option func(*Collector)

// WithFlushInterval overrides the periodic flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Collector) { c.interval = d }
}

// WithBufferSize overrides the channel capacity.
func WithBufferSize(n int) Option {
	return func(c *Collector) { c.eventCh = make(chan store.AuditEvent, n) }
}

// NewCollector creates a collector backed by the given store.
func NewCollector(as store.AuditStore, opts ...Option) *Collector {
	c := &Collector{
		store:    as,
		eventCh:  make(chan store.AuditEvent, defaultBufferSize),
		stopCh:   make(chan struct{}),
		interval: defaultFlushInterval,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.flushLoop()
		slog.Info("audit collector started")
	})
}

// Stop flushes remaining events and waits for the loop to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		slog.Info("audit collector stopped", "dropped", c.Dropped())
	})
}

// Emit enqueues an event for async batch insertion.
func (c *Collector) Emit(ev store.AuditEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = store.GenNewID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	select {
	case c.eventCh <- ev:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		slog.Warn("audit: buffer full, dropping event", "action", ev.Action, "target", ev.Target)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var events []store.AuditEvent
drain:
	for {
		select {
		case ev := <-c.eventCh:
			events = append(events, ev)
		default:
			break drain
		}
	}

	for len(events) > 0 {
		n := min(len(events), defaultBatchSize)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.store.BatchInsertAudit(ctx, events[:n]); err != nil {
			slog.Warn("audit: batch insert failed", "count", n, "error", err)
		} else {
			slog.Debug("audit: flushed events", "count", n)
		}
		cancel()
		events = events[n:]
	}
}

// Detail marshals a small attribute map for AuditEvent.Detail.
func Detail(kv map[string]any) json.RawMessage {
	if len(kv) == 0 {
		return nil
	}
	b, err := json.Marshal(kv)
	if err != nil {
		return nil
	}
	return b
}
