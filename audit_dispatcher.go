package authkit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// auditDispatcher hands events to the sink from a single goroutine so the
// sink sees them in sequence order.
type auditDispatcher struct {
	sink       AuditSink
	log        *zap.Logger
	dropIfFull bool

	queue   chan AuditEvent
	stop    chan struct{}
	stopped chan struct{}

	seq      atomic.Uint64
	dropped  atomic.Uint64
	panics   atomic.Uint64
	closing  atomic.Bool
	stopOnce sync.Once
	// sendMu orders sequence assignment with enqueueing.
	sendMu sync.Mutex
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log *zap.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &auditDispatcher{
		sink:       sink,
		log:        log,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, size),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver shields the worker from a sink that panics.
func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.Uint64("seq", ev.Sequence),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit stamps event with the next sequence number and queues it. With
// DropIfFull a full buffer drops the event and counts it; otherwise Emit
// waits for room, ctx, or Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	event.Sequence = d.seq.Add(1)
	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
			d.log.Debug("audit event dropped",
				zap.String("event_type", event.EventType),
				zap.Uint64("seq", event.Sequence),
			)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events, delivers what is queued, and waits for the
// worker. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

// Dropped returns the number of events discarded on a full buffer.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics returns the number of deliveries that panicked in the sink.
func (d *auditDispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
