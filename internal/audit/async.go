package audit

import (
	"context"
	"sync"
	"time"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/types"

	log "github.com/sirupsen/logrus"
)

const sinkTimeout = 10 * time.Second

// Async decouples audit delivery from request handling. Record only enqueues; a single worker
// drains the queue into the sink. Sink failures are logged and dropped.
type Async struct {
	sink  ports.AuditSink
	queue chan types.AuditEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the worker. queueSize bounds the number of pending events; when the queue is
// full new events are dropped with a warning rather than blocking the caller.
func NewAsync(sink ports.AuditSink, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = types.DefaultQueueSize
	}
	a := &Async{
		sink:  sink,
		queue: make(chan types.AuditEvent, queueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues ev and returns immediately. It never returns an error so it satisfies
// ports.AuditSink for callers that want a fire-and-forget sink.
func (a *Async) Record(_ context.Context, ev types.AuditEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		log.WithField("type", ev.Type).Warn("audit queue closed, event dropped")
		return nil
	}
	select {
	case a.queue <- ev:
	default:
		log.WithFields(log.Fields{
			"type":       ev.Type,
			"externalID": ev.ExternalID,
		}).Warn("audit queue full, event dropped")
	}
	return nil
}

// Close stops accepting events and waits for the queued ones to be delivered or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		a.deliver(ev)
	}
}

func (a *Async) deliver(ev types.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("audit sink panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := a.sink.Record(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"type":       ev.Type,
			"externalID": ev.ExternalID,
			"steamID":    ev.SteamID,
		}).Error("failed to record audit event")
	}
}
