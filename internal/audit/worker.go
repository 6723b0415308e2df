package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Emitter is anything that accepts audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// AsyncPublisher queues events and hands them to a Worker so callers on the
// completion path never wait for the store.
type AsyncPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewAsyncPublisher creates a publisher with a queue of size buffer.
func NewAsyncPublisher(buffer int, logger *slog.Logger) *AsyncPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncPublisher{inbox: make(chan Event, buffer), logger: logger}
}

// Emit queues event. A full queue drops the event with a warning.
func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit queue full, dropping event", "action", string(event.Action))
	}
	return nil
}

// Inbox is the channel a Worker drains.
func (p *AsyncPublisher) Inbox() <-chan Event {
	return p.inbox
}

// Close stops accepting events; the worker drains what is queued and returns.
func (p *AsyncPublisher) Close() {
	close(p.inbox)
}

// Worker consumes audit events from a channel and forwards them to a sink.
type Worker struct {
	sink   Emitter
	inbox  <-chan Event
	logger *slog.Logger
	once   sync.Once
	done   chan struct{}
}

func NewWorker(sink Emitter, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger, done: make(chan struct{})}
}

// Run forwards events until ctx is done or the inbox is closed. Sink errors
// are logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	defer w.once.Do(func() { close(w.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Emit(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"action", string(event.Action),
					"error", err,
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
