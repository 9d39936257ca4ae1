package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sink persists or forwards events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Publisher fans events out to every sink. In async mode events are queued
// and written by a background goroutine so the request path never waits on a
// broker.
type Publisher struct {
	sinks  []Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for sink error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sinks []Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sinks: sinks, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		// Detached from the request: it may have finished already.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.write(ctx, event); err != nil {
			p.logger.Error("failed to publish security event",
				"error", err,
				"event", event.Type,
				"request_id", event.RequestID,
			)
		}
		cancel()
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit publishes an event. Async publishers never block: when the buffer is
// full the event is dropped with a warning.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.async {
		select {
		case p.events <- event:
		default:
			p.logger.WarnContext(ctx, "security event buffer full, event dropped",
				"event", event.Type,
				"request_id", event.RequestID,
			)
		}
		return nil
	}
	return p.write(ctx, event)
}

func (p *Publisher) write(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
