// Package events provides the in-process event bus that decouples the
// ingestion path from the AI analysis workflow. Producers publish from any
// goroutine; a single dispatch loop consumes in FIFO order and routes each
// event to the handler registered for its kind.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Event is anything that can travel over the bus. Kind identifies the
// handler to dispatch to; it must be stable across publisher and consumer.
type Event interface {
	Kind() string
}

// HandlerFunc processes one event. A returned error is logged by the
// dispatch loop and never propagates to the publisher.
type HandlerFunc func(ctx context.Context, ev Event) error

var (
	ErrBusClosed = errors.New("event bus is closed")
	ErrQueueFull = errors.New("event queue is full")
)

// Bus is a multi-producer, single-consumer event queue with a typed handler
// registry. It is constructed explicitly and injected into both producers
// and the consumer; Run owns dispatch and Close ends its lifecycle.
type Bus struct {
	queue    chan Event
	handlers map[string]HandlerFunc
	log      zerolog.Logger

	mu     sync.Mutex
	closed bool
}

const defaultQueueSize = 256

// NewBus creates a bus whose queue holds up to size pending events. A
// non-positive size selects the default.
func NewBus(size int, logger zerolog.Logger) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		queue:    make(chan Event, size),
		handlers: make(map[string]HandlerFunc),
		log:      logger.With().Str("component", "event_bus").Logger(),
	}
}

// Register associates a handler with an event kind. Exactly one handler per
// kind; registering must happen before Run starts and is not safe
// concurrently with dispatch.
func (b *Bus) Register(kind string, h HandlerFunc) {
	if _, dup := b.handlers[kind]; dup {
		panic(fmt.Sprintf("events: handler already registered for kind %q", kind))
	}
	b.handlers[kind] = h
	b.log.Info().Str("kind", kind).Msg("registered event handler")
}

// Publish enqueues an event without blocking. The returned error reports the
// publish outcome immediately: ErrBusClosed after Close, ErrQueueFull when
// the queue has no capacity left. Callers decide whether a failed publish is
// fatal; the ingestion path logs and continues.
func (b *Bus) Publish(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- ev:
		b.log.Debug().Str("kind", ev.Kind()).Msg("event published")
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting new events. Events already queued are still
// delivered by Run before it returns.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

// Run consumes the queue until it is closed and drained, or until ctx is
// cancelled. Each event is processed to completion before the next is
// dequeued. Handler errors and panics are confined to the failing event.
func (b *Bus) Run(ctx context.Context) {
	b.log.Info().Int("handlers", len(b.handlers)).Msg("event dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("event dispatch loop cancelled")
			return
		case ev, ok := <-b.queue:
			if !ok {
				b.log.Info().Msg("event dispatch loop stopped")
				return
			}
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	h, ok := b.handlers[ev.Kind()]
	if !ok {
		b.log.Warn().Str("kind", ev.Kind()).Msg("no handler registered, dropping event")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("kind", ev.Kind()).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := h(ctx, ev); err != nil {
		b.log.Error().Err(err).Str("kind", ev.Kind()).Msg("event handler failed")
		return
	}
	b.log.Debug().Str("kind", ev.Kind()).Msg("event processed")
}
