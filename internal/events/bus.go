package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/homeward/backoffice-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("events")

// Handler reacts to an event. tx is the store of the originating write.
type Handler func(ctx context.Context, tx port.Store, ev Event) error

// HandlerError is a failure of one handler. It never aborts the write.
type HandlerError struct {
	Handler string
	Kind    Kind
	Phase   Phase
	Err     error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("%s.%s handler %s: %v", e.Kind, e.Phase, e.Handler, e.Err)
}

func (e HandlerError) Unwrap() error { return e.Err }

// Publisher is what the write path depends on; Bus and Recorder implement it.
type Publisher interface {
	Publish(ctx context.Context, tx port.Store, ev Event) []HandlerError
}

type key struct {
	kind  Kind
	phase Phase
}

type subscription struct {
	name string
	fn   Handler
}

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[key][]subscription
	logger   *zap.Logger

	// OnError observes every handler failure (metrics).
	OnError func(HandlerError)
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{handlers: map[key][]subscription{}, logger: logger}
}

// Subscribe appends a handler for (kind, phase).
func (b *Bus) Subscribe(kind Kind, phase Phase, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{kind, phase}
	b.handlers[k] = append(b.handlers[k], subscription{name: name, fn: fn})
}

// On subscribes a handler typed on the concrete event.
func On[E Event](b *Bus, phase Phase, name string, fn func(ctx context.Context, tx port.Store, ev E) error) {
	var zero E
	b.Subscribe(zero.Kind(), phase, name, func(ctx context.Context, tx port.Store, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected event type %T", ev)
		}
		return fn(ctx, tx, typed)
	})
}

// Publish runs the handlers of the event in registration order. Each
// handler runs in its own nested transaction so a failing one leaves the
// originating write and the other handlers intact.
func (b *Bus) Publish(ctx context.Context, tx port.Store, ev Event) []HandlerError {
	meta := ev.EventMeta()
	b.mu.RLock()
	subs := b.handlers[key{ev.Kind(), meta.Phase}]
	b.mu.RUnlock()

	var failures []HandlerError
	for _, sub := range subs {
		err := b.run(ctx, tx, sub, ev)
		if err == nil {
			continue
		}
		he := HandlerError{Handler: sub.name, Kind: ev.Kind(), Phase: meta.Phase, Err: err}
		failures = append(failures, he)
		b.logger.Error("signal handler failed",
			zap.String("handler", sub.name),
			zap.String("kind", string(ev.Kind())),
			zap.String("phase", meta.Phase.String()),
			zap.String("source", meta.Source.String()),
			zap.Error(err),
		)
		if b.OnError != nil {
			b.OnError(he)
		}
	}
	return failures
}

func (b *Bus) run(ctx context.Context, tx port.Store, sub subscription, ev Event) (err error) {
	ctx, span := tracer.Start(ctx, "signal "+sub.name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tx.WithTx(ctx, func(htx port.Store) error {
		return sub.fn(ctx, htx, ev)
	})
}
