package events

import (
	"context"
	"sync"

	"github.com/homeward/backoffice-go/internal/port"
)

// Recorder keeps every published event. When Next is set the event is
// forwarded to it, so tests can observe a real bus.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Next   Publisher
}

func (r *Recorder) Publish(ctx context.Context, tx port.Store, ev Event) []HandlerError {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.Next != nil {
		return r.Next.Publish(ctx, tx, ev)
	}
	return nil
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Of filters the recorded events of one concrete type and phase.
func Of[E Event](r *Recorder, phase Phase) []E {
	var out []E
	for _, ev := range r.Events() {
		if typed, ok := ev.(E); ok && ev.EventMeta().Phase == phase {
			out = append(out, typed)
		}
	}
	return out
}
