package events

import (
	"sync"

	"cardroom/core/types"
)

// Event represents a structured state change emitted by the economy.
type Event interface {
	EventType() string
}

// PayloadEvent is implemented by events that can render themselves as a
// generic attribute map for streaming and persistence.
type PayloadEvent interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC streams,
// audit sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all
// events. Engines default to it so emission is always safe.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

type wrapped struct {
	evt *types.Event
}

func (w wrapped) EventType() string {
	if w.evt == nil {
		return ""
	}
	return w.evt.Type
}

func (w wrapped) Event() *types.Event { return w.evt }

// Wrap adapts a generic payload into the Event interface. A nil payload
// wraps to an event with an empty type, which emitters ignore.
func Wrap(evt *types.Event) Event { return wrapped{evt: evt} }

// Payload extracts the generic payload from an event when it carries
// one, returning nil otherwise.
func Payload(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(PayloadEvent); ok {
		return p.Event()
	}
	return nil
}

// Recorder is an Emitter that retains everything it sees. Tests and the
// table event log use it to assert on emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
