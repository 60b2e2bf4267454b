package events

import "yieldredirect/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the audit log).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events for a single operation. The owner decides whether
// they are published, so events of a rolled back operation never escape.
type Buffer struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	if evt := e.Event(); evt != nil {
		b.events = append(b.events, evt)
	}
}

// Events returns the collected events in emission order.
func (b *Buffer) Events() []*types.Event {
	if b == nil {
		return nil
	}
	out := make([]*types.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops the collected events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}
