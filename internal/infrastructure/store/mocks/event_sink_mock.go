package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/ticket-shotgun/internal/infrastructure/store"
)

// MockEventSink is a mock implementation of store.EventSink for testing
type MockEventSink struct {
	mu     sync.Mutex
	events []store.Event

	// Returned from every Emit when set
	EmitErr error
}

// NewMockEventSink creates a new MockEventSink
func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

// Emit records the event
func (m *MockEventSink) Emit(_ context.Context, event store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.EmitErr
}

// Events returns a copy of every recorded event
func (m *MockEventSink) Events() []store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Event(nil), m.events...)
}

// EventsOfType returns recorded events with the given type
func (m *MockEventSink) EventsOfType(eventType string) []store.Event {
	var out []store.Event
	for _, e := range m.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Decode unmarshals the payload of an event into v
func Decode(e store.Event, v any) error {
	return json.Unmarshal(e.Data, v)
}

// Reset clears all recorded events
func (m *MockEventSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.EmitErr = nil
}
