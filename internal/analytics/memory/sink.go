package memory

import (
	"context"
	"sync"
)

// Event is one recorded business event.
type Event struct {
	Name  string
	Props map[string]any
}

// Sink collects events in memory so tests can assert on what was emitted.
type Sink struct {
	mu     sync.Mutex
	events []Event
}

// NewSink creates an empty in-memory event sink.
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Emit(_ context.Context, name string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Name: name, Props: props})
	return nil
}

// Named returns all recorded events with the given name.
func (s *Sink) Named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Event
	for _, e := range s.events {
		if e.Name == name {
			matched = append(matched, e)
		}
	}
	return matched
}

// All returns every recorded event in emission order.
func (s *Sink) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
