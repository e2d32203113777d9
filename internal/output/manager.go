package output

import (
	"errors"
	"fmt"
)

// Sink receives decision.Result and Event values.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every value out to all sinks.
type Manager struct {
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Len returns the number of sinks.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.sinks)
}

func (m *Manager) Write(v any) error {
	return m.each("write", func(s Sink) error { return s.Write(v) })
}

func (m *Manager) Close() error {
	return m.each("close", Sink.Close)
}

// each calls fn on every sink, even after failures, and joins the errors.
func (m *Manager) each(op string, fn func(Sink) error) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", op, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors on %s to sinks: %w", op, errors.Join(errs...))
	}
	return nil
}
