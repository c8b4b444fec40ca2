// Package diag provides diagnostics sinks for registry lifecycle events:
// handler registrations, duplicate rejections, and init failures. Sinks are
// injected so tests can assert on registration conflicts without capturing
// log output.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const logPrefix = "diag:sink"

// Kind categorizes a diagnostic event.
type Kind string

const (
	RegistrationAccepted Kind = "registration_accepted"
	RegistrationRejected Kind = "registration_rejected"
	InitFailed           Kind = "init_failed"
)

// Event is one diagnostic record emitted by a manager.
type Event struct {
	ID        string
	Kind      Kind
	Manager   string
	Action    string
	Err       error
	Timestamp time.Time
}

// NewEvent builds an Event with a fresh id and timestamp.
func NewEvent(kind Kind, manager, actionName string, err error) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Manager:   manager,
		Action:    actionName,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives diagnostic events.
type Sink interface {
	Record(ev Event)
}

// SlogSink logs events via log/slog. It is the default sink.
type SlogSink struct{}

// Record logs the event at a level matching its severity.
func (SlogSink) Record(ev Event) {
	switch ev.Kind {
	case RegistrationAccepted:
		slog.Info(fmt.Sprintf("%s - Manager [%s] register action: %s", logPrefix, ev.Manager, ev.Action))
	case RegistrationRejected:
		slog.Warn(fmt.Sprintf("%s - Manager [%s] registered existing action: %s, ignoring", logPrefix, ev.Manager, ev.Action))
	case InitFailed:
		slog.Error(fmt.Sprintf("%s - Manager [%s] init failed: %v", logPrefix, ev.Manager, ev.Err))
	}
}

// NoOpSink discards all events, for in-process usage without diagnostics.
type NoOpSink struct{}

// Record discards the event.
func (NoOpSink) Record(Event) {}

// Recorder captures events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record stores the event.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind returns recorded events matching the given kind.
func (r *Recorder) ByKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
