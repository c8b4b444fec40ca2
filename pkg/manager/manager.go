// Package manager implements the dispatch registry: named handlers bound to a
// resource, with either one shared resource instance across all dispatches or
// a factory generating a fresh instance per call.
package manager

import (
	"fmt"

	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/diag"
)

const logPrefix = "manager:dispatch"

// Handler is business logic bound to one action name. It may read and mutate
// the passed resource and external systems only. A non-nil value is folded
// into the envelope's result slot; a non-nil error is folded into its error
// list via action.ToActionError.
type Handler[R any] func(resource R, act *action.Action) (any, error)

// InitHandler is a one-shot setup function run against the manager's resource
// at build time.
type InitHandler[R any] func(resource R) error

// Dispatcher is the non-generic view of a Manager, so managers over different
// resource types can be routed together.
type Dispatcher interface {
	Name() string
	Dispatch(act *action.Action)
	DispatchIfPresent(act *action.Action) bool
}

// provider supplies the resource for one dispatch call. Exactly one variant
// is active per manager.
type provider[R any] interface {
	acquire() R
}

type sharedResource[R any] struct {
	resource R
}

func (p sharedResource[R]) acquire() R { return p.resource }

type factoryResource[R any] struct {
	generate func() R
}

func (p factoryResource[R]) acquire() R { return p.generate() }

// Manager owns the name→handler map for one resource type. Registration
// happens once at startup; the map is read-only afterwards, so concurrent
// dispatch calls need no locking.
type Manager[R any] struct {
	name     string
	handlers map[string]Handler[R]
	resource provider[R]
	sink     diag.Sink
}

// Option configures a Manager at build time.
type Option[R any] func(*Manager[R])

// WithDiagnostics replaces the default slog-backed diagnostics sink.
func WithDiagnostics[R any](sink diag.Sink) Option[R] {
	return func(m *Manager[R]) { m.sink = sink }
}

// New creates a shared-mode manager: one resource instance reused across all
// dispatches. Resources needing internal mutable state own their own
// synchronization; the engine never hands out exclusive access.
func New[R any](name string, resource R, opts ...Option[R]) *Manager[R] {
	m := &Manager[R]{
		name:     name,
		handlers: make(map[string]Handler[R]),
		resource: sharedResource[R]{resource: resource},
		sink:     diag.SlogSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewWithFactory creates a factory-mode manager: the generator runs once per
// dispatch and the instance is owned exclusively by that call.
func NewWithFactory[R any](name string, generate func() R, opts ...Option[R]) *Manager[R] {
	m := &Manager[R]{
		name:     name,
		handlers: make(map[string]Handler[R]),
		resource: factoryResource[R]{generate: generate},
		sink:     diag.SlogSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the manager's diagnostic name.
func (m *Manager[R]) Name() string { return m.name }

// Register binds a handler to an action name. Re-registering an existing name
// is rejected and the original handler retained, so best-effort setup code
// can attempt idempotent registration. Not safe to call concurrently with
// dispatch.
func (m *Manager[R]) Register(name string, h Handler[R]) {
	if _, exists := m.handlers[name]; exists {
		m.sink.Record(diag.NewEvent(diag.RegistrationRejected, m.name, name, nil))
		return
	}
	m.handlers[name] = h
	m.sink.Record(diag.NewEvent(diag.RegistrationAccepted, m.name, name, nil))
}

// Registered reports whether a handler is bound to the given name.
func (m *Manager[R]) Registered(name string) bool {
	_, ok := m.handlers[name]
	return ok
}

// Init runs a one-shot setup function against the manager's resource: the
// shared instance, or one throwaway factory-generated instance. A non-nil
// error is a fatal startup condition; callers should abort construction.
func (m *Manager[R]) Init(fn InitHandler[R]) error {
	if err := fn(m.resource.acquire()); err != nil {
		m.sink.Record(diag.NewEvent(diag.InitFailed, m.name, "", err))
		return fmt.Errorf("%s - manager [%s] init: %w", logPrefix, m.name, err)
	}
	return nil
}

// Dispatch routes the envelope to its named handler and folds the outcome
// back onto it. It never fails itself; failure is only observable via the
// envelope's error list. An unknown name appends a "<manager> - DoAction"
// error.
func (m *Manager[R]) Dispatch(act *action.Action) {
	r := m.resource.acquire()
	h, ok := m.handlers[act.Name]
	if !ok {
		act.AddError(action.ActionError{
			Code:    m.name + " - DoAction",
			Message: "Action does NOT exist, make sure it is valid",
		})
		return
	}
	m.invoke(h, r, act)
}

// DispatchIfPresent is Dispatch, except an unknown name is a silent no-op and
// the envelope is left untouched. The return value reports whether a handler
// ran, so callers can chain managers over one envelope.
func (m *Manager[R]) DispatchIfPresent(act *action.Action) bool {
	h, ok := m.handlers[act.Name]
	if !ok {
		return false
	}
	m.invoke(h, m.resource.acquire(), act)
	return true
}

func (m *Manager[R]) invoke(h Handler[R], r R, act *action.Action) {
	v, err := h(r, act)
	if err != nil {
		act.AddError(action.ToActionError(err))
		return
	}
	if v == nil {
		return
	}
	raw, err := encodeResult(v)
	if err != nil {
		// A handler returned a value that cannot be encoded as JSON. That
		// violates the handler output contract and is a programming error,
		// not a recoverable request failure.
		panic(fmt.Sprintf("%s - manager [%s] action %q returned unencodable value: %v", logPrefix, m.name, act.Name, err))
	}
	act.SetResult(raw)
}
