package manager

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/diag"
)

type userDirectory struct {
	mu    sync.Mutex
	users map[string]string
}

func newUserDirectory() *userDirectory {
	return &userDirectory{users: map[string]string{"7": "alice"}}
}

func newAction(name string, id uint64) *action.Action {
	return &action.Action{Name: name, ID: id, Payload: map[string]json.RawMessage{}}
}

func TestDispatch_InvokesRegisteredHandler(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))

	var getCalls, otherCalls int
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		getCalls++
		return map[string]string{"name": "alice"}, nil
	})
	m.Register("delete", func(dir *userDirectory, act *action.Action) (any, error) {
		otherCalls++
		return action.Done(), nil
	})

	act := newAction("get", 7)
	m.Dispatch(act)

	if getCalls != 1 {
		t.Errorf("expected handler invoked exactly once, got %d", getCalls)
	}
	if otherCalls != 0 {
		t.Errorf("expected other handler untouched, got %d calls", otherCalls)
	}
	if string(act.Result) != `{"name":"alice"}` {
		t.Errorf("expected result {\"name\":\"alice\"}, got %s", act.Result)
	}
	if len(act.Errors) != 0 {
		t.Errorf("expected no errors, got %v", act.Errors)
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return map[string]string{"name": "alice"}, nil
	})

	act := newAction("delete", 8)
	m.Dispatch(act)

	if act.Result != nil {
		t.Errorf("expected result unset, got %s", act.Result)
	}
	if len(act.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %v", act.Errors)
	}
	if act.Errors[0].Code != "users - DoAction" {
		t.Errorf("expected code 'users - DoAction', got %q", act.Errors[0].Code)
	}
	if act.Errors[0].Message != "Action does NOT exist, make sure it is valid" {
		t.Errorf("unexpected message: %q", act.Errors[0].Message)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return nil, action.NewError("NotFound", "no such user")
	})

	act := newAction("get", 9)
	m.Dispatch(act)

	if act.Result != nil {
		t.Errorf("expected result unset, got %s", act.Result)
	}
	if len(act.Errors) != 1 || act.Errors[0].Code != "NotFound" {
		t.Errorf("expected one NotFound error, got %v", act.Errors)
	}
}

func TestDispatch_DomainErrorConversion(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return nil, errors.New("backend unreachable")
	})

	act := newAction("get", 10)
	m.Dispatch(act)

	if len(act.Errors) != 1 {
		t.Fatalf("expected one error, got %v", act.Errors)
	}
	if act.Errors[0].Code != "Error" {
		t.Errorf("expected generic Error code, got %s", act.Errors[0].Code)
	}
	if act.Errors[0].Message != "backend unreachable" {
		t.Errorf("expected message preserved, got %q", act.Errors[0].Message)
	}
}

func TestDispatch_NilResultLeavesEnvelopeUnset(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("touch", func(dir *userDirectory, act *action.Action) (any, error) {
		return nil, nil
	})

	act := newAction("touch", 11)
	m.Dispatch(act)

	if act.Result != nil {
		t.Errorf("expected no result, got %s", act.Result)
	}
	if len(act.Errors) != 0 {
		t.Errorf("expected success with no result, got %v", act.Errors)
	}
}

func TestDispatch_UnencodableResultPanics(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("bad", func(dir *userDirectory, act *action.Action) (any, error) {
		return func() {}, nil
	})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unencodable handler value")
		}
	}()
	m.Dispatch(newAction("bad", 12))
}

func TestDispatchIfPresent_UnknownIsNoOp(t *testing.T) {
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return map[string]string{"name": "alice"}, nil
	})

	act := newAction("delete", 13)
	before := *act

	if handled := m.DispatchIfPresent(act); handled {
		t.Error("expected unhandled")
	}
	if !reflect.DeepEqual(before, *act) {
		t.Errorf("expected envelope untouched, before=%+v after=%+v", before, *act)
	}
}

func TestDispatchIfPresent_Chaining(t *testing.T) {
	users := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	users.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return map[string]string{"name": "alice"}, nil
	})
	billing := New[int]("billing", 0, WithDiagnostics[int](diag.NoOpSink{}))
	billing.Register("invoice", func(_ int, act *action.Action) (any, error) {
		return action.Done(), nil
	})

	chain := []Dispatcher{billing, users}
	act := newAction("get", 14)

	handled := false
	for _, d := range chain {
		if d.DispatchIfPresent(act) {
			handled = true
			break
		}
	}
	if !handled {
		t.Fatal("expected chain to resolve the envelope")
	}
	if string(act.Result) != `{"name":"alice"}` {
		t.Errorf("expected users handler result, got %s", act.Result)
	}
	if len(act.Errors) != 0 {
		t.Errorf("expected no errors from earlier managers, got %v", act.Errors)
	}
}

func TestRegister_DuplicateKeepsOriginal(t *testing.T) {
	rec := &diag.Recorder{}
	m := New[*userDirectory]("users", newUserDirectory(), WithDiagnostics[*userDirectory](rec))

	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return map[string]string{"version": "first"}, nil
	})
	m.Register("get", func(dir *userDirectory, act *action.Action) (any, error) {
		return map[string]string{"version": "second"}, nil
	})

	act := newAction("get", 15)
	m.Dispatch(act)

	if string(act.Result) != `{"version":"first"}` {
		t.Errorf("expected first-registered handler retained, got %s", act.Result)
	}

	accepted := rec.ByKind(diag.RegistrationAccepted)
	rejected := rec.ByKind(diag.RegistrationRejected)
	if len(accepted) != 1 {
		t.Errorf("expected 1 accepted registration, got %d", len(accepted))
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejected registration, got %d", len(rejected))
	}
	if rejected[0].Manager != "users" || rejected[0].Action != "get" {
		t.Errorf("unexpected rejection record: %+v", rejected[0])
	}
}

func TestInit_SharedResource(t *testing.T) {
	dir := newUserDirectory()
	m := New[*userDirectory]("users", dir, WithDiagnostics[*userDirectory](diag.NoOpSink{}))

	var seen *userDirectory
	if err := m.Init(func(r *userDirectory) error {
		seen = r
		return nil
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if seen != dir {
		t.Error("expected init to run against the shared instance")
	}
}

func TestInit_FailureIsFatal(t *testing.T) {
	rec := &diag.Recorder{}
	m := NewWithFactory[*userDirectory]("users", newUserDirectory, WithDiagnostics[*userDirectory](rec))

	err := m.Init(func(r *userDirectory) error {
		return errors.New("schema missing")
	})
	if err == nil {
		t.Fatal("expected init error")
	}
	if got := rec.ByKind(diag.InitFailed); len(got) != 1 {
		t.Errorf("expected 1 init failure record, got %d", len(got))
	}
}

func TestFactory_FreshResourcePerDispatch(t *testing.T) {
	generated := 0
	m := NewWithFactory[*userDirectory]("users", func() *userDirectory {
		generated++
		return newUserDirectory()
	}, WithDiagnostics[*userDirectory](diag.NoOpSink{}))

	m.Register("mark", func(dir *userDirectory, act *action.Action) (any, error) {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		if _, dirty := dir.users["mark"]; dirty {
			return nil, action.NewError("Dirty", "observed another dispatch's resource")
		}
		dir.users["mark"] = "set"
		return action.Done(), nil
	})

	first := newAction("mark", 1)
	second := newAction("mark", 2)
	m.Dispatch(first)
	m.Dispatch(second)

	if generated != 2 {
		t.Errorf("expected a fresh resource per dispatch, generated %d", generated)
	}
	if first.Failed() || second.Failed() {
		t.Errorf("expected isolated resources, got %v / %v", first.Errors, second.Errors)
	}
}

func TestFactory_ConcurrentDispatchIsolation(t *testing.T) {
	m := NewWithFactory[*userDirectory]("users", newUserDirectory, WithDiagnostics[*userDirectory](diag.NoOpSink{}))
	m.Register("mark", func(dir *userDirectory, act *action.Action) (any, error) {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		if _, dirty := dir.users["mark"]; dirty {
			return nil, action.NewError("Dirty", "observed another dispatch's resource")
		}
		dir.users["mark"] = "set"
		return action.Done(), nil
	})

	const n = 32
	acts := make([]*action.Action, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		acts[i] = newAction("mark", uint64(i))
		wg.Add(1)
		go func(a *action.Action) {
			defer wg.Done()
			m.Dispatch(a)
		}(acts[i])
	}
	wg.Wait()

	for i, a := range acts {
		if a.Failed() {
			t.Errorf("dispatch %d observed shared state: %v", i, a.Errors)
		}
	}
}

func TestSharedResource_ReusedAcrossDispatches(t *testing.T) {
	dir := newUserDirectory()
	m := New[*userDirectory]("users", dir, WithDiagnostics[*userDirectory](diag.NoOpSink{}))

	m.Register("count", func(d *userDirectory, act *action.Action) (any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.users["seen"] = "yes"
		return map[string]int{"users": len(d.users)}, nil
	})

	a1 := newAction("count", 1)
	a2 := newAction("count", 2)
	m.Dispatch(a1)
	m.Dispatch(a2)

	// Second dispatch sees the first one's write on the shared instance.
	if string(a1.Result) != `{"users":2}` || string(a2.Result) != `{"users":2}` {
		t.Errorf("expected shared instance, got %s / %s", a1.Result, a2.Result)
	}
}

func TestErrorsTakePrecedenceOverResult(t *testing.T) {
	m := New[int]("users", 0, WithDiagnostics[int](diag.NoOpSink{}))
	m.Register("get", func(_ int, act *action.Action) (any, error) {
		// A handler may stash a partial result before failing; errors win.
		act.SetResult(json.RawMessage(`{"partial":true}`))
		return nil, action.NewError("Late", "failed after partial result")
	})

	act := newAction("get", 16)
	m.Dispatch(act)

	if !act.Failed() {
		t.Fatal("expected failed envelope")
	}
	if act.Result == nil {
		t.Error("result may coexist with errors at the type level")
	}
}
