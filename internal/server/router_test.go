package server

import (
	"encoding/json"
	"testing"

	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/diag"
	"github.com/morezero/action-gateway/pkg/manager"
)

func newChain(t *testing.T) *Router {
	t.Helper()

	users := manager.New[int]("users", 0, manager.WithDiagnostics[int](diag.NoOpSink{}))
	users.Register("get", func(_ int, act *action.Action) (any, error) {
		return map[string]string{"name": "alice"}, nil
	})

	billing := manager.New[int]("billing", 0, manager.WithDiagnostics[int](diag.NoOpSink{}))
	billing.Register("invoice", func(_ int, act *action.Action) (any, error) {
		return action.Done(), nil
	})

	return NewRouter(users, billing)
}

func TestRoute_FirstManagerHandles(t *testing.T) {
	act := &action.Action{Name: "get", ID: 1, Payload: map[string]json.RawMessage{}}
	newChain(t).Route(act)

	if act.Failed() {
		t.Fatalf("expected success, got %v", act.Errors)
	}
	if string(act.Result) != `{"name":"alice"}` {
		t.Errorf("expected users result, got %s", act.Result)
	}
}

func TestRoute_LaterManagerHandles(t *testing.T) {
	act := &action.Action{Name: "invoice", ID: 2, Payload: map[string]json.RawMessage{}}
	newChain(t).Route(act)

	if act.Failed() {
		t.Fatalf("expected success, got %v", act.Errors)
	}
	if string(act.Result) != `{"success":true}` {
		t.Errorf("expected billing result, got %s", act.Result)
	}
}

func TestRoute_UnknownReportedByLastManager(t *testing.T) {
	act := &action.Action{Name: "refund", ID: 3, Payload: map[string]json.RawMessage{}}
	newChain(t).Route(act)

	if len(act.Errors) != 1 {
		t.Fatalf("expected one error, got %v", act.Errors)
	}
	if act.Errors[0].Code != "billing - DoAction" {
		t.Errorf("expected error from last manager in chain, got %q", act.Errors[0].Code)
	}
	if act.Result != nil {
		t.Errorf("expected result unset, got %s", act.Result)
	}
}

func TestRoute_EmptyChain(t *testing.T) {
	act := &action.Action{Name: "get", ID: 4, Payload: map[string]json.RawMessage{}}
	NewRouter().Route(act)

	if act.Failed() || act.Result != nil {
		t.Errorf("expected envelope untouched, got %+v", act)
	}
}
