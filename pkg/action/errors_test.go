package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
)

type quotaError struct {
	limit int
}

func (e quotaError) Error() string { return fmt.Sprintf("quota exceeded: %d", e.limit) }

func (e quotaError) ActionError() ActionError {
	return ActionError{Code: "QuotaError", Message: e.Error()}
}

func TestToActionError(t *testing.T) {
	_, jsonErr := FromBytes([]byte(`{"id": "nope"}`))

	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"action error value", ActionError{Code: "Custom", Message: "m"}, "Custom"},
		{"action error pointer", NewError("Custom", "m"), "Custom"},
		{"wrapped action error", fmt.Errorf("handler: %w", NewError("Inner", "m")), "Inner"},
		{"convertible", quotaError{limit: 5}, "QuotaError"},
		{"json unmarshal", jsonErr, "JsonError"},
		{"io eof", io.ErrUnexpectedEOF, "io.Error"},
		{"path error", &os.PathError{Op: "open", Path: "/tmp/x", Err: os.ErrNotExist}, "io.Error"},
		{"plain error", errors.New("boom"), "Error"},
		{"nil", nil, "Error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToActionError(tc.err)
			if got.Code != tc.wantCode {
				t.Errorf("expected code %s, got %s (%s)", tc.wantCode, got.Code, got.Message)
			}
		})
	}
}

func TestToActionError_MarshalFailure(t *testing.T) {
	_, err := json.Marshal(map[string]any{"fn": func() {}})
	if err == nil {
		t.Fatal("expected marshal error")
	}
	got := ToActionError(err)
	if got.Code != "JsonError" {
		t.Errorf("expected JsonError, got %s", got.Code)
	}
}

func TestActionError_Display(t *testing.T) {
	e := ActionError{Code: "users - DoAction", Message: "Action does NOT exist, make sure it is valid"}
	want := "ActionError. Code: users - DoAction  Message: Action does NOT exist, make sure it is valid"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}

func TestActionError_WireShape(t *testing.T) {
	data, err := json.Marshal(ActionError{Code: "C", Message: "M"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data) != `{"code":"C","message":"M"}` {
		t.Errorf("unexpected wire shape: %s", data)
	}
}
