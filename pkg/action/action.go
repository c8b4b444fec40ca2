// Package action defines the request/reply envelope routed by the dispatch
// engine: the mutable Action carrier, its immutable ActionReply projection,
// and the ActionError value used for all failure reporting.
package action

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const logPrefix = "action:envelope"

// Action is one request/reply envelope. It is decoded from the wire, mutated
// in place by exactly one dispatch call, then converted to an ActionReply.
type Action struct {
	// Name selects the handler within a manager.
	Name string `json:"name"`
	// ID is a caller-assigned correlation id. The engine never generates or
	// validates it; replies carry no ordering guarantee.
	ID uint64 `json:"id"`
	// Token is an opaque credential. Validation, if any, happens inside a
	// handler, never in the engine.
	Token string `json:"token,omitempty"`
	// Base64 carries out-of-band binary data, opaque to the engine.
	Base64  string                     `json:"base64,omitempty"`
	Payload map[string]json.RawMessage `json:"payload"`
	Result  json.RawMessage            `json:"result,omitempty"`
	Errors  []ActionError              `json:"errors,omitempty"`
}

// ActionReply is the wire-facing projection of a resolved Action.
type ActionReply struct {
	ID      uint64                     `json:"id"`
	Name    string                     `json:"name"`
	Payload map[string]json.RawMessage `json:"payload"`
	Result  json.RawMessage            `json:"result,omitempty"`
	// Errors is always present on the wire, possibly empty.
	Errors []ActionError `json:"errors"`
}

// FromBytes decodes an Action from a raw buffer. The buffer must be valid
// UTF-8 JSON matching the envelope schema; on failure the caller is
// responsible for synthesizing a server-error envelope.
func FromBytes(buf []byte) (*Action, error) {
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("%s - request is not valid UTF-8", logPrefix)
	}
	var act Action
	if err := json.Unmarshal(buf, &act); err != nil {
		return nil, fmt.Errorf("%s - failed to decode request: %w", logPrefix, err)
	}
	if act.Name == "" {
		return nil, fmt.Errorf("%s - request is missing name", logPrefix)
	}
	if act.Payload == nil {
		return nil, fmt.Errorf("%s - request is missing payload", logPrefix)
	}
	// A zero ID is indistinguishable from an absent one after decoding, so
	// presence is checked against the raw document.
	var present struct {
		ID *uint64 `json:"id"`
	}
	_ = json.Unmarshal(buf, &present)
	if present.ID == nil {
		return nil, fmt.Errorf("%s - request is missing id", logPrefix)
	}
	return &act, nil
}

// ServerError builds an envelope directly in resolved/failed state, used when
// a transport-level failure happens before any handler runs.
func ServerError(err ActionError) *Action {
	return &Action{
		Name:    "server-error",
		Payload: map[string]json.RawMessage{},
		Errors:  []ActionError{err},
	}
}

// SetResult records the handler's output value.
func (a *Action) SetResult(res json.RawMessage) {
	a.Result = res
}

// AddError appends a failure to the envelope. Any non-empty Errors marks the
// action as failed regardless of Result.
func (a *Action) AddError(err ActionError) {
	a.Errors = append(a.Errors, err)
}

// Failed reports whether the envelope carries at least one error.
func (a *Action) Failed() bool {
	return len(a.Errors) > 0
}

// IntoReply converts a resolved Action into its reply projection, normalizing
// absent errors to an empty sequence. The Action must not be used afterwards.
func (a *Action) IntoReply() *ActionReply {
	errs := a.Errors
	if errs == nil {
		errs = []ActionError{}
	}
	payload := a.Payload
	if payload == nil {
		payload = map[string]json.RawMessage{}
	}
	return &ActionReply{
		ID:      a.ID,
		Name:    a.Name,
		Payload: payload,
		Result:  a.Result,
		Errors:  errs,
	}
}

// FromPayload decodes the envelope payload into a handler-specific type.
func FromPayload[Q any](a *Action) (Q, error) {
	var out Q
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return out, NewError("PayloadError", err.Error())
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, NewError("PayloadError", err.Error())
	}
	return out, nil
}

// FromResult decodes the result slot into a caller-specific type.
func FromResult[Q any](a *Action) (Q, error) {
	var out Q
	if err := json.Unmarshal(a.Result, &out); err != nil {
		return out, NewError("PayloadError", err.Error())
	}
	return out, nil
}

// Done is a conventional success value for handlers with no meaningful output.
func Done() json.RawMessage {
	return json.RawMessage(`{"success":true}`)
}

// OK folds a handler success value into the canonical wire form, reporting a
// "ToValue" error if it cannot be represented.
func OK(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, NewError("ToValue", err.Error())
	}
	return raw, nil
}

// Err builds a failed handler return carrying the given code and the error's
// display text.
func Err(code string, err error) (json.RawMessage, error) {
	return nil, NewError(code, err.Error())
}
