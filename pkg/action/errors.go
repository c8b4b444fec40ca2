package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// ActionError is the uniform failure value carried on an envelope. Code is a
// coarse machine-readable category chosen by the producer; Message is
// human-readable detail.
type ActionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an ActionError with the given code and message.
func NewError(code, message string) *ActionError {
	return &ActionError{Code: code, Message: message}
}

// Errorf builds an ActionError with a formatted message.
func Errorf(code, format string, args ...any) *ActionError {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e ActionError) Error() string {
	return fmt.Sprintf("ActionError. Code: %s  Message: %s", e.Code, e.Message)
}

// Convertible lets handler authors control how their domain error types fold
// into the envelope's error list.
type Convertible interface {
	ActionError() ActionError
}

// ToActionError converts any handler error into exactly one ActionError. The
// conversion is total: ActionError values pass through unchanged, Convertible
// types use their own conversion, JSON and I/O failures get category codes,
// and everything else falls back to a generic code with the error's text.
func ToActionError(err error) ActionError {
	if err == nil {
		return ActionError{Code: "Error", Message: "unknown error"}
	}

	var ae ActionError
	if errors.As(err, &ae) {
		return ae
	}
	var aep *ActionError
	if errors.As(err, &aep) && aep != nil {
		return *aep
	}
	var conv Convertible
	if errors.As(err, &conv) {
		return conv.ActionError()
	}

	if isJSONError(err) {
		return ActionError{Code: "JsonError", Message: err.Error()}
	}
	if isIOError(err) {
		return ActionError{Code: "io.Error", Message: err.Error()}
	}
	return ActionError{Code: "Error", Message: err.Error()}
}

func isJSONError(err error) bool {
	var syntax *json.SyntaxError
	var unmarshalType *json.UnmarshalTypeError
	var marshaler *json.MarshalerError
	var unsupportedType *json.UnsupportedTypeError
	var unsupportedValue *json.UnsupportedValueError
	return errors.As(err, &syntax) ||
		errors.As(err, &unmarshalType) ||
		errors.As(err, &marshaler) ||
		errors.As(err, &unsupportedType) ||
		errors.As(err, &unsupportedValue)
}

func isIOError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
