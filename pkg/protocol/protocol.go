// Package protocol defines the wire contract shared by the bridge server,
// the HTTP client and the command line front end: the envelope version,
// stable error codes and the process exit code each error maps to.
package protocol

import (
	"errors"
	"fmt"
)

// ProtocolVersion is stamped on every request and response envelope. A
// mismatch between client and server is reported as ERROR rather than
// silently accepted.
const ProtocolVersion = "1.0"

// HarnessVersion identifies this build in health and doctor payloads.
const HarnessVersion = "0.4.1"

// Stable error codes. These appear verbatim in response envelopes and on
// the command line, so changing one is a breaking change.
const (
	CodeError             = "ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeEngineNotFound    = "ENGINE_NOT_FOUND"
	CodeEngineExecFailed  = "ENGINE_EXEC_FAILED"
	CodeEngineTimeout     = "ENGINE_TIMEOUT"
	CodeBridgeUnavailable = "BRIDGE_UNAVAILABLE"
	CodeUnauthorized      = "UNAUTHORIZED"
)

// ExitCodes maps an error code to the process exit status of the CLI.
var ExitCodes = map[string]int{
	CodeError:             1,
	CodeInvalidInput:      2,
	CodeNotFound:          3,
	CodeValidationFailed:  4,
	CodeEngineNotFound:    5,
	CodeEngineExecFailed:  6,
	CodeEngineTimeout:     7,
	CodeBridgeUnavailable: 8,
	CodeUnauthorized:      1,
}

// ExitCode returns the exit status for a code, falling back to 1 for
// anything unrecognised.
func ExitCode(code string) int {
	if ec, ok := ExitCodes[code]; ok {
		return ec
	}
	return 1
}

// Retryable reports whether a failed call with this code may succeed if
// simply repeated. Only bridge connectivity problems qualify.
func Retryable(code string) bool {
	return code == CodeBridgeUnavailable
}

// Error is a typed operation failure carrying one of the stable codes.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error with a formatted message.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into an *Error if one is present in its chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Request is the body of POST /rpc.
type Request struct {
	ID     any            `json:"id,omitempty"`
	Method string         `json:"method" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ErrorDetail is the error object inside a failure envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is a parsed bridge envelope as seen by the client.
type Response struct {
	OK              bool           `json:"ok"`
	ProtocolVersion string         `json:"protocolVersion"`
	ID              any            `json:"id,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Error           *ErrorDetail   `json:"error,omitempty"`
}
