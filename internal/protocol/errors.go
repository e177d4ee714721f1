// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

import "fmt"

// Wire error codes.
const (
	CodeSessionLimitReached = "SESSION_LIMIT_REACHED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeASTBusy             = "AST_BUSY"
	CodeUnknownAST          = "UNKNOWN_AST"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeEmulatorFailed      = "EMULATOR_FAILED"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// GatewayError is an error that carries a wire-level error code.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGatewayError builds a coded error with a formatted message.
func NewGatewayError(code, format string, args ...any) *GatewayError {
	return &GatewayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the wire code for err, falling back to INTERNAL_ERROR for
// errors without one.
func CodeOf(err error) string {
	if ge, ok := err.(*GatewayError); ok {
		return ge.Code
	}
	return CodeInternalError
}
