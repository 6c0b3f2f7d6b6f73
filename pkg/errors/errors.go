// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed errors with a failure kind, so callers can
// decide on retries and HTTP status codes without matching error text.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode classifies failures for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time or iteration limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConflict indicates the resource already exists.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeUnauthorized indicates authorization failed.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeMemoryError indicates a session, vector or embedding store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates a generative model provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeConfiguration indicates missing credentials or invalid settings.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeTransient indicates a network or upstream failure worth retrying.
	CodeTransient ErrorCode = "TRANSIENT_ERROR"

	// CodeMalformedResponse indicates an upstream answered with unusable data.
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// Error is a typed error with context for logging and recovery decisions.
// It can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
		StatusCode  int                    `json:"status_code"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Context:     e.Context,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new Error with the given code, message, and cause.
// Transient and rate limit errors start out recoverable.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Recoverable: code == CodeTransient || code == CodeRateLimit,
		StatusCode:  codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// As returns err as *Error, wrapping unknown errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRecoverable reports whether err is a typed error flagged as recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Classify wraps an upstream failure with a kind inferred from the error
// chain. Typed errors pass through unchanged.
func Classify(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	if stderrors.Is(err, context.Canceled) {
		return New(CodeTimeout, msg, err).WithRecoverable(false)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, msg, err).WithRecoverable(true)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return New(CodeTransient, msg, err)
	}
	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return New(CodeMalformedResponse, msg, err)
	}
	var sc statusCoder
	if stderrors.As(err, &sc) {
		return FromStatus(sc.HTTPStatus(), msg, err)
	}
	return New(CodeInternal, msg, err)
}

type statusCoder interface {
	HTTPStatus() int
}

// FromStatus maps an upstream HTTP status to a typed error.
func FromStatus(status int, msg string, cause error) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return New(CodeRateLimit, msg, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(CodeConfiguration, msg, cause)
	case status == http.StatusNotFound:
		return New(CodeNotFound, msg, cause)
	case status == http.StatusRequestTimeout || status >= 500:
		return New(CodeTransient, msg, cause)
	case status >= 400:
		return New(CodeInvalidInput, msg, cause)
	}
	return New(CodeInternal, msg, cause)
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeTransient, CodeLLMError, CodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
