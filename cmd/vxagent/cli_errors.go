// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// CLIError wraps a typed error with a hint for the terminal.
type CLIError struct {
	Typed *kerrors.Error
	Hint  string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ke *kerrors.Error, hint string) *CLIError {
	return &CLIError{Typed: ke, Hint: hint}
}

// Error returns the message followed by the hint, if any.
func (e *CLIError) Error() string {
	if e.Typed == nil {
		return "unknown error"
	}
	msg := e.Typed.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error to errors.As and kerrors.CodeOf.
func (e *CLIError) Unwrap() error {
	if e.Typed == nil {
		return nil
	}
	return e.Typed
}

// PrintError writes the error to w, as one JSON line when asJSON is set.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	ke := e.Typed
	if ke == nil {
		fmt.Fprintln(w, "Error: unknown error")
		return
	}
	if asJSON {
		payload := map[string]any{
			"code":    ke.Code,
			"message": ke.Message,
		}
		if ke.Err != nil {
			payload["cause"] = ke.Err.Error()
		}
		if e.Hint != "" {
			payload["hint"] = e.Hint
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": payload})
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", ke.Code, ke.Message)
	if ke.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", ke.Err)
	}
	for k, v := range ke.Context {
		fmt.Fprintf(w, "  %s: %v\n", k, v)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewInvalidArgumentError reports a bad flag or argument.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ke := kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("invalid argument %s: %s", arg, reason), nil).
		WithContext("argument", arg)
	return NewCLIError(ke, "run 'vxagent help' for usage")
}

// NewConfigError wraps a configuration failure.
func NewConfigError(err error, configPath string) *CLIError {
	ke := kerrors.As(err)
	if configPath != "" {
		ke = ke.WithContext("config_path", configPath)
	}
	return NewCLIError(ke, hintFor(kerrors.CodeConfiguration))
}

func hintFor(code kerrors.ErrorCode) string {
	switch code {
	case kerrors.CodeConfiguration:
		return "check the config file, VXAGENT_ environment variables and --set overrides"
	case kerrors.CodeRateLimit:
		return "the model quota is exhausted; retry later"
	case kerrors.CodeTransient:
		return "an upstream service is unavailable; retry later"
	case kerrors.CodeTimeout:
		return "the operation timed out or was interrupted"
	case kerrors.CodeInvalidInput:
		return "run 'vxagent help' for usage"
	}
	return ""
}
