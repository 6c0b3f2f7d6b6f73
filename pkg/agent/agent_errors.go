// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	stderrors "errors"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// WrapLLMError annotates a model call failure with the model name. Typed
// errors keep their kind so callers can still tell configuration problems
// from transient ones; untyped errors become CodeLLMError.
func WrapLLMError(err error, model string) *errors.Error {
	if err == nil {
		return nil
	}
	var ke *errors.Error
	if stderrors.As(err, &ke) && ke.Code != errors.CodeInternal {
		return ke.WithContext("model", model).WithAttribute("llm.model", model)
	}
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a tool execution error with appropriate context.
func WrapToolError(err error, toolName, toolCallID string) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithAttribute("tool.name", toolName).
		WithRecoverable(true)
}

// WrapTimeoutError reports a run that used up its iterations without a
// final answer.
func WrapTimeoutError(agent string, maxIterations int) *errors.Error {
	return errors.New(errors.CodeTimeout, "agent exceeded max iterations", nil).
		WithContext("agent", agent).
		WithContext("max_iterations", maxIterations).
		WithAttribute("agent.name", agent).
		WithRecoverable(false)
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(msg string) *errors.Error {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}
