// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys. Model attributes follow the gen_ai
// semantic conventions.
const (
	AttrAgentName      = "vxagent.agent.name"
	AttrAgentModel     = "vxagent.agent.model"
	AttrAgentIteration = "vxagent.agent.iteration"
	AttrAgentMaxIter   = "vxagent.agent.max_iterations"
	AttrAgentBranch    = "vxagent.agent.branch"
	AttrRunID          = "vxagent.run.id"

	AttrAppName      = "vxagent.app.name"
	AttrUserID       = "vxagent.user.id"
	AttrSessionID    = "vxagent.session.id"
	AttrHistoryCount = "vxagent.session.history_count"

	AttrToolName    = "vxagent.tool.name"
	AttrToolCallID  = "vxagent.tool.call_id"
	AttrToolSuccess = "vxagent.tool.success"
	AttrToolSource  = "vxagent.tool.source"
	AttrToolsCount  = "vxagent.tools.count"

	AttrRetrievalCollection = "vxagent.retrieval.collection"
	AttrRetrievalTopK       = "vxagent.retrieval.top_k"
	AttrRetrievalRows       = "vxagent.retrieval.rows"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMFinishReason = "gen_ai.response.finish_reason"
	AttrLLMToolCalls    = "gen_ai.response.tool_calls"

	AttrErrorCode        = "error.code"
	AttrErrorRecoverable = "error.recoverable"
	AttrComponent        = "component"
)

// AgentAttributes returns the attributes set on every agent run span.
func AgentAttributes(name, model string, maxIterations int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentName, name),
		attribute.Int(AttrAgentMaxIter, maxIterations),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	return attrs
}

// SessionAttributes identifies the conversation on a span.
func SessionAttributes(app, user, session string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAppName, app),
		attribute.String(AttrUserID, user),
		attribute.String(AttrSessionID, session),
	}
}

// ToolAttributes describes one tool invocation.
func ToolAttributes(name, callID string, success bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Bool(AttrToolSuccess, success),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrToolCallID, callID))
	}
	return attrs
}

// LLMUsageAttributes records token usage and finish state of a model call.
func LLMUsageAttributes(input, output int, finishReason string, toolCalls int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMTokensInput, input),
		attribute.Int(AttrLLMTokensOutput, output),
		attribute.Int(AttrLLMToolCalls, toolCalls),
	}
	if finishReason != "" {
		attrs = append(attrs, attribute.String(AttrLLMFinishReason, finishReason))
	}
	return attrs
}
