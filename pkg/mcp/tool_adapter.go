// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolAdapter exposes a remote MCP tool as a local tool.Tool.
type ToolAdapter struct {
	tool   mcp.Tool
	caller ToolCaller
	schema map[string]any
}

// NewToolAdapter builds a tool.Tool backed by an MCP tool definition and caller.
func NewToolAdapter(t mcp.Tool, caller ToolCaller) (*ToolAdapter, error) {
	if t.Name == "" {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "mcp tool name is required", nil)
	}
	if caller == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "mcp tool caller is required", nil)
	}
	schema, err := inputSchema(t)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode mcp tool schema", err).
			WithContext("tool", t.Name)
	}
	return &ToolAdapter{tool: t, caller: caller, schema: schema}, nil
}

func (t *ToolAdapter) Name() string           { return t.tool.Name }
func (t *ToolAdapter) Description() string    { return t.tool.Description }
func (t *ToolAdapter) Schema() map[string]any { return t.schema }

// Call validates required arguments and invokes the remote tool. Structured
// content wins over text content when the server sends both.
func (t *ToolAdapter) Call(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateRequiredArgs(t.tool, args); err != nil {
		return nil, err
	}
	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return nil, err
	}
	return toolResultToOutput(t.tool.Name, result)
}

// inputSchema returns the tool's argument schema as a generic JSON object.
func inputSchema(t mcp.Tool) (map[string]any, error) {
	raw := []byte(t.RawInputSchema)
	if len(raw) == 0 {
		encoded, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	schema := map[string]any{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

func validateRequiredArgs(t mcp.Tool, args map[string]any) error {
	schema := t.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return kerrors.New(kerrors.CodeInvalidInput, "missing required argument "+key, nil).
				WithContext("tool", t.Name)
		}
	}
	return nil
}

func toolResultToOutput(name string, result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "mcp tool returned no result", nil).
			WithContext("tool", name)
	}
	if result.IsError {
		msg := extractTextContent(result.Content)
		if msg == "" {
			msg = "remote tool failed"
		}
		return nil, kerrors.New(kerrors.CodeToolFailure, msg, nil).WithContext("tool", name)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	return extractTextContent(result.Content), nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ tool.Tool = (*ToolAdapter)(nil)
