// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// Server publishes the tools of a registry over MCP.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tool.Registry
}

// NewServer creates an MCP server exposing every tool in reg. Tools
// registered later are not picked up.
func NewServer(name, version string, reg *tool.Registry) (*Server, error) {
	if reg == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "mcp server needs a tool registry", nil)
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		registry:  reg,
	}
	for _, t := range reg.Tools() {
		if err := s.addTool(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) addTool(t tool.Tool) error {
	def := tool.Definition(t)
	schema, err := json.Marshal(def.Function.Parameters)
	if err != nil {
		return kerrors.New(kerrors.CodeInvalidInput, "encode tool schema", err).
			WithContext("tool", t.Name())
	}
	name := t.Name()
	s.mcpServer.AddTool(
		mcp.NewToolWithRawSchema(name, t.Description(), schema),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := s.registry.Invoke(ctx, name, req.GetArguments())
			if res.IsError {
				return mcp.NewToolResultError(res.Output), nil
			}
			if obj, ok := res.Value.(map[string]any); ok {
				return mcp.NewToolResultStructured(obj, res.Output), nil
			}
			return mcp.NewToolResultText(res.Output), nil
		},
	)
	return nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSE returns an SSE transport for mounting on an HTTP mux.
func (s *Server) SSE(opts ...server.SSEOption) *server.SSEServer {
	return server.NewSSEServer(s.mcpServer, opts...)
}

// StreamableHTTP returns a streamable HTTP transport.
func (s *Server) StreamableHTTP(opts ...server.StreamableHTTPOption) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer, opts...)
}
