// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/mcp"
)

// runMCP serves the tool registry over MCP on stdin/stdout. Logs go to
// stderr so they never mix with the protocol stream.
func runMCP(ctx context.Context, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("mcp", flag.ContinueOnError)
	name := cmd.String("name", serviceName, "Server name announced to clients")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("mcp", err.Error())
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	srv, err := mcp.NewServer(*name, version, a.tools)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "mcp.stdio.start", slog.Int("tools", a.tools.Len()))
	return srv.ServeStdio()
}
