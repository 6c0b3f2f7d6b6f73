// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/mcp"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", cfg.Server.Addr, "Listen address")
	publicURL := cmd.String("public-url", "", "External base URL advertised to MCP SSE clients")
	noMCP := cmd.Bool("no-mcp", false, "Do not expose the tools over MCP")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("serve", err.Error())
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	root, err := a.assistant()
	if err != nil {
		return err
	}
	run, err := a.runner(root)
	if err != nil {
		return err
	}

	opts := server.Options{
		Runner:         run,
		Documents:      a.docs,
		Health:         a.health,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		PublicURL:      *publicURL,
		Logger:         a.log,
	}
	if !*noMCP {
		if opts.MCP, err = mcp.NewServer(serviceName, version, a.tools); err != nil {
			return err
		}
	}
	handler, err := server.New(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.InfoContext(ctx, "server.listen",
			slog.String("addr", *addr),
			slog.String("llm", cfg.LLM.Provider),
			slog.Int("tools", a.tools.Len()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return kerrors.New(kerrors.CodeConfiguration, "listen", err).WithContext("addr", *addr)
	case <-ctx.Done():
	}

	a.log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("server.shutdown.mcp", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return kerrors.New(kerrors.CodeTimeout, "graceful shutdown", err)
	}
	return nil
}
