// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the HTTP shell around the runner: chat (JSON or SSE),
// the document API, MCP over SSE and health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/documents"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/mcp"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/runner"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// DefaultMaxUploadBytes bounds POST /extract bodies.
const DefaultMaxUploadBytes = 20 << 20

// Options wires the server. Only Runner is required; the document and MCP
// routes are mounted when their dependency is set.
type Options struct {
	Runner         *runner.Runner
	Documents      *documents.Pipeline
	MCP            *mcp.Server
	Health         *core.HealthRegistry
	MaxUploadBytes int64
	// PublicURL prefixes the MCP message endpoint announced to SSE clients.
	PublicURL string
	Logger    *slog.Logger
}

// Server routes HTTP requests.
type Server struct {
	runner    *runner.Runner
	docs      *documents.Pipeline
	sse       *mcpserver.SSEServer
	health    *core.HealthRegistry
	maxUpload int64
	log       *slog.Logger
	mux       *http.ServeMux
	handler   http.Handler
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "server needs a runner", nil)
	}
	s := &Server{
		runner:    opts.Runner,
		docs:      opts.Documents,
		health:    opts.Health,
		maxUpload: opts.MaxUploadBytes,
		log:       telemetry.Component(opts.Logger, "server"),
		mux:       http.NewServeMux(),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.health == nil {
		s.health = core.NewHealthRegistry(5 * time.Second)
	}

	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.docs != nil {
		s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
		s.mux.HandleFunc("DELETE /api/documents/{name}", s.handleDeleteDocument)
		s.mux.HandleFunc("GET /api/documents/{name}/data", s.handleDocumentData)
		s.mux.HandleFunc("POST /extract", s.handleExtract)
	}

	if opts.MCP != nil {
		sseOpts := []mcpserver.SSEOption{
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/messages"),
		}
		if opts.PublicURL != "" {
			sseOpts = append(sseOpts, mcpserver.WithBaseURL(opts.PublicURL))
		}
		s.sse = opts.MCP.SSE(sseOpts...)
		s.mux.Handle("GET /sse", s.sse.SSEHandler())
		s.mux.Handle("POST /messages", s.sse.MessageHandler())
		s.mux.HandleFunc("POST /messages/{session_id}", s.handleMCPMessage)
	}

	s.handler = otelhttp.NewHandler(s.logRequests(s.mux), "vxagent.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Shutdown closes open MCP SSE sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sse == nil {
		return nil
	}
	return s.sse.Shutdown(ctx)
}

type chatRequest struct {
	runner.RunRequest
	Stream bool `json:"stream"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid chat request", err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = "sess-" + uuid.NewString()
	}
	if req.Stream {
		s.streamChat(w, r, req.RunRequest)
		return
	}
	res, err := s.runner.RunSync(r.Context(), req.RunRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamChat sends every run event as one SSE message named after its type.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req runner.RunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, kerrors.New(kerrors.CodeInternal, "streaming not supported", nil))
		return
	}
	events, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", req.SessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			s.log.WarnContext(r.Context(), "server.chat.stream_write",
				slog.String("session_id", req.SessionID),
				slog.String("error", err.Error()))
			// Keep draining so the runner can finish and persist.
			continue
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev agent.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []documents.Info{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Store.Delete(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentData(w http.ResponseWriter, r *http.Request) {
	ext, err := s.docs.Store.Data(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// handleExtract stores the uploaded file and runs the extraction. A cached
// extraction is returned unless force=true is passed.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, kerrors.New(kerrors.CodeInvalidInput, "upload too large", err).
				WithContext("limit_bytes", s.maxUpload))
			return
		}
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid multipart form", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "missing file field", err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if _, err := s.docs.Store.Save(r.Context(), name, file); err != nil {
		writeError(w, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	ext, err := s.docs.Process(r.Context(), name, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// handleMCPMessage accepts the session id in the path and hands the request
// to the SSE transport, which expects it as a query parameter.
func (s *Server) handleMCPMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("sessionId", r.PathValue("session_id"))
	r.URL.RawQuery = q.Encode()
	s.sse.MessageHandler().ServeHTTP(w, r)
}

type healthResponse struct {
	Status     core.HealthStatus   `json:"status"`
	Components []core.HealthResult `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, status := s.health.CheckAll(r.Context())
	if results == nil {
		results = []core.HealthResult{}
	}
	code := http.StatusOK
	if status == core.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Components: results})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, kerrors.StatusCode(err), errorResponse{
		Error: err.Error(),
		Code:  string(kerrors.CodeOf(err)),
	})
}
