// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/documents"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	llmgemini "github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm/gemini"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/mcp"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/media"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
	memgemini "github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory/gemini"
	memollama "github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory/ollama"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory/qdrant"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/prompt"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/retrieval"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/runner"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool/builtin"
)

const serviceName = "vxagent"

// app holds every component built from the configuration. Components whose
// backend is not configured stay nil.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *telemetry.Metrics
	health   *core.HealthRegistry
	genai    *genai.Client
	provider llm.Provider
	embedder memory.Embedder
	vectors  memory.VectorStore
	sessions session.Store
	prompts  *prompt.Store
	tools    *tool.Registry
	searcher *retrieval.Searcher
	videos   *media.VideoGenerator
	docs     *documents.Pipeline
	toolset  *mcp.Toolset

	closers []func(context.Context) error
}

// newApp wires the components in dependency order. Credentials are checked
// here, before any network call.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format),
		health: core.NewHealthRegistry(10 * time.Second),
	}

	shutdown, err := telemetry.Init(ctx, serviceName, version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
	})
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "initialize telemetry", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return shutdown(ctx) })

	if a.metrics, err = telemetry.NewMetrics(nil); err != nil {
		return nil, kerrors.New(kerrors.CodeInternal, "create metrics", err)
	}

	steps := []func(context.Context) error{
		a.initGenAI,
		a.initProvider,
		a.initRetrieval,
		a.initSessions,
		a.initPrompts,
		a.initMedia,
		a.initDocuments,
		a.initTools,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.close(context.Background())
			return nil, err
		}
	}
	return a, nil
}

func (a *app) clientConfig() llmgemini.ClientConfig {
	return llmgemini.ClientConfig{
		Backend:  a.cfg.LLM.Backend,
		APIKey:   a.cfg.LLM.APIKey,
		Project:  a.cfg.LLM.Project,
		Location: a.cfg.LLM.Location,
	}
}

func (a *app) usesGenAI() bool {
	return a.cfg.LLM.Provider == "gemini" || a.cfg.Embedder.Provider == "gemini"
}

func (a *app) initGenAI(ctx context.Context) error {
	if !a.usesGenAI() {
		return nil
	}
	client, err := llmgemini.NewClient(ctx, a.clientConfig())
	if err != nil {
		return err
	}
	a.genai = client
	return nil
}

func (a *app) initProvider(context.Context) error {
	switch a.cfg.LLM.Provider {
	case "gemini":
		a.provider = llmgemini.NewWithModels(a.genai.Models,
			llmgemini.WithModel(a.cfg.LLM.Model),
			llmgemini.WithLogger(telemetry.Component(a.log, "llm.gemini")),
		)
	case "ollama":
		a.provider = llm.NewOllama(a.cfg.LLM.BaseURL)
	case "mock":
		a.provider = &llm.MockProvider{Response: "This is a mock response."}
	default:
		return kerrors.New(kerrors.CodeConfiguration, "unknown llm provider", nil).
			WithContext("provider", a.cfg.LLM.Provider)
	}
	return nil
}

func (a *app) initRetrieval(context.Context) error {
	switch a.cfg.Embedder.Provider {
	case "gemini":
		a.embedder = memgemini.NewWithModels(a.genai.Models, a.cfg.Embedder.Model,
			memgemini.WithDimensions(a.cfg.Embedder.Dimensions))
	case "ollama":
		a.embedder = memollama.NewEmbedder(a.cfg.Embedder.BaseURL, a.cfg.Embedder.Model)
	default:
		return nil
	}

	switch a.cfg.Vector.Provider {
	case "qdrant":
		store, err := qdrant.New(a.cfg.Vector.Addr)
		if err != nil {
			return err
		}
		a.vectors = store
		a.health.Register("vector.qdrant", core.PingChecker(store.Ping))
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	default:
		a.vectors = memory.NewInMemoryStore()
	}

	a.searcher = &retrieval.Searcher{
		Embedder:        a.embedder,
		Store:           a.vectors,
		TextCollection:  a.cfg.Vector.TextCollection,
		ImageCollection: a.cfg.Vector.ImageCollection,
		TopK:            a.cfg.Vector.TopK,
		KeyField:        a.cfg.Vector.KeyField,
		Weights:         retrieval.Weights{Text: a.cfg.Vector.TextWeight, Image: a.cfg.Vector.ImageWeight},
		Metrics:         a.metrics,
		Logger:          telemetry.Component(a.log, "retrieval"),
	}
	return nil
}

func (a *app) initSessions(context.Context) error {
	switch a.cfg.Session.Backend {
	case "sqlite":
		store, err := session.OpenSQLite(a.cfg.Session.DSN)
		if err != nil {
			return err
		}
		a.sessions = store
		a.health.Register("sessions.sqlite", core.PingChecker(store.Ping))
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	default:
		a.sessions = session.NewInMemoryStore()
		a.health.Register("sessions.memory", core.StaticChecker(core.HealthHealthy, "in-memory"))
	}
	return nil
}

func (a *app) initPrompts(context.Context) error {
	a.prompts = prompt.NewStore()
	if a.cfg.Prompts.Path == "" {
		return nil
	}
	return a.prompts.LoadFile(a.cfg.Prompts.Path)
}

func (a *app) initMedia(context.Context) error {
	if a.genai == nil || a.cfg.LLM.Provider != "gemini" {
		return nil
	}
	client := a.genai
	poll := func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		return client.Operations.GetVideosOperation(ctx, op, nil)
	}
	download := func(ctx context.Context, v *genai.Video) ([]byte, error) {
		return client.Files.Download(ctx, genai.NewDownloadURIFromVideo(v), nil)
	}
	a.videos = media.NewWithClient(client.Models, poll, download,
		media.WithModel(a.cfg.Media.Model),
		media.WithPollInterval(time.Duration(a.cfg.Media.PollIntervalSeconds)*time.Second),
		media.WithOutputDir(a.cfg.Media.Dir),
		media.WithLogger(telemetry.Component(a.log, "media")),
	)
	return nil
}

func (a *app) initDocuments(context.Context) error {
	store, err := documents.NewStore(a.cfg.Documents.Dir)
	if err != nil {
		return err
	}
	a.docs = &documents.Pipeline{Store: store, Logger: telemetry.Component(a.log, "documents")}
	if a.genai == nil || a.cfg.LLM.Provider != "gemini" {
		return nil
	}
	instruction, err := a.prompts.Render(prompt.Extraction, map[string]any{})
	if err != nil {
		return err
	}
	a.docs.Extractor = documents.NewGeminiExtractor(a.genai.Models, a.cfg.Documents.Model, instruction)
	return nil
}

func (a *app) initTools(ctx context.Context) error {
	a.tools = tool.NewRegistry(
		tool.WithCallTimeout(time.Duration(a.cfg.Tools.CallTimeoutSeconds)*time.Second),
		tool.WithMetrics(a.metrics),
		tool.WithLogger(telemetry.Component(a.log, "tool")),
	)
	deps := builtin.Deps{TempDir: a.cfg.Tools.TempDir}
	if a.searcher != nil {
		deps.Searcher = a.searcher
	}
	if a.videos != nil {
		deps.Videos = a.videos
	}
	if err := a.tools.Register(builtin.All(deps)...); err != nil {
		return err
	}

	if len(a.cfg.MCP.Servers) == 0 {
		return nil
	}
	ts, err := mcp.FromConfig(a.cfg.MCP, mcp.WithToolsetLogger(a.log))
	if err != nil {
		return err
	}
	a.toolset = ts
	ts.RegisterHealth(a.health)
	a.closers = append(a.closers, func(context.Context) error { return ts.Close() })
	if err := ts.Register(ctx, a.tools); err != nil {
		// Remote tools are optional; the builtin set still works.
		a.log.WarnContext(ctx, "mcp.tools.unavailable",
			slog.String("code", string(kerrors.CodeOf(err))),
			slog.String("error", err.Error()))
	}
	return nil
}

// history returns the configured history strategy.
func (a *app) history() session.HistoryStrategy {
	var chain session.Chain
	if n := a.cfg.Session.HistoryWindow; n > 0 {
		chain = append(chain, session.WindowStrategy{MaxMessages: n})
	}
	if n := a.cfg.Session.HistoryMaxTokens; n > 0 {
		chain = append(chain, session.TokenStrategy{MaxTokens: n, KeepSystemMessages: true})
	}
	return chain
}

// assistant builds the general chat agent over every registered tool.
func (a *app) assistant() (*agent.LLMAgent, error) {
	instruction, err := a.prompts.Get(prompt.Assistant)
	if err != nil {
		return nil, err
	}
	opts := []agent.Option{
		agent.WithModel(a.cfg.LLM.Model),
		agent.WithDescription("General assistant with tools and knowledge base access."),
		agent.WithInstruction(instruction.Text),
		agent.WithTools(a.tools),
		agent.WithMaxIterations(a.cfg.LLM.MaxIterations),
		agent.WithTemperature(a.cfg.LLM.Temperature),
		agent.WithStreaming(a.cfg.LLM.Streaming),
		agent.WithHistory(a.history()),
		agent.WithMetrics(a.metrics),
		agent.WithLogger(telemetry.Component(a.log, "agent")),
	}
	if a.searcher != nil {
		opts = append(opts, agent.WithRetriever(a.searcher, a.cfg.Vector.TopK))
	}
	return agent.New("assistant", a.provider, opts...)
}

func (a *app) runner(root agent.Agent) (*runner.Runner, error) {
	return runner.New(root, a.sessions,
		runner.WithMetrics(a.metrics),
		runner.WithLogger(telemetry.Component(a.log, "runner")),
	)
}

// close releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.WarnContext(ctx, "app.close", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
