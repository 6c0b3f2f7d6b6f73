// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package media generates videos with the Gen AI long-running video
// operations and stores the results as local files.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	llmgemini "github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm/gemini"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool/builtin"
)

const (
	// DefaultModel is the video model used when none is configured.
	DefaultModel = "veo-2.0-generate-001"
	// DefaultPollInterval is how often a pending operation is checked.
	DefaultPollInterval = 10 * time.Second
)

// VideoModels is the subset of genai.Models the generator calls.
type VideoModels interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// PollFunc refreshes a pending operation.
type PollFunc func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)

// DownloadFunc fetches the bytes of a generated video that only carries a URI.
type DownloadFunc func(ctx context.Context, v *genai.Video) ([]byte, error)

// VideoGenerator starts video operations, waits for them without blocking
// other goroutines, and saves the result.
type VideoGenerator struct {
	models   VideoModels
	poll     PollFunc
	download DownloadFunc
	model    string
	interval time.Duration
	config   *genai.GenerateVideosConfig
	writer   builtin.TempWriter
	guard    *resilience.Guard
	log      *slog.Logger
}

// Option configures a VideoGenerator.
type Option func(*VideoGenerator)

// WithModel sets the video model.
func WithModel(model string) Option {
	return func(g *VideoGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithPollInterval sets how often Wait checks the operation.
func WithPollInterval(d time.Duration) Option {
	return func(g *VideoGenerator) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithOutputDir sets where GenerateFile stores videos.
func WithOutputDir(dir string) Option {
	return func(g *VideoGenerator) { g.writer = builtin.TempWriter{Dir: dir} }
}

// WithConfig sets the generation config sent with every request.
func WithConfig(cfg *genai.GenerateVideosConfig) Option {
	return func(g *VideoGenerator) { g.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *VideoGenerator) { g.log = l }
}

// New builds a generator from a client configuration.
func New(ctx context.Context, cfg llmgemini.ClientConfig, opts ...Option) (*VideoGenerator, error) {
	client, err := llmgemini.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	poll := func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		return client.Operations.GetVideosOperation(ctx, op, nil)
	}
	download := func(ctx context.Context, v *genai.Video) ([]byte, error) {
		return client.Files.Download(ctx, genai.NewDownloadURIFromVideo(v), nil)
	}
	return NewWithClient(client.Models, poll, download, opts...), nil
}

// NewWithClient builds a generator over explicit model, poll and download
// functions.
func NewWithClient(models VideoModels, poll PollFunc, download DownloadFunc, opts ...Option) *VideoGenerator {
	g := &VideoGenerator{
		models:   models,
		poll:     poll,
		download: download,
		model:    DefaultModel,
		interval: DefaultPollInterval,
		guard:    resilience.NewGuard("gemini.video"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = telemetry.Component(slog.Default(), "media")
	}
	return g
}

// Start submits a generation request and returns the pending operation.
func (g *VideoGenerator) Start(ctx context.Context, prompt string) (*genai.GenerateVideosOperation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "video prompt is required", nil)
	}
	return resilience.Run(ctx, g.guard, func(ctx context.Context) (*genai.GenerateVideosOperation, error) {
		op, err := g.models.GenerateVideos(ctx, g.model, prompt, nil, g.config)
		if err != nil {
			return nil, llmgemini.ClassifyError(err, "start video generation")
		}
		return op, nil
	})
}

// Wait polls op until it is done or ctx ends. It sleeps on a ticker inside a
// select, so cancelling ctx returns promptly.
func (g *VideoGenerator) Wait(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	if op == nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "nil video operation", nil)
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for polls := 0; !op.Done; polls++ {
		select {
		case <-ctx.Done():
			return nil, kerrors.Classify(ctx.Err(), "wait for video operation").
				WithContext("operation", op.Name).
				WithContext("polls", polls)
		case <-ticker.C:
		}
		next, err := g.poll(ctx, op)
		if err != nil {
			err = llmgemini.ClassifyError(err, "poll video operation")
			if !kerrors.IsRecoverable(err) {
				return nil, err
			}
			g.log.WarnContext(ctx, "media.poll.retry", slog.String("operation", op.Name), slog.String("error", err.Error()))
			continue
		}
		op = next
		g.log.DebugContext(ctx, "media.poll", slog.String("operation", op.Name), slog.Bool("done", op.Done))
	}

	if len(op.Error) > 0 {
		return nil, kerrors.New(kerrors.CodeLLMError, fmt.Sprintf("video operation failed: %v", op.Error["message"]), nil).
			WithContext("operation", op.Name)
	}
	return op, nil
}

// Video returns the bytes of the first generated video in a finished
// operation.
func (g *VideoGenerator) Video(ctx context.Context, op *genai.GenerateVideosOperation) ([]byte, error) {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 {
			return nil, kerrors.New(kerrors.CodeInvalidInput, "video was filtered by the safety policy", nil).
				WithContext("reasons", op.Response.RAIMediaFilteredReasons)
		}
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "video operation returned no videos", nil)
	}
	v := op.Response.GeneratedVideos[0].Video
	if v == nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "generated video is empty", nil)
	}
	if len(v.VideoBytes) > 0 {
		return v.VideoBytes, nil
	}
	if g.download == nil || v.URI == "" {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "generated video has neither bytes nor uri", nil)
	}
	data, err := g.download(ctx, v)
	if err != nil {
		return nil, llmgemini.ClassifyError(err, "download video")
	}
	return data, nil
}

// GenerateFile runs a prompt to completion and returns the saved file path.
func (g *VideoGenerator) GenerateFile(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	op, err := g.Start(ctx, prompt)
	if err != nil {
		return "", err
	}
	if op, err = g.Wait(ctx, op); err != nil {
		return "", err
	}
	data, err := g.Video(ctx, op)
	if err != nil {
		return "", err
	}
	path, err := g.writer.Write("video-"+uuid.NewString()+".mp4", data)
	if err != nil {
		return "", err
	}
	g.log.InfoContext(ctx, "media.video.saved",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)))
	return path, nil
}

var _ builtin.VideoMaker = (*VideoGenerator)(nil)
