// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini implements memory.Embedder with the Gen AI embedding models.
package gemini

import (
	"context"

	"google.golang.org/genai"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	llmgemini "github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm/gemini"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
)

// EmbedModels is the subset of genai.Models the embedder calls.
type EmbedModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder implements memory.BatchEmbedder.
type Embedder struct {
	models     EmbedModels
	model      string
	dimensions int32
	taskType   string
	guard      *resilience.Guard
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithDimensions requests a reduced output dimensionality.
func WithDimensions(n int) Option {
	return func(e *Embedder) { e.dimensions = int32(n) }
}

// WithTaskType sets the embedding task type, e.g. RETRIEVAL_QUERY.
func WithTaskType(t string) Option {
	return func(e *Embedder) { e.taskType = t }
}

// New builds an embedder from a client configuration.
func New(ctx context.Context, cfg llmgemini.ClientConfig, model string, opts ...Option) (*Embedder, error) {
	client, err := llmgemini.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModels(client.Models, model, opts...), nil
}

// NewWithModels builds an embedder over an existing models client.
func NewWithModels(models EmbedModels, model string, opts ...Option) *Embedder {
	if model == "" {
		model = "text-embedding-004"
	}
	e := &Embedder{models: models, model: model, guard: resilience.NewGuard("gemini.embed")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		d := e.dimensions
		cfg.OutputDimensionality = &d
	}

	resp, err := resilience.Run(ctx, e.guard, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, llmgemini.ClassifyError(err, "gemini embed content")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "embedding count mismatch", nil)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, kerrors.New(kerrors.CodeMalformedResponse, "empty embedding", nil).WithContext("index", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

var _ memory.BatchEmbedder = (*Embedder)(nil)
