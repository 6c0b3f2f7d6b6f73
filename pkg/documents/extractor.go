// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package documents

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	llmgemini "github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm/gemini"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// Extractor reads structured fields out of a document.
type Extractor interface {
	Extract(ctx context.Context, name, mimeType string, data []byte) (*Extraction, error)
}

// GeminiExtractor sends the document and an extraction prompt to a Gemini
// model and parses its JSON answer.
type GeminiExtractor struct {
	models llmgemini.ContentModels
	model  string
	prompt string
	guard  *resilience.Guard
}

// NewGeminiExtractor builds an extractor. An empty model uses the provider
// default.
func NewGeminiExtractor(models llmgemini.ContentModels, model, prompt string) *GeminiExtractor {
	if model == "" {
		model = llmgemini.DefaultModel
	}
	return &GeminiExtractor{
		models: models,
		model:  model,
		prompt: prompt,
		guard:  resilience.NewGuard("gemini.extract"),
	}
}

// Extract implements Extractor.
func (g *GeminiExtractor) Extract(ctx context.Context, name, mimeType string, data []byte) (*Extraction, error) {
	if len(data) == 0 {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "document is empty", nil).WithContext("document", name)
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(g.prompt),
	}, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := resilience.Run(ctx, g.guard, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return nil, llmgemini.ClassifyError(err, "gemini extract document")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	ext, err := ParseExtraction(resp.Text())
	if err != nil {
		return nil, err
	}
	ext.Document = name
	return ext, nil
}

// ParseExtraction decodes a model answer. Code fences are stripped. An
// object without a "fields" key is taken as the fields themselves.
func ParseExtraction(text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "extraction is not a JSON object", err)
	}
	ext := &Extraction{}
	if _, ok := raw["fields"]; !ok {
		if err := json.Unmarshal([]byte(text), &ext.Fields); err != nil {
			return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode extraction fields", err)
		}
		normalize(ext)
		return ext, nil
	}
	if err := json.Unmarshal([]byte(text), ext); err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode extraction", err)
	}
	normalize(ext)
	return ext, nil
}

// Pipeline runs extractions and caches their results in a Store.
type Pipeline struct {
	Store     *Store
	Extractor Extractor
	Logger    *slog.Logger
}

// Process returns the cached extraction of name, or extracts and caches it
// when there is none or force is set.
func (p *Pipeline) Process(ctx context.Context, name string, force bool) (*Extraction, error) {
	log := p.Logger
	if log == nil {
		log = telemetry.Component(slog.Default(), "documents")
	}
	if !force {
		if ext, err := p.Store.Data(ctx, name); err == nil {
			log.DebugContext(ctx, "documents.extract.cached", slog.String("document", name))
			return ext, nil
		} else if !kerrors.Is(err, kerrors.CodeNotFound) {
			log.WarnContext(ctx, "documents.extract.cache_unreadable",
				slog.String("document", name), slog.String("error", err.Error()))
		}
	}
	if p.Extractor == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "no document extractor configured", nil)
	}

	data, mimeType, err := p.Store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ext, err := p.Extractor.Extract(ctx, name, mimeType, data)
	if err != nil {
		log.WarnContext(ctx, "documents.extract.error",
			slog.String("document", name),
			slog.String("code", string(kerrors.CodeOf(err))),
			slog.String("error", err.Error()))
		return nil, err
	}
	ext.Document = name
	if ext.ExtractedAt.IsZero() {
		ext.ExtractedAt = time.Now().UTC()
	}
	if err := p.Store.SaveExtraction(ctx, ext); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "documents.extract.done",
		slog.String("document", name),
		slog.Int("fields", len(ext.Fields)),
		slog.Duration("elapsed", time.Since(start)))
	return ext, nil
}
