// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama implements memory.Embedder over a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
)

// Embedder implements memory.BatchEmbedder using Ollama's /api/embed.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
	guard   *resilience.Guard
}

// NewEmbedder creates a new Ollama Embedder.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		guard:   resilience.NewGuard("ollama.embed"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in a single request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "marshal embedding request", err)
	}

	return resilience.Run(ctx, e.guard, func(ctx context.Context) ([][]float32, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return nil, kerrors.New(kerrors.CodeConfiguration, "create embedding request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return nil, kerrors.Classify(err, "ollama embedding api call failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, kerrors.FromStatus(resp.StatusCode,
				fmt.Sprintf("ollama embed returned status %d", resp.StatusCode), fmt.Errorf("%s", msg))
		}

		var out embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode embedding response", err)
		}
		if len(out.Embeddings) != len(texts) {
			return nil, kerrors.New(kerrors.CodeMalformedResponse, "embedding count mismatch", nil).
				WithContext("want", len(texts)).
				WithContext("got", len(out.Embeddings))
		}
		return out.Embeddings, nil
	})
}

var _ memory.BatchEmbedder = (*Embedder)(nil)
