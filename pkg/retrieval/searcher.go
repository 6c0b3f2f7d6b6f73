// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieval searches a text index and an image index with one query
// embedding and merges the neighbours by weighted distance.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// DefaultTopK is used when Searcher.TopK is not set.
const DefaultTopK = 5

// Searcher queries two collections of one vector store. An empty
// ImageCollection searches text only.
type Searcher struct {
	Embedder        memory.Embedder
	Store           memory.VectorStore
	TextCollection  string
	ImageCollection string
	TopK            int
	KeyField        string
	Weights         Weights
	Metrics         *telemetry.Metrics
	Logger          *slog.Logger
}

// Search embeds query once and merges the neighbours of both collections.
// When one collection fails the other's rows are still returned; when both
// fail the text error is returned.
func (s *Searcher) Search(ctx context.Context, query string) ([]Row, error) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "retrieval.search")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "query is required", nil)
	}
	if s.Embedder == nil || s.Store == nil || s.TextCollection == "" {
		return nil, kerrors.New(kerrors.CodeConfiguration, "searcher needs an embedder, a store and a text collection", nil)
	}
	topK := s.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	span.SetAttributes(
		attribute.String("retrieval.text_collection", s.TextCollection),
		attribute.String("retrieval.image_collection", s.ImageCollection),
		attribute.Int("retrieval.top_k", topK),
	)

	vec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		ke := kerrors.Classify(err, "embed query")
		span.RecordError(ke)
		span.SetStatus(codes.Error, ke.Error())
		return nil, ke
	}

	var (
		wg              sync.WaitGroup
		textRes, imgRes []memory.SearchResult
		textErr, imgErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		textRes, textErr = s.Store.Search(ctx, s.TextCollection, vec, topK, 0)
	}()
	if s.ImageCollection != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imgRes, imgErr = s.Store.Search(ctx, s.ImageCollection, vec, topK, 0)
		}()
	}
	wg.Wait()

	switch {
	case textErr != nil && (imgErr != nil || s.ImageCollection == ""):
		ke := kerrors.Classify(textErr, "search text index")
		span.RecordError(ke)
		span.SetStatus(codes.Error, ke.Error())
		return nil, ke
	case textErr != nil:
		s.degrade(ctx, s.TextCollection, textErr)
	case imgErr != nil:
		s.degrade(ctx, s.ImageCollection, imgErr)
	}

	rows := Merge(textRes, imgRes, MergeOptions{KeyField: s.KeyField, Weights: s.weights()})
	span.SetAttributes(attribute.Int("retrieval.rows", len(rows)))
	s.Metrics.RecordRetrieval(ctx, len(rows))
	return rows, nil
}

// SearchContext returns the best topK rows rendered for a prompt.
func (s *Searcher) SearchContext(ctx context.Context, query string, topK int) (string, error) {
	rows, err := s.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatContext(rows, topK), nil
}

func (s *Searcher) weights() Weights {
	if s.Weights == (Weights{}) {
		return EqualWeights
	}
	return s.Weights
}

func (s *Searcher) degrade(ctx context.Context, collection string, err error) {
	log := s.Logger
	if log == nil {
		log = telemetry.Component(slog.Default(), "retrieval")
	}
	log.WarnContext(ctx, "retrieval.index.degraded",
		slog.String("collection", collection),
		slog.String("code", string(kerrors.CodeOf(err))),
		slog.String("error", err.Error()))
	s.Metrics.RecordDegradation(ctx, "retrieval", err)
}
