// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// Document is a unit of text to embed and store.
type Document struct {
	ID      string
	Text    string
	Payload map[string]any
}

// Indexer embeds documents into one collection of a vector store.
type Indexer struct {
	Store      VectorStore
	Embedder   Embedder
	Collection string
}

// NewIndexer creates an Indexer for collection.
func NewIndexer(store VectorStore, embedder Embedder, collection string) *Indexer {
	return &Indexer{Store: store, Embedder: embedder, Collection: collection}
}

// Ensure creates the collection sized to the embedder's output.
func (ix *Indexer) Ensure(ctx context.Context) error {
	probe, err := ix.Embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return errors.Classify(err, "probe embedding dimension")
	}
	if len(probe) == 0 {
		return errors.New(errors.CodeMalformedResponse, "embedder returned an empty vector", nil)
	}
	return ix.Store.CreateCollection(ctx, ix.Collection, uint64(len(probe)))
}

// Index embeds and upserts docs. Documents without an ID get a random one;
// the text is stored in the "text" payload field.
func (ix *Indexer) Index(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := EmbedAll(ctx, ix.Embedder, texts)
	if err != nil {
		return errors.Classify(err, "embed documents")
	}
	if len(vectors) != len(docs) {
		return errors.New(errors.CodeMalformedResponse, "embedder returned wrong number of vectors", nil).
			WithContext("want", len(docs)).
			WithContext("got", len(vectors))
	}

	now := time.Now().Unix()
	points := make([]Point, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		payload := make(map[string]any, len(d.Payload)+1)
		for k, v := range d.Payload {
			payload[k] = v
		}
		payload["text"] = d.Text
		points[i] = Point{ID: id, Vector: vectors[i], Payload: payload, Timestamp: now}
	}
	return ix.Store.Upsert(ctx, ix.Collection, points)
}
